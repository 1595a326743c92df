// Package config handles flowbridge configuration: defaults, yaml file
// loading, environment overrides, validation, and live reload of the
// workflow filter patterns.
//
// Precedence, lowest to highest: built-in defaults, config.yaml, environment
// variables. The only fatal condition is a missing or unusable API key /
// base URL; every other misconfiguration is clamped or rejected with a
// warning so the server still comes up.
package config
