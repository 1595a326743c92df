package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"flowbridge/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/flowbridge"
	configFileName = "config.yaml"
)

// DefaultConfigPath returns the default location of config.yaml, or an empty
// string when the user home directory cannot be determined.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, userConfigDir, configFileName)
}

// Load builds the effective configuration: defaults, overlaid with the yaml
// file at configPath (if it exists), overlaid with environment variables.
//
// A missing config file is not an error; environment-only configuration is a
// supported deployment mode for MCP clients that spawn the server with an
// env block.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("error loading config from %s: %w", configPath, err)
			}
			logging.Info("Config", "Loaded configuration from %s", configPath)
		case errors.Is(err, os.ErrNotExist):
			logging.Debug("Config", "No config file at %s, using defaults and environment", configPath)
		default:
			return Config{}, fmt.Errorf("error reading config from %s: %w", configPath, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg. Unset variables leave the
// current value untouched; malformed numeric/boolean values are logged and
// ignored rather than failing startup.
func applyEnv(cfg *Config) {
	if v := os.Getenv("HUBLEAD_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("HUBLEAD_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("FLOWBRIDGE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWBRIDGE_WORKFLOWS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Workflows.Enabled = &b
		} else {
			logging.Warn("Config", "Ignoring invalid FLOWBRIDGE_WORKFLOWS_ENABLED=%q", v)
		}
	}
	envInt("FLOWBRIDGE_WORKFLOW_DISCOVERY_INTERVAL", &cfg.Workflows.DiscoveryInterval)
	envInt("FLOWBRIDGE_WORKFLOW_EXECUTION_TIMEOUT", &cfg.Workflows.ExecutionTimeout)
	envInt("FLOWBRIDGE_WORKFLOW_MAX_CONCURRENT_EXECUTIONS", &cfg.Workflows.MaxConcurrentExecutions)
	envInt("FLOWBRIDGE_WORKFLOW_STATUS_CHECK_INTERVAL", &cfg.Workflows.StatusCheckInterval)
	envInt("FLOWBRIDGE_WORKFLOW_RETRY_ATTEMPTS", &cfg.Workflows.RetryAttempts)
	if v := os.Getenv("FLOWBRIDGE_WORKFLOW_FILTER_PATTERNS"); v != "" {
		var patterns []string
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				patterns = append(patterns, p)
			}
		}
		cfg.Workflows.FilterPatterns = patterns
	}
}

func envInt(name string, dst *int) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		logging.Warn("Config", "Ignoring invalid %s=%q", name, v)
		return
	}
	*dst = n
}
