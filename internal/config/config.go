package config

// Config is the top-level configuration structure for flowbridge.
//
// Interval and timeout fields are expressed in milliseconds to match the
// remote platform's configuration conventions.
type Config struct {
	// APIKey authenticates requests against the Hublead API. Required.
	APIKey string `yaml:"apiKey,omitempty"`

	// BaseURL is the root of the Hublead API (default: https://api.hublead.io).
	BaseURL string `yaml:"baseURL,omitempty"`

	// LogLevel controls diagnostic verbosity: debug, info, warn, error.
	LogLevel string `yaml:"logLevel,omitempty"`

	Workflows WorkflowConfig `yaml:"workflows,omitempty"`
}

// WorkflowConfig controls the dynamic workflow tool subsystem.
type WorkflowConfig struct {
	// Enabled toggles workflow discovery entirely. When false only the static
	// social tools are served.
	Enabled *bool `yaml:"enabled,omitempty"`

	// DiscoveryInterval is the periodic refresh interval in milliseconds.
	// 0 disables periodic refresh (discovery still runs once at startup).
	DiscoveryInterval int `yaml:"discoveryInterval,omitempty"`

	// ExecutionTimeout bounds a single workflow execution in milliseconds,
	// measured from the start of status polling.
	ExecutionTimeout int `yaml:"executionTimeout,omitempty"`

	// MaxConcurrentExecutions caps the number of workflow runs polling at once.
	MaxConcurrentExecutions int `yaml:"maxConcurrentExecutions,omitempty"`

	// StatusCheckInterval is the poll spacing in milliseconds. Values below
	// 1000 are clamped at construction to avoid hammering the remote API.
	StatusCheckInterval int `yaml:"statusCheckInterval,omitempty"`

	// RetryAttempts is the number of retries the API client performs for
	// network errors and 5xx responses.
	RetryAttempts int `yaml:"retryAttempts,omitempty"`

	// FilterPatterns restricts which discovered workflows become tools.
	// Patterns containing '*' are wildcard matches, anything else is a
	// case-insensitive substring match. Empty list means no filtering.
	FilterPatterns []string `yaml:"filterPatterns,omitempty"`
}

// WorkflowsEnabled resolves the tri-state Enabled flag (nil means default on).
func (c *Config) WorkflowsEnabled() bool {
	if c.Workflows.Enabled == nil {
		return true
	}
	return *c.Workflows.Enabled
}

// Default returns the default configuration for flowbridge.
func Default() Config {
	return Config{
		BaseURL:  "https://api.hublead.io",
		LogLevel: "info",
		Workflows: WorkflowConfig{
			DiscoveryInterval:       300000,
			ExecutionTimeout:        300000,
			MaxConcurrentExecutions: 5,
			StatusCheckInterval:     2000,
			RetryAttempts:           3,
		},
	}
}
