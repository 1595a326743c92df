package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for conditions the process cannot start
// without. Per the error-handling policy this is the only fatal failure mode:
// everything downstream degrades instead of exiting.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("missing API key: set HUBLEAD_API_KEY or apiKey in config.yaml")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("missing base URL")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base URL %q", c.BaseURL)
	}

	w := c.Workflows
	if w.DiscoveryInterval < 0 {
		return fmt.Errorf("workflows.discoveryInterval must be >= 0, got %d", w.DiscoveryInterval)
	}
	if w.ExecutionTimeout <= 0 {
		return fmt.Errorf("workflows.executionTimeout must be > 0, got %d", w.ExecutionTimeout)
	}
	if w.MaxConcurrentExecutions <= 0 {
		return fmt.Errorf("workflows.maxConcurrentExecutions must be > 0, got %d", w.MaxConcurrentExecutions)
	}
	if w.StatusCheckInterval < 0 {
		return fmt.Errorf("workflows.statusCheckInterval must be >= 0, got %d", w.StatusCheckInterval)
	}
	if w.RetryAttempts < 0 {
		return fmt.Errorf("workflows.retryAttempts must be >= 0, got %d", w.RetryAttempts)
	}
	return nil
}
