package config

import (
	"fmt"
	"time"
)

// VerifierConfig points at the external verification / proof-generation service
type VerifierConfig struct {
	BaseURL        string `yaml:"base_url"`
	VerifyPath     string `yaml:"verify_path"`
	StatusPath     string `yaml:"status_path"`
	RequestTimeout string `yaml:"request_timeout"` // Per-request HTTP timeout

	// Proof polling
	PollInterval string `yaml:"poll_interval"`
	MaxAttempts  int    `yaml:"max_attempts"` // 0 polls until a terminal status
	MaxWait      string `yaml:"max_wait"`     // empty polls without a wall-clock limit
}

// SetDefaults sets reasonable default values for the verifier configuration
func (c *VerifierConfig) SetDefaults() {
	if c.VerifyPath == "" {
		c.VerifyPath = "/verify"
	}
	if c.StatusPath == "" {
		c.StatusPath = "/proof_status"
	}
	if c.RequestTimeout == "" {
		c.RequestTimeout = "30s"
		fmt.Printf("Warning: verifier.request_timeout not set, defaulting to %s\n", c.RequestTimeout)
	}
	if c.PollInterval == "" {
		c.PollInterval = "6s"
		fmt.Printf("Warning: verifier.poll_interval not set, defaulting to %s\n", c.PollInterval)
	}
}

// Validate validates the verifier configuration
func (c *VerifierConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("verifier base_url is required")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("verifier max_attempts cannot be negative")
	}
	for name, v := range map[string]string{"request_timeout": c.RequestTimeout, "poll_interval": c.PollInterval, "max_wait": c.MaxWait} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("verifier %s '%s' is not a valid duration: %w", name, v, err)
		}
	}
	return nil
}

// Durations returns the parsed timeout, poll interval and max wait
func (c *VerifierConfig) Durations() (timeout, interval, maxWait time.Duration) {
	timeout, _ = time.ParseDuration(c.RequestTimeout)
	interval, _ = time.ParseDuration(c.PollInterval)
	if c.MaxWait != "" {
		maxWait, _ = time.ParseDuration(c.MaxWait)
	}
	return timeout, interval, maxWait
}
