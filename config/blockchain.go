package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

// ConfirmationConfig controls receipt polling after a transaction is submitted
type ConfirmationConfig struct {
	PollInterval string `yaml:"poll_interval"` // Delay between receipt lookups
	MaxAttempts  int    `yaml:"max_attempts"`  // Receipt lookups before giving up
}

// SetDefaults sets the historical 2s x 20 attempts budget
func (c *ConfirmationConfig) SetDefaults() {
	if c.PollInterval == "" {
		c.PollInterval = "2s"
		fmt.Printf("Warning: confirmation.poll_interval not set, defaulting to %s\n", c.PollInterval)
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 20
		fmt.Printf("Warning: confirmation.max_attempts not set or invalid, defaulting to %d\n", c.MaxAttempts)
	}
}

// Interval returns the parsed poll interval
func (c *ConfirmationConfig) Interval() time.Duration {
	d, err := time.ParseDuration(c.PollInterval)
	if err != nil || d <= 0 {
		return 2 * time.Second
	}
	return d
}

// EventTopicsConfig overrides the event topic signatures used for log extraction
type EventTopicsConfig struct {
	Transfer   string `yaml:"transfer"`
	Registered string `yaml:"registered"`
}

// BlockchainConfig stores common blockchain configuration across all blockchain types
type BlockchainConfig struct {
	// --- Blockchain Type Selection ---
	BlockchainType string `yaml:"blockchain_type"` // "ethereum", "chainmaker"

	// --- Common Behavior Configuration ---
	RetryLimit     int `yaml:"retry_limit"`
	RetryInterval  int `yaml:"retry_interval"`
	TimeoutSeconds int `yaml:"timeout_seconds"`

	Confirmation ConfirmationConfig `yaml:"confirmation"`
	EventTopics  EventTopicsConfig  `yaml:"event_topics"`

	// Environment variable holding the hex private key used to sign mint/register transactions.
	// An unset or empty variable leaves the client without a wallet.
	SignerKeyEnv string `yaml:"signer_key_env"`

	// NetworksPath points at the network registry file; empty uses the built-in table
	NetworksPath string `yaml:"networks_path"`

	// --- Chain-specific Configuration ---
	// This will be loaded separately based on blockchain type
	ChainSpecific any `yaml:"-"`
}

// SetDefaults fills in unset common settings
func (c *BlockchainConfig) SetDefaults() {
	if c.BlockchainType == "" {
		c.BlockchainType = "ethereum"
		fmt.Printf("Warning: blockchain_type not set, defaulting to %s\n", c.BlockchainType)
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 15
		fmt.Printf("Warning: timeout_seconds not set or invalid, defaulting to %d\n", c.TimeoutSeconds)
	}
	if c.SignerKeyEnv == "" {
		c.SignerKeyEnv = "TRUECANVAS_SIGNER_KEY"
	}
	c.Confirmation.SetDefaults()
}

// Timeout returns the per-call timeout for node requests
func (c *BlockchainConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SignerKey reads the signer key from the configured environment variable
func (c *BlockchainConfig) SignerKey() string {
	if c.SignerKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.SignerKeyEnv)
}

// LoadBlockchainConfig loads blockchain configuration from the specified YAML file path
func LoadBlockchainConfig(path string) (*BlockchainConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config file: %w", err)
	}

	fmt.Printf("Loading blockchain configuration from '%s'...\n", absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", absPath, err)
	}

	var cfg BlockchainConfig
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML config file: %w", err)
	}
	cfg.SetDefaults()

	// Relative networks path is resolved against the config file's directory
	if cfg.NetworksPath != "" && !filepath.IsAbs(cfg.NetworksPath) {
		cfg.NetworksPath = filepath.Join(filepath.Dir(absPath), cfg.NetworksPath)
	}

	fmt.Println("Blockchain configuration loaded successfully.")
	return &cfg, nil
}
