package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// ChainConfig describes one supported chain in networks.yml
type ChainConfig struct {
	ChainID          uint64 `yaml:"chain_id"`
	Name             string `yaml:"name"`
	ExplorerURL      string `yaml:"explorer_url"`
	RPCURL           string `yaml:"rpc_url"`
	NFTContract      string `yaml:"nft_contract"`      // mintArtwork target on this chain
	RegistryContract string `yaml:"registry_contract"` // IP-asset registry, only on the registry chain
}

// NetworksConfig is the chain registry file
type NetworksConfig struct {
	RegistryChainID uint64        `yaml:"registry_chain_id"`
	Chains          []ChainConfig `yaml:"chains"`
}

// Validate checks that chain ids are unique and the registry chain is listed
func (c *NetworksConfig) Validate() error {
	if len(c.Chains) == 0 {
		return fmt.Errorf("networks configuration lists no chains")
	}
	seen := make(map[uint64]bool, len(c.Chains))
	for _, ch := range c.Chains {
		if ch.ChainID == 0 {
			return fmt.Errorf("chain '%s' has no chain_id", ch.Name)
		}
		if seen[ch.ChainID] {
			return fmt.Errorf("duplicate chain_id %d", ch.ChainID)
		}
		seen[ch.ChainID] = true
	}
	if c.RegistryChainID != 0 && !seen[c.RegistryChainID] {
		return fmt.Errorf("registry_chain_id %d is not one of the configured chains", c.RegistryChainID)
	}
	return nil
}

// LoadNetworksConfig loads the chain registry from the specified YAML file path
func LoadNetworksConfig(path string) (*NetworksConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read networks config file '%s': %w", path, err)
	}

	var cfg NetworksConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse networks YAML config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("networks configuration error: %w", err)
	}
	return &cfg, nil
}
