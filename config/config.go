package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the complete application configuration
type Config struct {
	Engine     *EngineConfig
	ApiGateway *ApiGatewayConfig
	Blockchain *BlockchainConfig
	Networks   *NetworksConfig
}

// LoadConfig loads all configuration files present in a directory
func LoadConfig(configDir string) (*Config, error) {
	absDir, err := filepath.Abs(configDir)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of config directory: %w", err)
	}

	config := &Config{}

	enginePath := filepath.Join(absDir, "engine.defaults.yml")
	if _, err := os.Stat(enginePath); err == nil {
		engineCfg, err := LoadEngineConfig(enginePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load engine config: %w", err)
		}
		config.Engine = engineCfg
	}

	apiGatewayPath := filepath.Join(absDir, "ingestion.defaults.yml")
	if _, err := os.Stat(apiGatewayPath); err == nil {
		apiGatewayCfg, err := LoadApiGatewayConfig(apiGatewayPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load API gateway config: %w", err)
		}
		config.ApiGateway = apiGatewayCfg
	}

	blockchainPath := filepath.Join(absDir, "client_config.yml")
	if _, err := os.Stat(blockchainPath); err == nil {
		blockchainCfg, err := LoadBlockchainConfig(blockchainPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load blockchain config: %w", err)
		}
		config.Blockchain = blockchainCfg
	}

	networksPath := filepath.Join(absDir, "networks.yml")
	if config.Blockchain != nil && config.Blockchain.NetworksPath != "" {
		networksPath = config.Blockchain.NetworksPath
	}
	if _, err := os.Stat(networksPath); err == nil {
		networksCfg, err := LoadNetworksConfig(networksPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load networks config: %w", err)
		}
		config.Networks = networksCfg
	}

	return config, nil
}
