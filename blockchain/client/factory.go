package blockchain

import (
	"fmt"
	"log"
	"path/filepath"

	"truecanvas/blockchain/client/chainmaker"
	"truecanvas/blockchain/client/ethereum"
	"truecanvas/config"
)

// BlockchainType represents the type of blockchain client
type BlockchainType string

const (
	Ethereum   BlockchainType = "ethereum"
	ChainMaker BlockchainType = "chainmaker"
)

// LoadChainSpecificConfig loads chain-specific configuration based on blockchain type
func LoadChainSpecificConfig(blockchainType string, configDir string) (any, error) {
	switch BlockchainType(blockchainType) {
	case Ethereum, "":
		return ethereum.LoadEthereumConfig(filepath.Join(configDir, "clients", "ethereum.yml"))
	case ChainMaker:
		return chainmaker.LoadChainMakerConfig(filepath.Join(configDir, "clients", "chainmaker.yml"))
	default:
		return nil, fmt.Errorf("unsupported blockchain type: %s", blockchainType)
	}
}

// NewBlockchainClient creates a blockchain client based on the configuration
func NewBlockchainClient(cfg *config.BlockchainConfig, logger *log.Logger) (BlockchainClient, error) {
	switch BlockchainType(cfg.BlockchainType) {
	case Ethereum, "":
		return ethereum.NewEthereumClient(cfg, logger)
	case ChainMaker:
		return chainmaker.NewChainMakerClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported blockchain type: %s", cfg.BlockchainType)
	}
}

// NewBlockchainClientFromFile creates a blockchain client from configuration files
func NewBlockchainClientFromFile(configPath string, logger *log.Logger) (BlockchainClient, *config.BlockchainConfig, error) {
	// Load common configuration
	cfg, err := config.LoadBlockchainConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load common config from file '%s': %w", configPath, err)
	}

	// Load chain-specific configuration
	configDir := filepath.Dir(configPath)
	chainSpecificCfg, err := LoadChainSpecificConfig(cfg.BlockchainType, configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load chain-specific config: %w", err)
	}

	cfg.ChainSpecific = chainSpecificCfg
	client, err := NewBlockchainClient(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}

var (
	_ BlockchainClient = (*ethereum.Client)(nil)
	_ BlockchainClient = (*chainmaker.Client)(nil)
)
