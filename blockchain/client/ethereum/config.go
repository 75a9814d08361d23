package ethereum

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// EthereumConfig stores settings specific to EVM JSON-RPC nodes
type EthereumConfig struct {
	// JSON-RPC endpoint of the chain the signer mints on
	RPCURL string `yaml:"rpc_url"`

	// When non-zero the node must report this chain id at start-up
	ExpectedChainID uint64 `yaml:"expected_chain_id"`

	// Fixed gas limit for write calls; 0 lets the node estimate
	GasLimit uint64 `yaml:"gas_limit"`
}

// LoadEthereumConfig loads Ethereum configuration from the specified YAML file path
func LoadEthereumConfig(path string) (*EthereumConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of Ethereum config file: %w", err)
	}

	fmt.Printf("Loading Ethereum configuration from '%s'...\n", absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read Ethereum config file '%s': %w", absPath, err)
	}

	var cfg EthereumConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse Ethereum YAML config file: %w", err)
	}
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("ethereum rpc_url is required")
	}

	fmt.Println("Ethereum configuration loaded successfully.")
	return &cfg, nil
}
