package chainmaker

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// NodeConfig stores detailed configuration for a single ChainMaker node
type NodeConfig struct {
	Address     string   `yaml:"address"`
	ConnCount   int      `yaml:"conn_count"`
	UseTLS      bool     `yaml:"use_tls"`
	TLSHostName string   `yaml:"tls_host_name"`
	CaPaths     []string `yaml:"ca_paths"`
}

// ChainMakerConfig stores ChainMaker-specific configuration
type ChainMakerConfig struct {
	// --- SDK Connection Required ---
	ChainID string `yaml:"chain_id"`
	OrgID   string `yaml:"org_id"`

	// TLS Connection Credentials
	UserKeyPath  string `yaml:"user_key_path"`
	UserCertPath string `yaml:"user_cert_path"`

	// Transaction Signing Credentials. Without a sign key the client is read-only.
	UserSignKeyPath  string `yaml:"user_sign_key_path"`
	UserSignCertPath string `yaml:"user_sign_cert_path"`

	Nodes []NodeConfig `yaml:"nodes"`

	// --- EVM Contract Settings ---
	// Numeric chain id the application uses for this chain in the network registry
	EVMChainID uint64 `yaml:"evm_chain_id"`
	// Key of the calldata parameter for EVM contract invocations
	ParamKeyData string `yaml:"param_key_data"`
}

// SetDefaults fills in the EVM calldata key
func (c *ChainMakerConfig) SetDefaults() {
	if c.ParamKeyData == "" {
		c.ParamKeyData = "data"
	}
}

// Validate checks the fields needed to connect and resolve receipts
func (c *ChainMakerConfig) Validate() error {
	if c.ChainID == "" || c.OrgID == "" {
		return fmt.Errorf("chainmaker chain_id and org_id are required")
	}
	if c.EVMChainID == 0 {
		return fmt.Errorf("chainmaker evm_chain_id is required")
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("no node configurations provided in config")
	}
	return nil
}

// LoadChainMakerConfig loads ChainMaker configuration from the specified YAML file path
func LoadChainMakerConfig(path string) (*ChainMakerConfig, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("unable to get absolute path of ChainMaker config file: %w", err)
	}

	fmt.Printf("Loading ChainMaker configuration from '%s'...\n", absPath)

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read ChainMaker config file '%s': %w", absPath, err)
	}

	var cfg ChainMakerConfig
	err = yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ChainMaker YAML config file: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("chainmaker configuration error: %w", err)
	}

	fmt.Println("ChainMaker configuration loaded successfully.")
	return &cfg, nil
}
