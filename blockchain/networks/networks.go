// Package networks holds the immutable table of chains the application can mint on
// and designates the single chain that hosts the IP-asset registry.
package networks

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"truecanvas/config"
)

// ErrUnsupportedNetwork is matched by every UnsupportedNetworkError
var ErrUnsupportedNetwork = errors.New("unsupported network")

// UnsupportedNetworkError reports a chain id that is absent from the registry
// or lacks a contract needed for the requested operation
type UnsupportedNetworkError struct {
	ChainID uint64
	Reason  string
}

func (e *UnsupportedNetworkError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported network %d: %s", e.ChainID, e.Reason)
	}
	return fmt.Sprintf("unsupported network %d", e.ChainID)
}

func (e *UnsupportedNetworkError) Is(target error) bool { return target == ErrUnsupportedNetwork }

// IsUnsupportedNetwork reports whether err is an unsupported network condition
func IsUnsupportedNetwork(err error) bool {
	return errors.Is(err, ErrUnsupportedNetwork)
}

// ChainDescriptor describes one supported chain
type ChainDescriptor struct {
	ChainID          uint64          `json:"chain_id"`
	Name             string          `json:"name"`
	ExplorerBaseURL  string          `json:"explorer_url"`
	RPCURL           string          `json:"rpc_url,omitempty"`
	NFTContract      *common.Address `json:"nft_contract,omitempty"`
	RegistryContract *common.Address `json:"registry_contract,omitempty"`
}

// ExplorerTxURL returns the explorer page of a transaction on this chain
func (d ChainDescriptor) ExplorerTxURL(hash common.Hash) string {
	return joinExplorer(d.ExplorerBaseURL, "tx", hash.Hex())
}

// ExplorerAddressURL returns the explorer page of an address on this chain
func (d ChainDescriptor) ExplorerAddressURL(addr common.Address) string {
	return joinExplorer(d.ExplorerBaseURL, "address", addr.Hex())
}

func joinExplorer(base, kind, id string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + kind + "/" + id
}

// Registry is a read-only chain table built once at start-up
type Registry struct {
	chains          map[uint64]ChainDescriptor
	registryChainID uint64
}

// New builds a registry. registryChainID may be 0 to disable registration,
// otherwise it must name one of the chains.
func New(chains []ChainDescriptor, registryChainID uint64) (*Registry, error) {
	if len(chains) == 0 {
		return nil, fmt.Errorf("network registry requires at least one chain")
	}
	r := &Registry{chains: make(map[uint64]ChainDescriptor, len(chains)), registryChainID: registryChainID}
	for _, c := range chains {
		if c.ChainID == 0 {
			return nil, fmt.Errorf("chain '%s' has no chain id", c.Name)
		}
		if _, dup := r.chains[c.ChainID]; dup {
			return nil, fmt.Errorf("duplicate chain id %d", c.ChainID)
		}
		r.chains[c.ChainID] = c
	}
	if registryChainID != 0 {
		if _, ok := r.chains[registryChainID]; !ok {
			return nil, fmt.Errorf("registry chain %d is not in the network table", registryChainID)
		}
	}
	return r, nil
}

// FromConfig builds a registry from the networks file
func FromConfig(cfg *config.NetworksConfig) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("networks configuration is nil")
	}
	chains := make([]ChainDescriptor, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		d := ChainDescriptor{
			ChainID:         c.ChainID,
			Name:            c.Name,
			ExplorerBaseURL: c.ExplorerURL,
			RPCURL:          c.RPCURL,
		}
		var err error
		if d.NFTContract, err = parseAddress(c.NFTContract); err != nil {
			return nil, fmt.Errorf("chain %d nft_contract: %w", c.ChainID, err)
		}
		if d.RegistryContract, err = parseAddress(c.RegistryContract); err != nil {
			return nil, fmt.Errorf("chain %d registry_contract: %w", c.ChainID, err)
		}
		chains = append(chains, d)
	}
	return New(chains, cfg.RegistryChainID)
}

// Load reads the registry from a networks file, or returns Default for an empty path
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	cfg, err := config.LoadNetworksConfig(path)
	if err != nil {
		return nil, err
	}
	return FromConfig(cfg)
}

func parseAddress(s string) (*common.Address, error) {
	if s == "" {
		return nil, nil
	}
	if !common.IsHexAddress(s) {
		return nil, fmt.Errorf("'%s' is not a hex address", s)
	}
	addr := common.HexToAddress(s)
	return &addr, nil
}

// Default returns the built-in testnet table. NFT contracts are deployment specific
// and must come from the networks file.
func Default() *Registry {
	registry := common.HexToAddress(DefaultRegistryContract)
	r, err := New([]ChainDescriptor{
		{ChainID: 2442, Name: "Polygon zkEVM Cardona", ExplorerBaseURL: "https://cardona-zkevm.polygonscan.com/", RPCURL: "https://rpc.cardona.zkevm-rpc.com"},
		{ChainID: 421614, Name: "Arbitrum Sepolia", ExplorerBaseURL: "https://sepolia.arbiscan.io/", RPCURL: "https://api.zan.top/arb-sepolia"},
		{ChainID: DefaultRegistryChainID, Name: "Story Testnet", ExplorerBaseURL: "https://testnet.storyscan.xyz/", RPCURL: "https://testnet.storyrpc.io/", RegistryContract: &registry},
	}, DefaultRegistryChainID)
	if err != nil {
		panic(err)
	}
	return r
}

const (
	DefaultRegistryChainID  uint64 = 1513
	DefaultRegistryContract        = "0xe34A78B3d658aF7ad69Ff1EFF9012ECa025a14Be"
)

// Lookup returns the descriptor of a chain
func (r *Registry) Lookup(chainID uint64) (ChainDescriptor, error) {
	d, ok := r.chains[chainID]
	if !ok {
		return ChainDescriptor{}, &UnsupportedNetworkError{ChainID: chainID}
	}
	return d, nil
}

// MintTarget returns the NFT contract to mint on for a chain
func (r *Registry) MintTarget(chainID uint64) (common.Address, error) {
	d, err := r.Lookup(chainID)
	if err != nil {
		return common.Address{}, err
	}
	if d.NFTContract == nil {
		return common.Address{}, &UnsupportedNetworkError{ChainID: chainID, Reason: "no NFT contract configured"}
	}
	return *d.NFTContract, nil
}

// RegistryTarget returns the registry chain and its registry contract
func (r *Registry) RegistryTarget() (ChainDescriptor, common.Address, error) {
	if r.registryChainID == 0 {
		return ChainDescriptor{}, common.Address{}, &UnsupportedNetworkError{Reason: "no registry chain designated"}
	}
	d := r.chains[r.registryChainID]
	if d.RegistryContract == nil {
		return d, common.Address{}, &UnsupportedNetworkError{ChainID: d.ChainID, Reason: "no registry contract configured"}
	}
	return d, *d.RegistryContract, nil
}

// RegistryChainID returns the designated registry chain, 0 if none
func (r *Registry) RegistryChainID() uint64 { return r.registryChainID }

// IsRegistryChain reports whether chainID is the designated registry chain
func (r *Registry) IsRegistryChain(chainID uint64) bool {
	return r.registryChainID != 0 && chainID == r.registryChainID
}

// All returns the descriptors ordered by chain id
func (r *Registry) All() []ChainDescriptor {
	out := make([]ChainDescriptor, 0, len(r.chains))
	for _, d := range r.chains {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}
