// Package events recovers typed results from receipt logs by matching event topic signatures.
package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"truecanvas/blockchain/types"
	"truecanvas/config"
)

const (
	EventTransfer   = "Transfer"
	EventRegistered = "Registered"
)

var (
	// TransferTopic is keccak256("Transfer(address,address,uint256)")
	TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	// RegisteredTopic identifies the IP-asset registry's registration event
	RegisteredTopic = common.HexToHash("0x7d917fcbc9a29a9705ff9936ffa599500e4fd902e4486bae317414fe967b307c")
)

// Decoder turns a log whose first topic matched into a typed value.
// Returning false skips the log and the scan continues.
type Decoder func(l types.Log) (any, bool)

// Spec binds an event name to its topic signature and decoder
type Spec struct {
	Name   string
	Topic  common.Hash
	Decode Decoder
}

// MintedToken is the ERC-721 token created by a mint
type MintedToken struct {
	TokenID  *big.Int
	Contract common.Address
}

// Registry is a set of event specs keyed by name
type Registry struct {
	specs map[string]Spec
}

// NewRegistry builds a registry from specs; later specs replace earlier ones of the same name
func NewRegistry(specs ...Spec) *Registry {
	r := &Registry{specs: make(map[string]Spec, len(specs))}
	for _, s := range specs {
		r.specs[s.Name] = s
	}
	return r
}

// DefaultRegistry knows the Transfer and Registered events under the given topics
func DefaultRegistry(transferTopic, registeredTopic common.Hash) *Registry {
	return NewRegistry(TransferSpec(transferTopic), RegisteredSpec(registeredTopic))
}

// FromConfig builds the default registry, applying topic overrides from configuration
func FromConfig(cfg config.EventTopicsConfig) (*Registry, error) {
	transfer, err := topicOrDefault(cfg.Transfer, TransferTopic)
	if err != nil {
		return nil, fmt.Errorf("event_topics.transfer: %w", err)
	}
	registered, err := topicOrDefault(cfg.Registered, RegisteredTopic)
	if err != nil {
		return nil, fmt.Errorf("event_topics.registered: %w", err)
	}
	return DefaultRegistry(transfer, registered), nil
}

func topicOrDefault(s string, def common.Hash) (common.Hash, error) {
	if s == "" {
		return def, nil
	}
	b := common.FromHex(s)
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("topic '%s' is not a 32-byte hex value", s)
	}
	return common.BytesToHash(b), nil
}

// Find scans receipt logs in order and returns the first value decoded by the named spec
func (r *Registry) Find(receipt *types.Receipt, name string) (any, bool) {
	spec, ok := r.specs[name]
	if !ok || receipt == nil {
		return nil, false
	}
	return find(receipt, spec)
}

func find(receipt *types.Receipt, spec Spec) (any, bool) {
	for _, l := range receipt.Logs {
		if len(l.Topics) == 0 || l.Topics[0] != spec.Topic {
			continue
		}
		if v, ok := spec.Decode(l); ok {
			return v, true
		}
	}
	return nil, false
}

// MintedToken is ExtractMintedToken against the registry's Transfer spec
func (r *Registry) MintedToken(receipt *types.Receipt) (*MintedToken, bool) {
	v, ok := r.Find(receipt, EventTransfer)
	if !ok {
		return nil, false
	}
	return v.(*MintedToken), true
}

// RegisteredAddress is ExtractRegisteredAddress against the registry's Registered spec
func (r *Registry) RegisteredAddress(receipt *types.Receipt) (common.Address, bool) {
	v, ok := r.Find(receipt, EventRegistered)
	if !ok {
		return common.Address{}, false
	}
	return v.(common.Address), true
}

// TransferSpec decodes an ERC-721 Transfer: the token id is the fourth topic.
// ERC-20 transfers carry the amount in data and only three topics; they are skipped.
func TransferSpec(topic common.Hash) Spec {
	return Spec{
		Name:  EventTransfer,
		Topic: topic,
		Decode: func(l types.Log) (any, bool) {
			if len(l.Topics) < 4 {
				return nil, false
			}
			return &MintedToken{
				TokenID:  new(big.Int).SetBytes(l.Topics[3].Bytes()),
				Contract: l.Address,
			}, true
		},
	}
}

// RegisteredSpec decodes the registered address from the low-order 20 bytes of the log data
func RegisteredSpec(topic common.Hash) Spec {
	return Spec{
		Name:  EventRegistered,
		Topic: topic,
		Decode: func(l types.Log) (any, bool) {
			if len(l.Data) < common.AddressLength {
				return nil, false
			}
			return common.BytesToAddress(l.Data[len(l.Data)-common.AddressLength:]), true
		},
	}
}

// ExtractMintedToken returns the token id and contract of the first Transfer log
func ExtractMintedToken(receipt *types.Receipt, transferTopic common.Hash) (*MintedToken, bool) {
	if receipt == nil {
		return nil, false
	}
	v, ok := find(receipt, TransferSpec(transferTopic))
	if !ok {
		return nil, false
	}
	return v.(*MintedToken), true
}

// ExtractRegisteredAddress returns the address carried by the first registration log
func ExtractRegisteredAddress(receipt *types.Receipt, registeredTopic common.Hash) (common.Address, bool) {
	if receipt == nil {
		return common.Address{}, false
	}
	v, ok := find(receipt, RegisteredSpec(registeredTopic))
	if !ok {
		return common.Address{}, false
	}
	return v.(common.Address), true
}
