package blockchain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"truecanvas/blockchain/types"
)

// BlockchainClient defines the generic interface for blockchain interactions
// This interface is blockchain-agnostic and can be implemented by different blockchain clients
type BlockchainClient interface {
	// ChainID returns the id of the chain the client is connected to
	ChainID(ctx context.Context) (uint64, error)

	// MintArtwork sends a mintArtwork transaction to the NFT contract and returns its hash.
	// Returns types.ErrWalletNotConnected when no signer is configured.
	MintArtwork(ctx context.Context, contract common.Address, req types.MintRequest) (common.Hash, error)

	// Register sends register(chainID, tokenContract, tokenID) to the IP-asset registry
	Register(ctx context.Context, registry common.Address, chainID uint64, tokenContract common.Address, tokenID *big.Int) (common.Hash, error)

	// TransactionReceipt looks up a receipt by transaction hash.
	// Returns types.ErrReceiptNotFound while the transaction is not yet mined.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// Close closes the blockchain client and releases resources
	Close() error

	// Config returns the configuration associated with the client
	Config() any // Return any to accommodate different config types
}
