package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"truecanvas/blockchain/contracts"
	"truecanvas/blockchain/types"
	"truecanvas/config"
)

// node is the subset of ethclient.Client the client uses
type node interface {
	bind.ContractBackend
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	Close()
}

var _ node = (*ethclient.Client)(nil)

// Client is the wrapper around a go-ethereum JSON-RPC client
type Client struct {
	backend node
	cfg     *config.BlockchainConfig
	ethCfg  *EthereumConfig
	signer  *ecdsa.PrivateKey // nil when no wallet is connected
	logger  *log.Logger

	// nonceMu serialises nonce assignment and sending across concurrent workers
	nonceMu   sync.Mutex
	nextNonce *uint64 // nil until the first send, and again after a failed one
}

// NewEthereumClient dials the configured node and loads the signer key from the environment
func NewEthereumClient(cfg *config.BlockchainConfig, logger *log.Logger) (*Client, error) {
	logger.Println("Initializing Ethereum JSON-RPC client...")

	ethCfg, ok := cfg.ChainSpecific.(*EthereumConfig)
	if !ok {
		return nil, fmt.Errorf("invalid Ethereum configuration type")
	}

	signer, err := parseSignerKey(cfg.SignerKey())
	if err != nil {
		return nil, fmt.Errorf("invalid signer key in $%s: %w", cfg.SignerKeyEnv, err)
	}
	if signer == nil {
		logger.Printf("Warning: $%s is not set, write calls will fail with '%v'", cfg.SignerKeyEnv, types.ErrWalletNotConnected)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()

	rpc, err := ethclient.DialContext(ctx, ethCfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial Ethereum node '%s': %w", ethCfg.RPCURL, err)
	}

	c := newClient(rpc, cfg, ethCfg, signer, logger)

	if ethCfg.ExpectedChainID != 0 {
		id, err := c.ChainID(ctx)
		if err != nil {
			rpc.Close()
			return nil, err
		}
		if id != ethCfg.ExpectedChainID {
			rpc.Close()
			return nil, fmt.Errorf("node at '%s' reports chain %d, expected %d", ethCfg.RPCURL, id, ethCfg.ExpectedChainID)
		}
	}

	if signer != nil {
		logger.Printf("Ethereum client initialized successfully (signer %s).", c.From().Hex())
	} else {
		logger.Println("Ethereum client initialized successfully (read-only).")
	}
	return c, nil
}

func newClient(backend node, cfg *config.BlockchainConfig, ethCfg *EthereumConfig, signer *ecdsa.PrivateKey, logger *log.Logger) *Client {
	return &Client{backend: backend, cfg: cfg, ethCfg: ethCfg, signer: signer, logger: logger}
}

func parseSignerKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, nil
	}
	return crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
}

// From returns the signer address, or the zero address without a wallet
func (c *Client) From() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.signer.PublicKey)
}

// Config returns the configuration associated with the client.
func (c *Client) Config() any {
	if c.cfg == nil || c.cfg.ChainSpecific == nil {
		log.Println("Warning: Accessing client config before initialization.")
		return &EthereumConfig{}
	}
	return c.cfg.ChainSpecific
}

// Close releases the RPC connection
func (c *Client) Close() error {
	c.logger.Println("Closing Ethereum client...")
	c.backend.Close()
	return nil
}

// ChainID returns the chain id reported by the node
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain id lookup failed: %w", err)
	}
	if !id.IsUint64() {
		return 0, fmt.Errorf("chain id %s does not fit in uint64", id)
	}
	return id.Uint64(), nil
}

// MintArtwork sends mintArtwork(walrusURI, proofStatus, sourceHash, destHash, proof)
func (c *Client) MintArtwork(ctx context.Context, contract common.Address, req types.MintRequest) (common.Hash, error) {
	return c.transact(ctx, contract, contracts.ArtworkNFTABI, contracts.MethodMintArtwork, contracts.MintArtworkArgs(req)...)
}

// Register sends register(chainid, tokenContract, tokenId) to the IP-asset registry
func (c *Client) Register(ctx context.Context, registry common.Address, chainID uint64, tokenContract common.Address, tokenID *big.Int) (common.Hash, error) {
	if tokenID == nil {
		return common.Hash{}, fmt.Errorf("token id is required for registration")
	}
	return c.transact(ctx, registry, contracts.IPAssetRegistryABI, contracts.MethodRegister,
		contracts.RegisterArgs(chainID, tokenContract, tokenID)...)
}

func (c *Client) transact(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...any) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, types.ErrWalletNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain id lookup failed: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.signer, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to build transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = c.ethCfg.GasLimit

	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()

	nonce, err := c.reserveNonce(ctx, opts.From)
	if err != nil {
		return common.Hash{}, err
	}
	opts.Nonce = new(big.Int).SetUint64(nonce)

	bound := bind.NewBoundContract(contract, parsed, c.backend, c.backend, c.backend)
	tx, err := bound.Transact(opts, method, args...)
	if err != nil {
		// The node may or may not have seen the nonce; ask it again next time
		c.nextNonce = nil
		return common.Hash{}, fmt.Errorf("%s transaction to %s rejected: %w", method, contract.Hex(), err)
	}
	following := nonce + 1
	c.nextNonce = &following

	c.logger.Printf("Sent %s transaction %s to %s on chain %s", method, tx.Hash().Hex(), contract.Hex(), chainID)
	return tx.Hash(), nil
}

// reserveNonce returns the nonce for the next send: the locally tracked one, or the node's
// pending nonce when that is higher. Callers hold nonceMu.
func (c *Client) reserveNonce(ctx context.Context, from common.Address) (uint64, error) {
	pending, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return 0, fmt.Errorf("pending nonce lookup failed: %w", err)
	}
	if c.nextNonce != nil && *c.nextNonce > pending {
		return *c.nextNonce, nil
	}
	return pending, nil
}

// TransactionReceipt looks up a receipt and converts it to the generic form
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	r, err := c.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, geth.NotFound) {
			return nil, fmt.Errorf("%w: %s", types.ErrReceiptNotFound, hash.Hex())
		}
		return nil, fmt.Errorf("receipt lookup failed: %w", err)
	}
	return convertReceipt(r), nil
}

func convertReceipt(r *gethtypes.Receipt) *types.Receipt {
	out := &types.Receipt{
		TxHash: r.TxHash,
		Status: types.TxStatusFailure,
		Logs:   make([]types.Log, 0, len(r.Logs)),
	}
	if r.Status == gethtypes.ReceiptStatusSuccessful {
		out.Status = types.TxStatusSuccess
	}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	for _, l := range r.Logs {
		if l == nil {
			continue
		}
		out.Logs = append(out.Logs, types.Log{
			Address: l.Address,
			Topics:  append([]common.Hash(nil), l.Topics...),
			Data:    append([]byte(nil), l.Data...),
		})
	}
	return out
}
