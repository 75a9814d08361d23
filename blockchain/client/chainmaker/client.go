package chainmaker

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"strings"

	"chainmaker.org/chainmaker/pb-go/v2/common"
	sdk "chainmaker.org/chainmaker/sdk-go/v2"
	ethcommon "github.com/ethereum/go-ethereum/common"

	"truecanvas/blockchain/contracts"
	"truecanvas/blockchain/types"
	"truecanvas/config"
)

// sdkClient is the subset of the ChainMaker SDK client used here
type sdkClient interface {
	InvokeContract(contractName, method, txId string, kvs []*common.KeyValuePair, timeout int64, withSyncResult bool) (*common.TxResponse, error)
	GetTxByTxId(txId string) (*common.TransactionInfo, error)
	Stop() error
}

var _ sdkClient = (*sdk.ChainClient)(nil)

// Client is the wrapper around the ChainMaker SDK client.
// Contracts are EVM contracts deployed on ChainMaker and addressed by their hex address.
type Client struct {
	sdkClient sdkClient
	cfg       *config.BlockchainConfig
	cmCfg     *ChainMakerConfig
	logger    *log.Logger
}

// NewChainMakerClient initializes the ChainMaker SDK client with the combined configuration
func NewChainMakerClient(cfg *config.BlockchainConfig, logger *log.Logger) (*Client, error) {
	logger.Println("Initializing ChainMaker SDK client using builder pattern...")

	// Extract ChainMaker-specific configuration
	chainmakerCfg, ok := cfg.ChainSpecific.(*ChainMakerConfig)
	if !ok {
		return nil, fmt.Errorf("invalid ChainMaker configuration type")
	}

	var clientOptions []sdk.ChainClientOption
	clientOptions = append(clientOptions, sdk.WithChainClientOrgId(chainmakerCfg.OrgID))
	clientOptions = append(clientOptions, sdk.WithChainClientChainId(chainmakerCfg.ChainID))
	clientOptions = append(clientOptions, sdk.WithUserKeyFilePath(chainmakerCfg.UserKeyPath))
	clientOptions = append(clientOptions, sdk.WithUserCrtFilePath(chainmakerCfg.UserCertPath))
	if chainmakerCfg.UserSignKeyPath != "" {
		clientOptions = append(clientOptions, sdk.WithUserSignKeyFilePath(chainmakerCfg.UserSignKeyPath))
		clientOptions = append(clientOptions, sdk.WithUserSignCrtFilePath(chainmakerCfg.UserSignCertPath))
	} else {
		logger.Printf("Warning: user_sign_key_path is not set, write calls will fail with '%v'", types.ErrWalletNotConnected)
	}

	if len(chainmakerCfg.Nodes) == 0 {
		return nil, fmt.Errorf("no node configurations provided in config")
	}
	for _, nodeCfg := range chainmakerCfg.Nodes {
		if nodeCfg.UseTLS && len(nodeCfg.CaPaths) == 0 {
			return nil, fmt.Errorf("node %s has TLS enabled but no CaPaths provided", nodeCfg.Address)
		}
		sdkNodeConfig := sdk.NewNodeConfig(
			sdk.WithNodeAddr(nodeCfg.Address),
			sdk.WithNodeConnCnt(nodeCfg.ConnCount),
			sdk.WithNodeUseTLS(nodeCfg.UseTLS),
			sdk.WithNodeCAPaths(nodeCfg.CaPaths),
			sdk.WithNodeTLSHostName(nodeCfg.TLSHostName),
		)
		clientOptions = append(clientOptions, sdk.AddChainClientNodeConfig(sdkNodeConfig))
	}

	// Apply common configuration (retry, timeout, etc.)
	if cfg.RetryLimit > 0 {
		clientOptions = append(clientOptions, sdk.WithRetryLimit(cfg.RetryLimit))
	}
	if cfg.RetryInterval > 0 {
		clientOptions = append(clientOptions, sdk.WithRetryInterval(cfg.RetryInterval))
	}

	client, err := sdk.NewChainClient(clientOptions...)
	if err != nil {
		logger.Printf("Failed to build ChainMaker SDK client: %v\n", err)
		return nil, err
	}

	err = client.EnableCertHash()
	if err != nil {
		logger.Printf("Warning: Failed to enable cert hash: %v\n", err)
	}

	logger.Println("ChainMaker SDK client initialized successfully.")

	return newClient(client, cfg, chainmakerCfg, logger), nil
}

func newClient(c sdkClient, cfg *config.BlockchainConfig, cmCfg *ChainMakerConfig, logger *log.Logger) *Client {
	return &Client{sdkClient: c, cfg: cfg, cmCfg: cmCfg, logger: logger}
}

// Config returns the configuration associated with the client.
func (c *Client) Config() any {
	if c.cfg == nil || c.cfg.ChainSpecific == nil {
		log.Println("Warning: Accessing client config before initialization.")
		return &ChainMakerConfig{} // Return empty config to avoid nil pointer panic
	}
	return c.cfg.ChainSpecific
}

// Close stops the SDK client
func (c *Client) Close() error {
	c.logger.Println("Closing ChainMaker SDK client...")
	if err := c.sdkClient.Stop(); err != nil {
		c.logger.Printf("Error stopping ChainMaker SDK client: %v", err)
		return fmt.Errorf("failed to stop ChainMaker SDK client: %w", err)
	}
	return nil
}

// ChainID returns the numeric id configured for this ChainMaker chain
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	return c.cmCfg.EVMChainID, nil
}

// MintArtwork invokes mintArtwork on an EVM contract deployed on ChainMaker
func (c *Client) MintArtwork(ctx context.Context, contract ethcommon.Address, req types.MintRequest) (ethcommon.Hash, error) {
	data, err := contracts.PackMintArtwork(req)
	if err != nil {
		return ethcommon.Hash{}, fmt.Errorf("failed to pack %s call: %w", contracts.MethodMintArtwork, err)
	}
	return c.invokeEVM(ctx, contract, contracts.MethodMintArtwork, data)
}

// Register invokes register on the IP-asset registry
func (c *Client) Register(ctx context.Context, registry ethcommon.Address, chainID uint64, tokenContract ethcommon.Address, tokenID *big.Int) (ethcommon.Hash, error) {
	data, err := contracts.PackRegister(chainID, tokenContract, tokenID)
	if err != nil {
		return ethcommon.Hash{}, fmt.Errorf("failed to pack %s call: %w", contracts.MethodRegister, err)
	}
	return c.invokeEVM(ctx, registry, contracts.MethodRegister, data)
}

// invokeEVM sends calldata without waiting for the result; the caller polls the receipt
func (c *Client) invokeEVM(ctx context.Context, contract ethcommon.Address, name string, data []byte) (ethcommon.Hash, error) {
	if c.cmCfg.UserSignKeyPath == "" {
		return ethcommon.Hash{}, types.ErrWalletNotConnected
	}
	if err := ctx.Err(); err != nil {
		return ethcommon.Hash{}, err
	}

	calldata := hex.EncodeToString(data)
	kvs := []*common.KeyValuePair{
		{Key: c.cmCfg.ParamKeyData, Value: []byte(calldata)},
	}
	contractName := hex.EncodeToString(contract.Bytes())

	resp, err := c.sdkClient.InvokeContract(contractName, calldata[:8], "", kvs, -1, false)
	if err != nil {
		return ethcommon.Hash{}, fmt.Errorf("SDK invoke of %s failed: %w", name, err)
	}
	if resp.Code != common.TxStatusCode_SUCCESS {
		return ethcommon.Hash{}, fmt.Errorf("%s transaction rejected: %s (code: %d)", name, resp.Message, resp.Code)
	}

	hash, err := txIDToHash(resp.TxId)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	c.logger.Printf("Sent %s transaction %s to contract %s", name, resp.TxId, contractName)
	return hash, nil
}

func txIDToHash(txID string) (ethcommon.Hash, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(txID, "0x"))
	if err != nil || len(b) != ethcommon.HashLength {
		return ethcommon.Hash{}, fmt.Errorf("transaction id '%s' is not a 32-byte hex value", txID)
	}
	return ethcommon.BytesToHash(b), nil
}

// TransactionReceipt performs the receipt lookup by querying transaction details
func (c *Client) TransactionReceipt(ctx context.Context, hash ethcommon.Hash) (*types.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	txID := hex.EncodeToString(hash.Bytes())

	txInfo, err := c.sdkClient.GetTxByTxId(txID)
	if err != nil {
		if isTxNotFound(err) {
			return nil, fmt.Errorf("%w: %s", types.ErrReceiptNotFound, txID)
		}
		return nil, fmt.Errorf("SDK get transaction failed: %w", err)
	}
	if txInfo == nil || txInfo.Transaction == nil || txInfo.Transaction.Result == nil {
		return nil, fmt.Errorf("%w: %s", types.ErrReceiptNotFound, txID)
	}
	return convertTxInfo(hash, txInfo), nil
}

// isTxNotFound recognises the node's answer for a transaction that is not yet in a block.
// The SDK exposes no status code for this, so the message is the only signal.
func isTxNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "no such")
}

func convertTxInfo(hash ethcommon.Hash, txInfo *common.TransactionInfo) *types.Receipt {
	result := txInfo.Transaction.Result
	receipt := &types.Receipt{
		TxHash:      hash,
		Status:      types.TxStatusFailure,
		BlockNumber: txInfo.BlockHeight,
	}
	if result.Code == common.TxStatusCode_SUCCESS {
		receipt.Status = types.TxStatusSuccess
	}
	if result.ContractResult == nil {
		return receipt
	}
	for _, event := range result.ContractResult.ContractEvent {
		if l, ok := convertEvent(event); ok {
			receipt.Logs = append(receipt.Logs, l)
		}
	}
	return receipt
}

// convertEvent maps an EVM contract event: Topic is topics[0], EventData holds the
// remaining indexed topics followed by the hex-encoded data.
// The data entry is always present, empty for events without non-indexed fields, so an
// ERC-721 Transfer arrives as [from, to, tokenId, ""]. An event missing that trailing
// entry would have its last indexed topic read as data.
func convertEvent(event *common.ContractEvent) (types.Log, bool) {
	if event == nil {
		return types.Log{}, false
	}
	topic0, err := hex.DecodeString(strings.TrimPrefix(event.Topic, "0x"))
	if err != nil || len(topic0) != ethcommon.HashLength {
		return types.Log{}, false
	}

	l := types.Log{Topics: []ethcommon.Hash{ethcommon.BytesToHash(topic0)}}
	if ethcommon.IsHexAddress(event.ContractName) {
		l.Address = ethcommon.HexToAddress(event.ContractName)
	}

	n := len(event.EventData)
	for i, field := range event.EventData {
		b, err := hex.DecodeString(strings.TrimPrefix(field, "0x"))
		if err != nil {
			return types.Log{}, false
		}
		if i == n-1 {
			l.Data = b
			break
		}
		l.Topics = append(l.Topics, ethcommon.BytesToHash(b))
	}
	return l, true
}
