package chainmaker

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log"
	"math/big"
	"strings"
	"testing"

	"chainmaker.org/chainmaker/pb-go/v2/common"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truecanvas/blockchain/contracts"
	"truecanvas/blockchain/events"
	"truecanvas/blockchain/types"
	"truecanvas/config"
)

const testTxID = "9f2c3a0e1d4b5c6a7f8e9d0c1b2a39485766554433221100ffeeddccbbaa9988"

type fakeSDK struct {
	invoked []string
	kvs     [][]*common.KeyValuePair
	resp    *common.TxResponse
	txInfo  *common.TransactionInfo
	txErr   error
	stopped bool
}

func (f *fakeSDK) InvokeContract(contractName, method, txId string, kvs []*common.KeyValuePair, timeout int64, withSyncResult bool) (*common.TxResponse, error) {
	f.invoked = append(f.invoked, contractName+"/"+method)
	f.kvs = append(f.kvs, kvs)
	return f.resp, nil
}

func (f *fakeSDK) GetTxByTxId(txId string) (*common.TransactionInfo, error) {
	return f.txInfo, f.txErr
}

func (f *fakeSDK) Stop() error {
	f.stopped = true
	return nil
}

func testClient(f *fakeSDK, signKey string) *Client {
	cmCfg := &ChainMakerConfig{ChainID: "chain1", OrgID: "org1", EVMChainID: 1513, UserSignKeyPath: signKey}
	cmCfg.SetDefaults()
	cfg := &config.BlockchainConfig{BlockchainType: "chainmaker", TimeoutSeconds: 5, ChainSpecific: cmCfg}
	return newClient(f, cfg, cmCfg, log.New(io.Discard, "", 0))
}

func TestMintArtworkInvokesEVMContract(t *testing.T) {
	f := &fakeSDK{resp: &common.TxResponse{Code: common.TxStatusCode_SUCCESS, TxId: testTxID}}
	c := testClient(f, "/keys/sign.key")
	nft := ethcommon.HexToAddress("0x00000000000000000000000000000000000000aa")

	hash, err := c.MintArtwork(context.Background(), nft, types.MintRequest{ContentURI: "walrus://x", ProofStatus: "proven"})
	require.NoError(t, err)
	assert.Equal(t, testTxID, hex.EncodeToString(hash.Bytes()))

	selector := hex.EncodeToString(contracts.ArtworkNFTABI.Methods[contracts.MethodMintArtwork].ID)
	require.Len(t, f.invoked, 1)
	assert.Equal(t, hex.EncodeToString(nft.Bytes())+"/"+selector, f.invoked[0])
	require.Len(t, f.kvs[0], 1)
	assert.Equal(t, "data", f.kvs[0][0].Key)
	assert.True(t, strings.HasPrefix(string(f.kvs[0][0].Value), selector))
}

func TestWriteWithoutSignKey(t *testing.T) {
	f := &fakeSDK{}
	c := testClient(f, "")

	_, err := c.Register(context.Background(), ethcommon.HexToAddress("0x01"), 1513, ethcommon.HexToAddress("0xabc"), big.NewInt(7))
	assert.ErrorIs(t, err, types.ErrWalletNotConnected)
	assert.Empty(t, f.invoked)
}

func TestRejectedInvoke(t *testing.T) {
	f := &fakeSDK{resp: &common.TxResponse{Code: common.TxStatusCode_CONTRACT_FAIL, Message: "revert"}}
	c := testClient(f, "/keys/sign.key")

	_, err := c.Register(context.Background(), ethcommon.HexToAddress("0x01"), 1513, ethcommon.HexToAddress("0xabc"), big.NewInt(7))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "revert")
}

func TestReceiptNotFoundIsStructured(t *testing.T) {
	f := &fakeSDK{txErr: errors.New("GET_TX_BY_TX_ID failed, transaction not found")}
	c := testClient(f, "")

	_, err := c.TransactionReceipt(context.Background(), ethcommon.HexToHash("0x"+testTxID))
	assert.ErrorIs(t, err, types.ErrReceiptNotFound)

	f.txErr = errors.New("connection reset by peer")
	_, err = c.TransactionReceipt(context.Background(), ethcommon.HexToHash("0x"+testTxID))
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrReceiptNotFound)
}

func TestReceiptEventsBecomeLogs(t *testing.T) {
	nft := ethcommon.HexToAddress("0x00000000000000000000000000000000000000aa")
	zero := hex.EncodeToString(make([]byte, 32))
	tokenID := hex.EncodeToString(ethcommon.HexToHash("0x2a").Bytes())

	f := &fakeSDK{txInfo: &common.TransactionInfo{
		BlockHeight: 77,
		Transaction: &common.Transaction{
			Result: &common.Result{
				Code: common.TxStatusCode_SUCCESS,
				ContractResult: &common.ContractResult{
					ContractEvent: []*common.ContractEvent{{
						Topic:        hex.EncodeToString(events.TransferTopic.Bytes()),
						ContractName: nft.Hex(),
						EventData:    []string{zero, zero, tokenID, ""},
					}},
				},
			},
		},
	}}
	c := testClient(f, "")

	r, err := c.TransactionReceipt(context.Background(), ethcommon.HexToHash("0x"+testTxID))
	require.NoError(t, err)
	assert.True(t, r.Succeeded())
	assert.Equal(t, uint64(77), r.BlockNumber)

	tok, ok := events.ExtractMintedToken(r, events.TransferTopic)
	require.True(t, ok)
	assert.Equal(t, int64(42), tok.TokenID.Int64())
	assert.Equal(t, nft, tok.Contract)
}

func TestConvertEventShapes(t *testing.T) {
	from := ethcommon.HexToHash("0x01")
	to := ethcommon.HexToHash("0x02")
	tokenID := ethcommon.HexToHash("0x2a")
	enc := func(h ethcommon.Hash) string { return hex.EncodeToString(h.Bytes()) }

	// ERC-721 Transfer: three indexed fields and an empty data entry
	l, ok := convertEvent(&common.ContractEvent{
		Topic:     enc(events.TransferTopic),
		EventData: []string{enc(from), enc(to), enc(tokenID), ""},
	})
	require.True(t, ok)
	assert.Equal(t, []ethcommon.Hash{events.TransferTopic, from, to, tokenID}, l.Topics)
	assert.Empty(t, l.Data)

	// Registered: no indexed fields beyond topics[0], the address sits in data
	asset := ethcommon.HexToAddress("0xA55E7")
	data := ethcommon.LeftPadBytes(asset.Bytes(), 32)
	l, ok = convertEvent(&common.ContractEvent{
		Topic:     enc(events.RegisteredTopic),
		EventData: []string{hex.EncodeToString(data)},
	})
	require.True(t, ok)
	assert.Equal(t, []ethcommon.Hash{events.RegisteredTopic}, l.Topics)
	assert.Equal(t, data, l.Data)

	_, ok = convertEvent(&common.ContractEvent{Topic: "not-hex"})
	assert.False(t, ok)
	_, ok = convertEvent(nil)
	assert.False(t, ok)
}

func TestChainIDAndClose(t *testing.T) {
	f := &fakeSDK{}
	c := testClient(f, "")

	id, err := c.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1513), id)

	require.NoError(t, c.Close())
	assert.True(t, f.stopped)
}
