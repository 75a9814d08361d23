package contracts

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truecanvas/blockchain/types"
)

func TestPackMintArtwork(t *testing.T) {
	data, err := PackMintArtwork(types.MintRequest{ContentURI: "walrus://x", ProofStatus: "proven"})
	require.NoError(t, err)

	method := ArtworkNFTABI.Methods[MethodMintArtwork]
	assert.Equal(t, method.ID, data[:4])

	args, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, "walrus://x", args[0])
	assert.Equal(t, []string{}, args[4])
}

func TestPackRegister(t *testing.T) {
	token := common.HexToAddress("0xabc")
	data, err := PackRegister(1513, token, big.NewInt(7))
	require.NoError(t, err)

	method := IPAssetRegistryABI.Methods[MethodRegister]
	assert.Equal(t, method.ID, data[:4])
	assert.Len(t, data, 4+3*32)

	_, err = PackRegister(1513, token, nil)
	assert.Error(t, err)
}
