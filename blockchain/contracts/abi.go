// Package contracts declares the ABI of the contracts the application writes to.
package contracts

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"truecanvas/blockchain/types"
)

// Only the write methods the application calls are declared
const artworkNFTABI = `[
  {
    "type": "function",
    "name": "mintArtwork",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "walrusURI", "type": "string"},
      {"name": "proofStatus", "type": "string"},
      {"name": "sourceHash", "type": "string"},
      {"name": "destHash", "type": "string"},
      {"name": "proof", "type": "string[]"}
    ],
    "outputs": []
  }
]`

const ipAssetRegistryABI = `[
  {
    "type": "function",
    "name": "register",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "chainid", "type": "uint256"},
      {"name": "tokenContract", "type": "address"},
      {"name": "tokenId", "type": "uint256"}
    ],
    "outputs": [{"name": "id", "type": "address"}]
  }
]`

const (
	MethodMintArtwork = "mintArtwork"
	MethodRegister    = "register"
)

var (
	ArtworkNFTABI      = mustParseABI(artworkNFTABI)
	IPAssetRegistryABI = mustParseABI(ipAssetRegistryABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// MintArtworkArgs orders a mint request the way mintArtwork expects it
func MintArtworkArgs(req types.MintRequest) []any {
	proof := req.Proof
	if proof == nil {
		proof = []string{}
	}
	return []any{req.ContentURI, req.ProofStatus, req.SourceHash, req.DestHash, proof}
}

// RegisterArgs orders the register call arguments
func RegisterArgs(chainID uint64, tokenContract common.Address, tokenID *big.Int) []any {
	return []any{new(big.Int).SetUint64(chainID), tokenContract, tokenID}
}

// PackMintArtwork returns the calldata of a mintArtwork call
func PackMintArtwork(req types.MintRequest) ([]byte, error) {
	return ArtworkNFTABI.Pack(MethodMintArtwork, MintArtworkArgs(req)...)
}

// PackRegister returns the calldata of a register call
func PackRegister(chainID uint64, tokenContract common.Address, tokenID *big.Int) ([]byte, error) {
	if tokenID == nil {
		return nil, fmt.Errorf("token id is required for registration")
	}
	return IPAssetRegistryABI.Pack(MethodRegister, RegisterArgs(chainID, tokenContract, tokenID)...)
}
