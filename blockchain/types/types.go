package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxStatus is the execution outcome recorded in a receipt
type TxStatus string

const (
	TxStatusSuccess TxStatus = "success"
	TxStatusFailure TxStatus = "failure"
)

// Log is a single event entry emitted by a transaction
// This is a generic type that every blockchain client converts its native logs into
type Log struct {
	Address common.Address `json:"address"`
	Topics  []common.Hash  `json:"topics"`
	Data    []byte         `json:"data"`
}

// Receipt is the node's confirmation record for a submitted transaction.
// Receipts are never modified after a client returns them.
type Receipt struct {
	TxHash      common.Hash `json:"transaction_hash"`
	Status      TxStatus    `json:"status"`
	BlockNumber uint64      `json:"block_number"`
	Logs        []Log       `json:"logs"`
}

// Succeeded reports whether the transaction executed successfully
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == TxStatusSuccess
}

// PendingTransaction exists from submission until a receipt is obtained or polling is abandoned
type PendingTransaction struct {
	Hash        common.Hash `json:"hash"`
	SubmittedAt time.Time   `json:"submitted_at"`
	ChainID     uint64      `json:"chain_id"`
}

// MintRequest carries the arguments of the mintArtwork contract call
type MintRequest struct {
	ContentURI  string
	ProofStatus string
	SourceHash  string
	DestHash    string
	Proof       []string
}

// MintResult is derived once per mint attempt.
// Success implies TokenID and ContractAddress were recovered from the receipt logs.
type MintResult struct {
	Success         bool            `json:"success"`
	TxHash          common.Hash     `json:"tx_hash"`
	TokenID         *big.Int        `json:"token_id,omitempty"`
	ContractAddress *common.Address `json:"contract_address,omitempty"`
	ChainID         *uint64         `json:"chain_id,omitempty"`
}

// RegistrationResult is the outcome of an IP-asset registration
type RegistrationResult struct {
	TxHash            *common.Hash    `json:"tx_hash,omitempty"`
	RegisteredAddress *common.Address `json:"registered_address,omitempty"`
}
