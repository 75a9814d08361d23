// Package orchestrator sequences a submission through verification, proof tracking,
// minting and conditional IP-asset registration.
//
// Transition is pure: it maps a snapshot and an event to the next snapshot plus the
// commands to run. Runner executes those commands and feeds their outcome back in.
package orchestrator

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"truecanvas/blockchain/types"
	"truecanvas/verification"
)

// State is a step of the submission lifecycle
type State string

const (
	StateIdle           State = "IDLE"
	StateSubmitting     State = "SUBMITTING"
	StateSubmitFailed   State = "SUBMIT_FAILED"
	StateAwaitingProof  State = "AWAITING_PROOF"
	StateProven         State = "PROVEN"
	StateProofFailed    State = "PROOF_FAILED"
	StateMinting        State = "MINTING"
	StateMinted         State = "MINTED"
	StateMintFailed     State = "MINT_FAILED"
	StateRegistering    State = "REGISTERING"
	StateRegistered     State = "REGISTERED"
	StateRegisterFailed State = "REGISTER_FAILED"
)

// ErrValidation is matched by every ValidationError
var ErrValidation = errors.New("invalid submission")

// ValidationError reports a missing submission input
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Links are block explorer pages for what a submission produced
type Links struct {
	MintTx          string `json:"mint_tx,omitempty"`
	Token           string `json:"token_contract,omitempty"`
	RegisterTx      string `json:"register_tx,omitempty"`
	RegisteredAsset string `json:"registered_asset,omitempty"`
}

// Snapshot is the full state of one submission.
// Next holds the commands still to run; a snapshot without any is terminal.
type Snapshot struct {
	State        State
	Image        string
	Logs         string
	Job          *verification.Job
	Artifact     *verification.Artifact
	MintTx       *types.PendingTransaction
	Mint         *types.MintResult
	RegisterTx   *types.PendingTransaction
	Registration *types.RegistrationResult
	Note         string // why registration was skipped or came back without an address
	Links        Links
	Err          error
	Next         []Command
}

// Terminal reports whether the submission has finished, successfully or not
func (s Snapshot) Terminal() bool {
	return len(s.Next) == 0 && (s.State != StateIdle || s.Err != nil)
}

// Failed reports whether the submission ended in an error
func (s Snapshot) Failed() bool {
	return s.Terminal() && s.Err != nil
}

// TransactionSent reports whether any chain write left the process
func (s Snapshot) TransactionSent() bool {
	return s.MintTx != nil || s.RegisterTx != nil
}

// Retryable reports whether a failed submission may be run again from scratch:
// nothing was written on chain and the cause was the verification service being
// unreachable or slow.
func (s Snapshot) Retryable() bool {
	if !s.Failed() || s.TransactionSent() {
		return false
	}
	if errors.Is(s.Err, verification.ErrProofExpired) {
		return true
	}
	var se *verification.SubmissionError
	if errors.As(s.Err, &se) {
		return se.Err != nil || se.StatusCode >= 500
	}
	return false
}

// Event is an input to Transition
type Event interface{ event() }

// Start begins a submission
type Start struct {
	Image string
	Logs  string
}

// VerificationSubmitted reports a job accepted by the verification service
type VerificationSubmitted struct{ Job verification.Job }

// VerificationRejected reports a failed verification request
type VerificationRejected struct{ Err error }

// ProofResolved carries the terminal proof status, or the error that ended tracking
type ProofResolved struct {
	Status verification.ProofStatus
	Err    error
}

// MintSubmitted reports a mint transaction accepted by the node
type MintSubmitted struct{ Tx types.PendingTransaction }

// MintRejected reports a mint that could not be sent
type MintRejected struct{ Err error }

// RegistrationSubmitted reports a register transaction accepted by the node
type RegistrationSubmitted struct{ Tx types.PendingTransaction }

// RegistrationRejected reports a registration that could not be sent
type RegistrationRejected struct{ Err error }

// TransactionConfirmed carries the receipt of the pending transaction
type TransactionConfirmed struct{ Receipt *types.Receipt }

// ConfirmationFailed reports that the pending transaction could not be confirmed
type ConfirmationFailed struct{ Err error }

func (Start) event()                 {}
func (VerificationSubmitted) event() {}
func (VerificationRejected) event()  {}
func (ProofResolved) event()         {}
func (MintSubmitted) event()         {}
func (MintRejected) event()          {}
func (RegistrationSubmitted) event() {}
func (RegistrationRejected) event()  {}
func (TransactionConfirmed) event()  {}
func (ConfirmationFailed) event()    {}

// Command is a side effect requested by Transition
type Command interface{ command() }

// SubmitVerification posts the artwork to the verification service
type SubmitVerification struct {
	Image string
	Logs  string
}

// TrackProof polls the proof status of a job until it resolves
type TrackProof struct{ ImageID string }

// SubmitMint sends mintArtwork on the signer's current chain
type SubmitMint struct{ Request types.MintRequest }

// ConfirmTransaction waits for the receipt of a pending transaction
type ConfirmTransaction struct{ Tx types.PendingTransaction }

// SubmitRegistration sends register(chainID, tokenContract, tokenID) to the registry contract
type SubmitRegistration struct {
	ChainID       uint64
	TokenContract common.Address
	TokenID       *big.Int
}

func (SubmitVerification) command() {}
func (TrackProof) command()         {}
func (SubmitMint) command()         {}
func (ConfirmTransaction) command() {}
func (SubmitRegistration) command() {}
