package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"truecanvas/blockchain/events"
	"truecanvas/blockchain/networks"
	"truecanvas/blockchain/types"
	"truecanvas/config"
	"truecanvas/verification"
)

// Policy is the read-only context Transition decides with
type Policy struct {
	Networks *networks.Registry
	Events   *events.Registry
}

// DefaultPolicy uses the built-in network table and event topics
func DefaultPolicy() Policy {
	return Policy{
		Networks: networks.Default(),
		Events:   events.DefaultRegistry(events.TransferTopic, events.RegisteredTopic),
	}
}

// NewPolicy combines a network registry with the configured event topics
func NewPolicy(reg *networks.Registry, topics config.EventTopicsConfig) (Policy, error) {
	ev, err := events.FromConfig(topics)
	if err != nil {
		return Policy{}, fmt.Errorf("event topics: %w", err)
	}
	return Policy{Networks: reg, Events: ev}, nil
}

// Transition applies ev to s and returns the next snapshot and the commands it requests.
// The returned commands are also recorded in the snapshot's Next field.
func Transition(p Policy, s Snapshot, ev Event) (Snapshot, []Command) {
	s.Next = nil

	switch e := ev.(type) {
	case Start:
		if s.State != StateIdle {
			return unexpected(s, ev)
		}
		return start(s, e)

	case VerificationSubmitted:
		if s.State != StateSubmitting {
			return unexpected(s, ev)
		}
		job := e.Job
		s.Job = &job
		s.State = StateAwaitingProof
		return next(s, TrackProof{ImageID: job.ImageID})

	case VerificationRejected:
		if s.State != StateSubmitting {
			return unexpected(s, ev)
		}
		return fail(s, StateSubmitFailed, e.Err)

	case ProofResolved:
		if s.State != StateAwaitingProof {
			return unexpected(s, ev)
		}
		return proofResolved(s, e)

	case MintSubmitted:
		if s.State != StateProven {
			return unexpected(s, ev)
		}
		tx := e.Tx
		s.MintTx = &tx
		s.State = StateMinting
		s.Links.MintTx = txLink(p, tx)
		return next(s, ConfirmTransaction{Tx: tx})

	case MintRejected:
		if s.State != StateProven {
			return unexpected(s, ev)
		}
		return fail(s, StateMintFailed, e.Err)

	case RegistrationSubmitted:
		if s.State != StateMinted {
			return unexpected(s, ev)
		}
		tx := e.Tx
		s.RegisterTx = &tx
		s.State = StateRegistering
		s.Links.RegisterTx = txLink(p, tx)
		return next(s, ConfirmTransaction{Tx: tx})

	case RegistrationRejected:
		if s.State != StateMinted {
			return unexpected(s, ev)
		}
		return fail(s, StateRegisterFailed, e.Err)

	case TransactionConfirmed:
		switch s.State {
		case StateMinting:
			return mintConfirmed(p, s, e.Receipt)
		case StateRegistering:
			return registrationConfirmed(p, s, e.Receipt)
		}
		return unexpected(s, ev)

	case ConfirmationFailed:
		switch s.State {
		case StateMinting:
			return fail(s, StateMintFailed, e.Err)
		case StateRegistering:
			return fail(s, StateRegisterFailed, e.Err)
		}
		return unexpected(s, ev)
	}

	return unexpected(s, ev)
}

// Validate checks the inputs a submission cannot start without
func Validate(image, logs string) error {
	if strings.TrimSpace(image) == "" {
		return &ValidationError{Field: "image"}
	}
	if strings.TrimSpace(logs) == "" {
		return &ValidationError{Field: "logs"}
	}
	return nil
}

func start(s Snapshot, e Start) (Snapshot, []Command) {
	s.Image, s.Logs = e.Image, e.Logs
	if err := Validate(e.Image, e.Logs); err != nil {
		s.Err = err
		return s, nil
	}
	s.State = StateSubmitting
	return next(s, SubmitVerification{Image: e.Image, Logs: e.Logs})
}

func proofResolved(s Snapshot, e ProofResolved) (Snapshot, []Command) {
	if e.Err != nil {
		return fail(s, StateProofFailed, e.Err)
	}
	switch e.Status.Kind {
	case verification.Proven:
		art := e.Status.Artifact
		if art == nil {
			art = &verification.Artifact{}
		}
		s.Artifact = art
		s.State = StateProven
		return next(s, SubmitMint{Request: types.MintRequest{
			ContentURI:  art.ContentURI,
			ProofStatus: verification.StatusProven,
			SourceHash:  art.SourceHash,
			DestHash:    art.DestHash,
			Proof:       art.Proof,
		}})
	case verification.Expired:
		return fail(s, StateProofFailed, fmt.Errorf("%w: %s", verification.ErrProofExpired, e.Status.Reason))
	case verification.Failed:
		return fail(s, StateProofFailed, fmt.Errorf("%w: %s", verification.ErrProofFailed, e.Status.Reason))
	}
	return fail(s, StateProofFailed, fmt.Errorf("proof tracking ended while still %s", e.Status.Kind))
}

func mintConfirmed(p Policy, s Snapshot, r *types.Receipt) (Snapshot, []Command) {
	chainID := s.MintTx.ChainID
	if !r.Succeeded() {
		s.Mint = &types.MintResult{TxHash: s.MintTx.Hash, ChainID: &chainID}
		return fail(s, StateMintFailed, fmt.Errorf("mint transaction %s reverted", s.MintTx.Hash.Hex()))
	}

	s.State = StateMinted
	tok, ok := p.Events.MintedToken(r)
	if !ok {
		// The transaction succeeded but nothing identifies the token
		s.Mint = &types.MintResult{TxHash: s.MintTx.Hash, ChainID: &chainID}
		s.Note = "registration skipped: mint receipt carries no ERC-721 Transfer event"
		return s, nil
	}

	contract := tok.Contract
	s.Mint = &types.MintResult{
		Success:         true,
		TxHash:          s.MintTx.Hash,
		TokenID:         tok.TokenID,
		ContractAddress: &contract,
		ChainID:         &chainID,
	}
	if d, err := p.Networks.Lookup(chainID); err == nil {
		s.Links.Token = d.ExplorerAddressURL(contract)
	}

	if !p.Networks.IsRegistryChain(chainID) {
		s.Note = fmt.Sprintf("registration skipped: chain %d is not the registry chain %d", chainID, p.Networks.RegistryChainID())
		return s, nil
	}
	return next(s, SubmitRegistration{ChainID: chainID, TokenContract: contract, TokenID: tok.TokenID})
}

func registrationConfirmed(p Policy, s Snapshot, r *types.Receipt) (Snapshot, []Command) {
	hash := s.RegisterTx.Hash
	s.Registration = &types.RegistrationResult{TxHash: &hash}
	if !r.Succeeded() {
		return fail(s, StateRegisterFailed, fmt.Errorf("register transaction %s reverted", hash.Hex()))
	}

	s.State = StateRegistered
	addr, ok := p.Events.RegisteredAddress(r)
	if !ok {
		s.Note = "registration receipt carries no Registered event"
		return s, nil
	}
	s.Registration.RegisteredAddress = &addr
	if d, err := p.Networks.Lookup(s.RegisterTx.ChainID); err == nil {
		s.Links.RegisteredAsset = d.ExplorerAddressURL(addr)
	}
	return s, nil
}

func txLink(p Policy, tx types.PendingTransaction) string {
	d, err := p.Networks.Lookup(tx.ChainID)
	if err != nil {
		return ""
	}
	return d.ExplorerTxURL(tx.Hash)
}

func next(s Snapshot, cmds ...Command) (Snapshot, []Command) {
	s.Next = cmds
	return s, cmds
}

func fail(s Snapshot, state State, err error) (Snapshot, []Command) {
	if err == nil {
		err = errors.New("unknown failure")
	}
	s.State = state
	s.Err = err
	return s, nil
}

func unexpected(s Snapshot, ev Event) (Snapshot, []Command) {
	s.Err = fmt.Errorf("event %T is not valid in state %s", ev, s.State)
	return s, nil
}
