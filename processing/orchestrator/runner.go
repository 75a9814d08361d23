package orchestrator

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"truecanvas/blockchain/confirm"
	"truecanvas/blockchain/types"
	"truecanvas/config"
	"truecanvas/verification"
)

// Verifier submits artwork for verification
type Verifier interface {
	Submit(ctx context.Context, image, logs string) (*verification.Job, error)
}

// ProofAwaiter blocks until a job's proof status is terminal
type ProofAwaiter interface {
	Await(ctx context.Context, imageID string) (verification.ProofStatus, error)
}

// Chain is the signer-backed node client mint and registration go through
type Chain interface {
	ChainID(ctx context.Context) (uint64, error)
	MintArtwork(ctx context.Context, contract common.Address, req types.MintRequest) (common.Hash, error)
	Register(ctx context.Context, registry common.Address, chainID uint64, tokenContract common.Address, tokenID *big.Int) (common.Hash, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Confirmer waits for the receipt of a pending transaction
type Confirmer interface {
	Confirm(ctx context.Context, fetcher confirm.ReceiptFetcher, tx types.PendingTransaction) (*types.Receipt, error)
}

// Observer receives every snapshot a run passes through
type Observer func(Snapshot)

var _ Confirmer = (*confirm.Engine)(nil)

// Dependencies are the collaborators a Runner executes commands with.
// A nil Chain means no wallet is connected.
type Dependencies struct {
	Verifier  Verifier
	Proofs    ProofAwaiter
	Chain     Chain
	Confirmer Confirmer
}

// DependenciesFromConfig wires the verification client, proof tracker and confirmation
// engine described by the configuration around chain
func DependenciesFromConfig(vcfg config.VerifierConfig, ccfg config.ConfirmationConfig, chain Chain, logger *log.Logger) Dependencies {
	vc := verification.NewClientFromConfig(vcfg, logger)
	return Dependencies{
		Verifier:  vc,
		Proofs:    verification.NewTracker(vc, verification.TrackerOptionsFromConfig(vcfg), logger),
		Chain:     chain,
		Confirmer: confirm.FromConfig(ccfg, logger),
	}
}

// Runner drives snapshots to completion by executing their commands
type Runner struct {
	policy   Policy
	deps     Dependencies
	observer Observer
	logger   *log.Logger
	now      func() time.Time
}

// NewRunner creates a runner
func NewRunner(policy Policy, deps Dependencies, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{policy: policy, deps: deps, logger: logger, now: time.Now}
}

// WithObserver sets the function notified of every snapshot
func (r *Runner) WithObserver(o Observer) *Runner {
	r.observer = o
	return r
}

// Run takes a submission from Idle to a terminal snapshot.
// The returned error is the snapshot's Err; skipping registration is not an error.
func (r *Runner) Run(ctx context.Context, image, logs string) (Snapshot, error) {
	s, cmds := Transition(r.policy, Snapshot{State: StateIdle}, Start{Image: image, Logs: logs})
	r.notify(s)

	for len(cmds) > 0 {
		var ev Event
		ev, cmds = r.execute(ctx, s, cmds[0]), cmds[1:]
		var more []Command
		s, more = Transition(r.policy, s, ev)
		cmds = append(more, cmds...)
		r.notify(s)
	}

	if s.Err != nil {
		r.logger.Printf("Submission ended in %s: %v", s.State, s.Err)
	} else if s.Note != "" {
		r.logger.Printf("Submission ended in %s (%s)", s.State, s.Note)
	} else {
		r.logger.Printf("Submission ended in %s", s.State)
	}
	return s, s.Err
}

func (r *Runner) notify(s Snapshot) {
	if r.observer != nil {
		r.observer(s)
	}
}

func (r *Runner) execute(ctx context.Context, s Snapshot, cmd Command) Event {
	switch c := cmd.(type) {
	case SubmitVerification:
		job, err := r.deps.Verifier.Submit(ctx, c.Image, c.Logs)
		if err != nil {
			return VerificationRejected{Err: err}
		}
		return VerificationSubmitted{Job: *job}

	case TrackProof:
		r.logger.Printf("Waiting for proof of image %s", c.ImageID)
		st, err := r.deps.Proofs.Await(ctx, c.ImageID)
		return ProofResolved{Status: st, Err: err}

	case SubmitMint:
		tx, err := r.submitMint(ctx, c)
		if err != nil {
			return MintRejected{Err: err}
		}
		return MintSubmitted{Tx: tx}

	case SubmitRegistration:
		tx, err := r.submitRegistration(ctx, c)
		if err != nil {
			return RegistrationRejected{Err: err}
		}
		return RegistrationSubmitted{Tx: tx}

	case ConfirmTransaction:
		if r.deps.Chain == nil {
			return ConfirmationFailed{Err: types.ErrWalletNotConnected}
		}
		receipt, err := r.deps.Confirmer.Confirm(ctx, r.deps.Chain, c.Tx)
		if err != nil {
			return ConfirmationFailed{Err: err}
		}
		return TransactionConfirmed{Receipt: receipt}
	}

	panic(fmt.Sprintf("orchestrator: unknown command %T in state %s", cmd, s.State))
}

func (r *Runner) submitMint(ctx context.Context, c SubmitMint) (types.PendingTransaction, error) {
	if r.deps.Chain == nil {
		return types.PendingTransaction{}, types.ErrWalletNotConnected
	}
	chainID, err := r.deps.Chain.ChainID(ctx)
	if err != nil {
		return types.PendingTransaction{}, err
	}
	contract, err := r.policy.Networks.MintTarget(chainID)
	if err != nil {
		return types.PendingTransaction{}, err
	}
	hash, err := r.deps.Chain.MintArtwork(ctx, contract, c.Request)
	if err != nil {
		return types.PendingTransaction{}, err
	}
	return types.PendingTransaction{Hash: hash, SubmittedAt: r.now(), ChainID: chainID}, nil
}

func (r *Runner) submitRegistration(ctx context.Context, c SubmitRegistration) (types.PendingTransaction, error) {
	if r.deps.Chain == nil {
		return types.PendingTransaction{}, types.ErrWalletNotConnected
	}
	registryChain, registry, err := r.policy.Networks.RegistryTarget()
	if err != nil {
		return types.PendingTransaction{}, err
	}
	hash, err := r.deps.Chain.Register(ctx, registry, c.ChainID, c.TokenContract, c.TokenID)
	if err != nil {
		return types.PendingTransaction{}, err
	}
	return types.PendingTransaction{Hash: hash, SubmittedAt: r.now(), ChainID: registryChain.ChainID}, nil
}
