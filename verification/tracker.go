package verification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"truecanvas/config"
	"truecanvas/internal/poll"
)

// DefaultStatusInterval is the delay between proof status requests
const DefaultStatusInterval = 6 * time.Second

// StatusFetcher issues a single proof status request
type StatusFetcher interface {
	FetchStatus(ctx context.Context, imageID string) (*StatusResponse, error)
}

// TrackerOptions bounds proof polling. Zero MaxAttempts and MaxWait poll until a terminal status.
type TrackerOptions struct {
	Interval    time.Duration
	MaxAttempts int
	MaxWait     time.Duration
}

// TrackerOptionsFromConfig reads the polling budget from the verifier configuration
func TrackerOptionsFromConfig(cfg config.VerifierConfig) TrackerOptions {
	_, interval, maxWait := cfg.Durations()
	return TrackerOptions{Interval: interval, MaxAttempts: cfg.MaxAttempts, MaxWait: maxWait}
}

// Tracker resolves a verification job to a terminal proof status
type Tracker struct {
	fetcher StatusFetcher
	opts    TrackerOptions
	logger  *log.Logger
}

// NewTracker creates a tracker polling fetcher
func NewTracker(fetcher StatusFetcher, opts TrackerOptions, logger *log.Logger) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultStatusInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Tracker{fetcher: fetcher, opts: opts, logger: logger}
}

// Track polls the status endpoint once per interval and streams what it observes.
// Every call starts a fresh poll cycle. The channel carries Pending statuses followed by
// exactly one terminal status, and is closed after it or as soon as ctx is done.
// Callers that stop reading must cancel ctx.
func (t *Tracker) Track(ctx context.Context, imageID string) <-chan ProofStatus {
	out := make(chan ProofStatus)

	go func() {
		defer close(out)

		emit := func(s ProofStatus) bool {
			select {
			case out <- s:
				return true
			case <-ctx.Done():
				return false
			}
		}

		opts := poll.Options{Interval: t.opts.Interval, MaxAttempts: t.opts.MaxAttempts, MaxElapsed: t.opts.MaxWait}
		final, err := poll.Poll(ctx, opts, func(ctx context.Context) (ProofStatus, error) {
			s := t.observe(ctx, imageID)
			if s.Terminal() {
				return s, nil
			}
			if !emit(s) {
				return s, ctx.Err()
			}
			return s, poll.Retry(s.Err)
		})
		if err != nil {
			var te *poll.TimeoutError
			if errors.As(err, &te) {
				emit(expired(imageID, te))
			}
			return
		}
		emit(final)
	}()

	return out
}

func (t *Tracker) observe(ctx context.Context, imageID string) ProofStatus {
	resp, err := t.fetcher.FetchStatus(ctx, imageID)
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Printf("Proof status for %s unavailable, will retry: %v", imageID, err)
		}
		return ProofStatus{Kind: Pending, Err: &TransientError{ImageID: imageID, Err: err}}
	}

	switch resp.ProofStatus {
	case StatusUnproven:
		return ProofStatus{Kind: Pending}
	case StatusProven:
		artifact := resp.ZKProof
		if artifact == nil {
			artifact = &Artifact{}
		}
		return ProofStatus{Kind: Proven, Artifact: artifact}
	case StatusFailed:
		return ProofStatus{Kind: Failed, Reason: "verification service reported proof generation failed"}
	default:
		return ProofStatus{Kind: Failed, Reason: fmt.Sprintf("unknown proofStatus '%s'", resp.ProofStatus)}
	}
}

func expired(imageID string, te *poll.TimeoutError) ProofStatus {
	s := ProofStatus{
		Kind:   Expired,
		Reason: fmt.Sprintf("proof for %s still pending after %d attempts", imageID, te.Attempts),
	}
	if IsTransient(te.Last) {
		s.Err = te.Last
		s.Reason = te.Last.Error()
	}
	return s
}

// Await tracks imageID and returns its terminal status.
// Failed wraps ErrProofFailed and Expired wraps ErrProofExpired.
func (t *Tracker) Await(ctx context.Context, imageID string) (ProofStatus, error) {
	var last ProofStatus
	for s := range t.Track(ctx, imageID) {
		last = s
	}

	if !last.Terminal() {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		return last, fmt.Errorf("proof tracking for %s ended without a terminal status", imageID)
	}

	switch last.Kind {
	case Failed:
		return last, fmt.Errorf("%w: %s", ErrProofFailed, last.Reason)
	case Expired:
		return last, fmt.Errorf("%w: %s", ErrProofExpired, last.Reason)
	default:
		t.logger.Printf("Proof for %s is proven", imageID)
		return last, nil
	}
}
