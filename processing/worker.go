package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"truecanvas/config"
	"truecanvas/internal/messaging/consumer"
	"truecanvas/internal/models"
	"truecanvas/processing/orchestrator"
	"truecanvas/storage/store"
)

// runFunc drives one submission to a terminal snapshot
type runFunc func(ctx context.Context, image, logs string, observe orchestrator.Observer) (orchestrator.Snapshot, error)

// Worker consumes submissions and runs each through the orchestrator
type Worker struct {
	workerConfig       config.WorkerConfig
	consumerRetryDelay time.Duration
	submissionTimeout  time.Duration

	maxTaskRetries int // Business rule for maximum task retries
	logger         *log.Logger
	store          store.Store
	consumer       consumer.Consumer
	run            runFunc
}

// New creates a new Worker instance
func New(cfg config.WorkerConfig, maxTaskRetries int, logger *log.Logger, s store.Store, c consumer.Consumer,
	policy orchestrator.Policy, deps orchestrator.Dependencies) *Worker {

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	consumerRetryDelay, err := time.ParseDuration(cfg.ConsumerRetryDelay)
	if err != nil {
		logger.Printf("Warning: Invalid consumer_retry_delay '%s', using default 5s", cfg.ConsumerRetryDelay)
		consumerRetryDelay = 5 * time.Second
	}
	submissionTimeout, err := time.ParseDuration(cfg.SubmissionTimeout)
	if err != nil {
		logger.Printf("Warning: Invalid submission_timeout '%s', using default 30m", cfg.SubmissionTimeout)
		submissionTimeout = 30 * time.Minute
	}

	return &Worker{
		workerConfig:       cfg,
		consumerRetryDelay: consumerRetryDelay,
		submissionTimeout:  submissionTimeout,
		maxTaskRetries:     maxTaskRetries,
		logger:             logger,
		store:              s,
		consumer:           c,
		run: func(ctx context.Context, image, logs string, observe orchestrator.Observer) (orchestrator.Snapshot, error) {
			// A runner per submission keeps the observer goroutine-local
			return orchestrator.NewRunner(policy, deps, logger).WithObserver(observe).Run(ctx, image, logs)
		},
	}
}

// Run starts the worker pool and blocks until ctx is cancelled
func (w *Worker) Run(ctx context.Context) {
	w.logger.Printf("Starting worker pool with concurrency: %d, SubmissionTimeout: %s", w.workerConfig.Concurrency, w.submissionTimeout)
	var wg sync.WaitGroup
	for i := 0; i < w.workerConfig.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.logger.Printf("Worker %d started", workerID)
			w.consumeLoop(ctx, workerID)
			w.logger.Printf("Worker %d stopped", workerID)
		}(i + 1)
	}
	wg.Wait()
	w.logger.Println("Worker pool stopped.")
}

func (w *Worker) consumeLoop(ctx context.Context, workerID int) {
	for ctx.Err() == nil {
		msg, ack, err := w.consumer.Consume(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			w.logger.Printf("Worker %d: Consumer error: %v", workerID, err)
			w.sleep(ctx, w.consumerRetryDelay)
			continue
		}
		if msg == nil {
			continue
		}
		ack(w.handle(ctx, workerID, msg))
	}
}

// handle processes one submission and reports whether its message may be committed.
// Only shutdown and store outages leave a message uncommitted.
func (w *Worker) handle(ctx context.Context, workerID int, msg *models.SubmissionMessage) bool {
	id := msg.RequestID
	for {
		row, err := w.store.MarkProcessing(ctx, id, w.maxTaskRetries)
		if errors.Is(err, store.ErrNotFound) {
			w.logger.Printf("Worker %d: Unknown request_id %s, dropping message", workerID, id)
			return true
		}
		if err != nil {
			w.logger.Printf("Worker %d: MarkProcessing of %s failed: %v", workerID, id, err)
			w.sleep(ctx, w.consumerRetryDelay)
			return false
		}
		if row.Status.Final() {
			return true
		}
		if row.MintTxHash != "" {
			// A previous run died after sending a transaction; running again could mint twice
			w.finish(ctx, id, row.Progress, fmt.Sprintf("interrupted after mint transaction %s was sent", row.MintTxHash))
			return true
		}

		snap, runErr := w.runOne(ctx, id, msg)
		if ctx.Err() != nil {
			w.logger.Printf("Worker %d: Shutdown while processing %s in %s", workerID, id, snap.State)
			return false
		}
		progress := progressOf(snap)

		switch {
		case runErr == nil:
			if err := w.store.MarkCompleted(ctx, id, progress); err != nil {
				w.logger.Printf("CRITICAL: MarkCompleted of %s failed: %v", id, err)
			}
			return true

		case snap.Retryable():
			count, err := w.store.MarkForRetry(ctx, id, runErr.Error())
			if err != nil {
				w.logger.Printf("CRITICAL: MarkForRetry of %s failed: %v", id, err)
				return false
			}
			if count >= w.maxTaskRetries {
				w.finish(ctx, id, progress, fmt.Sprintf("%s: %v", store.MaxRetriesMessage, runErr))
				return true
			}
			w.logger.Printf("Worker %d: %s failed in %s (%v), retry %d/%d in %s",
				workerID, id, snap.State, runErr, count, w.maxTaskRetries, w.consumerRetryDelay)
			if !w.sleep(ctx, w.consumerRetryDelay) {
				return false
			}

		default:
			w.finish(ctx, id, progress, runErr.Error())
			return true
		}
	}
}

func (w *Worker) runOne(ctx context.Context, id string, msg *models.SubmissionMessage) (orchestrator.Snapshot, error) {
	runCtx, cancel := context.WithTimeout(ctx, w.submissionTimeout)
	defer cancel()

	var last orchestrator.State
	observe := func(s orchestrator.Snapshot) {
		if s.State == last || s.Terminal() {
			return
		}
		last = s.State
		if err := w.store.UpdateProgress(ctx, id, progressOf(s)); err != nil {
			w.logger.Printf("Progress update of %s failed: %v", id, err)
		}
	}
	return w.run(runCtx, msg.Image, msg.Logs, observe)
}

func (w *Worker) finish(ctx context.Context, id string, p store.Progress, errMsg string) {
	if err := w.store.MarkFailed(ctx, id, p, errMsg); err != nil {
		w.logger.Printf("CRITICAL: MarkFailed of %s failed: %v", id, err)
	}
}

// sleep waits d or until ctx is done, reporting whether the full delay elapsed
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// progressOf flattens a snapshot into the columns tracked per submission
func progressOf(s orchestrator.Snapshot) store.Progress {
	p := store.Progress{
		Stage:         string(s.State),
		MintTxURL:     s.Links.MintTx,
		RegisterTxURL: s.Links.RegisterTx,
		Note:          s.Note,
	}
	if s.Job != nil {
		p.ImageID = s.Job.ImageID
	}
	if s.MintTx != nil {
		chainID := s.MintTx.ChainID
		p.ChainID = &chainID
		p.MintTxHash = s.MintTx.Hash.Hex()
	}
	if s.Mint != nil {
		if s.Mint.TokenID != nil {
			p.TokenID = s.Mint.TokenID.String()
		}
		if s.Mint.ContractAddress != nil {
			p.TokenContract = s.Mint.ContractAddress.Hex()
		}
	}
	if s.RegisterTx != nil {
		p.RegisterTxHash = s.RegisterTx.Hash.Hex()
	}
	if s.Registration != nil && s.Registration.RegisteredAddress != nil {
		p.RegisteredAddress = s.Registration.RegisteredAddress.Hex()
	}
	return p
}
