package service

import (
	"context"
	"log"
	"sync"
	"time"

	"truecanvas/config"
	"truecanvas/internal/messaging/producer"
	"truecanvas/internal/models"
	"truecanvas/storage/store"
)

// BatchProcessor records accepted submissions and publishes them in batches
type BatchProcessor struct {
	cfg      config.BatchProcessorConfig
	logger   *log.Logger
	store    store.Store
	producer producer.Producer

	mu      sync.Mutex
	buffer  []*batchEntry
	pending map[string]*batchEntry // buffered or being flushed, not yet in the store

	flushChan chan []*batchEntry
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type batchEntry struct {
	input  *SubmissionInput
	result *SubmissionResult
}

// NewBatchProcessor creates a new batch processor and starts its goroutines
func NewBatchProcessor(cfg config.BatchProcessorConfig, s store.Store, p producer.Producer, logger *log.Logger) *BatchProcessor {
	cfg.SetDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	bp := &BatchProcessor{
		cfg:       cfg,
		logger:    logger,
		store:     s,
		producer:  p,
		buffer:    make([]*batchEntry, 0, cfg.BatchSize),
		pending:   make(map[string]*batchEntry),
		flushChan: make(chan []*batchEntry, cfg.FlushChannelBuffer),
		ctx:       ctx,
		cancel:    cancel,
	}

	bp.wg.Add(2)
	go bp.runTimer()
	go bp.runFlusher()
	return bp
}

// Add buffers one accepted submission, flushing when the batch is full
func (bp *BatchProcessor) Add(input *SubmissionInput, result *SubmissionResult) {
	entry := &batchEntry{input: input, result: result}

	bp.mu.Lock()
	bp.pending[result.RequestID] = entry
	bp.buffer = append(bp.buffer, entry)
	full := len(bp.buffer) >= bp.cfg.BatchSize
	bp.mu.Unlock()

	if full {
		bp.flush()
	}
}

// Pending reports a submission accepted but not yet recorded
func (bp *BatchProcessor) Pending(requestID string) (*store.Submission, bool) {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	e, ok := bp.pending[requestID]
	if !ok {
		return nil, false
	}
	return &store.Submission{
		RequestID:         requestID,
		ImageHash:         e.result.ImageHash,
		Status:            store.StatusReceived,
		ReceivedTimestamp: e.result.ServerReceivedTimestamp,
		UpdatedAt:         e.result.ServerReceivedTimestamp,
	}, true
}

func (bp *BatchProcessor) runTimer() {
	defer bp.wg.Done()
	ticker := time.NewTicker(bp.cfg.BatchTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			bp.flush()
		case <-bp.ctx.Done():
			return
		}
	}
}

func (bp *BatchProcessor) runFlusher() {
	defer bp.wg.Done()
	for {
		select {
		case batch := <-bp.flushChan:
			bp.processBatch(batch)
		case <-bp.ctx.Done():
			// Drain what was handed over, then whatever is still buffered
			for drained := false; !drained; {
				select {
				case batch := <-bp.flushChan:
					bp.processBatch(batch)
				default:
					drained = true
				}
			}
			bp.mu.Lock()
			remaining := bp.buffer
			bp.buffer = nil
			bp.mu.Unlock()
			bp.processBatch(remaining)
			return
		}
	}
}

// flush hands the buffer to the flusher; a full channel leaves it for the next tick
func (bp *BatchProcessor) flush() {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	batch := bp.buffer
	bp.buffer = make([]*batchEntry, 0, bp.cfg.BatchSize)
	bp.mu.Unlock()

	select {
	case bp.flushChan <- batch:
	default:
		bp.logger.Printf("Flush channel full, %d submissions wait for the next tick", len(batch))
		bp.mu.Lock()
		bp.buffer = append(batch, bp.buffer...)
		bp.mu.Unlock()
	}
}

// processBatch inserts the rows, then publishes the messages.
// Rows whose message could not be published are marked FAILED so no client waits on them forever.
func (bp *BatchProcessor) processBatch(batch []*batchEntry) {
	if len(batch) == 0 {
		return
	}
	defer bp.forget(batch)

	ctx := context.Background()
	start := time.Now()

	rows := make([]*store.Submission, len(batch))
	msgs := make([]*models.SubmissionMessage, len(batch))
	for i, e := range batch {
		rows[i] = &store.Submission{
			RequestID:         e.result.RequestID,
			ImageHash:         e.result.ImageHash,
			Status:            store.StatusReceived,
			ReceivedTimestamp: e.result.ServerReceivedTimestamp,
		}
		msgs[i] = &models.SubmissionMessage{
			RequestID:         e.result.RequestID,
			Image:             e.input.Image,
			Logs:              e.input.Logs,
			ImageHash:         e.result.ImageHash,
			ReceivedTimestamp: e.result.ServerReceivedTimestamp.Format(time.RFC3339Nano),
		}
	}

	if err := bp.store.InsertSubmissionBatch(ctx, rows); err != nil {
		bp.logger.Printf("Batch database insert failed, dropping %d submissions: %v", len(batch), err)
		return
	}
	dbDuration := time.Since(start)

	if err := bp.producer.PublishBatch(ctx, msgs); err != nil {
		bp.logger.Printf("Batch publish failed: %v", err)
		for _, r := range rows {
			if markErr := bp.store.MarkFailed(ctx, r.RequestID, store.Progress{}, "queue publish failed: "+err.Error()); markErr != nil {
				bp.logger.Printf("CRITICAL: could not mark %s failed: %v", r.RequestID, markErr)
			}
		}
		return
	}

	bp.logger.Printf("Batch processed: %d submissions, DB: %v, total: %v", len(batch), dbDuration, time.Since(start))
}

func (bp *BatchProcessor) forget(batch []*batchEntry) {
	bp.mu.Lock()
	for _, e := range batch {
		delete(bp.pending, e.result.RequestID)
	}
	bp.mu.Unlock()
}

// Close flushes everything buffered and waits for the goroutines to exit
func (bp *BatchProcessor) Close() {
	bp.closeOnce.Do(func() {
		bp.cancel()
		bp.wg.Wait()
	})
}
