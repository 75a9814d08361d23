package producer

import (
	"context"
	"errors"
	"log"
	"sync"

	"truecanvas/internal/models"
)

// MemoryProducer hands published submissions to an in-process channel.
// It backs the "mock://local" broker so the gateway and engine can run without Kafka.
type MemoryProducer struct {
	logger *log.Logger
	out    chan *models.SubmissionMessage

	mu     sync.Mutex
	closed bool
}

// NewMemoryProducer creates a producer with the given channel capacity
func NewMemoryProducer(capacity int, logger *log.Logger) *MemoryProducer {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemoryProducer{logger: logger, out: make(chan *models.SubmissionMessage, capacity)}
}

// Messages is the channel published submissions arrive on
func (p *MemoryProducer) Messages() <-chan *models.SubmissionMessage {
	return p.out
}

// Publish sends one submission, blocking while the channel is full
func (p *MemoryProducer) Publish(ctx context.Context, msg *models.SubmissionMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("memory producer is closed")
	}
	select {
	case p.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishBatch sends submissions in order
func (p *MemoryProducer) PublishBatch(ctx context.Context, msgs []*models.SubmissionMessage) error {
	for _, m := range msgs {
		if err := p.Publish(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the output channel
func (p *MemoryProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.out)
		p.logger.Println("[MemoryProducer] Closed")
	}
	return nil
}

var _ Producer = (*MemoryProducer)(nil)
