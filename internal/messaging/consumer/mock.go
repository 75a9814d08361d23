package consumer

import (
	"context"
	"errors"
	"log"
	"time"

	"truecanvas/internal/models"
)

// sampleImage is a 1x1 transparent PNG
const sampleImage = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// SampleMessages are served by a MockConsumer created without messages
func SampleMessages() []*models.SubmissionMessage {
	now := time.Now().UTC()
	return []*models.SubmissionMessage{
		{
			RequestID:         "a1b1c1d1-e1f1-1111-2222-1234567890ab",
			Image:             sampleImage,
			Logs:              "layer 1: sketch\nlayer 2: ink",
			ReceivedTimestamp: now.Add(-time.Minute).Format(time.RFC3339Nano),
		},
		{
			RequestID:         "a2b2c2d2-e2f2-3333-4444-abcdef123456",
			Image:             sampleImage,
			Logs:              "layer 1: watercolor wash",
			ReceivedTimestamp: now.Format(time.RFC3339Nano),
		},
	}
}

// MockConsumer serves a fixed set of messages and re-queues NACKed ones.
type MockConsumer struct {
	logger   *log.Logger
	messages chan *models.SubmissionMessage
}

// NewMockConsumer creates a MockConsumer preloaded with msgs, or SampleMessages when none are given.
func NewMockConsumer(logger *log.Logger, msgs ...*models.SubmissionMessage) *MockConsumer {
	if len(msgs) == 0 {
		msgs = SampleMessages()
	}
	mc := &MockConsumer{
		logger:   logger,
		messages: make(chan *models.SubmissionMessage, len(msgs)+8),
	}
	for _, m := range msgs {
		mc.messages <- m
	}
	logger.Printf("[MockConsumer] Loaded %d messages", len(msgs))
	return mc
}

// Consume returns the next queued message
func (m *MockConsumer) Consume(ctx context.Context) (*models.SubmissionMessage, func(success bool), error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	case msg, ok := <-m.messages:
		if !ok {
			return nil, nil, errors.New("message channel closed")
		}
		ack := func(success bool) {
			if success {
				m.logger.Printf("[MockConsumer] ACK request_id=%s", msg.RequestID)
				return
			}
			select {
			case m.messages <- msg:
				m.logger.Printf("[MockConsumer] NACK request_id=%s, re-queued", msg.RequestID)
			default:
				m.logger.Printf("[MockConsumer] Warning: could not re-queue request_id=%s", msg.RequestID)
			}
		}
		return msg, ack, nil
	}
}

// Close closes the message channel.
func (m *MockConsumer) Close() error {
	close(m.messages)
	return nil
}

var _ Consumer = (*MockConsumer)(nil)
