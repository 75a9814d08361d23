package consumer

import (
	"context"

	"truecanvas/internal/models"
)

// Consumer defines the interface for message queue consumers.
type Consumer interface {
	// Consume blocks until a submission is received or the context is cancelled.
	// ack(true) commits the message; ack(false) leaves it for redelivery.
	Consume(ctx context.Context) (msg *models.SubmissionMessage, ack func(success bool), err error)

	// Close gracefully shuts down the consumer connection.
	Close() error
}
