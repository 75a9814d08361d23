package producer

import (
	"context"

	"truecanvas/internal/models"
)

// Producer defines the interface for message queue producer
type Producer interface {
	// Publish sends a single submission to the configured topic
	Publish(ctx context.Context, msg *models.SubmissionMessage) error

	// PublishBatch sends submissions in batch to the configured topic
	PublishBatch(ctx context.Context, msgs []*models.SubmissionMessage) error

	// Close closes the producer connection
	Close() error
}
