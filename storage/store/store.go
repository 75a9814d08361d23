// Package store persists submission tracking rows shared by the ingestion gateway and the engine.
package store

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle of a submission row
type Status string

const (
	StatusReceived   Status = "RECEIVED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Final reports whether no worker will pick the row up again
func (s Status) Final() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrNotFound is returned for an unknown request id
	ErrNotFound = errors.New("submission not found")
	// ErrDuplicate is returned when a request id is inserted twice
	ErrDuplicate = errors.New("submission already exists")
)

// MaxRetriesMessage is recorded when MarkProcessing gives up on a row
const MaxRetriesMessage = "max retries exceeded"

// Submission is one tracked artwork submission
type Submission struct {
	RequestID         string    `json:"request_id"`
	ImageHash         string    `json:"image_hash"`
	Status            Status    `json:"status"`
	RetryCount        int       `json:"retry_count"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	ReceivedTimestamp time.Time `json:"received_timestamp"`
	UpdatedAt         time.Time `json:"updated_at"`
	Progress
}

// Progress is what the orchestrator has produced so far; empty fields are unknown
type Progress struct {
	Stage             string  `json:"stage,omitempty"`
	ImageID           string  `json:"image_id,omitempty"`
	ChainID           *uint64 `json:"chain_id,omitempty"`
	MintTxHash        string  `json:"mint_tx_hash,omitempty"`
	TokenID           string  `json:"token_id,omitempty"`
	TokenContract     string  `json:"token_contract,omitempty"`
	RegisterTxHash    string  `json:"register_tx_hash,omitempty"`
	RegisteredAddress string  `json:"registered_address,omitempty"`
	MintTxURL         string  `json:"mint_tx_url,omitempty"`
	RegisterTxURL     string  `json:"register_tx_url,omitempty"`
	Note              string  `json:"note,omitempty"`
}

// Store defines the persistence operations of the pipeline
type Store interface {
	// InsertSubmissionBatch records new submissions in status RECEIVED
	InsertSubmissionBatch(ctx context.Context, subs []*Submission) error

	// GetSubmission returns a row or ErrNotFound
	GetSubmission(ctx context.Context, requestID string) (*Submission, error)

	// MarkProcessing claims a RECEIVED or PROCESSING row for a worker.
	// A row whose retry count reached maxRetries is marked FAILED instead.
	// Rows already COMPLETED or FAILED are returned unchanged.
	MarkProcessing(ctx context.Context, requestID string, maxRetries int) (*Submission, error)

	// UpdateProgress records orchestrator progress on a PROCESSING row
	UpdateProgress(ctx context.Context, requestID string, p Progress) error

	// MarkForRetry increments the retry count and returns the new value
	MarkForRetry(ctx context.Context, requestID string, errMsg string) (int, error)

	// MarkCompleted finalises a row successfully
	MarkCompleted(ctx context.Context, requestID string, p Progress) error

	// MarkFailed finalises a row with an error
	MarkFailed(ctx context.Context, requestID string, p Progress, errMsg string) error

	// Close releases the underlying resources
	Close()
}
