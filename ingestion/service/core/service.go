// Package service holds the transport-independent ingestion logic shared by the HTTP and gRPC surfaces.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"truecanvas/blockchain/networks"
	"truecanvas/config"
	"truecanvas/internal/messaging/producer"
	"truecanvas/processing/orchestrator"
	"truecanvas/storage/store"
)

// ErrHashMismatch is returned when the client's image hash disagrees with the server's
var ErrHashMismatch = errors.New("client image hash does not match")

// SubmissionInput is what a client sends
type SubmissionInput struct {
	Image           string // data URL
	Logs            string
	ClientImageHash string // Optional
}

// SubmissionResult is returned as soon as the submission is accepted
type SubmissionResult struct {
	RequestID               string
	ImageHash               string
	ServerReceivedTimestamp time.Time
}

// Service encapsulates the core business logic of the ingestion gateway
type Service struct {
	store          store.Store
	networks       *networks.Registry
	logger         *log.Logger
	batchProcessor *BatchProcessor
}

// NewService creates a new Service instance with configuration
func NewService(s store.Store, p producer.Producer, reg *networks.Registry, l *log.Logger, cfg config.BatchProcessorConfig) *Service {
	return &Service{
		store:          s,
		networks:       reg,
		logger:         l,
		batchProcessor: NewBatchProcessor(cfg, s, p, l),
	}
}

// IsInvalidInput reports whether err should be answered as a client error
func IsInvalidInput(err error) bool {
	return errors.Is(err, orchestrator.ErrValidation) || errors.Is(err, ErrHashMismatch)
}

// ImageHash is the hex sha256 of the image data URL
func ImageHash(image string) string {
	sum := sha256.Sum256([]byte(image))
	return hex.EncodeToString(sum[:])
}

// Submit validates a submission and queues it for recording and publishing
func (s *Service) Submit(ctx context.Context, input *SubmissionInput) (*SubmissionResult, error) {
	if err := orchestrator.Validate(input.Image, input.Logs); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(input.Image, "data:") {
		return nil, fmt.Errorf("image must be a data URL: %w", &orchestrator.ValidationError{Field: "image"})
	}

	hash := ImageHash(input.Image)
	if input.ClientImageHash != "" && !strings.EqualFold(strings.TrimPrefix(input.ClientImageHash, "0x"), hash) {
		return nil, fmt.Errorf("%w: client sent '%s', server computed '%s'", ErrHashMismatch, input.ClientImageHash, hash)
	}

	result := &SubmissionResult{
		RequestID:               uuid.NewString(),
		ImageHash:               hash,
		ServerReceivedTimestamp: time.Now().UTC(),
	}
	s.batchProcessor.Add(input, result)
	return result, nil
}

// GetSubmission returns the tracking row of a request.
// A request still waiting in the batch buffer is reported as RECEIVED.
func (s *Service) GetSubmission(ctx context.Context, requestID string) (*store.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		if pending, ok := s.batchProcessor.Pending(requestID); ok {
			return pending, nil
		}
	}
	return sub, err
}

// Networks lists the supported chains
func (s *Service) Networks() ([]networks.ChainDescriptor, uint64) {
	return s.networks.All(), s.networks.RegistryChainID()
}

// Close flushes pending submissions and stops the batch processor
func (s *Service) Close() {
	s.batchProcessor.Close()
}
