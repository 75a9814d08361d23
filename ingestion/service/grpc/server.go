// Package grpc exposes the ingestion service over gRPC with a JSON codec and a hand-written service descriptor.
package grpc

import (
	"context"
	"errors"
	"log"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	core "truecanvas/ingestion/service/core"
	"truecanvas/storage/store"
)

// Server implements IngestionServer on top of the core service
type Server struct {
	svc    *core.Service
	logger *log.Logger
}

// NewServer creates a new gRPC Server instance
func NewServer(s *core.Service, l *log.Logger) *Server {
	return &Server{svc: s, logger: l}
}

// Submit implements IngestionServer
func (s *Server) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	result, err := s.svc.Submit(ctx, &core.SubmissionInput{
		Image:           req.Image,
		Logs:            req.Logs,
		ClientImageHash: req.ClientImageHash,
	})
	if err != nil {
		if core.IsInvalidInput(err) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		s.logger.Printf("gRPC Server: Service layer error: %v", err)
		return nil, status.Error(codes.Internal, "submission could not be accepted")
	}

	return &SubmitResponse{
		RequestID:               result.RequestID,
		ImageHash:               result.ImageHash,
		ServerReceivedTimestamp: timestamppb.New(result.ServerReceivedTimestamp),
		Status:                  "ACCEPTED",
	}, nil
}

// GetSubmission implements IngestionServer
func (s *Server) GetSubmission(ctx context.Context, req *GetSubmissionRequest) (*SubmissionView, error) {
	if req.RequestID == "" {
		return nil, status.Error(codes.InvalidArgument, "request_id is required")
	}
	sub, err := s.svc.GetSubmission(ctx, req.RequestID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "submission %s not found", req.RequestID)
	}
	if err != nil {
		s.logger.Printf("gRPC Server: Lookup of %s failed: %v", req.RequestID, err)
		return nil, status.Error(codes.Internal, "lookup failed")
	}
	return toView(sub), nil
}

func toView(sub *store.Submission) *SubmissionView {
	v := &SubmissionView{
		RequestID:         sub.RequestID,
		ImageHash:         sub.ImageHash,
		Status:            string(sub.Status),
		Stage:             sub.Stage,
		RetryCount:        sub.RetryCount,
		ErrorMessage:      sub.ErrorMessage,
		ImageID:           sub.ImageID,
		MintTxHash:        sub.MintTxHash,
		TokenID:           sub.TokenID,
		TokenContract:     sub.TokenContract,
		RegisterTxHash:    sub.RegisterTxHash,
		RegisteredAddress: sub.RegisteredAddress,
		MintTxURL:         sub.MintTxURL,
		RegisterTxURL:     sub.RegisterTxURL,
		Note:              sub.Note,
		ReceivedTimestamp: timestamppb.New(sub.ReceivedTimestamp),
		UpdatedAt:         timestamppb.New(sub.UpdatedAt),
	}
	if sub.ChainID != nil {
		v.ChainID = *sub.ChainID
	}
	return v
}

var _ IngestionServer = (*Server)(nil)
