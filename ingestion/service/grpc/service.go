package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"
)

const serviceName = "truecanvas.v1.Ingestion"

// SubmitRequest carries one artwork submission
type SubmitRequest struct {
	Image           string `json:"image"`
	Logs            string `json:"logs"`
	ClientImageHash string `json:"client_image_hash,omitempty"`
}

// SubmitResponse acknowledges an accepted submission
type SubmitResponse struct {
	RequestID               string                 `json:"request_id"`
	ImageHash               string                 `json:"image_hash"`
	ServerReceivedTimestamp *timestamppb.Timestamp `json:"server_received_timestamp"`
	Status                  string                 `json:"status"`
}

// GetSubmissionRequest names the submission to look up
type GetSubmissionRequest struct {
	RequestID string `json:"request_id"`
}

// SubmissionView is the tracking state of a submission
type SubmissionView struct {
	RequestID         string                 `json:"request_id"`
	ImageHash         string                 `json:"image_hash"`
	Status            string                 `json:"status"`
	Stage             string                 `json:"stage,omitempty"`
	RetryCount        int                    `json:"retry_count"`
	ErrorMessage      string                 `json:"error_message,omitempty"`
	ImageID           string                 `json:"image_id,omitempty"`
	ChainID           uint64                 `json:"chain_id,omitempty"`
	MintTxHash        string                 `json:"mint_tx_hash,omitempty"`
	TokenID           string                 `json:"token_id,omitempty"`
	TokenContract     string                 `json:"token_contract,omitempty"`
	RegisterTxHash    string                 `json:"register_tx_hash,omitempty"`
	RegisteredAddress string                 `json:"registered_address,omitempty"`
	MintTxURL         string                 `json:"mint_tx_url,omitempty"`
	RegisterTxURL     string                 `json:"register_tx_url,omitempty"`
	Note              string                 `json:"note,omitempty"`
	ReceivedTimestamp *timestamppb.Timestamp `json:"received_timestamp"`
	UpdatedAt         *timestamppb.Timestamp `json:"updated_at"`
}

// IngestionServer is the server-side interface of the ingestion service
type IngestionServer interface {
	Submit(context.Context, *SubmitRequest) (*SubmitResponse, error)
	GetSubmission(context.Context, *GetSubmissionRequest) (*SubmissionView, error)
}

// RegisterIngestionServer registers srv on a gRPC server
func RegisterIngestionServer(s *grpc.Server, srv IngestionServer) {
	s.RegisterService(&serviceDesc, srv)
}

func handlerSubmit(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(SubmitRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestionServer).Submit(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Submit")}
	return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
		return srv.(IngestionServer).Submit(ctx, r.(*SubmitRequest))
	})
}

func handlerGetSubmission(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(GetSubmissionRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestionServer).GetSubmission(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("GetSubmission")}
	return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
		return srv.(IngestionServer).GetSubmission(ctx, r.(*GetSubmissionRequest))
	})
}

func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*IngestionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Submit", Handler: handlerSubmit},
		{MethodName: "GetSubmission", Handler: handlerGetSubmission},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "truecanvas/v1/ingestion.json",
}
