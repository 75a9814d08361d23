package grpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// Client calls a remote ingestion gateway
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to the gateway's gRPC listener
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.ForceCodec(JSONCodec{})))
	cc, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("ingestion client: dial %s: %w", addr, err)
	}
	return &Client{cc: cc}, nil
}

// Submit sends one submission
func (c *Client) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	resp := new(SubmitResponse)
	if err := c.cc.Invoke(ctx, fullMethod("Submit"), req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// GetSubmission fetches the tracking state of a submission
func (c *Client) GetSubmission(ctx context.Context, requestID string) (*SubmissionView, error) {
	resp := new(SubmissionView)
	if err := c.cc.Invoke(ctx, fullMethod("GetSubmission"), &GetSubmissionRequest{RequestID: requestID}, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close closes the connection
func (c *Client) Close() error {
	return c.cc.Close()
}
