// Package verification talks to the external verification service: it submits artwork
// for proof generation and tracks the proof status until it resolves.
package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"truecanvas/config"
)

const maxErrorBody = 4 << 10

// Client is an HTTP client for the verify and proof status endpoints
type Client struct {
	baseURL    string
	verifyPath string
	statusPath string
	httpClient *http.Client
	logger     *log.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a verification client for baseURL
func NewClient(baseURL string, logger *log.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = log.Default()
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		verifyPath: "/verify",
		statusPath: "/proof_status",
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig creates a verification client from the engine configuration
func NewClientFromConfig(cfg config.VerifierConfig, logger *log.Logger) *Client {
	timeout, _, _ := cfg.Durations()
	c := NewClient(cfg.BaseURL, logger, WithHTTPClient(&http.Client{Timeout: timeout}))
	if cfg.VerifyPath != "" {
		c.verifyPath = cfg.VerifyPath
	}
	if cfg.StatusPath != "" {
		c.statusPath = cfg.StatusPath
	}
	return c
}

// Submit posts an image data URL and its provenance logs for verification
func (c *Client) Submit(ctx context.Context, image, logs string) (*Job, error) {
	body, err := json.Marshal(verifyRequest{Image: image, Logs: logs})
	if err != nil {
		return nil, &SubmissionError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.verifyPath, bytes.NewReader(body))
	if err != nil {
		return nil, &SubmissionError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &SubmissionError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &SubmissionError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var vr verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, &SubmissionError{StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if vr.ImageID == "" {
		return nil, &SubmissionError{StatusCode: resp.StatusCode, VerificationStatus: vr.VerificationStatus}
	}

	c.logger.Printf("Verification job accepted: image %s (status: %s)", vr.ImageID, vr.VerificationStatus)
	return &Job{ImageID: vr.ImageID, SubmittedAt: time.Now().UTC()}, nil
}

// FetchStatus issues one proof status request
func (c *Client) FetchStatus(ctx context.Context, imageID string) (*StatusResponse, error) {
	endpoint := c.baseURL + c.statusPath + "?" + url.Values{"imageID": {imageID}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proof status request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("proof status request failed: status %d body %s", resp.StatusCode, string(b))
	}

	var sr StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode proof status: %w", err)
	}
	if sr.ProofStatus == "" {
		return nil, fmt.Errorf("proof status response has no proofStatus field")
	}
	return &sr, nil
}
