package verification

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestSubmitAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/verify", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "data:image/png;base64,AAAA", body["image"])
		assert.Equal(t, "stroke log", body["logs"])

		_, _ = w.Write([]byte(`{"verificationStatus":"verified","ImageID":"img-1"}`))
	}))
	defer srv.Close()

	job, err := NewClient(srv.URL, quietLogger()).Submit(context.Background(), "data:image/png;base64,AAAA", "stroke log")
	require.NoError(t, err)
	assert.Equal(t, "img-1", job.ImageID)
	assert.False(t, job.SubmittedAt.IsZero())
}

func TestSubmitNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad image", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, quietLogger()).Submit(context.Background(), "img", "logs")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubmission)

	var se *SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Contains(t, se.Body, "bad image")
}

func TestSubmitUnverified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"verificationStatus":"unverified","ImageID":""}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, quietLogger()).Submit(context.Background(), "img", "logs")
	require.Error(t, err)

	var se *SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "unverified", se.VerificationStatus)
}

func TestSubmitTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := NewClient(srv.URL, quietLogger()).Submit(context.Background(), "img", "logs")
	assert.ErrorIs(t, err, ErrSubmission)
}

func TestFetchStatusQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/proof_status", r.URL.Path)
		assert.Equal(t, "img 1", r.URL.Query().Get("imageID"))
		_, _ = w.Write([]byte(`{"proofStatus":"proven","ZKproof":{"sourceHash":"s","destHash":"d","proof":["a","b"],"walrusURI":"walrus://x"}}`))
	}))
	defer srv.Close()

	sr, err := NewClient(srv.URL+"/", quietLogger()).FetchStatus(context.Background(), "img 1")
	require.NoError(t, err)
	assert.Equal(t, StatusProven, sr.ProofStatus)
	require.NotNil(t, sr.ZKProof)
	assert.Equal(t, &Artifact{SourceHash: "s", DestHash: "d", Proof: []string{"a", "b"}, ContentURI: "walrus://x"}, sr.ZKProof)
}

func TestFetchStatusRejectsMissingField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, quietLogger()).FetchStatus(context.Background(), "img")
	assert.Error(t, err)
}
