package http

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truecanvas/blockchain/networks"
	"truecanvas/config"
	core "truecanvas/ingestion/service/core"
	"truecanvas/internal/messaging/producer"
	"truecanvas/storage/store"
)

const pngImage = "data:image/png;base64,iVBORw0KGgo="

func newServer(t *testing.T, maxBody int64) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	st := store.NewMemoryStore()
	svc := core.NewService(st, producer.NewMemoryProducer(16, logger), networks.Default(), logger,
		config.BatchProcessorConfig{BatchSize: 1, BatchTimeout: 10 * time.Millisecond, FlushChannelBuffer: 4})
	t.Cleanup(svc.Close)

	mux := http.NewServeMux()
	NewSubmissionHandler(svc, logger, maxBody).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, st
}

func post(t *testing.T, srv *httptest.Server, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/submissions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestSubmitAccepted(t *testing.T) {
	srv, st := newServer(t, 0)

	resp, out := post(t, srv, `{"image":"`+pngImage+`","logs":"layer 1"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "ACCEPTED", out["status"])
	assert.Equal(t, core.ImageHash(pngImage), out["image_hash"])

	id := out["request_id"].(string)
	require.Eventually(t, func() bool {
		_, err := st.GetSubmission(context.Background(), id)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	get, err := http.Get(srv.URL + "/v1/submissions/" + id)
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusOK, get.StatusCode)
	var sub store.Submission
	require.NoError(t, json.NewDecoder(get.Body).Decode(&sub))
	assert.Equal(t, id, sub.RequestID)
	assert.Equal(t, store.StatusReceived, sub.Status)
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	srv, _ := newServer(t, 0)

	resp, out := post(t, srv, `{"image":"`+pngImage+`"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["error"], "logs")

	resp, out = post(t, srv, `{"logs":"x"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["error"], "image")

	resp, _ = post(t, srv, `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitBodyLimit(t *testing.T) {
	srv, _ := newServer(t, 64)
	resp, _ := post(t, srv, `{"image":"`+pngImage+strings.Repeat("A", 200)+`","logs":"x"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestSubmitRequiresJSON(t *testing.T) {
	srv, _ := newServer(t, 0)
	resp, err := http.Post(srv.URL+"/v1/submissions", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func TestGetUnknownSubmission(t *testing.T) {
	srv, _ := newServer(t, 0)
	resp, err := http.Get(srv.URL + "/v1/submissions/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNetworksAndHealth(t *testing.T) {
	srv, _ := newServer(t, 0)

	resp, err := http.Get(srv.URL + "/v1/networks")
	require.NoError(t, err)
	defer resp.Body.Close()
	var out struct {
		RegistryChainID uint64                     `json:"registry_chain_id"`
		Chains          []networks.ChainDescriptor `json:"chains"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, uint64(1513), out.RegistryChainID)
	assert.Len(t, out.Chains, 3)

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	wrong, err := http.Get(srv.URL + "/v1/submissions")
	require.NoError(t, err)
	wrong.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, wrong.StatusCode)
}
