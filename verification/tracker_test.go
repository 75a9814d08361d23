package verification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedServer answers proof status requests from a fixed script, repeating the last entry
type scriptedServer struct {
	mu       sync.Mutex
	script   []string
	requests int
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	i := s.requests
	s.requests++
	s.mu.Unlock()

	if i >= len(s.script) {
		i = len(s.script) - 1
	}
	switch body := s.script[i]; body {
	case "500":
		http.Error(w, "upstream down", http.StatusInternalServerError)
	default:
		_, _ = w.Write([]byte(body))
	}
}

func (s *scriptedServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

const (
	unproven = `{"proofStatus":"unproven"}`
	proven   = `{"proofStatus":"proven","ZKproof":{"sourceHash":"src","destHash":"dst","proof":["p"],"walrusURI":"walrus://blob"}}`
	failed   = `{"proofStatus":"failed"}`
)

func newTestTracker(url string, opts TrackerOptions) *Tracker {
	if opts.Interval == 0 {
		opts.Interval = time.Millisecond
	}
	return NewTracker(NewClient(url, quietLogger()), opts, quietLogger())
}

func collect(ch <-chan ProofStatus) []ProofStatus {
	var out []ProofStatus
	for s := range ch {
		out = append(out, s)
	}
	return out
}

func TestTrackEmitsExactlyOneProven(t *testing.T) {
	s := &scriptedServer{script: []string{unproven, "500", unproven, proven}}
	srv := httptest.NewServer(s)
	defer srv.Close()

	statuses := collect(newTestTracker(srv.URL, TrackerOptions{}).Track(context.Background(), "img"))

	require.Len(t, statuses, 4)
	for _, st := range statuses[:3] {
		assert.Equal(t, Pending, st.Kind)
	}
	assert.True(t, IsTransient(statuses[1].Err))

	last := statuses[3]
	assert.Equal(t, Proven, last.Kind)
	assert.Equal(t, "walrus://blob", last.Artifact.ContentURI)
	assert.Equal(t, []string{"p"}, last.Artifact.Proof)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 4, s.count(), "no requests after the terminal status")
}

func TestTrackEmitsExactlyOneFailed(t *testing.T) {
	s := &scriptedServer{script: []string{unproven, failed}}
	srv := httptest.NewServer(s)
	defer srv.Close()

	statuses := collect(newTestTracker(srv.URL, TrackerOptions{}).Track(context.Background(), "img"))

	require.Len(t, statuses, 2)
	assert.Equal(t, Failed, statuses[1].Kind)
	assert.NotEmpty(t, statuses[1].Reason)
	assert.Equal(t, 2, s.count())
}

func TestTrackUnknownStatusIsFailed(t *testing.T) {
	s := &scriptedServer{script: []string{`{"proofStatus":"exploded"}`}}
	srv := httptest.NewServer(s)
	defer srv.Close()

	st, err := newTestTracker(srv.URL, TrackerOptions{}).Await(context.Background(), "img")
	assert.ErrorIs(t, err, ErrProofFailed)
	assert.Equal(t, Failed, st.Kind)
	assert.Contains(t, st.Reason, "exploded")
}

func TestTrackIsRestartable(t *testing.T) {
	s := &scriptedServer{script: []string{proven}}
	srv := httptest.NewServer(s)
	defer srv.Close()

	tr := newTestTracker(srv.URL, TrackerOptions{})
	first, err := tr.Await(context.Background(), "img")
	require.NoError(t, err)
	second, err := tr.Await(context.Background(), "img")
	require.NoError(t, err)

	assert.Equal(t, Proven, first.Kind)
	assert.Equal(t, Proven, second.Kind)
	assert.Equal(t, 2, s.count(), "second call issues a fresh request")
}

func TestTrackExpiresWithLastTransientError(t *testing.T) {
	s := &scriptedServer{script: []string{unproven, "500"}}
	srv := httptest.NewServer(s)
	defer srv.Close()

	st, err := newTestTracker(srv.URL, TrackerOptions{MaxAttempts: 3}).Await(context.Background(), "img")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProofExpired)
	assert.Equal(t, Expired, st.Kind)
	assert.True(t, IsTransient(st.Err))
	assert.Contains(t, st.Reason, "500")
	assert.Equal(t, 3, s.count())
}

func TestTrackExpiresWhilePending(t *testing.T) {
	s := &scriptedServer{script: []string{unproven}}
	srv := httptest.NewServer(s)
	defer srv.Close()

	st, err := newTestTracker(srv.URL, TrackerOptions{MaxAttempts: 2}).Await(context.Background(), "img")
	assert.ErrorIs(t, err, ErrProofExpired)
	assert.Nil(t, st.Err)
	assert.Contains(t, st.Reason, "2 attempts")
}

func TestTrackExpiryReasonIsFinalObservation(t *testing.T) {
	s := &scriptedServer{script: []string{"500", unproven}}
	srv := httptest.NewServer(s)
	defer srv.Close()

	st, err := newTestTracker(srv.URL, TrackerOptions{MaxAttempts: 2}).Await(context.Background(), "img")
	assert.ErrorIs(t, err, ErrProofExpired)
	assert.Nil(t, st.Err)
	assert.Contains(t, st.Reason, "still pending")
	assert.NotContains(t, st.Reason, "500")
}

func TestTrackClosesOnCancel(t *testing.T) {
	s := &scriptedServer{script: []string{unproven}}
	srv := httptest.NewServer(s)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := newTestTracker(srv.URL, TrackerOptions{Interval: time.Hour}).Track(ctx, "img")

	first := <-ch
	assert.Equal(t, Pending, first.Kind)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel closes without a terminal status")
	case <-time.After(time.Second):
		t.Fatal("tracker did not stop after cancellation")
	}
	assert.Equal(t, 1, s.count())
}

func TestAwaitReturnsContextError(t *testing.T) {
	s := &scriptedServer{script: []string{unproven}}
	srv := httptest.NewServer(s)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestTracker(srv.URL, TrackerOptions{Interval: 5 * time.Millisecond}).Await(ctx, "img")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
