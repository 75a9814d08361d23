package worker

import (
	"context"
	"io"
	"log"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truecanvas/blockchain/types"
	"truecanvas/config"
	"truecanvas/internal/messaging/consumer"
	"truecanvas/internal/models"
	"truecanvas/processing/orchestrator"
	"truecanvas/storage/store"
	"truecanvas/verification"
)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func newWorker(t *testing.T, st store.Store, c consumer.Consumer, maxRetries int, run runFunc) *Worker {
	t.Helper()
	cfg := config.WorkerConfig{Concurrency: 2, ConsumerRetryDelay: "1ms", SubmissionTimeout: "1m"}
	w := New(cfg, maxRetries, quiet(), st, c, orchestrator.DefaultPolicy(), orchestrator.Dependencies{})
	w.run = run
	return w
}

func seed(t *testing.T, st store.Store, id string) *models.SubmissionMessage {
	t.Helper()
	require.NoError(t, st.InsertSubmissionBatch(context.Background(), []*store.Submission{{RequestID: id, ImageHash: "h", ReceivedTimestamp: time.Now()}}))
	return &models.SubmissionMessage{RequestID: id, Image: "data:image/png;base64,AA==", Logs: "layer"}
}

func registered() orchestrator.Snapshot {
	contract := common.HexToAddress("0xABC")
	asset := common.HexToAddress("0xA55E7")
	chain := uint64(1513)
	regHash := common.HexToHash("0x02")
	return orchestrator.Snapshot{
		State:        orchestrator.StateRegistered,
		Job:          &verification.Job{ImageID: "img-1"},
		MintTx:       &types.PendingTransaction{Hash: common.HexToHash("0x01"), ChainID: chain},
		Mint:         &types.MintResult{Success: true, TokenID: big.NewInt(7), ContractAddress: &contract, ChainID: &chain},
		RegisterTx:   &types.PendingTransaction{Hash: regHash, ChainID: chain},
		Registration: &types.RegistrationResult{TxHash: &regHash, RegisteredAddress: &asset},
		Links:        orchestrator.Links{MintTx: "https://testnet.storyscan.xyz/tx/0x01"},
	}
}

func unreachable() (orchestrator.Snapshot, error) {
	err := &verification.SubmissionError{StatusCode: 503}
	return orchestrator.Snapshot{State: orchestrator.StateSubmitFailed, Err: err}, err
}

func TestHandleCompletesAndPersistsProgress(t *testing.T) {
	st := store.NewMemoryStore()
	msg := seed(t, st, "r-ok")

	var stageDuringRun string
	w := newWorker(t, st, nil, 3, func(ctx context.Context, image, logs string, observe orchestrator.Observer) (orchestrator.Snapshot, error) {
		assert.Equal(t, msg.Image, image)
		observe(orchestrator.Snapshot{
			State: orchestrator.StateAwaitingProof,
			Job:   &verification.Job{ImageID: "img-1"},
			Next:  []orchestrator.Command{orchestrator.TrackProof{ImageID: "img-1"}},
		})
		row, err := st.GetSubmission(ctx, "r-ok")
		require.NoError(t, err)
		stageDuringRun = row.Stage
		return registered(), nil
	})

	assert.True(t, w.handle(context.Background(), 1, msg))
	assert.Equal(t, "AWAITING_PROOF", stageDuringRun)

	row, err := st.GetSubmission(context.Background(), "r-ok")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, row.Status)
	assert.Equal(t, "REGISTERED", row.Stage)
	assert.Equal(t, "img-1", row.ImageID)
	assert.Equal(t, "7", row.TokenID)
	assert.Equal(t, common.HexToAddress("0xA55E7").Hex(), row.RegisteredAddress)
	require.NotNil(t, row.ChainID)
	assert.Equal(t, uint64(1513), *row.ChainID)
}

type stubVerifier struct{}

func (stubVerifier) Submit(ctx context.Context, image, logs string) (*verification.Job, error) {
	return &verification.Job{ImageID: "img-live", SubmittedAt: time.Now()}, nil
}

// proofsFunc adapts a function to orchestrator.ProofAwaiter
type proofsFunc func(ctx context.Context, imageID string) (verification.ProofStatus, error)

func (f proofsFunc) Await(ctx context.Context, imageID string) (verification.ProofStatus, error) {
	return f(ctx, imageID)
}

func TestHandleWithRunnerPersistsRealSnapshots(t *testing.T) {
	st := store.NewMemoryStore()
	msg := seed(t, st, "r-live")

	var during *store.Submission
	deps := orchestrator.Dependencies{
		Verifier: stubVerifier{},
		Proofs: proofsFunc(func(ctx context.Context, imageID string) (verification.ProofStatus, error) {
			row, err := st.GetSubmission(ctx, "r-live")
			require.NoError(t, err)
			during = row
			return verification.ProofStatus{Kind: verification.Failed, Reason: "forged"}, nil
		}),
	}
	cfg := config.WorkerConfig{Concurrency: 1, ConsumerRetryDelay: "1ms", SubmissionTimeout: "1m"}
	w := New(cfg, 3, quiet(), st, nil, orchestrator.DefaultPolicy(), deps)

	assert.True(t, w.handle(context.Background(), 1, msg))

	require.NotNil(t, during)
	assert.Equal(t, store.StatusProcessing, during.Status)
	assert.Equal(t, "AWAITING_PROOF", during.Stage)
	assert.Equal(t, "img-live", during.ImageID)

	row, err := st.GetSubmission(context.Background(), "r-live")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, row.Status)
	assert.Equal(t, "PROOF_FAILED", row.Stage)
	assert.Equal(t, "img-live", row.ImageID)
	assert.Contains(t, row.ErrorMessage, "forged")
}

func TestHandleRetriesUntilBudget(t *testing.T) {
	st := store.NewMemoryStore()
	msg := seed(t, st, "r-retry")

	var calls int32
	w := newWorker(t, st, nil, 2, func(context.Context, string, string, orchestrator.Observer) (orchestrator.Snapshot, error) {
		atomic.AddInt32(&calls, 1)
		return unreachable()
	})

	assert.True(t, w.handle(context.Background(), 1, msg))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	row, err := st.GetSubmission(context.Background(), "r-retry")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, row.Status)
	assert.Contains(t, row.ErrorMessage, store.MaxRetriesMessage)
	assert.Equal(t, 2, row.RetryCount)
}

func TestHandleRetryThenSuccess(t *testing.T) {
	st := store.NewMemoryStore()
	msg := seed(t, st, "r-flaky")

	var calls int32
	w := newWorker(t, st, nil, 3, func(context.Context, string, string, orchestrator.Observer) (orchestrator.Snapshot, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return unreachable()
		}
		return registered(), nil
	})

	assert.True(t, w.handle(context.Background(), 1, msg))
	row, err := st.GetSubmission(context.Background(), "r-flaky")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, row.Status)
	assert.Equal(t, 1, row.RetryCount)
}

func TestHandleTerminalFailureIsNotRetried(t *testing.T) {
	st := store.NewMemoryStore()
	msg := seed(t, st, "r-proof")

	var calls int32
	w := newWorker(t, st, nil, 3, func(context.Context, string, string, orchestrator.Observer) (orchestrator.Snapshot, error) {
		atomic.AddInt32(&calls, 1)
		err := verification.ErrProofFailed
		return orchestrator.Snapshot{State: orchestrator.StateProofFailed, Err: err}, err
	})

	assert.True(t, w.handle(context.Background(), 1, msg))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	row, err := st.GetSubmission(context.Background(), "r-proof")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, row.Status)
	assert.Equal(t, "PROOF_FAILED", row.Stage)
}

func TestHandleRefusesToRerunAfterMintWasSent(t *testing.T) {
	st := store.NewMemoryStore()
	msg := seed(t, st, "r-crashed")
	ctx := context.Background()
	_, err := st.MarkProcessing(ctx, "r-crashed", 3)
	require.NoError(t, err)
	require.NoError(t, st.UpdateProgress(ctx, "r-crashed", store.Progress{Stage: "MINTING", MintTxHash: "0xfeed"}))

	w := newWorker(t, st, nil, 3, func(context.Context, string, string, orchestrator.Observer) (orchestrator.Snapshot, error) {
		t.Fatal("a submission with a sent mint must not run again")
		return orchestrator.Snapshot{}, nil
	})

	assert.True(t, w.handle(ctx, 1, msg))
	row, err := st.GetSubmission(ctx, "r-crashed")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, row.Status)
	assert.Contains(t, row.ErrorMessage, "0xfeed")
}

func TestHandleUnknownAndFinalRows(t *testing.T) {
	st := store.NewMemoryStore()
	w := newWorker(t, st, nil, 3, func(context.Context, string, string, orchestrator.Observer) (orchestrator.Snapshot, error) {
		t.Fatal("run must not be called")
		return orchestrator.Snapshot{}, nil
	})
	assert.True(t, w.handle(context.Background(), 1, &models.SubmissionMessage{RequestID: "ghost"}))

	msg := seed(t, st, "r-done")
	require.NoError(t, st.MarkCompleted(context.Background(), "r-done", store.Progress{}))
	assert.True(t, w.handle(context.Background(), 1, msg))
}

func TestHandleLeavesMessageOnShutdown(t *testing.T) {
	st := store.NewMemoryStore()
	msg := seed(t, st, "r-shutdown")
	ctx, cancel := context.WithCancel(context.Background())

	w := newWorker(t, st, nil, 3, func(runCtx context.Context, _, _ string, _ orchestrator.Observer) (orchestrator.Snapshot, error) {
		cancel()
		<-runCtx.Done()
		return orchestrator.Snapshot{State: orchestrator.StateAwaitingProof, Err: runCtx.Err()}, runCtx.Err()
	})

	assert.False(t, w.handle(ctx, 1, msg))
	row, err := st.GetSubmission(context.Background(), "r-shutdown")
	require.NoError(t, err)
	assert.Equal(t, store.StatusProcessing, row.Status)
}

func TestRunDrainsConsumer(t *testing.T) {
	st := store.NewMemoryStore()
	msgs := []*models.SubmissionMessage{seed(t, st, "r-1"), seed(t, st, "r-2")}
	mc := consumer.NewMockConsumer(quiet(), msgs...)

	w := newWorker(t, st, mc, 3, func(context.Context, string, string, orchestrator.Observer) (orchestrator.Snapshot, error) {
		return registered(), nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		for _, id := range []string{"r-1", "r-2"} {
			row, err := st.GetSubmission(context.Background(), id)
			if err != nil || row.Status != store.StatusCompleted {
				return false
			}
		}
		return true
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker pool did not stop")
	}
}

func TestProgressOfEmptySnapshot(t *testing.T) {
	p := progressOf(orchestrator.Snapshot{State: orchestrator.StateSubmitting})
	assert.Equal(t, "SUBMITTING", p.Stage)
	assert.Nil(t, p.ChainID)
	assert.Empty(t, p.MintTxHash)
}
