package service

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truecanvas/blockchain/networks"
	"truecanvas/config"
	"truecanvas/internal/messaging/producer"
	"truecanvas/internal/models"
	"truecanvas/processing/orchestrator"
	"truecanvas/storage/store"
)

const pngImage = "data:image/png;base64,iVBORw0KGgo="

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func batchCfg(size int) config.BatchProcessorConfig {
	return config.BatchProcessorConfig{BatchSize: size, BatchTimeout: 10 * time.Millisecond, FlushChannelBuffer: 4}
}

func newService(t *testing.T, p producer.Producer) (*Service, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	svc := NewService(st, p, networks.Default(), quiet(), batchCfg(2))
	t.Cleanup(svc.Close)
	return svc, st
}

func TestSubmitRecordsAndPublishes(t *testing.T) {
	p := producer.NewMemoryProducer(8, quiet())
	svc, st := newService(t, p)

	res, err := svc.Submit(context.Background(), &SubmissionInput{Image: pngImage, Logs: "stroke 1"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RequestID)
	assert.Equal(t, ImageHash(pngImage), res.ImageHash)
	assert.Len(t, res.ImageHash, 64)

	var msg *models.SubmissionMessage
	select {
	case msg = <-p.Messages():
	case <-time.After(2 * time.Second):
		t.Fatal("submission was not published")
	}
	assert.Equal(t, res.RequestID, msg.RequestID)
	assert.Equal(t, pngImage, msg.Image)
	assert.Equal(t, "stroke 1", msg.Logs)

	row, err := st.GetSubmission(context.Background(), res.RequestID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusReceived, row.Status)
}

func TestSubmitValidation(t *testing.T) {
	svc, _ := newService(t, producer.NewMemoryProducer(8, quiet()))
	ctx := context.Background()

	_, err := svc.Submit(ctx, &SubmissionInput{Logs: "x"})
	assert.ErrorIs(t, err, orchestrator.ErrValidation)
	assert.True(t, IsInvalidInput(err))

	_, err = svc.Submit(ctx, &SubmissionInput{Image: pngImage, Logs: "  "})
	var ve *orchestrator.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "logs", ve.Field)

	_, err = svc.Submit(ctx, &SubmissionInput{Image: "https://example.com/a.png", Logs: "x"})
	assert.True(t, IsInvalidInput(err))

	_, err = svc.Submit(ctx, &SubmissionInput{Image: pngImage, Logs: "x", ClientImageHash: "00"})
	assert.ErrorIs(t, err, ErrHashMismatch)

	_, err = svc.Submit(ctx, &SubmissionInput{Image: pngImage, Logs: "x", ClientImageHash: "0x" + ImageHash(pngImage)})
	assert.NoError(t, err)
}

func TestGetSubmissionSeesBufferedRequest(t *testing.T) {
	st := store.NewMemoryStore()
	cfg := config.BatchProcessorConfig{BatchSize: 100, BatchTimeout: time.Hour, FlushChannelBuffer: 1}
	svc := NewService(st, producer.NewMemoryProducer(8, quiet()), networks.Default(), quiet(), cfg)

	res, err := svc.Submit(context.Background(), &SubmissionInput{Image: pngImage, Logs: "x"})
	require.NoError(t, err)

	sub, err := svc.GetSubmission(context.Background(), res.RequestID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusReceived, sub.Status)

	svc.Close()
	sub, err = st.GetSubmission(context.Background(), res.RequestID)
	require.NoError(t, err, "Close flushes the buffer")
	assert.Equal(t, res.ImageHash, sub.ImageHash)

	_, err = svc.GetSubmission(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

type failingProducer struct{}

func (failingProducer) Publish(context.Context, *models.SubmissionMessage) error {
	return errors.New("broker down")
}

func (failingProducer) PublishBatch(context.Context, []*models.SubmissionMessage) error {
	return errors.New("broker down")
}

func (failingProducer) Close() error { return nil }

func TestPublishFailureMarksRowsFailed(t *testing.T) {
	st := store.NewMemoryStore()
	bp := NewBatchProcessor(batchCfg(1), st, failingProducer{}, quiet())

	res := &SubmissionResult{RequestID: "r-1", ImageHash: "h", ServerReceivedTimestamp: time.Now()}
	bp.Add(&SubmissionInput{Image: pngImage, Logs: "x"}, res)
	bp.Close()

	row, err := st.GetSubmission(context.Background(), "r-1")
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, row.Status)
	assert.Contains(t, row.ErrorMessage, "broker down")
}

func TestNetworks(t *testing.T) {
	svc, _ := newService(t, producer.NewMemoryProducer(1, quiet()))
	chains, registry := svc.Networks()
	assert.Len(t, chains, 3)
	assert.Equal(t, networks.DefaultRegistryChainID, registry)
}
