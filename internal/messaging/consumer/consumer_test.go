package consumer

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truecanvas/config"
	"truecanvas/internal/models"
)

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestReaderConfig(t *testing.T) {
	rc, err := readerConfig(config.KafkaConsumerConfig{
		Brokers:           []string{"k1:9092"},
		Topic:             "submissions",
		GroupID:           "engine",
		SessionTimeout:    "45s",
		HeartbeatInterval: "bogus",
		AutoOffsetReset:   "latest",
	}, quiet())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, rc.SessionTimeout)
	assert.Equal(t, 3*time.Second, rc.HeartbeatInterval)
	assert.Equal(t, kafka.LastOffset, rc.StartOffset)
	assert.Zero(t, rc.CommitInterval)
}

func TestReaderConfigRequiresGroup(t *testing.T) {
	_, err := readerConfig(config.KafkaConsumerConfig{Brokers: []string{"k1:9092"}, Topic: "t"}, quiet())
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	sub, err := decode([]byte(`{"RequestID":"r1","Image":"data:,x","Logs":"l"}`))
	require.NoError(t, err)
	assert.Equal(t, "r1", sub.RequestID)
	assert.Equal(t, "l", sub.Logs)

	_, err = decode([]byte(`{`))
	assert.Error(t, err)
	_, err = decode([]byte(`{"Logs":"l"}`))
	assert.Error(t, err)
}

func TestMockConsumerRequeuesOnNack(t *testing.T) {
	mc := NewMockConsumer(quiet(), &models.SubmissionMessage{RequestID: "only"})
	ctx := context.Background()

	msg, ack, err := mc.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "only", msg.RequestID)
	ack(false)

	again, ack, err := mc.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "only", again.RequestID)
	ack(true)

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, _, err = mc.Consume(cctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockConsumerDefaultsToSamples(t *testing.T) {
	mc := NewMockConsumer(quiet())
	msg, _, err := mc.Consume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SampleMessages()[0].RequestID, msg.RequestID)
	assert.NotEmpty(t, msg.Image)
}
