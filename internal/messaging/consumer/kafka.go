package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"truecanvas/config"
	"truecanvas/internal/models"
)

// KafkaConsumer implements the Consumer interface over a consumer-group reader
type KafkaConsumer struct {
	reader *kafka.Reader
	logger *log.Logger
}

// NewKafkaConsumer creates a new KafkaConsumer instance
func NewKafkaConsumer(cfg config.KafkaConsumerConfig, logger *log.Logger) (*KafkaConsumer, error) {
	rc, err := readerConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	logger.Printf("Kafka consumer created, connected to Brokers: %v, Topic: %s, GroupID: %s", cfg.Brokers, cfg.Topic, cfg.GroupID)
	return &KafkaConsumer{reader: kafka.NewReader(rc), logger: logger}, nil
}

// readerConfig maps the consumer section onto a kafka-go reader configuration.
// Offsets are committed explicitly by the ack callback, so CommitInterval stays zero.
func readerConfig(cfg config.KafkaConsumerConfig, logger *log.Logger) (kafka.ReaderConfig, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		return kafka.ReaderConfig{}, errors.New("incomplete kafka configuration: brokers, topic, group_id are all required")
	}

	rc := kafka.ReaderConfig{
		Brokers:           cfg.Brokers,
		GroupID:           cfg.GroupID,
		Topic:             cfg.Topic,
		MinBytes:          1,
		MaxBytes:          64e6, // a message carries the whole image
		MaxWait:           time.Second,
		SessionTimeout:    parseOr(cfg.SessionTimeout, 30*time.Second, "session_timeout", logger),
		HeartbeatInterval: parseOr(cfg.HeartbeatInterval, 3*time.Second, "heartbeat_interval", logger),
		StartOffset:       kafka.FirstOffset,
	}

	switch cfg.AutoOffsetReset {
	case "", "earliest":
	case "latest":
		rc.StartOffset = kafka.LastOffset
	default:
		logger.Printf("Warning: Unknown auto_offset_reset '%s', using earliest", cfg.AutoOffsetReset)
	}
	return rc, nil
}

func parseOr(v string, def time.Duration, name string, logger *log.Logger) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		logger.Printf("Warning: Invalid %s '%s', using default %s", name, v, def)
		return def
	}
	return d
}

// decode reads a submission from a message body
func decode(value []byte) (*models.SubmissionMessage, error) {
	var sub models.SubmissionMessage
	if err := json.Unmarshal(value, &sub); err != nil {
		return nil, fmt.Errorf("message deserialization failed: %w", err)
	}
	if sub.RequestID == "" {
		return nil, errors.New("message has no request id")
	}
	return &sub, nil
}

// Consume implements the Consumer interface by reading messages from Kafka.
// Undecodable messages are committed and reported as an error so they never block the partition.
func (k *KafkaConsumer) Consume(ctx context.Context) (*models.SubmissionMessage, func(success bool), error) {
	kafkaMsg, err := k.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, nil, ctx.Err()
		}
		return nil, nil, err
	}

	sub, err := decode(kafkaMsg.Value)
	if err != nil {
		k.logger.Printf("Kafka consumer: Discarding offset %d: %v", kafkaMsg.Offset, err)
		_ = k.reader.CommitMessages(ctx, kafkaMsg)
		return nil, nil, err
	}

	ack := func(success bool) {
		if !success {
			k.logger.Printf("Kafka consumer: NACK for offset %d (request_id %s), offset left uncommitted", kafkaMsg.Offset, sub.RequestID)
			return
		}
		if err := k.reader.CommitMessages(context.Background(), kafkaMsg); err != nil {
			k.logger.Printf("Kafka consumer: Failed to commit offset %d: %v", kafkaMsg.Offset, err)
		}
	}
	return sub, ack, nil
}

// Close implements the Consumer interface by closing the Kafka reader
func (k *KafkaConsumer) Close() error {
	k.logger.Println("Closing Kafka consumer...")
	return k.reader.Close()
}

var _ Consumer = (*KafkaConsumer)(nil)
