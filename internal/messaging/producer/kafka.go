package producer

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

// KafkaProducer implements the Producer interface
type KafkaProducer struct {
	writer *kafka.Writer
	logger *log.Logger
	topic  string
}

// NewKafkaProducer creates a new KafkaProducer
func NewKafkaProducer(cfg config.KafkaProducerConfig, logger *log.Logger) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka producer configuration incomplete: both brokers and topic are required")
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 100
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = 100 * time.Millisecond
	}
	// Images travel inline as data URLs, so batches are sized in bytes first
	batchBytes := cfg.BatchBytes
	if batchBytes == 0 {
		batchBytes = 32 * 1024 * 1024
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 10 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 10 * time.Second
	}

	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Topic:    cfg.Topic,
		Balancer: &kafka.Hash{}, // same request id, same partition

		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
		BatchBytes:   int64(batchBytes),

		RequiredAcks: requiredAcks(cfg.RequiredAcks),
		Async:        cfg.Async,

		WriteTimeout: writeTimeout,
		ReadTimeout:  readTimeout,

		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Printf("Kafka Writer Error: "+msg, args...)
		}),
	}

	logger.Printf("Kafka producer created, connected to Brokers: %v, Topic: %s", cfg.Brokers, cfg.Topic)

	return &KafkaProducer{
		writer: w,
		logger: logger,
		topic:  cfg.Topic,
	}, nil
}

func requiredAcks(v string) kafka.RequiredAcks {
	switch v {
	case "none":
		return kafka.RequireNone
	case "all":
		return kafka.RequireAll
	default:
		return kafka.RequireOne
	}
}

// encode turns a submission into a kafka message keyed by request id
func encode(msg *models.SubmissionMessage) (kafka.Message, error) {
	if msg == nil || msg.RequestID == "" {
		return kafka.Message{}, errors.New("submission message has no request id")
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("failed to serialize submission %s: %w", msg.RequestID, err)
	}
	return kafka.Message{Key: []byte(msg.RequestID), Value: value}, nil
}

// Publish sends a message
func (p *KafkaProducer) Publish(ctx context.Context, msg *models.SubmissionMessage) error {
	kafkaMsg, err := encode(msg)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		p.logger.Printf("Failed to send Kafka message (RequestID: %s): %v", msg.RequestID, err)
		return fmt.Errorf("failed to write to Kafka: %w", err)
	}
	return nil
}

// PublishBatch sends submissions in one write
func (p *KafkaProducer) PublishBatch(ctx context.Context, msgs []*models.SubmissionMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	kafkaMsgs := make([]kafka.Message, len(msgs))
	for i, msg := range msgs {
		m, err := encode(msg)
		if err != nil {
			return err
		}
		kafkaMsgs[i] = m
	}

	if err := p.writer.WriteMessages(ctx, kafkaMsgs...); err != nil {
		p.logger.Printf("Failed to send Kafka messages in batch (count: %d): %v", len(msgs), err)
		return fmt.Errorf("failed to batch write to Kafka: %w", err)
	}

	p.logger.Printf("Published %d submissions (Topic: %s)", len(msgs), p.topic)
	return nil
}

// Close closes the producer
func (p *KafkaProducer) Close() error {
	p.logger.Println("Closing Kafka producer (and flushing buffer)...")
	return p.writer.Close()
}

var _ Producer = (*KafkaProducer)(nil) // Compile-time interface check
