package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"go.uber.org/zap"
)

// KafkaConfig holds Kafka producer configuration
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Compression  string
	RequiredAcks int
	BatchTimeout time.Duration
}

// messageWriter is the part of kafka.Writer the publisher uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher streams messages to a Kafka topic keyed by name hash,
// so every change of one name lands on the same partition in order
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a synchronous producer
func NewKafkaPublisher(cfg KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("%w: no Kafka brokers configured", ErrInvalidConfiguration)
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("%w: no Kafka topic configured", ErrInvalidConfiguration)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
	}
	if writer.BatchTimeout <= 0 {
		writer.BatchTimeout = 10 * time.Millisecond
	}

	switch cfg.Compression {
	case "gzip":
		writer.Compression = compress.Gzip
	case "snappy":
		writer.Compression = compress.Snappy
	case "lz4":
		writer.Compression = compress.Lz4
	case "zstd":
		writer.Compression = compress.Zstd
	}

	switch cfg.RequiredAcks {
	case 0:
		writer.RequiredAcks = kafka.RequireNone
	case 1:
		writer.RequiredAcks = kafka.RequireOne
	default:
		writer.RequiredAcks = kafka.RequireAll
	}

	return newKafkaPublisher(writer, cfg.Topic, logger), nil
}

func newKafkaPublisher(writer messageWriter, topic string, logger *zap.Logger) *KafkaPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: writer, topic: topic, logger: logger}
}

// Publish writes one message and waits for the configured acks
func (p *KafkaPublisher) Publish(ctx context.Context, msg *DomainChanged) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.NameHash),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(msg.Kind)},
			{Key: "tx_hash", Value: []byte(msg.TxHash)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write to kafka topic %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
