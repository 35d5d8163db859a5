package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/metrics"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing"
)

// MessageWriter is the part of *kafka.Writer the sink uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds Kafka producer configuration
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// KafkaSink publishes audit events, keyed by project so a project's events
// stay ordered within a partition.
type KafkaSink struct {
	writer MessageWriter
	topic  string
	logger ectologger.Logger
}

// NewKafkaSink creates a sink backed by a kafka.Writer.
func NewKafkaSink(cfg KafkaConfig, logger ectologger.Logger) *KafkaSink {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compressionCodec(cfg.Compression),
		AllowAutoTopicCreation: true,
	}
	return NewKafkaSinkWithWriter(writer, cfg.Topic, logger)
}

// NewKafkaSinkWithWriter wraps an existing writer.
func NewKafkaSinkWithWriter(writer MessageWriter, topic string, logger ectologger.Logger) *KafkaSink {
	return &KafkaSink{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Gzip
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	case "none", "":
		return 0
	default:
		return kafka.Snappy
	}
}

func (s *KafkaSink) Name() string { return "kafka" }

// Close flushes and closes the writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// Record publishes one audit event.
func (s *KafkaSink) Record(ctx context.Context, event models.AuditEvent) error {
	ctx, span := tracing.StartSpan(ctx, "events.KafkaSink.Record")
	defer span.End()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	msg := kafka.Message{
		Topic: s.topic,
		Key:   []byte(event.ProjectID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "project_id", Value: []byte(event.ProjectID)},
			{Key: "request_id", Value: []byte(event.RequestID)},
		},
	}

	start := time.Now()
	err = s.writer.WriteMessages(ctx, msg)
	metrics.ObserveAuditPublish(s.Name(), time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type": event.Type,
		"request_id": event.RequestID,
	}).Debug("published audit event")
	return nil
}
