// Package notify delivers drift alerts to Kafka.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/segmentio/kafka-go"

	"trade-outcome-lab/internal/drift"
	"trade-outcome-lab/internal/logger"
)

// KafkaConfig configures the alert producer.
type KafkaConfig struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic" default:"calibration-drift-alerts"`
	RequiredAcks int           `yaml:"required_acks" default:"-1"`
	Compression  string        `yaml:"compression" default:"gzip"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
}

// Enabled reports whether any broker is configured.
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher publishes drift alerts as JSON, keyed by model version so
// alerts of one model stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	log    *logger.Logger
}

// NewKafkaPublisher creates a synchronous Kafka producer.
func NewKafkaPublisher(cfg KafkaConfig, log *logger.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	if log == nil {
		log = logger.Nop()
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:  parseCompression(cfg.Compression),
		MaxAttempts:  cfg.MaxAttempts,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newPublisher(writer, cfg.Topic, log), nil
}

func newPublisher(w messageWriter, topic string, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		topic:  topic,
		log:    log.With(logger.String("component", "drift_alerts"), logger.String("topic", topic)),
	}
}

// PublishDriftAlert implements drift.AlertPublisher.
func (p *KafkaPublisher) PublishDriftAlert(ctx context.Context, alert drift.Alert) error {
	value, err := sonic.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal drift alert: %w", err)
	}

	key := alert.ModelVersion
	if key == "" {
		key = alert.RunID
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  alert.DetectedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte("calibration_drift")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write drift alert: %w", err)
	}
	p.log.Debug("drift alert published", logger.String("run_id", alert.RunID), logger.Int("bytes", len(value)))
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// LogPublisher writes alerts to the log when Kafka is not configured.
type LogPublisher struct {
	log *logger.Logger
}

// NewLogPublisher creates a log-only publisher.
func NewLogPublisher(log *logger.Logger) *LogPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &LogPublisher{log: log.With(logger.String("component", "drift_alerts"))}
}

// PublishDriftAlert implements drift.AlertPublisher.
func (p *LogPublisher) PublishDriftAlert(_ context.Context, alert drift.Alert) error {
	p.log.Warn("calibration drift alert",
		logger.String("run_id", alert.RunID),
		logger.String("model_version", alert.ModelVersion),
		logger.Float64("recent_weighted_error", alert.Detection.RecentWeightedError),
		logger.Float64("error_delta", alert.Detection.ErrorDelta),
		logger.String("recommendation", alert.Detection.Recommendation),
	)
	return nil
}

func parseCompression(s string) kafka.Compression {
	switch s {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}
