// Package kafka implements the Kafka reporter plugin.
// Forwards decoded frames as JSON with batching, compression, and retry support.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"firestige.xyz/groundview/internal/core"
	"firestige.xyz/groundview/internal/log"
	"firestige.xyz/groundview/internal/transport"
	"firestige.xyz/groundview/pkg/plugin"
)

const (
	defaultBatchSize    = 100
	defaultBatchTimeout = 100 * time.Millisecond
	defaultCompression  = "snappy"
	defaultMaxAttempts  = 3
)

// KafkaReporter sends frames to Kafka.
type KafkaReporter struct {
	name   string
	writer *kafka.Writer
	config Config

	// Statistics
	reportedCount atomic.Uint64
	errorCount    atomic.Uint64
}

// Config represents Kafka reporter configuration.
type Config struct {
	Brokers      []string      `mapstructure:"brokers"`       // required
	Topic        string        `mapstructure:"topic"`         // required
	BatchSize    int           `mapstructure:"batch_size"`    // optional, default 100
	BatchTimeout time.Duration `mapstructure:"batch_timeout"` // optional, default 100ms
	Compression  string        `mapstructure:"compression"`   // optional: none|gzip|snappy|lz4|zstd, default snappy
	MaxAttempts  int           `mapstructure:"max_attempts"`  // optional, default 3
	Async        bool          `mapstructure:"async"`         // optional, fire-and-forget writes
}

// NewKafkaReporter creates a new Kafka reporter.
func NewKafkaReporter() plugin.Reporter {
	return &KafkaReporter{
		name: "kafka",
	}
}

func (r *KafkaReporter) Name() string {
	return r.name
}

// Init initializes the reporter with configuration.
func (r *KafkaReporter) Init(config map[string]any) error {
	if config == nil {
		return fmt.Errorf("kafka reporter requires configuration")
	}

	cfg := Config{
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Compression:  defaultCompression,
		MaxAttempts:  defaultMaxAttempts,
	}
	if err := plugin.DecodeConfig(config, &cfg); err != nil {
		return err
	}
	if len(cfg.Brokers) == 0 {
		return fmt.Errorf("brokers is required")
	}
	if cfg.Topic == "" {
		return fmt.Errorf("topic is required")
	}

	codec, err := transport.ParseCompression(cfg.Compression)
	if err != nil {
		return err
	}

	r.config = cfg
	r.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // frames of one page land on one partition, in order
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		Compression:  codec,
		Async:        cfg.Async,
	}
	if cfg.Async {
		r.writer.Completion = func(messages []kafka.Message, err error) {
			if err != nil {
				r.errorCount.Add(uint64(len(messages)))
				log.GetLogger().WithError(err).Warn("async kafka write failed")
			}
		}
	}

	return nil
}

func (r *KafkaReporter) Start(ctx context.Context) error {
	log.GetLogger().WithFields(map[string]interface{}{
		"brokers":       r.config.Brokers,
		"topic":         r.config.Topic,
		"batch_size":    r.config.BatchSize,
		"batch_timeout": r.config.BatchTimeout,
		"compression":   r.config.Compression,
	}).Info("kafka reporter started")
	return nil
}

// Stop flushes pending messages and closes the writer.
func (r *KafkaReporter) Stop(ctx context.Context) error {
	if r.writer != nil {
		if err := r.writer.Close(); err != nil {
			log.GetLogger().WithError(err).Error("error closing kafka writer")
			return err
		}
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"total_reported": r.reportedCount.Load(),
		"total_errors":   r.errorCount.Load(),
	}).Info("kafka reporter stopped")
	return nil
}

// Report sends a frame to Kafka.
func (r *KafkaReporter) Report(ctx context.Context, frame *core.Frame) error {
	if frame == nil {
		return fmt.Errorf("nil frame")
	}

	msg, err := r.buildMessage(frame)
	if err != nil {
		r.errorCount.Add(1)
		return err
	}

	if err := r.writer.WriteMessages(ctx, msg); err != nil {
		r.errorCount.Add(1)
		return fmt.Errorf("kafka write failed: %w", err)
	}

	r.reportedCount.Add(1)
	return nil
}

// buildMessage keys by source topic so a page's frames stay ordered, and
// carries kind and title as headers.
func (r *KafkaReporter) buildMessage(frame *core.Frame) (kafka.Message, error) {
	value, err := json.Marshal(frame)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("serialize frame failed: %w", err)
	}

	key := frame.Topic
	if key == "" {
		key = frame.Title
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  frame.ReceivedAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(frame.Kind)},
		},
	}
	if frame.Title != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "title", Value: []byte(frame.Title)})
	}
	if frame.AppID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "app_id", Value: []byte(frame.AppID)})
	}
	return msg, nil
}

// Flush is a no-op: kafka.Writer flushes on BatchSize/BatchTimeout and on Close.
func (r *KafkaReporter) Flush(ctx context.Context) error {
	return nil
}
