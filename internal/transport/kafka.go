package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"firestige.xyz/groundview/internal/core"
)

const (
	defaultMaxWait      = time.Second
	defaultBatchTimeout = 10 * time.Millisecond
	defaultMaxAttempts  = 3
)

// KafkaConfig configures both sides of the Kafka transport.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	// GroupID enables committed offsets. Empty means every subscriber sees
	// the whole stream, the way a pub/sub viewer expects.
	GroupID     string        `mapstructure:"group_id"`
	StartOffset string        `mapstructure:"start_offset"` // earliest|latest
	MaxWait     time.Duration `mapstructure:"max_wait"`
	Compression string        `mapstructure:"compression"` // none|gzip|snappy|lz4|zstd
}

// Validate reports missing required settings.
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("%w: kafka brokers is required", core.ErrConfigInvalid)
	}
	switch strings.ToLower(c.StartOffset) {
	case "", "earliest", "latest":
	default:
		return fmt.Errorf("%w: invalid start_offset %q", core.ErrConfigInvalid, c.StartOffset)
	}
	if _, err := ParseCompression(c.Compression); err != nil {
		return err
	}
	return nil
}

func (c KafkaConfig) startOffset() int64 {
	if strings.EqualFold(c.StartOffset, "earliest") {
		return kafka.FirstOffset
	}
	return kafka.LastOffset
}

// ParseCompression maps a codec name to its kafka-go compression.
func ParseCompression(name string) (compress.Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return compress.None, nil
	case "gzip":
		return compress.Gzip, nil
	case "snappy":
		return compress.Snappy, nil
	case "lz4":
		return compress.Lz4, nil
	case "zstd":
		return compress.Zstd, nil
	default:
		return compress.None, fmt.Errorf("%w: invalid compression type %q", core.ErrConfigInvalid, name)
	}
}

// KafkaSubscriber reads one topic. The message key carries the address frame.
type KafkaSubscriber struct {
	cfg KafkaConfig

	mu     sync.Mutex
	reader *kafka.Reader
	topic  string
}

// NewKafkaSubscriber validates cfg. The reader is created by Subscribe.
func NewKafkaSubscriber(cfg KafkaConfig) (*KafkaSubscriber, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	return &KafkaSubscriber{cfg: cfg}, nil
}

// Subscribe creates the reader for topic. Kafka topics match exactly.
func (s *KafkaSubscriber) Subscribe(topic string) error {
	if topic == "" {
		return fmt.Errorf("topic is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reader != nil {
		return fmt.Errorf("already subscribed to %s", s.topic)
	}

	rc := kafka.ReaderConfig{
		Brokers:  s.cfg.Brokers,
		Topic:    topic,
		GroupID:  s.cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10 << 20,
		MaxWait:  s.cfg.MaxWait,
	}
	if s.cfg.GroupID != "" {
		rc.StartOffset = s.cfg.startOffset()
		rc.CommitInterval = time.Second
	}

	reader := kafka.NewReader(rc)
	if s.cfg.GroupID == "" {
		if err := reader.SetOffset(s.cfg.startOffset()); err != nil {
			reader.Close()
			return fmt.Errorf("set offset: %w", err)
		}
	}

	s.reader = reader
	s.topic = topic
	return nil
}

// Receive blocks for the next message on the subscribed topic.
func (s *KafkaSubscriber) Receive(ctx context.Context) (Message, error) {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()

	if reader == nil {
		return Message{}, core.ErrNotSubscribed
	}

	msg, err := reader.ReadMessage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Message{}, ctx.Err()
		}
		if errors.Is(err, io.EOF) {
			return Message{}, core.ErrClosed
		}
		return Message{}, fmt.Errorf("%w: kafka read: %v", core.ErrTransport, err)
	}

	return Message{Address: msg.Key, Payload: msg.Value}, nil
}

// Close closes the reader. Safe to call more than once.
func (s *KafkaSubscriber) Close() error {
	s.mu.Lock()
	reader := s.reader
	s.reader = nil
	s.mu.Unlock()

	if reader == nil {
		return nil
	}
	if err := reader.Close(); err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}
	return nil
}

// KafkaPublisher writes messages to per-message topics.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a synchronous writer with auto topic creation.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, _ := ParseCompression(cfg.Compression)

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			BatchTimeout:           defaultBatchTimeout,
			MaxAttempts:            defaultMaxAttempts,
			Compression:            codec,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

// Publish writes msg to topic keyed by its address.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, msg Message) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   msg.Address,
		Value: msg.Payload,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("%w: kafka write: %v", core.ErrTransport, err)
	}
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
