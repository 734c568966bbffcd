package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"firestige.xyz/groundview/internal/config"
	"firestige.xyz/groundview/internal/log"
)

// KafkaCommand is the wire format for commands received via Kafka.
//
//	{
//	  "version":    "v1",
//	  "target":     "ground-01",
//	  "command":    "config_reload",
//	  "timestamp":  "2024-01-15T10:30:00Z",
//	  "request_id": "req-abc-123",
//	  "payload":    { ... }
//	}
type KafkaCommand struct {
	Version   string          `json:"version"`
	Target    string          `json:"target"` // node name or "*" for broadcast
	Command   string          `json:"command"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"request_id"`
	Payload   json.RawMessage `json:"payload"`
}

// KafkaCommandConsumer consumes commands from Kafka and dispatches to handler.
type KafkaCommandConsumer struct {
	node    string
	ttl     time.Duration
	reader  *kafka.Reader
	handler *CommandHandler
	logger  log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

// NewKafkaCommandConsumer creates a consumer on the control topic. Brokers
// are shared with the telemetry transport.
func NewKafkaCommandConsumer(cc config.ControlConfig, brokers []string, handler *CommandHandler) (*KafkaCommandConsumer, error) {
	kc := cc.Kafka
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers is required")
	}
	if kc.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if kc.GroupID == "" {
		return nil, fmt.Errorf("group_id is required")
	}

	var startOffset int64
	switch kc.StartOffset {
	case "earliest":
		startOffset = kafka.FirstOffset
	case "", "latest":
		startOffset = kafka.LastOffset
	default:
		return nil, fmt.Errorf("invalid start_offset %q", kc.StartOffset)
	}

	ttl := cc.CommandTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          kc.Topic,
		GroupID:        kc.GroupID,
		StartOffset:    startOffset,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: time.Second,
		MaxWait:        time.Second,
	})

	return &KafkaCommandConsumer{
		node:    cc.Node,
		ttl:     ttl,
		reader:  reader,
		handler: handler,
		logger:  log.GetLogger().WithField("topic", kc.Topic).WithField("group_id", kc.GroupID),
		now:     time.Now,
	}, nil
}

// Name identifies the consumer as a daemon service.
func (c *KafkaCommandConsumer) Name() string { return "command-channel" }

// Start consumes commands in the background until Stop.
func (c *KafkaCommandConsumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.logger.WithField("node", c.node).Info("kafka command consumer started")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(ctx)
	}()
	return nil
}

func (c *KafkaCommandConsumer) consume(ctx context.Context) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			c.logger.WithError(err).Error("failed to fetch kafka message")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				continue
			}
		}

		if err := c.processMessage(ctx, msg.Value); err != nil {
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"partition": msg.Partition,
				"offset":    msg.Offset,
			}).Error("failed to process command")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.WithError(err).Error("failed to commit message")
		}
	}
}

// processMessage decodes and dispatches one command. Commands for another
// node and commands older than the TTL are skipped without error.
func (c *KafkaCommandConsumer) processMessage(ctx context.Context, value []byte) error {
	var kCmd KafkaCommand
	if err := json.Unmarshal(value, &kCmd); err != nil {
		return fmt.Errorf("failed to parse kafka command: %w", err)
	}

	if kCmd.Target != "*" && kCmd.Target != "" && kCmd.Target != c.node {
		c.logger.WithField("target", kCmd.Target).WithField("request_id", kCmd.RequestID).
			Debug("skipping command not targeting this node")
		return nil
	}

	if !kCmd.Timestamp.IsZero() {
		if age := c.now().Sub(kCmd.Timestamp); age > c.ttl {
			c.logger.WithFields(map[string]interface{}{
				"command":    kCmd.Command,
				"request_id": kCmd.RequestID,
				"age":        age.String(),
			}).Warn("skipping stale command")
			return nil
		}
	}

	resp := c.handler.Handle(ctx, Command{
		Method: kCmd.Command,
		Params: kCmd.Payload,
		ID:     kCmd.RequestID,
	})
	if resp.Error != nil {
		return fmt.Errorf("command %s failed: %w", kCmd.Command, resp.Error)
	}

	c.logger.WithField("command", kCmd.Command).WithField("request_id", kCmd.RequestID).
		Info("command executed successfully")
	return nil
}

// Stop stops consuming and closes the reader.
func (c *KafkaCommandConsumer) Stop(ctx context.Context) error {
	if c.reader == nil {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	reader := c.reader
	c.reader = nil
	if err := reader.Close(); err != nil {
		return fmt.Errorf("failed to close kafka reader: %w", err)
	}
	c.logger.Info("kafka command consumer stopped")
	return nil
}
