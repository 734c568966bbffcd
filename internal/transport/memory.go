package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"firestige.xyz/groundview/internal/core"
)

const defaultQueueSize = 64

// MemoryBroker is an in-process pub/sub hub. Subscriptions match by leading
// topic segments, so subscribing to a spacecraft prefix receives all of its streams.
type MemoryBroker struct {
	queueSize int

	mu     sync.RWMutex
	subs   map[*MemorySubscriber]struct{}
	closed bool
}

// BrokerOption configures a MemoryBroker.
type BrokerOption func(*MemoryBroker)

// WithQueueSize bounds each subscriber's queue.
func WithQueueSize(n int) BrokerOption {
	return func(b *MemoryBroker) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

func NewMemoryBroker(opts ...BrokerOption) *MemoryBroker {
	b := &MemoryBroker{
		queueSize: defaultQueueSize,
		subs:      make(map[*MemorySubscriber]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewSubscriber returns an unsubscribed subscriber attached to b.
func (b *MemoryBroker) NewSubscriber() *MemorySubscriber {
	return &MemorySubscriber{
		broker: b,
		queue:  make(chan Message, b.queueSize),
		done:   make(chan struct{}),
	}
}

// Publish delivers msg to every subscriber whose topic equals topic or is
// one of its leading dot-separated segments.
// A full queue blocks the publisher until it drains, ctx ends, or the
// subscriber closes.
func (b *MemoryBroker) Publish(ctx context.Context, topic string, msg Message) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return core.ErrClosed
	}
	targets := make([]*MemorySubscriber, 0, len(b.subs))
	for s := range b.subs {
		if topicMatches(s.topic, topic) {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	msg = Message{Address: clone(msg.Address), Payload: clone(msg.Payload)}
	for _, s := range targets {
		select {
		case s.queue <- msg:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// topicMatches compares whole segments, so 0x8 does not receive 0x80.
func topicMatches(subscription, topic string) bool {
	if subscription == "" || subscription == topic {
		return true
	}
	return strings.HasPrefix(topic, subscription+".")
}

// Subscribers reports the number of active subscriptions.
func (b *MemoryBroker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber; later publishes fail with ErrClosed.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*MemorySubscriber]struct{})
	b.mu.Unlock()

	for s := range subs {
		s.closeOnce.Do(func() { close(s.done) })
	}
	return nil
}

func (b *MemoryBroker) add(s *MemorySubscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return core.ErrClosed
	}
	b.subs[s] = struct{}{}
	return nil
}

func (b *MemoryBroker) remove(s *MemorySubscriber) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// MemorySubscriber is a MemoryBroker subscription.
type MemorySubscriber struct {
	broker *MemoryBroker
	topic  string
	queue  chan Message

	subscribed bool
	done       chan struct{}
	closeOnce  sync.Once
}

func (s *MemorySubscriber) Subscribe(topic string) error {
	if s.subscribed {
		return fmt.Errorf("already subscribed to %s", s.topic)
	}
	s.topic = topic
	if err := s.broker.add(s); err != nil {
		return err
	}
	s.subscribed = true
	return nil
}

// Receive returns queued messages first, then ErrClosed once closed.
func (s *MemorySubscriber) Receive(ctx context.Context) (Message, error) {
	if !s.subscribed {
		return Message{}, core.ErrNotSubscribed
	}
	select {
	case msg := <-s.queue:
		return msg, nil
	default:
	}

	select {
	case msg := <-s.queue:
		return msg, nil
	case <-s.done:
		return Message{}, core.ErrClosed
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

func (s *MemorySubscriber) Close() error {
	s.broker.remove(s)
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
