// Package viewer turns received payloads into frames for reporters.
package viewer

import (
	"context"
	"errors"
	"time"

	"firestige.xyz/groundview/internal/core"
	"firestige.xyz/groundview/internal/decoder"
	"firestige.xyz/groundview/internal/events"
	"firestige.xyz/groundview/internal/layout"
	"firestige.xyz/groundview/internal/log"
	"firestige.xyz/groundview/internal/metrics"
	"firestige.xyz/groundview/pkg/plugin"
)

// Handler consumes one payload; receiver.Callback is its Handle method.
type Handler interface {
	Handle(payload []byte)
}

// FieldCallback is the narrow display hook: called once per decoded
// packet, in arrival order.
type FieldCallback func(seq uint16, fields []core.DecodedField)

// Option configures a consumer.
type Option func(*base)

func WithTitle(title string) Option { return func(b *base) { b.title = title } }

func WithAppID(appID string) Option { return func(b *base) { b.appID = appID } }

// WithTopic labels frames and metrics with the subscribed topic.
func WithTopic(topic string) Option { return func(b *base) { b.topic = topic } }

func WithReporters(rs ...plugin.Reporter) Option {
	return func(b *base) { b.reporters = append(b.reporters, rs...) }
}

func WithLogger(l log.Logger) Option { return func(b *base) { b.logger = l } }

// WithContext sets the context passed to reporters.
func WithContext(ctx context.Context) Option { return func(b *base) { b.ctx = ctx } }

// WithFieldCallback registers the per-packet field hook.
func WithFieldCallback(fn FieldCallback) Option { return func(b *base) { b.onFields = fn } }

// base holds what telemetry and event consumers share.
type base struct {
	title     string
	appID     string
	topic     string
	reporters []plugin.Reporter
	logger    log.Logger
	ctx       context.Context
	onFields  FieldCallback
	now       func() time.Time
}

func newBase(opts []Option) base {
	b := base{ctx: context.Background(), now: time.Now}
	for _, opt := range opts {
		opt(&b)
	}
	if b.logger == nil {
		b.logger = log.GetLogger()
	}
	b.logger = b.logger.WithField("page", b.title)
	return b
}

func (b *base) frame(kind string, seq uint16) *core.Frame {
	return &core.Frame{
		Title:         b.title,
		AppID:         b.appID,
		Topic:         b.topic,
		ReceivedAt:    b.now(),
		SequenceCount: seq,
		Kind:          kind,
	}
}

func (b *base) report(frame *core.Frame) {
	for _, r := range b.reporters {
		if err := r.Report(b.ctx, frame); err != nil {
			metrics.ReporterErrorsTotal.WithLabelValues(r.Name()).Inc()
			b.logger.WithField("reporter", r.Name()).WithError(err).Warn("report failed")
		}
	}
}

func (b *base) dropTooShort(err error) {
	metrics.PacketsDroppedTotal.WithLabelValues(b.topic, metrics.DropTooShort).Inc()
	b.logger.WithError(err).Debug("packet dropped")
}

// Consumer decodes telemetry packets against a field layout.
type Consumer struct {
	base
	layout *layout.PacketLayout
}

func NewConsumer(l *layout.PacketLayout, opts ...Option) *Consumer {
	return &Consumer{base: newBase(opts), layout: l}
}

// Handle decodes payload and forwards the frame. Packets too short for the
// header are dropped; field failures travel inside the frame.
func (c *Consumer) Handle(payload []byte) {
	start := time.Now()
	pkt, err := decoder.Decode(c.layout, payload)
	metrics.DecodeLatencySeconds.WithLabelValues(c.topic).Observe(time.Since(start).Seconds())
	if err != nil {
		c.dropTooShort(err)
		return
	}

	if failed := pkt.FailedFields(); failed > 0 {
		for _, f := range pkt.Fields {
			if f.Failed() {
				metrics.FieldErrorsTotal.WithLabelValues(c.topic, errorKind(f.Err)).Inc()
			}
		}
		c.logger.WithField("seq", pkt.SequenceCount).WithField("failed_fields", failed).Debug("packet decoded with field errors")
	}

	if c.onFields != nil {
		c.onFields(pkt.SequenceCount, pkt.Fields)
	}

	frame := c.frame(core.KindTelemetry, pkt.SequenceCount)
	frame.Fields = pkt.Fields
	c.report(frame)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, core.ErrFieldRange):
		return "range"
	case errors.Is(err, core.ErrEnumRange):
		return "enum"
	default:
		return "other"
	}
}

// EventConsumer renders EVS event messages.
type EventConsumer struct {
	base
}

func NewEventConsumer(opts ...Option) *EventConsumer {
	return &EventConsumer{base: newBase(opts)}
}

func (c *EventConsumer) Handle(payload []byte) {
	ev, err := events.Decode(payload)
	if err != nil {
		c.dropTooShort(err)
		return
	}

	frame := c.frame(core.KindEvent, ev.SequenceCount)
	frame.Event = ev
	c.report(frame)
}
