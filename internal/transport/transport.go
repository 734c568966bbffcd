// Package transport provides the publish/subscribe boundary of the viewer.
package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"firestige.xyz/groundview/internal/core"
)

// Message is a two-part pub/sub message: addressing frame plus payload frame.
type Message = core.Message

// Subscriber receives messages for one topic.
type Subscriber interface {
	// Subscribe restricts the subscriber to topic. It is called once.
	Subscribe(topic string) error
	// Receive blocks until a message arrives, ctx is done, or the subscriber fails.
	Receive(ctx context.Context) (Message, error)
	Close() error
}

// Publisher sends messages to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Close() error
}

// TelemetryPackets is the topic segment shared by all telemetry streams.
const TelemetryPackets = "TelemetryPackets"

// TelemetryTopic builds "<namespace>.<spacecraft>.TelemetryPackets.<appID>".
// Empty trailing parts are dropped, so TelemetryTopic(ns, sc, "") is the
// prefix of every stream of that spacecraft.
func TelemetryTopic(namespace, spacecraft, appID string) string {
	parts := []string{namespace}
	if spacecraft != "" {
		parts = append(parts, spacecraft, TelemetryPackets)
		if appID != "" {
			parts = append(parts, appID)
		}
	}
	return strings.Join(parts, ".")
}

// FormatAppID renders a stream id the way topics carry it, e.g. 0x800.
func FormatAppID(id uint16) string {
	return fmt.Sprintf("0x%x", id)
}

// ParseAppID reads a stream id as hex, with or without the 0x prefix.
func ParseAppID(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty app id")
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid app id %q: %w", s, err)
	}
	return uint16(v), nil
}
