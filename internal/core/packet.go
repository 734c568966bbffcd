// Package core defines core data structures with zero external dependencies.
package core

import "time"

// Message is one two-part pub/sub message: transport addressing plus the packet bytes.
type Message struct {
	Address []byte
	Payload []byte
}

// DecodedField is one rendered telemetry slot.
type DecodedField struct {
	Description string `json:"description,omitempty"`
	Valid       bool   `json:"valid"`
	Text        string `json:"text"`
	Err         error  `json:"-"`
}

// Failed reports whether the slot was valid but could not be decoded.
func (f DecodedField) Failed() bool {
	return f.Valid && f.Err != nil
}

// Frame is the final output handed to reporters.
type Frame struct {
	Title      string    `json:"title,omitempty"`
	AppID      string    `json:"app_id,omitempty"`
	Topic      string    `json:"topic,omitempty"`
	ReceivedAt time.Time `json:"received_at"`

	SequenceCount uint16 `json:"sequence_count"`

	// Kind is "telemetry" (Fields populated) or "event" (Event populated).
	Kind   string         `json:"kind"`
	Fields []DecodedField `json:"fields,omitempty"`
	Event  any            `json:"event,omitempty"` // events.Event
}

// Frame kinds.
const (
	KindTelemetry = "telemetry"
	KindEvent     = "event"
)
