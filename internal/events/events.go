// Package events decodes EVS event message packets.
package events

import (
	"encoding/binary"
	"fmt"

	"firestige.xyz/groundview/internal/core"
	"firestige.xyz/groundview/internal/decoder"
)

// Event packet layout.
const (
	appNameOffset = 16
	appNameEnd    = 36
	eventIDOffset = 36
	typeOffset    = 38
	textOffset    = 48

	// MinLength is the shortest buffer that holds every event field.
	MinLength = textOffset
)

// Type is the EVS event severity.
type Type uint16

const (
	Debug       Type = 1
	Information Type = 2
	Error       Type = 3
	Critical    Type = 4
)

var typeNames = map[Type]string{
	Debug:       "DEBUG",
	Information: "INFORMATION",
	Error:       "ERROR",
	Critical:    "CRITICAL",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Invalid Event Type"
}

// MarshalText renders the type name in JSON output.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event is one decoded event message.
type Event struct {
	SequenceCount uint16 `json:"sequence_count"`
	AppName       string `json:"app_name"`
	EventID       uint16 `json:"event_id"`
	Type          Type   `json:"type"`
	Text          string `json:"text"`
}

func (e Event) String() string {
	return fmt.Sprintf("EVENT --> %s-%s Event ID: %d : %s", e.AppName, e.Type, e.EventID, e.Text)
}

// Decode parses an event packet. Event id and type are little endian
// regardless of the page endianness.
func Decode(buf []byte) (Event, error) {
	if len(buf) < MinLength {
		return Event{}, &core.PacketTooShortError{Length: len(buf), Need: MinLength}
	}

	seq, err := decoder.SequenceCount(buf)
	if err != nil {
		return Event{}, err
	}

	return Event{
		SequenceCount: seq,
		AppName:       decoder.CString(buf[appNameOffset:appNameEnd]),
		EventID:       binary.LittleEndian.Uint16(buf[eventIDOffset:]),
		Type:          Type(binary.LittleEndian.Uint16(buf[typeOffset:])),
		Text:          decoder.CString(buf[textOffset:]),
	}, nil
}
