// Package core defines sentinel errors.
package core

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrap with fmt.Errorf("...: %w", err) and test with errors.Is.
var (
	// Definition / layout errors
	ErrDefinition = errors.New("groundview: invalid telemetry definition")

	// Packet decoding errors
	ErrPacketTooShort = errors.New("groundview: packet too short")
	ErrFieldRange     = errors.New("groundview: field exceeds packet")
	ErrEnumRange      = errors.New("groundview: enum value out of range")

	// Receiver errors
	ErrTransport       = errors.New("groundview: transport receive failed")
	ErrReceiverStarted = errors.New("groundview: receiver already started")
	ErrStopTimeout     = errors.New("groundview: receiver stop timed out")

	// Transport errors
	ErrNotSubscribed = errors.New("groundview: subscriber has no topic")
	ErrClosed        = errors.New("groundview: transport closed")

	// Plugin errors
	ErrPluginNotFound = errors.New("groundview: plugin not found")

	// Configuration errors
	ErrConfigInvalid = errors.New("groundview: invalid configuration")
)

// DefinitionError reports a bad row in a telemetry definition source.
// Line is 1-based; zero means the error is not tied to a single row.
type DefinitionError struct {
	Source string
	Line   int
	Reason string
}

func (e *DefinitionError) Error() string {
	switch {
	case e.Source != "" && e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Reason)
	case e.Line > 0:
		return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
	case e.Source != "":
		return fmt.Sprintf("%s: %s", e.Source, e.Reason)
	default:
		return e.Reason
	}
}

// Unwrap lets errors.Is(err, ErrDefinition) match.
func (e *DefinitionError) Unwrap() error {
	return ErrDefinition
}

// PacketTooShortError carries the offending length.
type PacketTooShortError struct {
	Length int
	Need   int
}

func (e *PacketTooShortError) Error() string {
	return fmt.Sprintf("packet too short: %d bytes, need at least %d", e.Length, e.Need)
}

func (e *PacketTooShortError) Unwrap() error {
	return ErrPacketTooShort
}
