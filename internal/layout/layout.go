// Package layout builds the immutable field layout of a telemetry packet.
package layout

import (
	"fmt"
	"math"
	"strings"

	"firestige.xyz/groundview/internal/core"
)

// DefaultCapacity is the number of display slots of a telemetry page.
const DefaultCapacity = 40

// Endianness applies to every numeric field of a packet.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

func (e Endianness) String() string {
	if e == BigEndian {
		return "big"
	}
	return "little"
}

// ParseEndianness accepts L/B as well as little/big.
func ParseEndianness(s string) (Endianness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "l", "little", "le", "<":
		return LittleEndian, nil
	case "b", "big", "be", ">":
		return BigEndian, nil
	default:
		return LittleEndian, fmt.Errorf("invalid endianness %q (must be L or B)", s)
	}
}

// DisplayKind selects how a decoded value is rendered.
type DisplayKind int

const (
	Decimal DisplayKind = iota
	Hexadecimal
	Enumerated
	String
)

var displayCodes = map[string]DisplayKind{
	"Dec": Decimal,
	"Hex": Hexadecimal,
	"Enm": Enumerated,
	"Str": String,
}

func (d DisplayKind) String() string {
	switch d {
	case Decimal:
		return "Dec"
	case Hexadecimal:
		return "Hex"
	case Enumerated:
		return "Enm"
	case String:
		return "Str"
	default:
		return fmt.Sprintf("DisplayKind(%d)", int(d))
	}
}

// FieldLayout is the decode recipe of one telemetry slot.
type FieldLayout struct {
	Valid       bool
	Description string
	Offset      int
	Size        int
	Format      Primitive
	Display     DisplayKind
	Enum        []string
}

// End returns the exclusive end offset of the field.
func (f FieldLayout) End() int {
	return f.Offset + f.Size
}

// PacketLayout is built once and never mutated, so it is shared without locking.
type PacketLayout struct {
	fields     []FieldLayout
	endianness Endianness
	defined    int
}

// Capacity returns the number of slots, valid or not.
func (l *PacketLayout) Capacity() int {
	return len(l.fields)
}

// Defined returns how many leading slots hold a real field.
func (l *PacketLayout) Defined() int {
	return l.defined
}

// Endianness returns the byte order of numeric fields.
func (l *PacketLayout) Endianness() Endianness {
	return l.endianness
}

// Field returns slot i. It panics if i is outside [0, Capacity()).
func (l *PacketLayout) Field(i int) FieldLayout {
	return l.fields[i]
}

// Fields returns a copy of all slots.
func (l *PacketLayout) Fields() []FieldLayout {
	out := make([]FieldLayout, len(l.fields))
	copy(out, l.fields)
	return out
}

// Row is one field record of a definition source, before validation.
type Row struct {
	Line        int
	Description string
	Offset      int
	Size        int
	Format      string
	Display     string
	Enum        []string
}

type options struct {
	capacity   int
	endianness Endianness
	source     string
}

// Option configures Build.
type Option func(*options)

// WithCapacity sets the slot count. Values <= 0 are ignored.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithEndianness sets the byte order of numeric fields.
func WithEndianness(e Endianness) Option {
	return func(o *options) {
		o.endianness = e
	}
}

// WithSource names the definition source in error messages.
func WithSource(name string) Option {
	return func(o *options) {
		o.source = name
	}
}

// Build validates rows in order and returns a layout of exactly capacity slots.
// Any bad row aborts the build; no partial layout is returned.
func Build(rows []Row, opts ...Option) (*PacketLayout, error) {
	o := options{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&o)
	}

	if len(rows) > o.capacity {
		return nil, &core.DefinitionError{
			Source: o.source,
			Reason: fmt.Sprintf("%d fields defined, capacity is %d", len(rows), o.capacity),
		}
	}

	l := &PacketLayout{
		fields:     make([]FieldLayout, o.capacity),
		endianness: o.endianness,
		defined:    len(rows),
	}
	for i, row := range rows {
		field, err := buildField(row)
		if err != nil {
			return nil, &core.DefinitionError{Source: o.source, Line: row.Line, Reason: err.Error()}
		}
		l.fields[i] = field
	}

	return l, nil
}

func buildField(row Row) (FieldLayout, error) {
	if row.Offset < 0 {
		return FieldLayout{}, fmt.Errorf("negative offset %d", row.Offset)
	}
	if row.Size <= 0 {
		return FieldLayout{}, fmt.Errorf("size must be positive, got %d", row.Size)
	}
	if row.Offset > math.MaxInt-row.Size {
		return FieldLayout{}, fmt.Errorf("offset %d plus size %d overflows", row.Offset, row.Size)
	}

	format, err := primitiveFor(row.Format, row.Size)
	if err != nil {
		return FieldLayout{}, err
	}

	display, ok := displayCodes[strings.TrimSpace(row.Display)]
	if !ok {
		return FieldLayout{}, fmt.Errorf("unrecognized display kind %q", row.Display)
	}

	switch display {
	case String:
		if format != FixedString {
			return FieldLayout{}, fmt.Errorf("display Str requires format 's', got %q", row.Format)
		}
	case Hexadecimal, Enumerated:
		if !format.IsInteger() {
			return FieldLayout{}, fmt.Errorf("display %s requires an integer format, got %q", display, row.Format)
		}
	case Decimal:
		if format == FixedString {
			return FieldLayout{}, fmt.Errorf("format 's' requires display Str, got %s", display)
		}
	}

	field := FieldLayout{
		Valid:       true,
		Description: row.Description,
		Offset:      row.Offset,
		Size:        row.Size,
		Format:      format,
		Display:     display,
	}

	if display == Enumerated {
		labels := make([]string, 0, len(row.Enum))
		for _, label := range row.Enum {
			labels = append(labels, strings.TrimSpace(label))
		}
		if len(labels) == 0 {
			return FieldLayout{}, fmt.Errorf("display Enm requires at least one enum label")
		}
		field.Enum = labels
	}

	return field, nil
}
