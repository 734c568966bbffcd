package layout

import (
	"fmt"
	"strings"
)

// Primitive is the wire type of a field.
type Primitive int

const (
	Int8 Primitive = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	FixedString // length is FieldLayout.Size
)

// formatCodes maps struct-style one-character codes to primitives.
var formatCodes = map[byte]Primitive{
	'b': Int8,
	'B': Uint8,
	'h': Int16,
	'H': Uint16,
	'i': Int32,
	'I': Uint32,
	'l': Int32,
	'L': Uint32,
	'q': Int64,
	'Q': Uint64,
	'f': Float32,
	'd': Float64,
	's': FixedString,
}

// Width returns the byte width of fixed-size primitives, 0 for FixedString.
func (p Primitive) Width() int {
	switch p {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// IsInteger reports whether p decodes to an integer.
func (p Primitive) IsInteger() bool {
	return p <= Uint64
}

// IsSigned reports whether p is a signed integer.
func (p Primitive) IsSigned() bool {
	switch p {
	case Int8, Int16, Int32, Int64:
		return true
	default:
		return false
	}
}

func (p Primitive) String() string {
	switch p {
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	case Int16:
		return "int16"
	case Uint16:
		return "uint16"
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	case Uint64:
		return "uint64"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case FixedString:
		return "string"
	default:
		return fmt.Sprintf("Primitive(%d)", int(p))
	}
}

// primitiveFor resolves a format code against the declared size.
// A leading byte-order mark ('<' or '>') is tolerated and ignored; byte order
// comes from the layout.
func primitiveFor(code string, size int) (Primitive, error) {
	code = strings.TrimSpace(code)
	code = strings.TrimLeft(code, "<>")
	if len(code) != 1 {
		return 0, fmt.Errorf("unrecognized format code %q", code)
	}

	p, ok := formatCodes[code[0]]
	if !ok {
		return 0, fmt.Errorf("unrecognized format code %q", code)
	}
	if p != FixedString && p.Width() != size {
		return 0, fmt.Errorf("format %q is %d bytes wide, size is %d", code, p.Width(), size)
	}
	return p, nil
}
