// Package decoder extracts and formats telemetry fields from raw packets.
//
// Decoding is stateless: every call reads only the immutable layout and the
// buffer it is given, so a single layout may be decoded from any goroutine.
package decoder

import (
	"encoding/binary"
	"fmt"
	"math"

	"firestige.xyz/groundview/internal/core"
	"firestige.xyz/groundview/internal/layout"
)

const (
	// HeaderLength is the mandatory prefix holding the sequence word.
	HeaderLength = 4

	sequenceMask = 0x3FFF

	// UnusedText fills slots with no field definition.
	UnusedText = "(unused)"
)

// DecodedPacket is the decoder output for one packet.
type DecodedPacket struct {
	SequenceCount uint16
	Fields        []core.DecodedField
}

// FailedFields counts valid slots that could not be decoded.
func (p DecodedPacket) FailedFields() int {
	n := 0
	for _, f := range p.Fields {
		if f.Failed() {
			n++
		}
	}
	return n
}

// SequenceCount reads the big-endian word at bytes [2,4) and keeps its low 14
// bits. The top two bits are packet flags and are discarded.
func SequenceCount(buf []byte) (uint16, error) {
	if len(buf) < HeaderLength {
		return 0, &core.PacketTooShortError{Length: len(buf), Need: HeaderLength}
	}
	return binary.BigEndian.Uint16(buf[2:4]) & sequenceMask, nil
}

// Decode renders every slot of l against buf. The result always holds
// l.Capacity() fields. Field-local failures are reported inside the field;
// only a buffer too short for the header fails the whole packet.
func Decode(l *layout.PacketLayout, buf []byte) (DecodedPacket, error) {
	seq, err := SequenceCount(buf)
	if err != nil {
		return DecodedPacket{}, err
	}

	fields := make([]core.DecodedField, l.Capacity())
	for i := range fields {
		fields[i] = DecodeField(l.Field(i), l.Endianness(), buf)
	}

	return DecodedPacket{SequenceCount: seq, Fields: fields}, nil
}

// DecodeField renders one slot. It never panics on malformed input.
func DecodeField(f layout.FieldLayout, order layout.Endianness, buf []byte) core.DecodedField {
	if !f.Valid {
		return core.DecodedField{Valid: false, Text: UnusedText}
	}

	out := core.DecodedField{Description: f.Description, Valid: true}

	// Compare without Offset+Size so a huge offset cannot wrap around.
	if f.Offset < 0 || f.Size <= 0 || f.Offset > len(buf) || f.Size > len(buf)-f.Offset {
		out.Err = fmt.Errorf("%w: %d bytes at offset %d of %d", core.ErrFieldRange, f.Size, f.Offset, len(buf))
		out.Text = placeholder(out.Err)
		return out
	}

	v, err := extract(f.Format, byteOrder(order), buf[f.Offset:f.End()])
	if err != nil {
		out.Err = err
		out.Text = placeholder(err)
		return out
	}

	text, err := render(f, v)
	if err != nil {
		out.Err = err
		out.Text = placeholder(err)
		return out
	}

	out.Text = text
	return out
}

func byteOrder(e layout.Endianness) binary.ByteOrder {
	if e == layout.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// value is the interpreted slice: exactly one member is meaningful, chosen by kind.
type value struct {
	kind valueKind
	i    int64
	u    uint64
	f    float64
	bits int
	raw  []byte
}

type valueKind int

const (
	signedValue valueKind = iota
	unsignedValue
	floatValue
	bytesValue
)

func extract(p layout.Primitive, order binary.ByteOrder, data []byte) (value, error) {
	if w := p.Width(); w > 0 && len(data) != w {
		return value{}, fmt.Errorf("%w: %s needs %d bytes, field has %d", core.ErrFieldRange, p, w, len(data))
	}

	switch p {
	case layout.Int8:
		return value{kind: signedValue, i: int64(int8(data[0]))}, nil
	case layout.Uint8:
		return value{kind: unsignedValue, u: uint64(data[0])}, nil
	case layout.Int16:
		return value{kind: signedValue, i: int64(int16(order.Uint16(data)))}, nil
	case layout.Uint16:
		return value{kind: unsignedValue, u: uint64(order.Uint16(data))}, nil
	case layout.Int32:
		return value{kind: signedValue, i: int64(int32(order.Uint32(data)))}, nil
	case layout.Uint32:
		return value{kind: unsignedValue, u: uint64(order.Uint32(data))}, nil
	case layout.Int64:
		return value{kind: signedValue, i: int64(order.Uint64(data))}, nil
	case layout.Uint64:
		return value{kind: unsignedValue, u: order.Uint64(data)}, nil
	case layout.Float32:
		return value{kind: floatValue, f: float64(math.Float32frombits(order.Uint32(data))), bits: 32}, nil
	case layout.Float64:
		return value{kind: floatValue, f: math.Float64frombits(order.Uint64(data)), bits: 64}, nil
	case layout.FixedString:
		return value{kind: bytesValue, raw: data}, nil
	default:
		return value{}, fmt.Errorf("unsupported primitive %s", p)
	}
}
