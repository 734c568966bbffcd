package decoder

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"firestige.xyz/groundview/internal/core"
	"firestige.xyz/groundview/internal/layout"
)

const esDefinition = `# ES housekeeping page
Command Counter, 12, 1, B, Dec
Error Counter,   13, 1, B, Hex
Checksum,        14, 1, B, Enm, OFF, ON
Version,         16, 4, I, Dec
Temperature,     20, 2, h, Dec
Voltage,         22, 4, f, Dec
App Name,        26, 8, s, Str
`

// esPacket matches esDefinition, little endian.
var esPacket = []byte{
	0x08, 0x00, 0xC0, 0x2A, // stream id, flags + sequence 42
	0x00, 0x1D, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // length, secondary header
	0x07,                   // 12 Command Counter
	0xFF,                   // 13 Error Counter
	0x01,                   // 14 Checksum
	0x00,                   // 15 spare
	0x04, 0x03, 0x02, 0x01, // 16 Version
	0xFE, 0xFF, // 20 Temperature
	0x00, 0x00, 0xC0, 0x3F, // 22 Voltage 1.5
	'E', 'S', 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // 26 App Name
}

func mustLayout(t *testing.T, def string, opts ...layout.Option) *layout.PacketLayout {
	t.Helper()
	rows, err := layout.ReadRows(strings.NewReader(def), "test")
	require.NoError(t, err)
	l, err := layout.Build(rows, opts...)
	require.NoError(t, err)
	return l
}

func TestDecodeRoundTrip(t *testing.T) {
	l := mustLayout(t, esDefinition, layout.WithEndianness(layout.LittleEndian))

	pkt, err := Decode(l, esPacket)
	require.NoError(t, err)

	assert.Equal(t, uint16(42), pkt.SequenceCount)
	require.Len(t, pkt.Fields, layout.DefaultCapacity)

	want := []core.DecodedField{
		{Description: "Command Counter", Valid: true, Text: "7"},
		{Description: "Error Counter", Valid: true, Text: "0xff"},
		{Description: "Checksum", Valid: true, Text: "ON"},
		{Description: "Version", Valid: true, Text: "16909060"},
		{Description: "Temperature", Valid: true, Text: "-2"},
		{Description: "Voltage", Valid: true, Text: "1.5"},
		{Description: "App Name", Valid: true, Text: "ES"},
	}
	assert.Equal(t, want, pkt.Fields[:len(want)])

	for i := len(want); i < len(pkt.Fields); i++ {
		assert.Equal(t, core.DecodedField{Valid: false, Text: UnusedText}, pkt.Fields[i], "slot %d", i)
	}
	assert.Zero(t, pkt.FailedFields())
}

func TestDecodeBigEndian(t *testing.T) {
	l := mustLayout(t, "Word, 4, 2, H, Dec\nLong, 6, 4, i, Dec\n", layout.WithEndianness(layout.BigEndian))

	pkt, err := Decode(l, []byte{0, 0, 0, 1, 0x01, 0x02, 0xFF, 0xFF, 0xFF, 0xFE})
	require.NoError(t, err)
	assert.Equal(t, "258", pkt.Fields[0].Text)
	assert.Equal(t, "-2", pkt.Fields[1].Text)
}

func TestDecodeTooShort(t *testing.T) {
	l := mustLayout(t, esDefinition)

	for _, buf := range [][]byte{nil, {}, {1}, {1, 2, 3}} {
		pkt, err := Decode(l, buf)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrPacketTooShort))
		assert.Nil(t, pkt.Fields)
	}
}

func TestSequenceCountMask(t *testing.T) {
	seq, err := SequenceCount([]byte{0x00, 0x00, 0xFF, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x3FFF), seq)
	assert.Equal(t, uint16(16383), seq)

	seq, err = SequenceCount([]byte{0x00, 0x00, 0xC0, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint16(0), seq)
}

func TestSequenceCountProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		buf := rapid.SliceOfN(rapid.Byte(), 4, 64).Draw(t, "buf")

		first, err := SequenceCount(buf)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, _ := SequenceCount(buf)
		if first != second {
			t.Fatalf("not idempotent: %d != %d", first, second)
		}
		if first > 0x3FFF {
			t.Fatalf("flag bits leaked: %#x", first)
		}
		want := (uint16(buf[2])<<8 | uint16(buf[3])) & 0x3FFF
		if first != want {
			t.Fatalf("got %#x, want %#x", first, want)
		}
	})
}

func TestFieldRangeIsolated(t *testing.T) {
	l := mustLayout(t, "Head, 4, 1, B, Dec\nBeyond, 30, 4, I, Dec\nTail, 5, 1, B, Hex\n")

	pkt, err := Decode(l, []byte{0, 0, 0, 0, 9, 10})
	require.NoError(t, err)

	assert.Equal(t, "9", pkt.Fields[0].Text)
	assert.True(t, pkt.Fields[1].Failed())
	assert.True(t, errors.Is(pkt.Fields[1].Err, core.ErrFieldRange))
	assert.Equal(t, OutOfRangeText, pkt.Fields[1].Text)
	assert.Equal(t, "Beyond", pkt.Fields[1].Description)
	assert.Equal(t, "0xa", pkt.Fields[2].Text)
	assert.Equal(t, 1, pkt.FailedFields())
}

func TestEnumeratedField(t *testing.T) {
	l := mustLayout(t, "Power, 4, 1, B, Enm, OFF, ON\n")

	pkt, err := Decode(l, []byte{0, 0, 0, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, "ON", pkt.Fields[0].Text)

	pkt, err = Decode(l, []byte{0, 0, 0, 0, 5})
	require.NoError(t, err)
	assert.Equal(t, InvalidEnumText, pkt.Fields[0].Text)
	assert.True(t, errors.Is(pkt.Fields[0].Err, core.ErrEnumRange))
}

func TestEnumeratedNegative(t *testing.T) {
	l := mustLayout(t, "Mode, 4, 1, b, Enm, A, B\n")

	pkt, err := Decode(l, []byte{0, 0, 0, 0, 0xFF})
	require.NoError(t, err)
	assert.True(t, errors.Is(pkt.Fields[0].Err, core.ErrEnumRange))
}

func TestHexadecimal(t *testing.T) {
	tests := []struct {
		def  string
		buf  []byte
		want string
	}{
		{"V, 4, 1, B, Hex\n", []byte{0, 0, 0, 0, 255}, "0xff"},
		{"V, 4, 2, H, Hex\n", []byte{0, 0, 0, 0, 0xEF, 0xBE}, "0xbeef"},
		{"V, 4, 1, b, Hex\n", []byte{0, 0, 0, 0, 0xFF}, "-0x1"},
		{"V, 4, 8, q, Hex\n", []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0x80}, "-0x8000000000000000"},
		{"V, 4, 8, Q, Hex\n", []byte{0, 0, 0, 0, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, "0xffffffffffffffff"},
	}

	for _, tt := range tests {
		l := mustLayout(t, tt.def)
		pkt, err := Decode(l, tt.buf)
		require.NoError(t, err)
		assert.Equal(t, tt.want, pkt.Fields[0].Text, tt.def)
	}
}

func TestFloatDecimal(t *testing.T) {
	l := mustLayout(t, "F, 4, 4, f, Dec\nD, 8, 8, d, Dec\n", layout.WithEndianness(layout.BigEndian))

	buf := make([]byte, 16)
	bits32 := math.Float32bits(0.1)
	buf[4], buf[5], buf[6], buf[7] = byte(bits32>>24), byte(bits32>>16), byte(bits32>>8), byte(bits32)
	bits64 := math.Float64bits(-273.15)
	for i := 0; i < 8; i++ {
		buf[8+i] = byte(bits64 >> (56 - 8*i))
	}

	pkt, err := Decode(l, buf)
	require.NoError(t, err)
	assert.Equal(t, "0.1", pkt.Fields[0].Text)
	assert.Equal(t, "-273.15", pkt.Fields[1].Text)
}

func TestStringIsPermissive(t *testing.T) {
	l := mustLayout(t, "S, 4, 6, s, Str\n")

	pkt, err := Decode(l, []byte{0, 0, 0, 0, 'o', 'k', 0xFF, 'x', 0x00, 'z'})
	require.NoError(t, err)
	assert.NoError(t, pkt.Fields[0].Err)
	assert.Equal(t, "ok�x\x00z", pkt.Fields[0].Text)
}

func TestStringDropsTrailingPadding(t *testing.T) {
	l := mustLayout(t, "S, 4, 6, s, Str\n")

	pkt, err := Decode(l, []byte{0, 0, 0, 0, 'E', 'S', 0x00, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, "ES", pkt.Fields[0].Text)
}

func TestCStringStopsAtFirstNUL(t *testing.T) {
	assert.Equal(t, "ok", CString([]byte{'o', 'k', 0x00, 'z'}))
	assert.Equal(t, "ok\x00z", FieldString([]byte{'o', 'k', 0x00, 'z', 0x00}))
	assert.Equal(t, "", FieldString([]byte{0x00, 0x00}))
}

func TestDecodeFieldGuardsMalformedLayout(t *testing.T) {
	f := layout.FieldLayout{Valid: true, Description: "bad", Offset: 4, Size: 1, Format: layout.Uint32, Display: layout.Decimal}

	out := DecodeField(f, layout.LittleEndian, []byte{0, 0, 0, 0, 1, 2, 3, 4})
	assert.True(t, errors.Is(out.Err, core.ErrFieldRange))
	assert.Equal(t, OutOfRangeText, out.Text)
}

func TestDecodeFieldHugeOffset(t *testing.T) {
	f := layout.FieldLayout{Valid: true, Description: "Huge", Offset: math.MaxInt, Size: 1, Format: layout.Uint8, Display: layout.Decimal}

	var out core.DecodedField
	require.NotPanics(t, func() {
		out = DecodeField(f, layout.LittleEndian, []byte{0, 0, 0, 0, 9})
	})
	assert.True(t, errors.Is(out.Err, core.ErrFieldRange))
	assert.Equal(t, OutOfRangeText, out.Text)
	assert.Equal(t, "Huge", out.Description)
}

func TestDecodeNeverPanicsProperty(t *testing.T) {
	l := mustLayout(t, esDefinition)

	rapid.Check(t, func(t *rapid.T) {
		buf := rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "buf")

		pkt, err := Decode(l, buf)
		if len(buf) < HeaderLength {
			if !errors.Is(err, core.ErrPacketTooShort) {
				t.Fatalf("expected ErrPacketTooShort for %d bytes, got %v", len(buf), err)
			}
			return
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(pkt.Fields) != l.Capacity() {
			t.Fatalf("got %d fields, want %d", len(pkt.Fields), l.Capacity())
		}
		for i, f := range pkt.Fields {
			if f.Valid && f.Err == nil && l.Field(i).Offset+l.Field(i).Size > len(buf) {
				t.Fatalf("slot %d decoded past the buffer end", i)
			}
		}
	})
}
