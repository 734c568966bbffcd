package decoder

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"firestige.xyz/groundview/internal/core"
	"firestige.xyz/groundview/internal/layout"
)

// Placeholder texts for slots that are defined but could not be decoded.
const (
	OutOfRangeText  = "(out of range)"
	InvalidEnumText = "(invalid enum)"
	DecodeErrorText = "(decode error)"
)

func placeholder(err error) string {
	switch {
	case errors.Is(err, core.ErrEnumRange):
		return InvalidEnumText
	case errors.Is(err, core.ErrFieldRange):
		return OutOfRangeText
	default:
		return DecodeErrorText
	}
}

func render(f layout.FieldLayout, v value) (string, error) {
	switch f.Display {
	case layout.Decimal:
		return formatDecimal(v), nil
	case layout.Hexadecimal:
		return formatHex(v)
	case layout.Enumerated:
		return formatEnum(v, f.Enum)
	case layout.String:
		return FieldString(v.raw), nil
	default:
		return "", fmt.Errorf("unsupported display kind %s", f.Display)
	}
}

func formatDecimal(v value) string {
	switch v.kind {
	case signedValue:
		return strconv.FormatInt(v.i, 10)
	case unsignedValue:
		return strconv.FormatUint(v.u, 10)
	case floatValue:
		return strconv.FormatFloat(v.f, 'g', -1, v.bits)
	default:
		return FieldString(v.raw)
	}
}

// formatHex renders 0x-prefixed lowercase hex; negative values keep their sign (-0x1).
func formatHex(v value) (string, error) {
	switch v.kind {
	case signedValue:
		if v.i < 0 {
			// -math.MinInt64 overflows, go through uint64 for the magnitude.
			return "-0x" + strconv.FormatUint(uint64(-(v.i+1))+1, 16), nil
		}
		return "0x" + strconv.FormatInt(v.i, 16), nil
	case unsignedValue:
		return "0x" + strconv.FormatUint(v.u, 16), nil
	default:
		return "", fmt.Errorf("hex display needs an integer value")
	}
}

func formatEnum(v value, labels []string) (string, error) {
	var idx uint64
	switch v.kind {
	case signedValue:
		if v.i < 0 {
			return "", fmt.Errorf("%w: %d", core.ErrEnumRange, v.i)
		}
		idx = uint64(v.i)
	case unsignedValue:
		idx = v.u
	default:
		return "", fmt.Errorf("enum display needs an integer value")
	}

	if idx >= uint64(len(labels)) {
		return "", fmt.Errorf("%w: %d not in [0,%d)", core.ErrEnumRange, idx, len(labels))
	}
	return labels[idx], nil
}

// FieldString renders a fixed-width telemetry string. Trailing NUL padding
// is dropped; bytes after an embedded NUL are kept.
func FieldString(raw []byte) string {
	return validUTF8(bytes.TrimRight(raw, "\x00"))
}

// CString cuts at the first NUL, the way event message text is terminated.
func CString(raw []byte) string {
	if idx := bytes.IndexByte(raw, 0x00); idx >= 0 {
		raw = raw[:idx]
	}
	return validUTF8(raw)
}

// validUTF8 replaces invalid UTF-8 with U+FFFD.
func validUTF8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
}
