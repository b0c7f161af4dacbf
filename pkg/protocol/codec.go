package protocol

import (
	"bytes"
	"math"

	"github.com/pkg/errors"
)

const (
	StartMarker byte = '#'
	EndMarker   byte = '$'
	Divider     byte = ','
)

// Encode renders m as #<type>,field1,field2...$
func Encode(m Message) ([]byte, error) {
	if err := m.checkFieldCount(); err != nil {
		return nil, err
	}
	size := 3
	for _, f := range m.Fields {
		size += len(f) + 1
	}
	out := make([]byte, 0, size)
	out = append(out, StartMarker, byte(m.Type))
	for i, f := range m.Fields {
		if err := checkField(f); err != nil {
			return nil, errors.Wrapf(err, "field %d", i)
		}
		out = append(out, Divider)
		out = append(out, f...)
	}
	return append(out, EndMarker), nil
}

// Decode parses one complete frame. It never blocks and never panics on
// arbitrary input.
func Decode(frame []byte) (Message, error) {
	if len(frame) < 2 || frame[0] != StartMarker || frame[len(frame)-1] != EndMarker {
		return Message{}, errors.Wrap(ErrMalformed, "missing start or end marker")
	}
	body := frame[1 : len(frame)-1]
	if bytes.IndexByte(body, StartMarker) >= 0 || bytes.IndexByte(body, EndMarker) >= 0 {
		return Message{}, errors.Wrap(ErrMalformed, "nested marker")
	}
	if len(body) == 0 {
		return Message{}, errors.Wrap(ErrMalformed, "missing type")
	}
	for _, b := range body {
		if !printable(b) {
			return Message{}, errors.Wrapf(ErrMalformed, "non printable byte 0x%02x", b)
		}
	}

	m := Message{Type: MessageType(body[0])}
	if !m.Type.Known() {
		return Message{}, errors.Wrapf(ErrUnknownType, "type %q", body[0])
	}
	rest := body[1:]
	if len(rest) > 0 {
		if rest[0] != Divider {
			return Message{}, errors.Wrap(ErrMalformed, "type code longer than one character")
		}
		for _, f := range bytes.Split(rest[1:], []byte{Divider}) {
			m.Fields = append(m.Fields, string(f))
		}
	}
	if err := m.checkFieldCount(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func checkField(f string) error {
	for i := 0; i < len(f); i++ {
		b := f[i]
		if b == StartMarker || b == EndMarker || b == Divider || !printable(b) {
			return errors.Wrapf(ErrInvalidField, "byte %q", b)
		}
	}
	return nil
}

func printable(b byte) bool {
	return b >= 0x20 && b < 0x7f
}

// FloatToInt scales value by 10^decimalShift and rounds to the nearest
// integer, so 21.37 with shift 2 becomes 2137.
func FloatToInt(value float64, decimalShift int) int64 {
	return int64(math.Round(value * math.Pow10(decimalShift)))
}

// IntToFloat reverses FloatToInt on the receiving side.
func IntToFloat(value int64, decimalShift int) float64 {
	return float64(value) / math.Pow10(decimalShift)
}
