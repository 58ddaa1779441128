package amf3

import (
	"fmt"

	"github.com/danmuck/amfgate/internal/protocol/stream"
	"github.com/danmuck/amfgate/internal/protocol/value"
)

// Encoder writes AMF3 values. Strings are written by reference after their
// first occurrence; objects and traits are always written inline, which
// makes the encoder unsuitable for cyclic graphs.
type Encoder struct {
	out     *stream.OutputStream
	strings map[string]int
	depth   int
}

const maxEncodeDepth = 256

func NewEncoder(out *stream.OutputStream) *Encoder {
	return &Encoder{out: out, strings: make(map[string]int)}
}

func (e *Encoder) WriteValue(v *value.Value) error {
	if e.depth >= maxEncodeDepth {
		return fmt.Errorf("%w: depth %d", ErrTooDeep, e.depth)
	}
	e.depth++
	defer func() { e.depth-- }()

	if v == nil {
		return e.marker(Null)
	}
	switch v.Kind {
	case value.KindUndefined:
		return e.marker(Undefined)
	case value.KindNull:
		return e.marker(Null)
	case value.KindBool:
		if v.Bool {
			return e.marker(True)
		}
		return e.marker(False)
	case value.KindInteger:
		if v.Int < MinInt || v.Int > MaxInt {
			if err := e.marker(Double); err != nil {
				return err
			}
			e.out.WriteDouble(float64(v.Int))
			return nil
		}
		if err := e.marker(Integer); err != nil {
			return err
		}
		return e.writeU29(uint32(v.Int) & maxU29)
	case value.KindNumber:
		if err := e.marker(Double); err != nil {
			return err
		}
		e.out.WriteDouble(v.Number)
		return nil
	case value.KindString:
		if err := e.marker(String); err != nil {
			return err
		}
		return e.writeString(v.Str)
	case value.KindXML:
		if err := e.marker(XML); err != nil {
			return err
		}
		return e.writeInlineBytes([]byte(v.Str))
	case value.KindDate:
		if err := e.marker(Date); err != nil {
			return err
		}
		if err := e.writeU29(1); err != nil {
			return err
		}
		e.out.WriteDouble(value.Millis(v.Time))
		return nil
	case value.KindByteArray:
		if err := e.marker(ByteArray); err != nil {
			return err
		}
		return e.writeInlineBytes(v.Bytes)
	case value.KindArray:
		return e.writeArray(v)
	case value.KindMap, value.KindObject:
		return e.writeObject(v)
	default:
		return fmt.Errorf("%w: kind %s", ErrUnsupportedMarker, v.Kind)
	}
}

func (e *Encoder) marker(m Marker) error {
	return e.out.WriteByte(byte(m))
}

func (e *Encoder) writeU29(n uint32) error {
	switch {
	case n > maxU29:
		return fmt.Errorf("%w: %d", ErrU29Range, n)
	case n < 0x80:
		e.out.WriteBytes([]byte{byte(n)})
	case n < 0x4000:
		e.out.WriteBytes([]byte{byte(n>>7 | 0x80), byte(n & 0x7f)})
	case n < 0x200000:
		e.out.WriteBytes([]byte{byte(n>>14 | 0x80), byte(n>>7&0x7f | 0x80), byte(n & 0x7f)})
	default:
		e.out.WriteBytes([]byte{byte(n>>22 | 0x80), byte(n>>15&0x7f | 0x80), byte(n>>8&0x7f | 0x80), byte(n)})
	}
	return nil
}

func (e *Encoder) writeString(s string) error {
	if s == "" {
		return e.writeU29(1)
	}
	if idx, ok := e.strings[s]; ok {
		return e.writeU29(uint32(idx) << 1)
	}
	e.strings[s] = len(e.strings)
	return e.writeInlineBytes([]byte(s))
}

func (e *Encoder) writeInlineBytes(b []byte) error {
	if len(b) > maxU29>>1 {
		return fmt.Errorf("%w: %d bytes", ErrU29Range, len(b))
	}
	if err := e.writeU29(uint32(len(b))<<1 | 1); err != nil {
		return err
	}
	e.out.WriteBytes(b)
	return nil
}

func (e *Encoder) writeArray(v *value.Value) error {
	if err := e.marker(Array); err != nil {
		return err
	}
	if len(v.Items) > maxU29>>1 {
		return fmt.Errorf("%w: %d items", ErrU29Range, len(v.Items))
	}
	if err := e.writeU29(uint32(len(v.Items))<<1 | 1); err != nil {
		return err
	}
	if err := e.writeFields(v.Fields); err != nil {
		return err
	}
	for _, item := range v.Items {
		if err := e.WriteValue(item); err != nil {
			return err
		}
	}
	return nil
}

// writeObject emits inline dynamic traits with no sealed members.
func (e *Encoder) writeObject(v *value.Value) error {
	if err := e.marker(Object); err != nil {
		return err
	}
	if err := e.writeU29(0x0b); err != nil {
		return err
	}
	if err := e.writeString(v.Class); err != nil {
		return err
	}
	return e.writeFields(v.Fields)
}

func (e *Encoder) writeFields(fields []value.Field) error {
	for _, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("amf3: empty property name")
		}
		if err := e.writeString(f.Name); err != nil {
			return err
		}
		if err := e.WriteValue(f.Value); err != nil {
			return err
		}
	}
	return e.writeString("")
}
