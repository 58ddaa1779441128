package amf0

import (
	"fmt"
	"math"
	"strconv"

	"github.com/danmuck/amfgate/internal/protocol/amf3"
	"github.com/danmuck/amfgate/internal/protocol/stream"
	"github.com/danmuck/amfgate/internal/protocol/value"
)

// Serializer writes AMF0 values. It never emits Reference markers, so the
// graph must be acyclic.
type Serializer struct {
	out   *stream.OutputStream
	depth int
}

const maxWriteDepth = 256

func NewSerializer(out *stream.OutputStream) *Serializer {
	return &Serializer{out: out}
}

// WriteAVMPlus writes v behind the AVM+ marker in AMF3 encoding.
func (s *Serializer) WriteAVMPlus(v *value.Value) error {
	if err := s.out.WriteByte(byte(AvmPlusObject)); err != nil {
		return err
	}
	return amf3.NewEncoder(s.out).WriteValue(v)
}

func (s *Serializer) WriteTypeMarker(v *value.Value) error {
	if s.depth >= maxWriteDepth {
		return fmt.Errorf("%w: depth %d", ErrTooDeep, s.depth)
	}
	s.depth++
	defer func() { s.depth-- }()

	if v == nil {
		return s.marker(Null)
	}
	switch v.Kind {
	case value.KindUndefined:
		return s.marker(Undefined)
	case value.KindNull:
		return s.marker(Null)
	case value.KindBool:
		if err := s.marker(Boolean); err != nil {
			return err
		}
		if v.Bool {
			return s.out.WriteByte(1)
		}
		return s.out.WriteByte(0)
	case value.KindNumber:
		return s.writeNumber(v.Number)
	case value.KindInteger:
		return s.writeNumber(float64(v.Int))
	case value.KindString:
		if len(v.Str) > math.MaxUint16 {
			if err := s.marker(LongString); err != nil {
				return err
			}
			return s.out.WriteLongUTF(v.Str)
		}
		if err := s.marker(String); err != nil {
			return err
		}
		return s.out.WriteUTF(v.Str)
	case value.KindXML:
		if err := s.marker(XMLDocument); err != nil {
			return err
		}
		return s.out.WriteLongUTF(v.Str)
	case value.KindDate:
		if err := s.marker(Date); err != nil {
			return err
		}
		s.out.WriteDouble(value.Millis(v.Time))
		s.out.WriteInt(0)
		return nil
	case value.KindByteArray:
		// AMF0 has no byte array type
		return s.WriteAVMPlus(v)
	case value.KindArray:
		if len(v.Fields) > 0 {
			return s.writeMixedArray(v)
		}
		return s.writeStrictArray(v)
	case value.KindMap:
		if err := s.marker(ECMAArray); err != nil {
			return err
		}
		s.out.WriteUnsignedLong(uint32(len(v.Fields)))
		return s.writeProperties(v.Fields)
	case value.KindObject:
		if v.Class == "" {
			if err := s.marker(Object); err != nil {
				return err
			}
		} else {
			if err := s.marker(TypedObject); err != nil {
				return err
			}
			if err := s.out.WriteUTF(v.Class); err != nil {
				return err
			}
		}
		return s.writeProperties(v.Fields)
	default:
		return fmt.Errorf("%w: kind %s", ErrUnsupportedMarker, v.Kind)
	}
}

func (s *Serializer) marker(m Marker) error {
	return s.out.WriteByte(byte(m))
}

func (s *Serializer) writeNumber(f float64) error {
	if err := s.marker(Number); err != nil {
		return err
	}
	s.out.WriteDouble(f)
	return nil
}

func (s *Serializer) writeStrictArray(v *value.Value) error {
	if err := s.marker(StrictArray); err != nil {
		return err
	}
	s.out.WriteUnsignedLong(uint32(len(v.Items)))
	for _, item := range v.Items {
		if err := s.WriteTypeMarker(item); err != nil {
			return err
		}
	}
	return nil
}

// writeMixedArray writes an array with an associative part as an ECMA array
// keyed by decimal index.
func (s *Serializer) writeMixedArray(v *value.Value) error {
	if err := s.marker(ECMAArray); err != nil {
		return err
	}
	fields := make([]value.Field, 0, len(v.Items)+len(v.Fields))
	for i, item := range v.Items {
		fields = append(fields, value.Field{Name: strconv.Itoa(i), Value: item})
	}
	fields = append(fields, v.Fields...)
	s.out.WriteUnsignedLong(uint32(len(fields)))
	return s.writeProperties(fields)
}

func (s *Serializer) writeProperties(fields []value.Field) error {
	for _, f := range fields {
		if f.Name == "" {
			return fmt.Errorf("amf0: empty property name")
		}
		if err := s.out.WriteUTF(f.Name); err != nil {
			return err
		}
		if err := s.WriteTypeMarker(f.Value); err != nil {
			return err
		}
	}
	if err := s.out.WriteUTF(""); err != nil {
		return err
	}
	return s.marker(ObjectEnd)
}
