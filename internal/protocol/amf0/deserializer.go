package amf0

import (
	"fmt"

	"github.com/danmuck/amfgate/internal/protocol/amf3"
	"github.com/danmuck/amfgate/internal/protocol/stream"
	"github.com/danmuck/amfgate/internal/protocol/value"
)

// Deserializer reads AMF0 values from a stream. Its object reference table
// spans every value read through it, so one Deserializer serves exactly one
// envelope.
type Deserializer struct {
	in         *stream.InputStream
	references []*value.Value
	encoding   value.Encoding
	depth      int
}

func NewDeserializer(in *stream.InputStream) *Deserializer {
	return &Deserializer{in: in}
}

// ReadTypeMarker decodes exactly one marker-prefixed value.
func (d *Deserializer) ReadTypeMarker() (*value.Value, error) {
	d.encoding = value.EncodingAMF0
	return d.readValue()
}

// ObjectEncoding reports AMF3 when the most recent ReadTypeMarker crossed an
// AVM+ marker, AMF0 otherwise.
func (d *Deserializer) ObjectEncoding() value.Encoding {
	return d.encoding
}

func (d *Deserializer) readValue() (*value.Value, error) {
	m, err := d.in.ReadByte()
	if err != nil {
		return nil, err
	}
	return d.readMarker(Marker(m))
}

func (d *Deserializer) readMarker(m Marker) (*value.Value, error) {
	if limit := d.in.Limits().MaxDepth; limit > 0 && d.depth >= limit {
		return nil, fmt.Errorf("%w: depth %d", ErrTooDeep, d.depth)
	}
	d.depth++
	defer func() { d.depth-- }()

	switch m {
	case Number:
		f, err := d.in.ReadDouble()
		if err != nil {
			return nil, err
		}
		return value.Number(f), nil
	case Boolean:
		b, err := d.in.ReadByte()
		if err != nil {
			return nil, err
		}
		return value.Bool(b != 0), nil
	case String:
		s, err := d.in.ReadUTF()
		if err != nil {
			return nil, err
		}
		return value.String(s), nil
	case LongString:
		s, err := d.in.ReadLongUTF()
		if err != nil {
			return nil, err
		}
		return value.String(s), nil
	case XMLDocument:
		s, err := d.in.ReadLongUTF()
		if err != nil {
			return nil, err
		}
		return value.XML(s), nil
	case Null:
		return value.Null(), nil
	case Undefined, Unsupported:
		return value.Undefined(), nil
	case Reference:
		idx, err := d.in.ReadUnsignedShort()
		if err != nil {
			return nil, err
		}
		if int(idx) >= len(d.references) {
			return nil, fmt.Errorf("%w: %d of %d", ErrBadReference, idx, len(d.references))
		}
		return d.references[idx], nil
	case Object:
		return d.readReferenced(value.Object(""))
	case TypedObject:
		class, err := d.in.ReadUTF()
		if err != nil {
			return nil, err
		}
		return d.readReferenced(value.Object(class))
	case ECMAArray:
		// the associative count is advisory; properties end with ObjectEnd
		if _, err := d.in.ReadUnsignedLong(); err != nil {
			return nil, err
		}
		return d.readReferenced(value.Map())
	case StrictArray:
		return d.readStrictArray()
	case Date:
		ms, err := d.in.ReadDouble()
		if err != nil {
			return nil, err
		}
		// time zone is reserved and always UTC on the wire
		if _, err := d.in.ReadInt(); err != nil {
			return nil, err
		}
		return value.Date(value.DateFromMillis(ms)), nil
	case AvmPlusObject:
		d.encoding = value.EncodingAMF3
		return amf3.NewDecoder(d.in).ReadValue()
	case Movieclip, Recordset, ObjectEnd:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedMarker, byte(m))
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownMarker, byte(m))
	}
}

func (d *Deserializer) readStrictArray() (*value.Value, error) {
	n, err := d.in.ReadUnsignedLong()
	if err != nil {
		return nil, err
	}
	if err := d.in.CheckCollection(n); err != nil {
		return nil, err
	}
	arr := value.Array()
	d.references = append(d.references, arr)
	arr.Items = make([]*value.Value, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := d.readValue()
		if err != nil {
			return nil, fmt.Errorf("array index %d: %w", i, err)
		}
		arr.Items = append(arr.Items, v)
	}
	return arr, nil
}

// readReferenced registers v in the reference table before its properties
// are read, then fills them in.
func (d *Deserializer) readReferenced(v *value.Value) (*value.Value, error) {
	d.references = append(d.references, v)
	if err := d.readProperties(v); err != nil {
		return nil, err
	}
	return v, nil
}

// readProperties reads name/value pairs until an empty name followed by the
// ObjectEnd marker.
func (d *Deserializer) readProperties(into *value.Value) error {
	for {
		name, err := d.in.ReadUTF()
		if err != nil {
			return err
		}
		m, err := d.in.ReadByte()
		if err != nil {
			return err
		}
		if name == "" {
			if Marker(m) == ObjectEnd {
				return nil
			}
			return fmt.Errorf("%w: got marker 0x%02x", ErrMissingObjectEnd, m)
		}
		v, err := d.readMarker(Marker(m))
		if err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
		into.Fields = append(into.Fields, value.Field{Name: name, Value: v})
	}
}
