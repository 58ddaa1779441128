package amf3

import (
	"fmt"

	"github.com/danmuck/amfgate/internal/protocol/stream"
	"github.com/danmuck/amfgate/internal/protocol/value"
)

type Decoder struct {
	in      *stream.InputStream
	strings []string
	objects []*value.Value
	traits  []*Traits
	depth   int
}

func NewDecoder(in *stream.InputStream) *Decoder {
	return &Decoder{in: in}
}

// ReadValue decodes one marker-prefixed value.
func (d *Decoder) ReadValue() (*value.Value, error) {
	m, err := d.in.ReadByte()
	if err != nil {
		return nil, err
	}
	return d.readMarker(Marker(m))
}

func (d *Decoder) readMarker(m Marker) (*value.Value, error) {
	if limit := d.in.Limits().MaxDepth; limit > 0 && d.depth >= limit {
		return nil, fmt.Errorf("%w: depth %d", ErrTooDeep, d.depth)
	}
	d.depth++
	defer func() { d.depth-- }()

	switch m {
	case Undefined:
		return value.Undefined(), nil
	case Null:
		return value.Null(), nil
	case False:
		return value.Bool(false), nil
	case True:
		return value.Bool(true), nil
	case Integer:
		n, err := d.readU29()
		if err != nil {
			return nil, err
		}
		return value.Integer(signExtend(n)), nil
	case Double:
		f, err := d.in.ReadDouble()
		if err != nil {
			return nil, err
		}
		return value.Number(f), nil
	case String:
		s, err := d.readString()
		if err != nil {
			return nil, err
		}
		return value.String(s), nil
	case XMLDoc, XML:
		return d.readXML()
	case Date:
		return d.readDate()
	case Array:
		return d.readArray()
	case Object:
		return d.readObject()
	case ByteArray:
		return d.readByteArray()
	case VectorInt, VectorUint, VectorDouble, VectorObject, Dictionary:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedMarker, byte(m))
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownMarker, byte(m))
	}
}

// readU29 reads a variable length 29-bit unsigned integer: up to three bytes
// carry 7 bits each behind a continuation bit, the fourth carries 8.
func (d *Decoder) readU29() (uint32, error) {
	var n uint32
	for i := 0; i < 3; i++ {
		b, err := d.in.ReadByte()
		if err != nil {
			return 0, err
		}
		if b&0x80 == 0 {
			return n<<7 | uint32(b), nil
		}
		n = n<<7 | uint32(b&0x7f)
	}
	b, err := d.in.ReadByte()
	if err != nil {
		return 0, err
	}
	return n<<8 | uint32(b), nil
}

func signExtend(n uint32) int32 {
	if n&0x10000000 != 0 {
		return int32(n) - 0x20000000
	}
	return int32(n)
}

func (d *Decoder) objectRef(idx uint32) (*value.Value, error) {
	if int(idx) >= len(d.objects) {
		return nil, fmt.Errorf("%w: object %d of %d", ErrBadReference, idx, len(d.objects))
	}
	return d.objects[idx], nil
}

func (d *Decoder) readString() (string, error) {
	h, err := d.readU29()
	if err != nil {
		return "", err
	}
	if h&1 == 0 {
		idx := h >> 1
		if int(idx) >= len(d.strings) {
			return "", fmt.Errorf("%w: string %d of %d", ErrBadReference, idx, len(d.strings))
		}
		return d.strings[idx], nil
	}
	s, err := d.in.ReadUTFBytes(h >> 1)
	if err != nil {
		return "", err
	}
	if s != "" {
		d.strings = append(d.strings, s)
	}
	return s, nil
}

func (d *Decoder) readXML() (*value.Value, error) {
	h, err := d.readU29()
	if err != nil {
		return nil, err
	}
	if h&1 == 0 {
		return d.objectRef(h >> 1)
	}
	s, err := d.in.ReadUTFBytes(h >> 1)
	if err != nil {
		return nil, err
	}
	v := value.XML(s)
	d.objects = append(d.objects, v)
	return v, nil
}

func (d *Decoder) readDate() (*value.Value, error) {
	h, err := d.readU29()
	if err != nil {
		return nil, err
	}
	if h&1 == 0 {
		return d.objectRef(h >> 1)
	}
	ms, err := d.in.ReadDouble()
	if err != nil {
		return nil, err
	}
	v := value.Date(value.DateFromMillis(ms))
	d.objects = append(d.objects, v)
	return v, nil
}

func (d *Decoder) readByteArray() (*value.Value, error) {
	h, err := d.readU29()
	if err != nil {
		return nil, err
	}
	if h&1 == 0 {
		return d.objectRef(h >> 1)
	}
	b, err := d.in.ReadBytes(int(h >> 1))
	if err != nil {
		return nil, err
	}
	v := value.ByteArray(b)
	d.objects = append(d.objects, v)
	return v, nil
}

func (d *Decoder) readArray() (*value.Value, error) {
	h, err := d.readU29()
	if err != nil {
		return nil, err
	}
	if h&1 == 0 {
		return d.objectRef(h >> 1)
	}
	n := h >> 1
	if err := d.in.CheckCollection(n); err != nil {
		return nil, err
	}

	// registered before children so nested references can point back
	arr := value.Array()
	d.objects = append(d.objects, arr)

	for {
		key, err := d.readString()
		if err != nil {
			return nil, err
		}
		if key == "" {
			break
		}
		v, err := d.ReadValue()
		if err != nil {
			return nil, fmt.Errorf("array key %q: %w", key, err)
		}
		arr.Fields = append(arr.Fields, value.Field{Name: key, Value: v})
	}

	arr.Items = make([]*value.Value, 0, n)
	for i := uint32(0); i < n; i++ {
		v, err := d.ReadValue()
		if err != nil {
			return nil, fmt.Errorf("array index %d: %w", i, err)
		}
		arr.Items = append(arr.Items, v)
	}
	return arr, nil
}

func (d *Decoder) readTraits(h uint32) (*Traits, error) {
	if h&2 == 0 {
		idx := h >> 2
		if int(idx) >= len(d.traits) {
			return nil, fmt.Errorf("%w: traits %d of %d", ErrBadReference, idx, len(d.traits))
		}
		return d.traits[idx], nil
	}
	t := &Traits{
		Externalizable: h&4 != 0,
		Dynamic:        h&8 != 0,
	}
	count := h >> 4
	if err := d.in.CheckCollection(count); err != nil {
		return nil, err
	}
	class, err := d.readString()
	if err != nil {
		return nil, err
	}
	t.Class = class
	t.Sealed = make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		name, err := d.readString()
		if err != nil {
			return nil, err
		}
		t.Sealed = append(t.Sealed, name)
	}
	d.traits = append(d.traits, t)
	return t, nil
}

func (d *Decoder) readObject() (*value.Value, error) {
	h, err := d.readU29()
	if err != nil {
		return nil, err
	}
	if h&1 == 0 {
		return d.objectRef(h >> 1)
	}
	t, err := d.readTraits(h)
	if err != nil {
		return nil, err
	}

	obj := value.Object(t.Class)
	d.objects = append(d.objects, obj)

	if t.Externalizable {
		return d.readExternal(obj, t)
	}

	for _, name := range t.Sealed {
		v, err := d.ReadValue()
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", className(t), name, err)
		}
		obj.Fields = append(obj.Fields, value.Field{Name: name, Value: v})
	}
	if !t.Dynamic {
		return obj, nil
	}
	for {
		key, err := d.readString()
		if err != nil {
			return nil, err
		}
		if key == "" {
			break
		}
		v, err := d.ReadValue()
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", className(t), key, err)
		}
		obj.Fields = append(obj.Fields, value.Field{Name: key, Value: v})
	}
	return obj, nil
}

// readExternal unwraps the proxy classes whose external form is a single
// nested value. The object table slot is overwritten in place so earlier
// references observe the unwrapped value.
func (d *Decoder) readExternal(obj *value.Value, t *Traits) (*value.Value, error) {
	switch t.Class {
	case ClassArrayCollection, ClassObjectProxy:
		inner, err := d.ReadValue()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.Class, err)
		}
		*obj = *inner
		return obj, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrExternalizable, t.Class)
	}
}

func className(t *Traits) string {
	if t.Class == "" {
		return "object"
	}
	return t.Class
}
