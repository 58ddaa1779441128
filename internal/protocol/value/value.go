// Package value is the decoded AMF value graph shared by the AMF0 and AMF3
// codecs and the envelope reader.
//
// A Value is a tagged variant: Kind selects which payload fields are
// meaningful. References on the wire are resolved during decode, so two
// fields may point at the same *Value and AMF3 graphs may contain cycles.
package value

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Encoding identifies the wire sub-format a value was decoded from.
type Encoding uint16

const (
	EncodingAMF0 Encoding = 0
	EncodingAMF3 Encoding = 3
)

func (e Encoding) String() string {
	switch e {
	case EncodingAMF0:
		return "amf0"
	case EncodingAMF3:
		return "amf3"
	default:
		return fmt.Sprintf("encoding(%d)", uint16(e))
	}
}

type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindInteger
	KindString
	KindXML
	KindDate
	KindByteArray
	// KindArray is an ordered collection. AMF3 arrays may also carry an
	// associative part in Fields.
	KindArray
	// KindMap is an untyped key-value mapping (AMF0 ECMA array).
	KindMap
	// KindObject is an anonymous or typed object; Class is empty when
	// anonymous.
	KindObject
)

var kindNames = [...]string{
	KindUndefined: "undefined",
	KindNull:      "null",
	KindBool:      "bool",
	KindNumber:    "number",
	KindInteger:   "integer",
	KindString:    "string",
	KindXML:       "xml",
	KindDate:      "date",
	KindByteArray: "bytearray",
	KindArray:     "array",
	KindMap:       "map",
	KindObject:    "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

var ErrKindMismatch = errors.New("value: kind mismatch")

// Field is one named property of a map, object or associative array.
type Field struct {
	Name  string
	Value *Value
}

type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	Int    int32
	Str    string
	Time   time.Time
	Bytes  []byte
	Items  []*Value
	Fields []Field
	Class  string
}

func Undefined() *Value         { return &Value{Kind: KindUndefined} }
func Null() *Value              { return &Value{Kind: KindNull} }
func Bool(b bool) *Value        { return &Value{Kind: KindBool, Bool: b} }
func Number(f float64) *Value   { return &Value{Kind: KindNumber, Number: f} }
func Integer(i int32) *Value    { return &Value{Kind: KindInteger, Int: i} }
func String(s string) *Value    { return &Value{Kind: KindString, Str: s} }
func XML(s string) *Value       { return &Value{Kind: KindXML, Str: s} }
func Date(t time.Time) *Value   { return &Value{Kind: KindDate, Time: t} }
func ByteArray(b []byte) *Value { return &Value{Kind: KindByteArray, Bytes: b} }

func Array(items ...*Value) *Value {
	return &Value{Kind: KindArray, Items: items}
}

func Map(fields ...Field) *Value {
	return &Value{Kind: KindMap, Fields: fields}
}

func Object(class string, fields ...Field) *Value {
	return &Value{Kind: KindObject, Class: class, Fields: fields}
}

// F is shorthand for building a Field.
func F(name string, v *Value) Field {
	return Field{Name: name, Value: v}
}

// DateFromMillis converts an AMF millisecond timestamp to UTC time.
func DateFromMillis(ms float64) time.Time {
	whole := math.Floor(ms)
	sub := math.Round((ms - whole) * 1e6)
	return time.UnixMilli(int64(whole)).Add(time.Duration(sub)).UTC()
}

// Millis converts t to the AMF millisecond timestamp.
func Millis(t time.Time) float64 {
	return float64(t.UnixMilli()) + float64(t.Nanosecond()%int(time.Millisecond))/1e6
}

// IsNil reports whether v is nil, null or undefined.
func (v *Value) IsNil() bool {
	return v == nil || v.Kind == KindNull || v.Kind == KindUndefined
}

// IsCollection reports whether v is an ordered collection.
func (v *Value) IsCollection() bool {
	return v != nil && v.Kind == KindArray
}

// Len is the number of ordered items or named fields.
func (v *Value) Len() int {
	if v == nil {
		return 0
	}
	if v.Kind == KindArray {
		return len(v.Items)
	}
	return len(v.Fields)
}

// Index returns the i-th ordered item.
func (v *Value) Index(i int) (*Value, bool) {
	if v == nil || v.Kind != KindArray || i < 0 || i >= len(v.Items) {
		return nil, false
	}
	return v.Items[i], true
}

// Get returns the named field. The last occurrence wins, matching how
// property assignment behaves on the client.
func (v *Value) Get(name string) (*Value, bool) {
	if v == nil {
		return nil, false
	}
	for i := len(v.Fields) - 1; i >= 0; i-- {
		if v.Fields[i].Name == name {
			return v.Fields[i].Value, true
		}
	}
	return nil, false
}

// Set replaces the named field or appends it.
func (v *Value) Set(name string, val *Value) {
	for i := range v.Fields {
		if v.Fields[i].Name == name {
			v.Fields[i].Value = val
			return
		}
	}
	v.Fields = append(v.Fields, Field{Name: name, Value: val})
}

// AsString returns the payload of a string or XML value.
func (v *Value) AsString() (string, error) {
	if v == nil || (v.Kind != KindString && v.Kind != KindXML) {
		return "", fmt.Errorf("%w: want string, got %s", ErrKindMismatch, v.kind())
	}
	return v.Str, nil
}

// AsFloat returns a number or integer as float64.
func (v *Value) AsFloat() (float64, error) {
	if v != nil {
		switch v.Kind {
		case KindNumber:
			return v.Number, nil
		case KindInteger:
			return float64(v.Int), nil
		}
	}
	return 0, fmt.Errorf("%w: want number, got %s", ErrKindMismatch, v.kind())
}

// AsInt returns a number or integer truncated to int64.
func (v *Value) AsInt() (int64, error) {
	f, err := v.AsFloat()
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func (v *Value) AsBool() (bool, error) {
	if v == nil || v.Kind != KindBool {
		return false, fmt.Errorf("%w: want bool, got %s", ErrKindMismatch, v.kind())
	}
	return v.Bool, nil
}

func (v *Value) AsTime() (time.Time, error) {
	if v == nil || v.Kind != KindDate {
		return time.Time{}, fmt.Errorf("%w: want date, got %s", ErrKindMismatch, v.kind())
	}
	return v.Time, nil
}

func (v *Value) kind() string {
	if v == nil {
		return "nil"
	}
	return v.Kind.String()
}

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	switch v.Kind {
	case KindUndefined, KindNull:
		return v.Kind.String()
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindNumber:
		return fmt.Sprintf("%g", v.Number)
	case KindInteger:
		return fmt.Sprintf("%d", v.Int)
	case KindString, KindXML:
		return fmt.Sprintf("%q", v.Str)
	case KindDate:
		return v.Time.Format(time.RFC3339Nano)
	case KindByteArray:
		return fmt.Sprintf("bytearray[%d]", len(v.Bytes))
	case KindArray:
		return fmt.Sprintf("array[%d]", len(v.Items))
	case KindMap:
		return fmt.Sprintf("map{%d}", len(v.Fields))
	default:
		if v.Class == "" {
			return fmt.Sprintf("object{%d}", len(v.Fields))
		}
		return fmt.Sprintf("%s{%d}", v.Class, len(v.Fields))
	}
}
