// Package amf3 decodes and encodes AMF3 values.
//
// Reference tables (strings, objects, traits) live on a Decoder or Encoder
// and span every value read or written through it.
package amf3

import "errors"

type Marker byte

const (
	Undefined    Marker = 0x00
	Null         Marker = 0x01
	False        Marker = 0x02
	True         Marker = 0x03
	Integer      Marker = 0x04 // U29 signed
	Double       Marker = 0x05
	String       Marker = 0x06
	XMLDoc       Marker = 0x07
	Date         Marker = 0x08
	Array        Marker = 0x09
	Object       Marker = 0x0A
	XML          Marker = 0x0B
	ByteArray    Marker = 0x0C
	VectorInt    Marker = 0x0D
	VectorUint   Marker = 0x0E
	VectorDouble Marker = 0x0F
	VectorObject Marker = 0x10
	Dictionary   Marker = 0x11
)

// U29 integer range.
const (
	MinInt = -1 << 28
	MaxInt = 1<<28 - 1
	maxU29 = 1<<29 - 1
)

// Externalizable classes understood without a host-side readExternal.
const (
	ClassArrayCollection = "flex.messaging.io.ArrayCollection"
	ClassObjectProxy     = "flex.messaging.io.ObjectProxy"
)

var (
	ErrUnsupportedMarker = errors.New("amf3: unsupported marker")
	ErrUnknownMarker     = errors.New("amf3: unknown marker")
	ErrBadReference      = errors.New("amf3: reference out of range")
	ErrExternalizable    = errors.New("amf3: unknown externalizable class")
	ErrTooDeep           = errors.New("amf3: nesting too deep")
	ErrU29Range          = errors.New("amf3: value out of u29 range")
)

// Traits describe the shape of an AMF3 object.
type Traits struct {
	Class          string
	Dynamic        bool
	Externalizable bool
	Sealed         []string
}
