// Package amf0 decodes and encodes AMF0 values and switches into AMF3 at the
// AVM+ marker.
//
// Spec @ https://www.adobe.com/content/dam/acom/en/devnet/pdf/amf0-file-format-specification.pdf
package amf0

import "errors"

type Marker byte

const (
	Number        Marker = 0x00 // 8 bytes IEEE-754 double, big endian
	Boolean       Marker = 0x01 // byte, 0 false, true otherwise
	String        Marker = 0x02 // u16 length + UTF-8
	Object        Marker = 0x03
	Movieclip     Marker = 0x04 // reserved, not supported
	Null          Marker = 0x05
	Undefined     Marker = 0x06
	Reference     Marker = 0x07 // u16 index into the object table
	ECMAArray     Marker = 0x08 // u32 associative count, then properties
	ObjectEnd     Marker = 0x09 // preceded by an empty property name
	StrictArray   Marker = 0x0A // u32 count, then values
	Date          Marker = 0x0B // double millis + s16 time zone
	LongString    Marker = 0x0C // u32 length + UTF-8
	Unsupported   Marker = 0x0D
	Recordset     Marker = 0x0E // reserved, not supported
	XMLDocument   Marker = 0x0F // u32 length + UTF-8
	TypedObject   Marker = 0x10 // u16 class name, then properties
	AvmPlusObject Marker = 0x11 // following value is AMF3 encoded
)

var (
	ErrUnsupportedMarker = errors.New("amf0: unsupported marker")
	ErrUnknownMarker     = errors.New("amf0: unknown marker")
	ErrBadReference      = errors.New("amf0: reference out of range")
	ErrMissingObjectEnd  = errors.New("amf0: missing object end marker")
	ErrTooDeep           = errors.New("amf0: nesting too deep")
)
