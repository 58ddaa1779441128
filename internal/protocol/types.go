package protocol

import (
	"time"

	"github.com/danmuck/amfgate/internal/protocol/value"
)

// Version is the leading envelope marker written by the client.
type Version uint16

const (
	VersionAMF0 Version = 0
	VersionFMS  Version = 1
	VersionAMF3 Version = 3
)

func (v Version) Known() bool {
	return v == VersionAMF0 || v == VersionFMS || v == VersionAMF3
}

func (v Version) String() string {
	switch v {
	case VersionAMF0:
		return "amf0"
	case VersionFMS:
		return "fms"
	case VersionAMF3:
		return "amf3"
	default:
		return "unknown"
	}
}

// UnknownLength is the declared record length clients send when they did
// not compute one.
const UnknownLength int32 = -1

// Header is a context header record. DeclaredLength is kept as sent and is
// never checked against the decoded data.
type Header struct {
	Name           string
	MustUnderstand bool
	DeclaredLength int32
	Data           *value.Value
}

// Body is one remoting call record.
type Body struct {
	TargetURI      string
	ResponseURI    string
	DeclaredLength int32
	Data           *value.Value
}

// Envelope is a fully decoded request. Records keep wire order.
type Envelope struct {
	clientVersion  Version
	headers        []Header
	bodies         []Body
	objectEncoding value.Encoding
	received       time.Time
}

// NewEnvelope returns an empty envelope for building requests to encode.
func NewEnvelope(version Version) *Envelope {
	return &Envelope{clientVersion: version, objectEncoding: value.EncodingAMF0}
}

func (e *Envelope) ClientVersion() Version {
	return e.clientVersion
}

func (e *Envelope) Headers() []Header {
	return e.headers
}

func (e *Envelope) Bodies() []Body {
	return e.bodies
}

// Header returns the first header with the given name.
func (e *Envelope) Header(name string) (Header, bool) {
	for _, h := range e.headers {
		if h.Name == name {
			return h, true
		}
	}
	return Header{}, false
}

func (e *Envelope) AddHeader(h Header) {
	e.headers = append(e.headers, h)
}

func (e *Envelope) AddBody(b Body) {
	e.bodies = append(e.bodies, b)
}

func (e *Envelope) ObjectEncoding() value.Encoding {
	return e.objectEncoding
}

func (e *Envelope) SetObjectEncoding(enc value.Encoding) {
	e.objectEncoding = enc
}

// Time is when the request was received; zero unless set by the caller.
func (e *Envelope) Time() time.Time {
	return e.received
}

func (e *Envelope) SetTime(t time.Time) {
	e.received = t
}
