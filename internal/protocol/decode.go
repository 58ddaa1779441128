package protocol

import (
	"github.com/danmuck/amfgate/internal/protocol/amf0"
	"github.com/danmuck/amfgate/internal/protocol/schema"
	"github.com/danmuck/amfgate/internal/protocol/stream"
	"github.com/danmuck/amfgate/internal/protocol/value"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Deserializer decodes one marker-prefixed value per call. ObjectEncoding
// reports the encoding of the most recent call.
type Deserializer interface {
	ReadTypeMarker() (*value.Value, error)
	ObjectEncoding() value.Encoding
}

// DeserializerFactory builds the single Deserializer used for one envelope.
type DeserializerFactory func(in *stream.InputStream) Deserializer

func amf0Factory(in *stream.InputStream) Deserializer {
	return amf0.NewDeserializer(in)
}

// Reader parses envelopes. A Reader holds no per-parse state and is safe for
// concurrent use.
type Reader struct {
	limits   stream.Limits
	logger   zerolog.Logger
	factory  DeserializerFactory
	registry *schema.Registry
}

type Option func(*Reader)

func WithLimits(l stream.Limits) Option {
	return func(r *Reader) { r.limits = l }
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

func WithDeserializerFactory(f DeserializerFactory) Option {
	return func(r *Reader) {
		if f != nil {
			r.factory = f
		}
	}
}

// WithRegistry sets the message classes that trigger the AMF3 unwrap.
func WithRegistry(reg *schema.Registry) Option {
	return func(r *Reader) {
		if reg != nil {
			r.registry = reg
		}
	}
}

func NewReader(opts ...Option) *Reader {
	r := &Reader{
		limits:   stream.DefaultLimits(),
		logger:   log.Logger,
		factory:  amf0Factory,
		registry: schema.DefaultRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultReader = NewReader()

// Parse decodes raw with default limits and the default message registry.
func Parse(raw []byte) (*Envelope, error) {
	return defaultReader.Parse(raw)
}

// Parse decodes a complete envelope. Any failure discards the partial result.
func (r *Reader) Parse(raw []byte) (*Envelope, error) {
	if err := r.limits.CheckPayload(len(raw)); err != nil {
		return nil, err
	}
	in := stream.NewInputStream(raw, r.limits)
	des := r.factory(in)

	marker, err := in.ReadUnsignedShort()
	if err != nil {
		return nil, &DecodeError{Phase: PhaseVersion, Field: "marker", Err: err}
	}
	version := Version(marker)
	if !version.Known() {
		r.logger.Debug().Uint16("marker", marker).Msg("protocol.Parse unknown version")
		return nil, &VersionError{Marker: marker}
	}

	headers, err := r.readHeaders(in, des)
	if err != nil {
		return nil, err
	}
	bodies, encoding, err := r.readBodies(in, des)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		clientVersion:  version,
		headers:        headers,
		bodies:         bodies,
		objectEncoding: encoding,
	}
	r.logger.Debug().
		Stringer("version", version).
		Int("headers", len(headers)).
		Int("bodies", len(bodies)).
		Stringer("encoding", encoding).
		Int("bytes", in.Pos()).
		Msg("protocol.Parse envelope")
	return env, nil
}

func (r *Reader) readCount(in *stream.InputStream, phase Phase) (int, error) {
	n, err := in.ReadInt()
	if err != nil {
		return 0, &DecodeError{Phase: phase, Field: "count", Err: err}
	}
	if n < 0 {
		return 0, &DecodeError{Phase: phase, Field: "count", Err: ErrInvalidCount}
	}
	return int(n), nil
}

func (r *Reader) readHeaders(in *stream.InputStream, des Deserializer) ([]Header, error) {
	n, err := r.readCount(in, PhaseHeader)
	if err != nil {
		return nil, err
	}
	headers := make([]Header, 0, n)
	for i := 0; i < n; i++ {
		fail := func(field string, name string, err error) error {
			return &DecodeError{Phase: PhaseHeader, Index: i, Name: name, Field: field, Err: err}
		}
		name, err := in.ReadUTF()
		if err != nil {
			return nil, fail("name", "", err)
		}
		must, err := in.ReadByte()
		if err != nil {
			return nil, fail("must_understand", name, err)
		}
		length, err := in.ReadLong()
		if err != nil {
			return nil, fail("length", name, err)
		}
		data, err := des.ReadTypeMarker()
		if err != nil {
			return nil, fail("data", name, err)
		}
		headers = append(headers, Header{
			Name:           name,
			MustUnderstand: must != 0,
			DeclaredLength: length,
			Data:           data,
		})
	}
	return headers, nil
}

func (r *Reader) readBodies(in *stream.InputStream, des Deserializer) ([]Body, value.Encoding, error) {
	encoding := value.EncodingAMF0
	n, err := r.readCount(in, PhaseBody)
	if err != nil {
		return nil, encoding, err
	}
	bodies := make([]Body, 0, n)
	for i := 0; i < n; i++ {
		fail := func(field string, name string, err error) error {
			return &DecodeError{Phase: PhaseBody, Index: i, Name: name, Field: field, Err: err}
		}
		target, err := in.ReadUTF()
		if err != nil {
			return nil, encoding, fail("target_uri", "", err)
		}
		response, err := in.ReadUTF()
		if err != nil {
			return nil, encoding, fail("response_uri", target, err)
		}
		length, err := in.ReadLong()
		if err != nil {
			return nil, encoding, fail("length", target, err)
		}
		data, err := des.ReadTypeMarker()
		if err != nil {
			return nil, encoding, fail("data", target, err)
		}
		if des.ObjectEncoding() == value.EncodingAMF3 {
			encoding = value.EncodingAMF3
			if msg, ok := r.unwrap(data); ok {
				r.logger.Debug().Int("body", i).Str("class", msg.Class).Msg("protocol.Parse unwrap message")
				data = msg
			}
		}
		bodies = append(bodies, Body{
			TargetURI:      target,
			ResponseURI:    response,
			DeclaredLength: length,
			Data:           data,
		})
	}
	return bodies, encoding, nil
}

// unwrap returns the first element of an ordered collection when it is a
// recognized message. Flex clients send [message] under the AVM+ marker.
func (r *Reader) unwrap(data *value.Value) (*value.Value, bool) {
	if !data.IsCollection() {
		return nil, false
	}
	first, ok := data.Index(0)
	if !ok || !r.registry.IsMessage(first) {
		return nil, false
	}
	return first, true
}
