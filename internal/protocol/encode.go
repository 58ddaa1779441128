package protocol

import (
	"fmt"
	"io"
	"math"

	"github.com/danmuck/amfgate/internal/protocol/amf0"
	"github.com/danmuck/amfgate/internal/protocol/stream"
	"github.com/danmuck/amfgate/internal/protocol/value"
)

// Encode writes env to w. Header data is always AMF0. When the envelope
// encoding is AMF3, typed object bodies are written the way Flex clients send
// them: a one-element strict array holding the AVM+ message. Declared lengths
// are computed from the encoded data.
//
// Kinds without a wire form of their own come back as their nearest
// equivalent when the envelope is parsed again:
//
//	AMF0 Integer                 -> Number
//	AMF0 Array with named fields -> Map keyed by index and name
//	AMF0 ByteArray               -> ByteArray, written through AVM+
//	AMF3 Map                     -> anonymous Object
//	AMF3 Integer outside 29 bits -> Number
//
// Every other kind decodes back to a structurally equal value.
func Encode(w io.Writer, env *Envelope) error {
	if env == nil {
		return ErrNilEnvelope
	}
	if len(env.headers) > math.MaxInt16 || len(env.bodies) > math.MaxInt16 {
		return ErrInvalidCount
	}
	out := stream.NewOutputStream()
	out.WriteUnsignedShort(uint16(env.clientVersion))

	out.WriteInt(int16(len(env.headers)))
	for i, h := range env.headers {
		data, err := encodeData(h.Data, value.EncodingAMF0)
		if err != nil {
			return fmt.Errorf("protocol: encode header %d (%s) data: %w", i, h.Name, err)
		}
		if err := out.WriteUTF(h.Name); err != nil {
			return fmt.Errorf("protocol: encode header %d (%s) name: %w", i, h.Name, err)
		}
		var flag byte
		if h.MustUnderstand {
			flag = 1
		}
		if err := out.WriteByte(flag); err != nil {
			return fmt.Errorf("protocol: encode header %d (%s) must_understand: %w", i, h.Name, err)
		}
		out.WriteLong(int32(len(data)))
		out.WriteBytes(data)
	}

	out.WriteInt(int16(len(env.bodies)))
	for i, b := range env.bodies {
		data, err := encodeData(b.Data, env.objectEncoding)
		if err != nil {
			return fmt.Errorf("protocol: encode body %d (%s) data: %w", i, b.TargetURI, err)
		}
		if err := out.WriteUTF(b.TargetURI); err != nil {
			return fmt.Errorf("protocol: encode body %d (%s) target_uri: %w", i, b.TargetURI, err)
		}
		if err := out.WriteUTF(b.ResponseURI); err != nil {
			return fmt.Errorf("protocol: encode body %d (%s) response_uri: %w", i, b.TargetURI, err)
		}
		out.WriteLong(int32(len(data)))
		out.WriteBytes(data)
	}

	if _, err := w.Write(out.Bytes()); err != nil {
		return fmt.Errorf("protocol: write envelope: %w", err)
	}
	return nil
}

func encodeData(v *value.Value, enc value.Encoding) ([]byte, error) {
	out := stream.NewOutputStream()
	s := amf0.NewSerializer(out)
	switch {
	case enc != value.EncodingAMF3:
		if err := s.WriteTypeMarker(v); err != nil {
			return nil, err
		}
	case v != nil && v.Kind == value.KindObject && v.Class != "":
		if err := out.WriteByte(byte(amf0.StrictArray)); err != nil {
			return nil, err
		}
		out.WriteUnsignedLong(1)
		if err := s.WriteAVMPlus(v); err != nil {
			return nil, err
		}
	default:
		if err := s.WriteAVMPlus(v); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}
