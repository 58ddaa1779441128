package stream

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrEndOfStream     = errors.New("stream: end of stream")
	ErrTooLarge        = errors.New("stream: length exceeds limit")
	ErrNegativeLength  = errors.New("stream: negative length")
	ErrPayloadTooLarge = errors.New("stream: payload too large")
)

// Limits constrains decode memory use and recursion.
type Limits struct {
	MaxPayloadBytes  uint64
	MaxStringBytes   uint32
	MaxCollectionLen uint32
	MaxDepth         int
}

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadBytes:  16 * 1024 * 1024,
		MaxStringBytes:   8 * 1024 * 1024,
		MaxCollectionLen: 1 << 20,
		MaxDepth:         64,
	}
}

// CheckPayload rejects a raw buffer larger than MaxPayloadBytes.
func (l Limits) CheckPayload(n int) error {
	if l.MaxPayloadBytes > 0 && uint64(n) > l.MaxPayloadBytes {
		return fmt.Errorf("%w: %d bytes, max %d", ErrPayloadTooLarge, n, l.MaxPayloadBytes)
	}
	return nil
}

// CheckCollection rejects element counts above MaxCollectionLen or counts
// that could not possibly fit in the remaining bytes (every element takes at
// least one byte on the wire).
func (s *InputStream) CheckCollection(n uint32) error {
	if s.limits.MaxCollectionLen > 0 && n > s.limits.MaxCollectionLen {
		return fmt.Errorf("%w: collection length %d, max %d", ErrTooLarge, n, s.limits.MaxCollectionLen)
	}
	if uint64(n) > uint64(s.Len()) {
		return fmt.Errorf("%w: collection length %d with %d bytes left", ErrEndOfStream, n, s.Len())
	}
	return nil
}

// InputStream reads big-endian AMF primitives from an in-memory buffer.
type InputStream struct {
	buf    []byte
	pos    int
	limits Limits
}

func NewInputStream(b []byte, limits Limits) *InputStream {
	return &InputStream{buf: b, limits: limits}
}

func (s *InputStream) Limits() Limits {
	return s.limits
}

// Pos is the number of bytes consumed so far.
func (s *InputStream) Pos() int {
	return s.pos
}

// Len is the number of unread bytes.
func (s *InputStream) Len() int {
	return len(s.buf) - s.pos
}

func (s *InputStream) next(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeLength
	}
	if n > s.Len() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrEndOfStream, n, s.pos, s.Len())
	}
	b := s.buf[s.pos : s.pos+n]
	s.pos += n
	return b, nil
}

// ReadBytes returns a copy of the next n bytes.
func (s *InputStream) ReadBytes(n int) ([]byte, error) {
	b, err := s.next(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (s *InputStream) ReadByte() (byte, error) {
	b, err := s.next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *InputStream) ReadUnsignedShort() (uint16, error) {
	b, err := s.next(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// ReadInt reads a signed 16-bit integer, the width used for envelope counts
// and AMF0 reference indices.
func (s *InputStream) ReadInt() (int16, error) {
	v, err := s.ReadUnsignedShort()
	return int16(v), err
}

// ReadLong reads a signed 32-bit integer.
func (s *InputStream) ReadLong() (int32, error) {
	v, err := s.ReadUnsignedLong()
	return int32(v), err
}

func (s *InputStream) ReadUnsignedLong() (uint32, error) {
	b, err := s.next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (s *InputStream) ReadDouble() (float64, error) {
	b, err := s.next(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// ReadUTF reads a string prefixed with an unsigned 16-bit byte length.
func (s *InputStream) ReadUTF() (string, error) {
	n, err := s.ReadUnsignedShort()
	if err != nil {
		return "", err
	}
	return s.ReadUTFBytes(uint32(n))
}

// ReadLongUTF reads a string prefixed with an unsigned 32-bit byte length.
func (s *InputStream) ReadLongUTF() (string, error) {
	n, err := s.ReadUnsignedLong()
	if err != nil {
		return "", err
	}
	return s.ReadUTFBytes(n)
}

// ReadUTFBytes reads n bytes as a string.
func (s *InputStream) ReadUTFBytes(n uint32) (string, error) {
	if s.limits.MaxStringBytes > 0 && n > s.limits.MaxStringBytes {
		return "", fmt.Errorf("%w: string length %d, max %d", ErrTooLarge, n, s.limits.MaxStringBytes)
	}
	if uint64(n) > uint64(s.Len()) {
		return "", fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrEndOfStream, n, s.pos, s.Len())
	}
	b, err := s.next(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// OutputStream is the write-side mirror of InputStream.
type OutputStream struct {
	buf bytes.Buffer
}

func NewOutputStream() *OutputStream {
	return &OutputStream{}
}

func (o *OutputStream) Bytes() []byte {
	return o.buf.Bytes()
}

func (o *OutputStream) Len() int {
	return o.buf.Len()
}

func (o *OutputStream) WriteBytes(b []byte) {
	o.buf.Write(b)
}

func (o *OutputStream) WriteByte(b byte) error {
	return o.buf.WriteByte(b)
}

func (o *OutputStream) WriteUnsignedShort(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	o.buf.Write(b[:])
}

func (o *OutputStream) WriteInt(v int16) {
	o.WriteUnsignedShort(uint16(v))
}

func (o *OutputStream) WriteLong(v int32) {
	o.WriteUnsignedLong(uint32(v))
}

func (o *OutputStream) WriteUnsignedLong(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	o.buf.Write(b[:])
}

func (o *OutputStream) WriteDouble(v float64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(v))
	o.buf.Write(b[:])
}

func (o *OutputStream) WriteUTF(s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("%w: utf string of %d bytes", ErrTooLarge, len(s))
	}
	o.WriteUnsignedShort(uint16(len(s)))
	o.buf.WriteString(s)
	return nil
}

func (o *OutputStream) WriteLongUTF(s string) error {
	if uint64(len(s)) > math.MaxUint32 {
		return fmt.Errorf("%w: long utf string of %d bytes", ErrTooLarge, len(s))
	}
	o.WriteUnsignedLong(uint32(len(s)))
	o.buf.WriteString(s)
	return nil
}
