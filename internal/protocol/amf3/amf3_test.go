package amf3

import (
	"testing"
	"time"

	"github.com/danmuck/amfgate/internal/protocol/stream"
	"github.com/danmuck/amfgate/internal/protocol/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, b []byte) (*value.Value, error) {
	t.Helper()
	return NewDecoder(stream.NewInputStream(b, stream.DefaultLimits())).ReadValue()
}

func encode(t *testing.T, v *value.Value) []byte {
	t.Helper()
	out := stream.NewOutputStream()
	require.NoError(t, NewEncoder(out).WriteValue(v))
	return out.Bytes()
}

func TestU29Boundaries(t *testing.T) {
	cases := []struct {
		name string
		in   int32
		size int
	}{
		{"zero", 0, 1},
		{"one byte max", 0x7f, 1},
		{"two bytes", 0x80, 2},
		{"three bytes", 0x4000, 3},
		{"four bytes", 0x200000, 4},
		{"max", MaxInt, 4},
		{"minus one", -1, 4},
		{"min", MinInt, 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := encode(t, value.Integer(tc.in))
			assert.Len(t, b, 1+tc.size)
			got, err := decode(t, b)
			require.NoError(t, err)
			assert.Equal(t, value.KindInteger, got.Kind)
			assert.Equal(t, tc.in, got.Int)
		})
	}
}

func TestIntegerOutsideU29BecomesDouble(t *testing.T) {
	got, err := decode(t, encode(t, value.Integer(MaxInt+1)))
	require.NoError(t, err)
	assert.Equal(t, value.KindNumber, got.Kind)
	assert.Equal(t, float64(MaxInt+1), got.Number)
}

func TestRoundTripGraph(t *testing.T) {
	when := time.Date(2012, 3, 4, 5, 6, 7, 8*int(time.Millisecond), time.UTC)
	in := value.Object("flex.messaging.messages.RemotingMessage",
		value.F("destination", value.String("userService")),
		value.F("operation", value.String("find")),
		value.F("source", value.String("userService")),
		value.F("body", value.Array(
			value.String("userService"),
			value.Number(1.5),
			value.Bool(true),
			value.Null(),
			value.Date(when),
			value.ByteArray([]byte{1, 2, 3}),
			value.XML("<a/>"),
			value.Map(value.F("k", value.Undefined())),
		)),
	)
	got, err := decode(t, encode(t, in))
	require.NoError(t, err)
	// maps encode as anonymous objects
	want := value.Object(in.Class, in.Fields...)
	body, _ := want.Get("body")
	body.Items[7] = value.Object("", value.F("k", value.Undefined()))
	assert.True(t, value.Equal(want, got), "got %v", got)
}

func TestStringReferencesResolve(t *testing.T) {
	// array of 2 dense strings: "ab" inline, then reference 0
	b := []byte{byte(Array), 0x05, 0x01, byte(String), 0x05, 'a', 'b', byte(String), 0x00}
	got, err := decode(t, b)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "ab", got.Items[0].Str)
	assert.Equal(t, "ab", got.Items[1].Str)
}

func TestSealedTraitsAndTraitsReference(t *testing.T) {
	// [ {class "C", sealed "x"} x=1, traits-ref(0) x=2 ]
	b := []byte{
		byte(Array), 0x05, 0x01,
		byte(Object), 0x13, 0x03, 'C', 0x03, 'x', byte(Integer), 0x01,
		byte(Object), 0x01, byte(Integer), 0x02,
	}
	got, err := decode(t, b)
	require.NoError(t, err)
	require.Len(t, got.Items, 2)
	for i, want := range []int32{1, 2} {
		obj := got.Items[i]
		assert.Equal(t, "C", obj.Class)
		x, ok := obj.Get("x")
		require.True(t, ok)
		assert.Equal(t, want, x.Int)
	}
}

func TestObjectSelfReference(t *testing.T) {
	// dynamic anonymous object with property "me" pointing at object 0
	b := []byte{byte(Object), 0x0b, 0x01, 0x05, 'm', 'e', byte(Object), 0x00, 0x01}
	got, err := decode(t, b)
	require.NoError(t, err)
	me, ok := got.Get("me")
	require.True(t, ok)
	assert.Same(t, got, me)
}

func TestArrayCollectionUnwrapped(t *testing.T) {
	out := stream.NewOutputStream()
	enc := NewEncoder(out)
	_ = out.WriteByte(byte(Object))
	require.NoError(t, enc.writeU29(0x07)) // inline, externalizable, no members
	require.NoError(t, enc.writeString(ClassArrayCollection))
	require.NoError(t, enc.WriteValue(value.Array(value.Integer(4))))

	got, err := decode(t, out.Bytes())
	require.NoError(t, err)
	assert.True(t, value.Equal(value.Array(value.Integer(4)), got))
}

func TestDecodeErrors(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want error
	}{
		{"unknown externalizable", []byte{byte(Object), 0x07, 0x07, 'D', 'S', 'K'}, ErrExternalizable},
		{"bad object ref", []byte{byte(Object), 0x02}, ErrBadReference},
		{"bad string ref", []byte{byte(String), 0x04}, ErrBadReference},
		{"bad traits ref", []byte{byte(Object), 0x05}, ErrBadReference},
		{"vector", []byte{byte(VectorInt)}, ErrUnsupportedMarker},
		{"unknown marker", []byte{0x42}, ErrUnknownMarker},
		{"truncated double", []byte{byte(Double), 0x00}, stream.ErrEndOfStream},
		{"hostile array length", []byte{byte(Array), 0xff, 0xff, 0xff, 0xff}, stream.ErrTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decode(t, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDepthLimit(t *testing.T) {
	limits := stream.DefaultLimits()
	limits.MaxDepth = 3
	nested := value.Array(value.Array(value.Array(value.Array())))
	in := stream.NewInputStream(encode(t, nested), limits)
	_, err := NewDecoder(in).ReadValue()
	assert.ErrorIs(t, err, ErrTooDeep)
}
