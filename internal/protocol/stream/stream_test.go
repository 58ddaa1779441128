package stream

import (
	"errors"
	"math"
	"testing"
)

func TestPrimitivesRoundTrip(t *testing.T) {
	out := NewOutputStream()
	out.WriteUnsignedShort(3)
	out.WriteInt(-2)
	out.WriteLong(-1)
	out.WriteDouble(math.Pi)
	if err := out.WriteUTF("flex"); err != nil {
		t.Fatalf("write utf: %v", err)
	}
	if err := out.WriteLongUTF("long"); err != nil {
		t.Fatalf("write long utf: %v", err)
	}
	_ = out.WriteByte(0x7f)

	in := NewInputStream(out.Bytes(), DefaultLimits())
	if v, err := in.ReadUnsignedShort(); err != nil || v != 3 {
		t.Fatalf("unsigned short: v=%d err=%v", v, err)
	}
	if v, err := in.ReadInt(); err != nil || v != -2 {
		t.Fatalf("int: v=%d err=%v", v, err)
	}
	if v, err := in.ReadLong(); err != nil || v != -1 {
		t.Fatalf("long: v=%d err=%v", v, err)
	}
	if v, err := in.ReadDouble(); err != nil || v != math.Pi {
		t.Fatalf("double: v=%v err=%v", v, err)
	}
	if v, err := in.ReadUTF(); err != nil || v != "flex" {
		t.Fatalf("utf: v=%q err=%v", v, err)
	}
	if v, err := in.ReadLongUTF(); err != nil || v != "long" {
		t.Fatalf("long utf: v=%q err=%v", v, err)
	}
	if v, err := in.ReadByte(); err != nil || v != 0x7f {
		t.Fatalf("byte: v=%d err=%v", v, err)
	}
	if in.Len() != 0 {
		t.Fatalf("expected stream drained, %d bytes left", in.Len())
	}
}

func TestReadPastEndIsDeterministic(t *testing.T) {
	in := NewInputStream([]byte{0x00}, DefaultLimits())
	if _, err := in.ReadUnsignedShort(); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream, got %v", err)
	}
	if in.Pos() != 0 {
		t.Fatalf("failed read must not consume, pos=%d", in.Pos())
	}
}

func TestReadUTFDeclaredLengthBeyondBuffer(t *testing.T) {
	// len=5, only 2 bytes follow
	in := NewInputStream([]byte{0, 5, 'a', 'b'}, DefaultLimits())
	if _, err := in.ReadUTF(); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream, got %v", err)
	}
}

func TestLimitsRejectOversizedInputs(t *testing.T) {
	limits := Limits{MaxPayloadBytes: 4, MaxStringBytes: 2, MaxCollectionLen: 3}
	if err := limits.CheckPayload(5); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	in := NewInputStream([]byte{0, 3, 'a', 'b', 'c'}, limits)
	if _, err := in.ReadUTF(); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if err := in.CheckCollection(4); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge for collection, got %v", err)
	}
	short := NewInputStream([]byte{1, 2}, limits)
	if err := short.CheckCollection(3); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream for collection, got %v", err)
	}
}

func TestWriteUTFTooLong(t *testing.T) {
	out := NewOutputStream()
	long := make([]byte, math.MaxUint16+1)
	if err := out.WriteUTF(string(long)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}
