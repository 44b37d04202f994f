package session

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{Magic: MagicControl, Type: 3, Payload: []byte("hello")}
	wire := EncodeFrame(f)

	var d Decoder
	d.Feed(wire)
	got, ok, err := d.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatal("expected a decoded frame")
	}
	if got.Magic != f.Magic || got.Type != f.Type || !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("got %+v", got)
	}
	if d.Pending() != 0 {
		t.Fatalf("expected 0 pending, got %d", d.Pending())
	}
}

func TestDecoderBuffersPartialFrame(t *testing.T) {
	f := Frame{Magic: MagicControl, Type: 1, Payload: []byte("0123456789")}
	wire := EncodeFrame(f)

	var d Decoder
	d.Feed(wire[:5])
	if _, ok, err := d.Next(); ok || err != nil {
		t.Fatalf("expected no frame yet, got ok=%v err=%v", ok, err)
	}
	d.Feed(wire[5:])
	got, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("got %q", got.Payload)
	}
}

func TestDecoderRejectsBadMagic(t *testing.T) {
	wire := EncodeFrame(Frame{Magic: MagicControl, Type: 1})
	wire[0] = 0x00
	var d Decoder
	d.Feed(wire)
	if _, _, err := d.Next(); err != ErrBadMagic {
		t.Fatalf("got %v", err)
	}
}

func TestDecoderRejectsOversizedLength(t *testing.T) {
	wire := EncodeFrame(Frame{Magic: MagicControl, Type: 1})
	wire[2], wire[3], wire[4], wire[5] = 0xFF, 0xFF, 0xFF, 0xFF
	var d Decoder
	d.Feed(wire)
	if _, _, err := d.Next(); err != ErrFrameTooLarge {
		t.Fatalf("got %v", err)
	}
}

func TestDecoderHandlesMultipleFramesInOneFeed(t *testing.T) {
	a := EncodeFrame(Frame{Magic: MagicControl, Type: 1, Payload: []byte("a")})
	b := EncodeFrame(Frame{Magic: MagicKernel, Type: 2, Payload: []byte("bb")})
	var d Decoder
	d.Feed(append(a, b...))

	first, ok, err := d.Next()
	if err != nil || !ok || first.Type != 1 {
		t.Fatalf("first frame: %+v ok=%v err=%v", first, ok, err)
	}
	second, ok, err := d.Next()
	if err != nil || !ok || second.Type != 2 {
		t.Fatalf("second frame: %+v ok=%v err=%v", second, ok, err)
	}
}
