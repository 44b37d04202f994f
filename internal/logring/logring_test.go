package logring

import (
	"bytes"
	"testing"
)

func TestWriteAndGetNoWrap(t *testing.T) {
	var r Ring
	r.Write([]byte("hello"))
	got := r.Get()
	want := append([]byte("hello"), 0)
	if !bytes.Equal(got, want) {
		t.Fatalf("Get() = %q, want %q", got, want)
	}
}

func TestWrapLinearizesOldestFirst(t *testing.T) {
	var r Ring
	// Fill the ring exactly, then write a few more bytes to force a wrap.
	filler := bytes.Repeat([]byte{'A'}, Size)
	r.Write(filler)
	r.Write([]byte("XYZ"))

	got := r.Get()
	// After wrap, head sits right after "XYZ"; the oldest surviving bytes
	// are the tail of the 'A' run, followed by "XYZ".
	if !bytes.HasSuffix(got[:len(got)-1], []byte("XYZ")) {
		t.Fatalf("expected snapshot to end with XYZ before NUL, got tail %q", got[len(got)-4:])
	}
	if got[len(got)-1] != 0 {
		t.Fatal("snapshot must be NUL-terminated")
	}
	if len(got) != Size+1 {
		t.Fatalf("snapshot length = %d, want %d", len(got), Size+1)
	}
}

func TestLogRingBoundProperty(t *testing.T) {
	// Testable Property 7: for any burst of N log bytes, Get returns at
	// most Size bytes plus NUL, always containing the most recent bytes.
	var r Ring
	burst := bytes.Repeat([]byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9'}, 1000)
	r.Write(burst)

	got := r.Get()
	if len(got) > Size+1 {
		t.Fatalf("snapshot exceeds bound: %d > %d", len(got), Size+1)
	}
	tail := burst[len(burst)-len(got)+1:]
	if !bytes.Equal(got[:len(got)-1][len(got)-1-len(tail):], tail) {
		t.Fatalf("snapshot does not end with the most recent bytes written")
	}
}

func TestClearEmptiesRing(t *testing.T) {
	var r Ring
	r.Write([]byte("data"))
	r.Clear()
	got := r.Get()
	if !bytes.Equal(got, []byte{0}) {
		t.Fatalf("Get() after Clear = %q, want just NUL", got)
	}
}

func TestGetAndClearIsAtomic(t *testing.T) {
	var r Ring
	r.Write([]byte("fault-context"))
	snap := r.GetAndClear()
	if !bytes.Equal(snap, append([]byte("fault-context"), 0)) {
		t.Fatalf("GetAndClear snapshot = %q", snap)
	}
	if !bytes.Equal(r.Get(), []byte{0}) {
		t.Fatal("ring should be empty after GetAndClear")
	}
}
