package kvstore

import (
	"bytes"
	"testing"

	"openenterprise/artiqrt/internal/flash"
)

func newTestStore(t *testing.T, size uint32) *Store {
	t.Helper()
	dev := flash.NewRAMDevice(size)
	s, err := Open(dev)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t, 2*flash.SectorSize)
	if err := s.Write("board.mac", []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("board.mac")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}) {
		t.Fatalf("got %v", got)
	}
}

// TestIdempotence covers spec.md §8 property 1: writing the same key twice
// must make the second value observable, not the first.
func TestIdempotence(t *testing.T) {
	s := newTestStore(t, 2*flash.SectorSize)
	if err := s.Write("ip", []byte("10.0.0.1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Write("ip", []byte("10.0.0.2")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Read("ip")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "10.0.0.2" {
		t.Fatalf("got %q, want last-write-wins value", got)
	}
}

func TestReadMissingKey(t *testing.T) {
	s := newTestStore(t, 2*flash.SectorSize)
	if _, err := s.Read("nope"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestRemoveThenRead(t *testing.T) {
	s := newTestStore(t, 2*flash.SectorSize)
	if err := s.Write("k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove("k"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Read("k"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound after remove", err)
	}
}

func TestKeyValidation(t *testing.T) {
	s := newTestStore(t, 2*flash.SectorSize)
	if err := s.Write("", []byte("v")); err != ErrKeyEmpty {
		t.Fatalf("got %v", err)
	}
	longKey := bytes.Repeat([]byte("x"), MaxKeyLen+1)
	if err := s.Write(string(longKey), []byte("v")); err != ErrKeyTooLong {
		t.Fatalf("got %v", err)
	}
}

// TestCompactionPreservesLiveSet covers spec.md §8 property 2: after
// compaction, every key that was live beforehand reads back the same value,
// and removed keys stay absent.
func TestCompactionPreservesLiveSet(t *testing.T) {
	s := newTestStore(t, 4*flash.SectorSize)
	want := map[string]string{}
	for i := 0; i < 20; i++ {
		key := string(rune('a' + i%5))
		val := string(rune('0' + i%10))
		if err := s.Write(key, []byte(val)); err != nil {
			t.Fatalf("Write: %v", err)
		}
		want[key] = val
	}
	if err := s.Remove("c"); err != nil {
		t.Fatal(err)
	}
	delete(want, "c")

	if err := s.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	for k, v := range want {
		got, err := s.Read(k)
		if err != nil {
			t.Fatalf("Read(%q): %v", k, err)
		}
		if string(got) != v {
			t.Fatalf("Read(%q) = %q, want %q", k, got, v)
		}
	}
	if _, err := s.Read("c"); err != ErrNotFound {
		t.Fatalf("removed key %q resurrected after compaction", "c")
	}
	if got := s.CompactionCount(); got != 1 {
		t.Fatalf("CompactionCount() = %d, want 1", got)
	}
}

// TestFillTriggersAutoCompaction exercises scenario S6: writing enough
// records to fill past the active half's capacity must trigger an implicit
// compaction rather than failing, as long as the live set still fits.
func TestFillTriggersAutoCompaction(t *testing.T) {
	s := newTestStore(t, 2*flash.SectorSize)
	key := "counter"
	for i := 0; i < 500; i++ {
		val := bytes.Repeat([]byte{byte(i)}, 8)
		if err := s.Write(key, val); err != nil {
			t.Fatalf("Write iteration %d: %v", i, err)
		}
	}
	got, err := s.Read(key)
	if err != nil {
		t.Fatal(err)
	}
	want := bytes.Repeat([]byte{byte(499 % 256)}, 8)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

// TestReopenAfterCompactionSelectsNewHalf covers spec.md §8 property 3:
// crash safety. Simulates a reboot (fresh Store over the same Device) after
// a clean compaction and checks the live set survives.
func TestReopenAfterCompactionSelectsNewHalf(t *testing.T) {
	dev := flash.NewRAMDevice(4 * flash.SectorSize)
	s, err := Open(dev)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 30; i++ {
		if err := s.Write("k", []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Compact(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dev)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := reopened.Read("k")
	if err != nil {
		t.Fatalf("Read after reopen: %v", err)
	}
	if got[0] != 29 {
		t.Fatalf("got %v, want last value", got)
	}
}

// TestOpenFreshFlashInitializesHalfZero covers boot on blank (all-0xFF)
// flash, which must not be treated as corruption.
func TestOpenFreshFlashInitializesHalfZero(t *testing.T) {
	dev := flash.NewRAMDevice(2 * flash.SectorSize)
	s, err := Open(dev)
	if err != nil {
		t.Fatalf("Open on fresh flash: %v", err)
	}
	if _, err := s.Read("anything"); err != ErrNotFound {
		t.Fatalf("got %v, want ErrNotFound on empty store", err)
	}
	if err := s.Write("a", []byte("b")); err != nil {
		t.Fatal(err)
	}
}

func TestEraseClearsEverything(t *testing.T) {
	s := newTestStore(t, 2*flash.SectorSize)
	if err := s.Write("a", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Erase(); err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if _, err := s.Read("a"); err != ErrNotFound {
		t.Fatalf("got %v after erase", err)
	}
}

func TestValueTooLargeForHalf(t *testing.T) {
	s := newTestStore(t, 2*flash.SectorSize)
	big := make([]byte, 2*flash.SectorSize)
	if err := s.Write("huge", big); err != ErrValueTooLarge {
		t.Fatalf("got %v, want ErrValueTooLarge", err)
	}
}
