package diagnostics

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"openenterprise/artiqrt/internal/logring"
)

func TestHandleWritesConsoleAndRing(t *testing.T) {
	var console bytes.Buffer
	ring := &logring.Ring{}
	h := New(&console, ring, nil, slog.LevelInfo)
	logger := slog.New(h)

	logger.Info("bridge:started", slog.Int("channels", 8))

	if !strings.Contains(console.String(), "bridge:started") {
		t.Fatalf("console missing message: %q", console.String())
	}
	snapshot := string(ring.Get())
	if !strings.Contains(snapshot, "bridge:started") {
		t.Fatalf("ring missing message: %q", snapshot)
	}
	if !strings.Contains(snapshot, "channels=8") {
		t.Fatalf("ring missing attr: %q", snapshot)
	}
}

func TestHandleSkipsRingBelowMinLevel(t *testing.T) {
	var console bytes.Buffer
	ring := &logring.Ring{}
	h := New(&console, ring, &slog.HandlerOptions{Level: slog.LevelDebug}, slog.LevelInfo)
	logger := slog.New(h)

	logger.Debug("rtio:cursor-advance")

	if !strings.Contains(console.String(), "rtio:cursor-advance") {
		t.Fatalf("console missing debug message")
	}
	if len(ring.Get()) > 1 {
		t.Fatalf("ring should stay empty for debug records, got %q", ring.Get())
	}
}

func TestWithGroupPrefixesRingLine(t *testing.T) {
	var console bytes.Buffer
	ring := &logring.Ring{}
	h := New(&console, ring, nil, slog.LevelInfo)
	logger := slog.New(h).WithGroup("session")

	logger.Info("connected")

	snapshot := string(ring.Get())
	if !strings.Contains(snapshot, "session:connected") {
		t.Fatalf("expected group prefix, got %q", snapshot)
	}
}
