// Package diagnostics provides a slog.Handler that tees every log record to
// a console writer and into the runtime's internal/logring buffer, so the
// same diagnostic text reaches both the boot-time serial console and the
// control-port LOG request (spec.md §4.2/§4.6).
//
// Grounded on telemetry.SlogHandler, which tees every record to a
// TextHandler and a remote telemetry queue; this generalizes that to tee
// into the session log ring instead of an OTLP queue.
package diagnostics

import (
	"context"
	"io"
	"log/slog"

	"openenterprise/artiqrt/internal/logring"
)

// Handler is a slog.Handler that writes to an underlying TextHandler and
// also appends every record at or above minRingLevel to a log ring.
type Handler struct {
	text         slog.Handler
	ring         *logring.Ring
	minRingLevel slog.Level
	attrs        []slog.Attr
	group        string
}

// New wraps w in a text handler and ties it to ring. Records below
// minRingLevel still reach the console but are not duplicated into the
// ring, keeping the fixed 4096-byte buffer from filling with debug chatter
// the way telemetry.SlogHandler skips DEBUG records for its own buffer.
func New(w io.Writer, ring *logring.Ring, opts *slog.HandlerOptions, minRingLevel slog.Level) *Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &Handler{
		text:         slog.NewTextHandler(w, opts),
		ring:         ring,
		minRingLevel: minRingLevel,
	}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.text.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	err := h.text.Handle(ctx, r)

	if r.Level >= h.minRingLevel {
		line := formatLine(h.group, h.attrs, r)
		h.ring.Write([]byte(line))
		h.ring.Write([]byte{'\n'})
	}

	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &Handler{
		text:         h.text.WithAttrs(attrs),
		ring:         h.ring,
		minRingLevel: h.minRingLevel,
		attrs:        newAttrs,
		group:        h.group,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	newGroup := name
	if h.group != "" {
		newGroup = h.group + "." + name
	}
	return &Handler{
		text:         h.text.WithGroup(name),
		ring:         h.ring,
		minRingLevel: h.minRingLevel,
		attrs:        h.attrs,
		group:        newGroup,
	}
}

// formatLine builds a compact "group:msg key=val ..." line for the ring,
// the same shape buildTelemetryMessage produces for the remote queue.
// boundAttrs are the attrs accumulated by prior WithAttrs calls; they
// precede the record's own attrs the same way the text handler prints them.
func formatLine(group string, boundAttrs []slog.Attr, r slog.Record) string {
	var b []byte
	if group != "" {
		b = append(b, group...)
		b = append(b, ':')
	}
	b = append(b, r.Message...)
	writeAttr := func(a slog.Attr) bool {
		b = append(b, ' ')
		b = append(b, a.Key...)
		b = append(b, '=')
		b = append(b, a.Value.String()...)
		return true
	}
	for _, a := range boundAttrs {
		writeAttr(a)
	}
	r.Attrs(writeAttr)
	return string(b)
}
