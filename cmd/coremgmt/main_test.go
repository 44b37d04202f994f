package main

import (
	"strings"
	"testing"

	"openenterprise/artiqrt/internal/rterr"
	"openenterprise/artiqrt/internal/session"
)

func TestPrintFlashDataReportsNotFound(t *testing.T) {
	f := session.Frame{Type: session.RepFlashData, Payload: []byte{0, 0}}
	if err := printFlashData(f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReplyErrorFormatsKindAndMessage(t *testing.T) {
	payload := append([]byte{byte(rterr.KindProtocol), 0}, []byte("bad frame")...)
	err := replyError(session.Frame{Type: session.RepError, Payload: payload})
	if err == nil || !strings.Contains(err.Error(), "bad frame") {
		t.Fatalf("got %v", err)
	}
}

func TestReplyErrorFormatsCode(t *testing.T) {
	payload := append([]byte{byte(rterr.KindResource), byte(len("BAD_IMAGE"))}, []byte("BAD_IMAGEkernel image header invalid")...)
	err := replyError(session.Frame{Type: session.RepError, Payload: payload})
	if err == nil || !strings.Contains(err.Error(), "BAD_IMAGE") || !strings.Contains(err.Error(), "kernel image header invalid") {
		t.Fatalf("got %v", err)
	}
}

func TestReplyErrorRejectsUnexpectedType(t *testing.T) {
	err := replyError(session.Frame{Type: session.RepOK})
	if err == nil {
		t.Fatal("expected error")
	}
}
