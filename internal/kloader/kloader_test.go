package kloader

import (
	"encoding/binary"
	"testing"
	"time"

	"openenterprise/artiqrt/internal/mailbox"
	"openenterprise/artiqrt/internal/rtio"
)

func validImageBytes(entry, size uint32, code, support []byte) []byte {
	buf := make([]byte, 0, 12+len(code)+len(support))
	buf = append(buf, imageMagic[:]...)
	var eb, sb [4]byte
	binary.LittleEndian.PutUint32(eb[:], entry)
	binary.LittleEndian.PutUint32(sb[:], size)
	buf = append(buf, eb[:]...)
	buf = append(buf, sb[:]...)
	buf = append(buf, code...)
	buf = append(buf, support...)
	return buf
}

func TestParseImageRejectsShortHeader(t *testing.T) {
	if _, err := ParseImage([]byte{1, 2, 3}); err != ErrBadImage {
		t.Fatalf("got %v", err)
	}
}

func TestParseImageRejectsBadMagic(t *testing.T) {
	raw := validImageBytes(0, 4, []byte{1, 2, 3, 4}, nil)
	raw[0] = 0x00
	if _, err := ParseImage(raw); err != ErrBadImage {
		t.Fatalf("got %v", err)
	}
}

func TestParseImageRejectsTooLarge(t *testing.T) {
	raw := validImageBytes(0, KernelMemorySize+1, make([]byte, KernelMemorySize+1), nil)
	if _, err := ParseImage(raw); err != ErrImageTooLarge {
		t.Fatalf("got %v", err)
	}
}

func TestParseImageRejects12ByteNonHeader(t *testing.T) {
	// spec.md S3: a 12-byte image that is not a valid header.
	raw := make([]byte, 12)
	if _, err := ParseImage(raw); err != ErrBadImage {
		t.Fatalf("got %v, want ErrBadImage per scenario S3", err)
	}
}

// rpcThenFinishInterpreter simulates spec.md §8 scenario S4: one RPC_CALL,
// then a RUN_FINISHED once the reply arrives.
type rpcThenFinishInterpreter struct{}

func (rpcThenFinishInterpreter) Run(img Image, io *KernelIO) {
	io.Mailbox.SendToRuntime(mailbox.Message{Tag: mailbox.TagRPCCall, ServiceID: 1, Bytes: []byte{42}})
	for i := 0; i < 100 && !io.Stopped(); i++ {
		if m, ok := io.Mailbox.RecvFromRuntime(); ok && m.Tag == mailbox.TagRPCReply {
			io.Mailbox.SendToRuntime(mailbox.Message{Tag: mailbox.TagRunFinished})
			return
		}
		time.Sleep(time.Millisecond)
	}
}

func TestUPHostRPCRoundTrip(t *testing.T) {
	bridge := rtio.New(rtio.NewFakeCSR(1))
	bridge.Start(0, 100)
	host := NewUPHost(rpcThenFinishInterpreter{}, bridge)
	loader := NewLoader(host)

	raw := validImageBytes(0, 4, []byte{0, 0, 0, 0}, nil)
	if err := loader.Load(raw); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := loader.Start("run_kernel"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var call mailbox.Message
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m, ok := loader.RecvMailbox(); ok {
			call = m
			break
		}
		time.Sleep(time.Millisecond)
	}
	if call.Tag != mailbox.TagRPCCall || call.ServiceID != 1 {
		t.Fatalf("got %+v", call)
	}

	if !loader.SendMailbox(mailbox.Message{Tag: mailbox.TagRPCReply, Bytes: []byte{84}}) {
		t.Fatal("SendMailbox failed")
	}

	var finished bool
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m, ok := loader.RecvMailbox(); ok && m.Tag == mailbox.TagRunFinished {
			finished = true
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !finished {
		t.Fatal("never observed RUN_FINISHED")
	}
	if err := loader.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if bridge.Owned() {
		t.Fatal("bridge should be released once kernel finishes and Stop is called")
	}
}

// blockingInterpreter never returns on its own; Stop must still succeed.
type blockingInterpreter struct{ started chan struct{} }

func (b blockingInterpreter) Run(img Image, io *KernelIO) {
	close(b.started)
	for !io.Stopped() {
		time.Sleep(time.Millisecond)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	bridge := rtio.New(rtio.NewFakeCSR(1))
	bridge.Start(0, 100)
	interp := blockingInterpreter{started: make(chan struct{})}
	host := NewUPHost(interp, bridge)
	loader := NewLoader(host)

	raw := validImageBytes(0, 4, []byte{0, 0, 0, 0}, nil)
	if err := loader.Load(raw); err != nil {
		t.Fatal(err)
	}
	if err := loader.Start("run_kernel"); err != nil {
		t.Fatal(err)
	}
	<-interp.started

	if err := loader.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := loader.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if loader.Running() {
		t.Fatal("expected not running after Stop")
	}
}

func TestLoadingNewImageStopsPrevious(t *testing.T) {
	bridge := rtio.New(rtio.NewFakeCSR(1))
	bridge.Start(0, 100)
	interp := blockingInterpreter{started: make(chan struct{})}
	host := NewUPHost(interp, bridge)
	loader := NewLoader(host)

	raw := validImageBytes(0, 4, []byte{0, 0, 0, 0}, nil)
	if err := loader.Load(raw); err != nil {
		t.Fatal(err)
	}
	if err := loader.Start("run_kernel"); err != nil {
		t.Fatal(err)
	}
	<-interp.started

	if err := loader.Load(raw); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if loader.Running() {
		t.Fatal("expected previous kernel stopped by second Load")
	}
}

func TestStartUnknownEntryName(t *testing.T) {
	bridge := rtio.New(rtio.NewFakeCSR(1))
	bridge.Start(0, 100)
	loader := NewLoader(NewUPHost(rpcThenFinishInterpreter{}, bridge))
	raw := validImageBytes(0, 4, []byte{0, 0, 0, 0}, nil)
	if err := loader.Load(raw); err != nil {
		t.Fatal(err)
	}
	if err := loader.Start("not_a_real_entry"); err != ErrUnknownEntryName {
		t.Fatalf("got %v", err)
	}
}

func TestAMPHostStopDoesNotWaitForCooperation(t *testing.T) {
	bridge := rtio.New(rtio.NewFakeCSR(1))
	bridge.Start(0, 100)
	interp := blockingInterpreter{started: make(chan struct{})}
	host := NewAMPHost(interp, bridge)
	loader := NewLoader(host)

	raw := validImageBytes(0, 4, []byte{0, 0, 0, 0}, nil)
	if err := loader.Load(raw); err != nil {
		t.Fatal(err)
	}
	if err := loader.Start("run_kernel"); err != nil {
		t.Fatal(err)
	}
	<-interp.started

	done := make(chan struct{})
	go func() {
		loader.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AMP Stop should return immediately without waiting for the kernel goroutine")
	}
}
