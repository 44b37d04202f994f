package session

import (
	"runtime"
	"strings"
	"testing"

	"openenterprise/artiqrt/internal/flash"
	"openenterprise/artiqrt/internal/kloader"
	"openenterprise/artiqrt/internal/kvstore"
	"openenterprise/artiqrt/internal/logring"
	"openenterprise/artiqrt/internal/mailbox"
	"openenterprise/artiqrt/internal/monitor"
	"openenterprise/artiqrt/internal/rtio"
)

type noopInterpreter struct{}

func (noopInterpreter) Run(img kloader.Image, io *kloader.KernelIO) {
	for !io.Stopped() {
	}
}

// rpcCallInterpreter emits one RPC_CALL as soon as it starts, then blocks
// until stopped, so tests can exercise Engine.PollMailbox end to end.
type rpcCallInterpreter struct{}

func (rpcCallInterpreter) Run(img kloader.Image, io *kloader.KernelIO) {
	io.Mailbox.SendToRuntime(mailbox.Message{Tag: mailbox.TagRPCCall, ServiceID: 7, Bytes: []byte{1}})
	for !io.Stopped() {
	}
}

func newTestEngine(t *testing.T) (*Engine, *kloader.Loader) {
	t.Helper()
	dev := flash.NewRAMDevice(2 * flash.SectorSize)
	store, err := kvstore.Open(dev)
	if err != nil {
		t.Fatal(err)
	}
	ring := &logring.Ring{}
	bridge := rtio.New(rtio.NewFakeCSR(1))
	bridge.Start(0, 100)
	loader := kloader.NewLoader(kloader.NewUPHost(noopInterpreter{}, bridge))
	e := New("ARTIQ runtime built 2026-07-31", store, ring, loader, bridge)
	return e, loader
}

// TestIdentContainsBanner covers spec.md §8 scenario S2.
func TestIdentContainsBanner(t *testing.T) {
	e, _ := newTestEngine(t)
	r := e.Dispatch(ReqIdent, nil)
	if r.Type != RepIdent {
		t.Fatalf("got type %d", r.Type)
	}
	if !strings.Contains(string(r.Payload), "ARTIQ runtime built") {
		t.Fatalf("got %q", r.Payload)
	}
}

func TestFlashWriteThenRead(t *testing.T) {
	e, _ := newTestEngine(t)
	payload := append([]byte("ip"), 0)
	payload = append(payload, []byte("192.168.1.50")...)
	r := e.Dispatch(ReqFlashWrite, payload)
	if r.Type != RepOK {
		t.Fatalf("write got %+v", r)
	}
	r = e.Dispatch(ReqFlashRead, []byte("ip"))
	if r.Type != RepFlashData {
		t.Fatalf("read got %+v", r)
	}
	if string(r.Payload[2:]) != "192.168.1.50" {
		t.Fatalf("got %q", r.Payload[2:])
	}
}

// TestLoadKernelBadHeaderStaysIdle covers spec.md §8 scenario S3.
func TestLoadKernelBadHeaderStaysIdle(t *testing.T) {
	e, _ := newTestEngine(t)
	r := e.Dispatch(ReqLoadKernel, make([]byte, 12))
	if r.Type != RepError {
		t.Fatalf("got %+v", r)
	}
	if e.State() != StateIdle {
		t.Fatalf("got state %v", e.State())
	}
}

func TestStopKernelIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	r1 := e.Dispatch(ReqStopKernel, nil)
	r2 := e.Dispatch(ReqStopKernel, nil)
	if r1.Type != RepOK || r2.Type != RepOK {
		t.Fatalf("got %+v %+v", r1, r2)
	}
}

func TestRunKernelRejectedWithoutLoadedImage(t *testing.T) {
	e, _ := newTestEngine(t)
	r := e.Dispatch(ReqRunKernel, []byte("run_kernel"))
	if r.Type != RepError {
		t.Fatalf("got %+v", r)
	}
}

func TestRPCReplyRejectedOutsideRPCWait(t *testing.T) {
	e, _ := newTestEngine(t)
	r := e.Dispatch(ReqRPCReplyMsg, []byte{0, 1, 2})
	if r.Type != RepError {
		t.Fatalf("got %+v", r)
	}
}

func TestPollMailboxRPCCallEntersRPCWait(t *testing.T) {
	dev := flash.NewRAMDevice(2 * flash.SectorSize)
	store, err := kvstore.Open(dev)
	if err != nil {
		t.Fatal(err)
	}
	ring := &logring.Ring{}
	bridge := rtio.New(rtio.NewFakeCSR(1))
	bridge.Start(0, 100)
	loader := kloader.NewLoader(kloader.NewUPHost(rpcCallInterpreter{}, bridge))
	e := New("ARTIQ runtime built", store, ring, loader, bridge)

	if err := e.loader.Load(validImageForTest()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := e.loader.Start("run_kernel"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var r Reply
	var ok bool
	for i := 0; i < 10000 && !ok; i++ {
		r, ok = e.PollMailbox()
		runtime.Gosched() // let the kernel goroutine run
	}
	if !ok || r.Type != RepRPCCall {
		t.Fatalf("got ok=%v r=%+v", ok, r)
	}
	if e.State() != StateRPCWait {
		t.Fatalf("got state %v", e.State())
	}
	loader.Stop()
}

// runFinishedInterpreter sends KERNEL_RUN_FINISHED as soon as it starts.
type runFinishedInterpreter struct{}

func (runFinishedInterpreter) Run(img kloader.Image, io *kloader.KernelIO) {
	io.Mailbox.SendToRuntime(mailbox.Message{Tag: mailbox.TagRunFinished})
}

// TestPollMailboxRunFinishedBumpsKernelRunCount covers SPEC_FULL.md §7's
// fleet-counter wiring: a clean kernel exit increments KernelRunCount but
// leaves FaultCount untouched.
func TestPollMailboxRunFinishedBumpsKernelRunCount(t *testing.T) {
	dev := flash.NewRAMDevice(2 * flash.SectorSize)
	store, err := kvstore.Open(dev)
	if err != nil {
		t.Fatal(err)
	}
	ring := &logring.Ring{}
	bridge := rtio.New(rtio.NewFakeCSR(1))
	bridge.Start(0, 100)
	loader := kloader.NewLoader(kloader.NewUPHost(runFinishedInterpreter{}, bridge))
	e := New("ARTIQ runtime built", store, ring, loader, bridge)
	counters := &monitor.Counters{}
	e.AttachCounters(counters)

	if err := e.loader.Load(validImageForTest()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := e.loader.Start("run_kernel"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var r Reply
	var ok bool
	for i := 0; i < 10000 && !ok; i++ {
		r, ok = e.PollMailbox()
		runtime.Gosched() // let the kernel goroutine run
	}
	if !ok || r.Type != RepKernelRunFinished {
		t.Fatalf("got ok=%v r=%+v", ok, r)
	}
	if counters.KernelRunCount != 1 {
		t.Fatalf("got KernelRunCount=%d", counters.KernelRunCount)
	}
	if counters.FaultCount != 0 {
		t.Fatalf("got FaultCount=%d", counters.FaultCount)
	}
}

func validImageForTest() []byte {
	raw := make([]byte, 12+4)
	copy(raw[:4], []byte{0x7f, 'O', 'R', '1'})
	raw[8] = 4 // size=4, little-endian
	return raw
}

func TestUnknownRequestTypeIsProtocolError(t *testing.T) {
	e, _ := newTestEngine(t)
	r := e.Dispatch(0xFF, nil)
	if r.Type != RepError {
		t.Fatalf("got %+v", r)
	}
}
