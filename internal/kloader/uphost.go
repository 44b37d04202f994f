package kloader

import (
	"sync"

	"openenterprise/artiqrt/internal/mailbox"
	"openenterprise/artiqrt/internal/rtio"
)

// Interpreter executes a loaded kernel image. On real hardware this is the
// OR1K soft core itself (gateware, out of scope per spec.md §1); host
// builds and tests supply a fake that drives the mailbox the way a real
// kernel would, so the session engine can be exercised end-to-end.
type Interpreter interface {
	// Run executes img until it finishes, faults, or io.Stopped() becomes
	// true, at which point Run must return promptly. io gives access to
	// the mailbox and bridge the way the real kernel CPU would see them.
	Run(img Image, io *KernelIO)
}

// KernelIO is the handle an Interpreter uses to talk back to the runtime.
type KernelIO struct {
	Mailbox *mailbox.Channel
	Bridge  *rtio.Bridge

	mu      sync.Mutex
	stopped bool
}

// Stopped reports whether the host has requested early termination. A
// well-behaved Interpreter checks this between RTIO operations, standing
// in for the longjmp unwind a real UP kernel receives on kloader_stop.
func (k *KernelIO) Stopped() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.stopped
}

func (k *KernelIO) requestStop() {
	k.mu.Lock()
	k.stopped = true
	k.mu.Unlock()
}

// UPHost implements KernelHost for uni-processor boards: the kernel runs
// on the same CPU as the runtime, modeled here as a goroutine the runtime
// hands the bridge to for the duration of the run and reclaims on Stop.
type UPHost struct {
	interp Interpreter
	bridge *rtio.Bridge

	mu      sync.Mutex
	mb      *mailbox.Channel
	img     *Image
	running bool
	done    chan struct{}
	io      *KernelIO
}

// NewUPHost wires an Interpreter to the shared bridge.
func NewUPHost(interp Interpreter, bridge *rtio.Bridge) *UPHost {
	return &UPHost{interp: interp, bridge: bridge}
}

func (h *UPHost) Load(img Image) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.img = &img
	h.mb = mailbox.New()
	return nil
}

func (h *UPHost) Start(entryName string) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrAlreadyRunning
	}
	if h.img == nil {
		h.mu.Unlock()
		return ErrNoImage
	}
	h.running = true
	h.bridge.Acquire()
	h.io = &KernelIO{Mailbox: h.mb, Bridge: h.bridge}
	h.done = make(chan struct{})
	img := *h.img
	io := h.io
	done := h.done
	h.mu.Unlock()

	go func() {
		defer close(done)
		h.interp.Run(img, io)
	}()
	return nil
}

// Stop requests early termination if running, waits for the kernel
// goroutine to exit, releases the bridge, and resets the mailbox.
// Idempotent: calling Stop with nothing running succeeds as a no-op.
func (h *UPHost) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	io := h.io
	done := h.done
	h.mu.Unlock()

	io.requestStop()
	<-done

	h.mu.Lock()
	h.running = false
	h.bridge.Release()
	if h.mb != nil {
		h.mb.Reset()
	}
	h.mu.Unlock()
	return nil
}

func (h *UPHost) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *UPHost) SendMailbox(m mailbox.Message) bool {
	h.mu.Lock()
	mb := h.mb
	h.mu.Unlock()
	if mb == nil {
		return false
	}
	return mb.SendToKernel(m)
}

func (h *UPHost) RecvMailbox() (mailbox.Message, bool) {
	h.mu.Lock()
	mb := h.mb
	h.mu.Unlock()
	if mb == nil {
		return mailbox.Message{}, false
	}
	return mb.RecvFromKernel()
}
