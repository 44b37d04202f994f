package kloader

import (
	"context"
	"sync"

	"openenterprise/artiqrt/internal/mailbox"
	"openenterprise/artiqrt/internal/rtio"
)

// AMPHost implements KernelHost for two-CPU boards: the kernel runs on a
// second CPU, modeled as an independently cancellable goroutine. Unlike
// UPHost, Stop does not wait for the kernel to cooperate — a real second
// CPU is halted by asserting its reset line, which doesn't require the
// code running on it to notice. The mailbox and the bridge-ownership
// transfer at Start/Stop are the only synchronization between the two
// sides, per spec.md §5's AMP variant.
type AMPHost struct {
	interp Interpreter
	bridge *rtio.Bridge

	mu      sync.Mutex
	mb      *mailbox.Channel
	img     *Image
	running bool
	cancel  context.CancelFunc
}

func NewAMPHost(interp Interpreter, bridge *rtio.Bridge) *AMPHost {
	return &AMPHost{interp: interp, bridge: bridge}
}

func (h *AMPHost) Load(img Image) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.img = &img
	h.mb = mailbox.New()
	return nil
}

func (h *AMPHost) Start(entryName string) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrAlreadyRunning
	}
	if h.img == nil {
		h.mu.Unlock()
		return ErrNoImage
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.running = true
	h.bridge.Acquire()
	io := &KernelIO{Mailbox: h.mb, Bridge: h.bridge}
	img := *h.img
	h.mu.Unlock()

	go func() {
		done := make(chan struct{})
		go func() {
			defer close(done)
			h.interp.Run(img, io)
		}()
		select {
		case <-ctx.Done():
		case <-done:
		}
	}()
	return nil
}

// Stop asserts reset on the second CPU: the runtime reclaims the bridge
// and mailbox immediately, regardless of whether the kernel goroutine has
// noticed the cancellation yet, matching real second-CPU reset behavior.
func (h *AMPHost) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	cancel := h.cancel
	mb := h.mb
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	h.mu.Lock()
	h.running = false
	h.bridge.Release()
	if mb != nil {
		mb.Reset()
	}
	h.mu.Unlock()
	return nil
}

func (h *AMPHost) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

func (h *AMPHost) SendMailbox(m mailbox.Message) bool {
	h.mu.Lock()
	mb := h.mb
	h.mu.Unlock()
	if mb == nil {
		return false
	}
	return mb.SendToKernel(m)
}

func (h *AMPHost) RecvMailbox() (mailbox.Message, bool) {
	h.mu.Lock()
	mb := h.mb
	h.mu.Unlock()
	if mb == nil {
		return mailbox.Message{}, false
	}
	return mb.RecvFromKernel()
}
