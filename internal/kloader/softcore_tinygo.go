//go:build tinygo

package kloader

import (
	"time"

	"openenterprise/artiqrt/internal/mailbox"
)

// SoftCoreRegs is the memory-mapped control surface the OR1K soft core
// exposes to the runtime CPU: load the entry point and support-blob base,
// assert start, watch a present-flag register for mailbox traffic, and
// assert reset to force a stop. The actual instruction execution happens
// entirely in gateware; this is the seam spec.md §1 describes as "FPGA
// gateware ... consumed as a memory-mapped register file," extended to
// kernel execution itself per internal/kloader's own Interpreter framing.
type SoftCoreRegs interface {
	SetEntry(addr uint32)
	SetSupportBase(addr uint32)
	Start()
	Reset()
	MailboxPresent() bool
	MailboxRead() mailbox.Message
	MailboxWrite(m mailbox.Message)
}

// SoftCoreInterpreter is the production Interpreter: it drives the real
// soft core through SoftCoreRegs instead of simulating kernel behavior in a
// goroutine the way test fakes do.
type SoftCoreInterpreter struct {
	regs SoftCoreRegs
}

func NewSoftCoreInterpreter(regs SoftCoreRegs) *SoftCoreInterpreter {
	return &SoftCoreInterpreter{regs: regs}
}

// Run loads img's entry point into the soft core, starts it, and relays
// mailbox traffic between the hardware registers and io.Mailbox until the
// kernel finishes or io.Stopped() is observed, at which point it asserts
// Reset — the hardware equivalent of AMPHost's reset-line stop, since a
// soft core has no stack to unwind cooperatively.
func (s *SoftCoreInterpreter) Run(img Image, io *KernelIO) {
	s.regs.SetEntry(img.Entry)
	if len(img.Support) > 0 {
		s.regs.SetSupportBase(img.Entry - uint32(len(img.Support)))
	}
	s.regs.Start()

	for {
		if io.Stopped() {
			s.regs.Reset()
			return
		}
		if s.regs.MailboxPresent() {
			m := s.regs.MailboxRead()
			io.Mailbox.SendToRuntime(m)
			if m.Tag == mailbox.TagRunFinished || m.Tag == mailbox.TagException {
				return
			}
		}
		if reply, ok := io.Mailbox.RecvFromRuntime(); ok {
			s.regs.MailboxWrite(reply)
		}
		time.Sleep(100 * time.Microsecond)
	}
}
