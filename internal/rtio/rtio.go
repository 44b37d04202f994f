// Package rtio implements the runtime-side interface to the RTIO fabric and
// DDS cores described in spec.md §4.4: a monotonic timeline cursor, per-
// channel DDS programming, and the dead-time contract between consecutive
// writes.
//
// Grounded on ota/ota.go's register-level bridge shape (direct, sequenced
// hardware register access wrapped in Go methods with sentinel errors) and
// generalized from "flash controller registers" to "RTIO/DDS CSR surface."
package rtio

import (
	"errors"

	"openenterprise/artiqrt/internal/rterr"
)

// Cursor is the 64-bit monotonically nondecreasing RTIO timeline position,
// expressed in coarse RTIO cycles, per spec.md §3.
type Cursor uint64

// ErrUnderflow is this package's own name for internal/rterr.ErrRTIOUnderflow
// (spec.md §8 scenario S5), kept so existing callers and rtio_test.go's
// equality checks read naturally in RTIO terms while still carrying the
// RTIO_UNDERFLOW host-facing code on the wire.
var ErrUnderflow = rterr.ErrRTIOUnderflow

// DDSChannel mirrors spec.md §3's per-channel descriptor.
type DDSChannel struct {
	FTW      uint32 // frequency tuning word
	POW      uint32 // phase offset word
	Profile  uint8
	Selected bool
}

// CSR is the memory-mapped register interface the bridge drives. On real
// hardware this is backed by volatile reads/writes into the gateware's
// register file; FakeCSR backs it for host tests.
type CSR interface {
	WriteReg(channel int, addr uint8, data uint32)
	ReadReg(channel int, addr uint8) uint32
	ChannelCount() int
}

// Board-specific register addresses within a DDS channel's address space.
const (
	RegReset    uint8 = 0x00
	RegFTW      uint8 = 0x01
	RegPOW      uint8 = 0x02
	RegProfile  uint8 = 0x03
	RegIOUpdate uint8 = 0x04
)

// DeadTimeCycles is the minimum gap between consecutive writes to the same
// channel, per spec.md §4.4's "platform-defined minimum gap" (expressed in
// coarse RTIO cycles, not host milliseconds).
const DeadTimeCycles = 8

// Bridge is the runtime's handle to the RTIO/DDS fabric when no kernel is
// resident; once a kernel runs, ownership of the CSR surface transfers to
// it per spec.md §4.4.
type Bridge struct {
	csr     CSR
	cursor  Cursor
	started bool
	owned   bool // true while a kernel holds the bridge
}

// New wraps csr; the bridge starts unstarted (brg_start not yet called).
func New(csr CSR) *Bridge {
	return &Bridge{csr: csr}
}

// Start enables the bridge and sets the cursor to a safe future offset,
// per spec.md §4.4's brg_start. startCycle is the fabric's current coarse
// cycle count (read from a hardware counter on real boards).
func (b *Bridge) Start(startCycle uint64, margin uint64) {
	b.cursor = Cursor(startCycle + margin)
	b.started = true
}

// Cursor returns the current timeline position.
func (b *Bridge) Cursor() Cursor {
	return b.cursor
}

// Acquire marks the bridge as owned by a running kernel; the session engine
// must not issue Write/Read while owned, per spec.md §4.4.
func (b *Bridge) Acquire() {
	b.owned = true
}

// Release returns the bridge to the runtime (kloader_stop path).
func (b *Bridge) Release() {
	b.owned = false
}

// Owned reports whether a kernel currently holds the bridge.
func (b *Bridge) Owned() bool {
	return b.owned
}

// InitAllDDS runs each channel's reset + IO_UPDATE sequence with the
// mandated dead time, per spec.md §3/§4.4. Idempotent: safe to call
// multiple times (e.g. on supervisor boot and again after a kernel-induced
// hardware fault recovery).
func (b *Bridge) InitAllDDS() error {
	if !b.started {
		return errNotStarted
	}
	for ch := 0; ch < b.csr.ChannelCount(); ch++ {
		if err := b.writeAt(ch, RegReset, 1); err != nil {
			return err
		}
		if err := b.writeAt(ch, RegIOUpdate, 1); err != nil {
			return err
		}
	}
	return nil
}

var errNotStarted = errors.New("rtio: bridge not started")

// Write programs a DDS register for the caller-requested event cycle target
// and moves the cursor to target plus the dead time, per spec.md §4.4's
// timing contract; if target is at or before the current cursor, it's an
// underflow.
func (b *Bridge) Write(channel int, addr uint8, data uint32, target Cursor) error {
	if !b.started {
		return errNotStarted
	}
	if target <= b.cursor {
		return ErrUnderflow
	}
	b.csr.WriteReg(channel, addr, data)
	b.cursor = target + DeadTimeCycles
	return nil
}

func (b *Bridge) writeAt(channel int, addr uint8, data uint32) error {
	return b.Write(channel, addr, data, b.cursor+1)
}

// Read drives the DDS SPI shim to fetch a register value; reads don't
// advance the cursor (spec.md doesn't require read timing, only writes).
func (b *Bridge) Read(channel int, addr uint8) uint32 {
	return b.csr.ReadReg(channel, addr)
}

// ProgramFrequency is the common kernel-facing helper: set FTW/POW/profile
// for a channel and latch it with IO_UPDATE, at the given target cycle.
func (b *Bridge) ProgramFrequency(channel int, ch DDSChannel, target Cursor) error {
	if err := b.Write(channel, RegFTW, ch.FTW, target); err != nil {
		return err
	}
	if err := b.Write(channel, RegPOW, ch.POW, b.cursor+1); err != nil {
		return err
	}
	if err := b.Write(channel, RegProfile, uint32(ch.Profile), b.cursor+1); err != nil {
		return err
	}
	return b.Write(channel, RegIOUpdate, 1, b.cursor+1)
}

// NowMS converts a Cursor into an approximate wall-clock offset for
// diagnostics, using the board's coarse cycle rate; this is advisory only
// (the timeline itself is cycle-denominated, per spec.md §3).
func NowMS(c Cursor, cyclesPerMS uint64) uint32 {
	if cyclesPerMS == 0 {
		return 0
	}
	return uint32(uint64(c) / cyclesPerMS)
}
