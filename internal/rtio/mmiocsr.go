//go:build tinygo

package rtio

import (
	"runtime/volatile"
	"unsafe"
)

// MMIOCSR drives the RTIO/DDS CSR surface as memory-mapped registers, per
// spec.md §6: "CSR surface (consumed from gateware, not defined here)."
// The exact register map is gateware-defined and supplied by the board
// descriptor at boot (base address and per-channel stride); this mirrors
// the base-plus-offset volatile.Register32 pattern tinygo-org/pio uses for
// its own PIO state-machine register windows.
type MMIOCSR struct {
	base     uintptr
	stride   uintptr
	channels int
}

// NewMMIOCSR wraps the register window starting at base, with channels
// channels spaced stride bytes apart. A missing CSR (base == 0) disables
// the corresponding feature at the caller's discretion, per spec.md §6.
func NewMMIOCSR(base uintptr, stride uintptr, channels int) *MMIOCSR {
	return &MMIOCSR{base: base, stride: stride, channels: channels}
}

func (m *MMIOCSR) reg(channel int, addr uint8) *volatile.Register32 {
	off := uintptr(channel)*m.stride + uintptr(addr)*4
	return (*volatile.Register32)(unsafe.Pointer(m.base + off))
}

func (m *MMIOCSR) WriteReg(channel int, addr uint8, data uint32) {
	m.reg(channel, addr).Set(data)
}

func (m *MMIOCSR) ReadReg(channel int, addr uint8) uint32 {
	return m.reg(channel, addr).Get()
}

func (m *MMIOCSR) ChannelCount() int {
	return m.channels
}
