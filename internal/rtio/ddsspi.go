//go:build tinygo

package rtio

import (
	"github.com/tinygo-org/pio"
)

// PIOSPI bit-bangs the DDS SPI shim over an RP2040 PIO state machine, used
// on board variants whose descriptor reports no dedicated hardware DDS-SPI
// core (boarddesc.Descriptor.HasHardwareDDSSPI == false). Each 32-bit word
// pushed to the state machine's TX FIFO is shifted out MSB-first on the
// shared CLK/MOSI pins the way a real DDS-SPI core would, one channel's
// chip-select held low externally by the caller.
type PIOSPI struct {
	sm       pio.StateMachine
	channels int
}

// NewPIOSPI claims a state machine on p and programs it to shift out
// 32-bit words MSB-first at the given clock divider. channels is the
// number of DDS channels multiplexed over this one shared bus (the
// board descriptor's DDSChannelCount), since the state machine itself
// addresses no particular channel count.
func NewPIOSPI(p *pio.PIO, smIndex uint8, clkDiv uint32, channels int) *PIOSPI {
	sm := p.StateMachine(smIndex)
	cfg := pio.DefaultStateMachineConfig()
	cfg.ClkDiv = clkDiv
	sm.Init(0, cfg)
	sm.SetEnabled(true)
	return &PIOSPI{sm: sm, channels: channels}
}

// WriteReg implements rtio.CSR for boards bit-banging the DDS bus: it packs
// channel/addr/data into the word format the DDS SPI shim expects and
// shifts it out via the state machine's TX FIFO.
func (s *PIOSPI) WriteReg(channel int, addr uint8, data uint32) {
	word := ddsSPIWord(channel, addr, data)
	for s.sm.IsTxFIFOFull() {
	}
	s.sm.TxPut(word)
}

// ReadReg is not implemented on the bit-banged path: the reference board
// variants with no hardware DDS-SPI core are write-only telemetry targets,
// so callers needing register reads must use the hardware CSR path.
func (s *PIOSPI) ReadReg(channel int, addr uint8) uint32 {
	return 0
}

func (s *PIOSPI) ChannelCount() int {
	return s.channels
}

// ddsSPIWord packs a channel/address/data triple into the wire word the
// DDS shim expects: channel in the top byte, address in the next byte, and
// the low 16 bits of data (the shim only carries 16-bit payloads per
// write).
func ddsSPIWord(channel int, addr uint8, data uint32) uint32 {
	return uint32(byte(channel))<<24 | uint32(addr)<<16 | (data & 0xFFFF)
}
