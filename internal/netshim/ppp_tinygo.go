//go:build tinygo

package netshim

import (
	"machine"
)

// PPP byte-stuffing constants (RFC 1662 HDLC-like framing), the same
// escaping pppos_input applies on the original firmware's serial path.
const (
	pppFlag    = 0x7e
	pppEscape  = 0x7d
	pppXOR     = 0x20
)

// SerialLine feeds bytes from a UART into a PPPoS-style frame reassembler
// and hands completed frames to onFrame. There's no wired pack library for
// PPP-over-serial framing — lneto's transport surface used elsewhere in
// this tree (tcp.Conn, x/xnet.StackAsync) covers Ethernet framing only — so
// this is hand-rolled against RFC 1662, the same byte-stuffing scheme
// pppos_input implements, generalized from "feed one byte at a time" to a
// buffered read loop.
type SerialLine struct {
	uart    *machine.UART
	onFrame func(frame []byte)

	buf      [1500]byte
	n        int
	escaped  bool
}

// NewSerialLine wires uart to onFrame, called once per de-escaped,
// flag-delimited frame.
func NewSerialLine(uart *machine.UART, onFrame func(frame []byte)) *SerialLine {
	return &SerialLine{uart: uart, onFrame: onFrame}
}

// Poll drains whatever bytes are currently buffered in the UART, the polled
// sio_write/pppos_input equivalent spec.md §4.7 describes for the serial
// netif. It never blocks.
func (s *SerialLine) Poll() {
	for s.uart.Buffered() > 0 {
		b, err := s.uart.ReadByte()
		if err != nil {
			return
		}
		s.feed(b)
	}
}

func (s *SerialLine) feed(b byte) {
	switch {
	case b == pppFlag:
		if s.n > 0 {
			frame := make([]byte, s.n)
			copy(frame, s.buf[:s.n])
			s.onFrame(frame)
		}
		s.n = 0
		s.escaped = false
	case b == pppEscape:
		s.escaped = true
	default:
		if s.escaped {
			b ^= pppXOR
			s.escaped = false
		}
		if s.n < len(s.buf) {
			s.buf[s.n] = b
			s.n++
		}
	}
}

// Write escapes and frames payload, then writes it to the UART.
func (s *SerialLine) Write(payload []byte) (int, error) {
	out := make([]byte, 0, len(payload)+4)
	out = append(out, pppFlag)
	for _, b := range payload {
		if b == pppFlag || b == pppEscape {
			out = append(out, pppEscape, b^pppXOR)
		} else {
			out = append(out, b)
		}
	}
	out = append(out, pppFlag)
	return s.uart.Write(out)
}
