// Package session implements the framed binary request/reply state machine
// described in spec.md §4.6: a single-threaded engine consuming bytes from
// the active TCP connection and emitting replies, dispatching to the
// kernel loader, flash KV store, log ring, and RTIO bridge.
//
// Grounded on console.go's telnet session loop (read-what's-available,
// process, reply, never block) and mqtt.go's request/response client
// shape, generalized from line-oriented telnet commands to the length-
// prefixed binary frames spec.md §4.6/§6 specifies.
package session

import (
	"encoding/binary"
	"errors"

	"openenterprise/artiqrt/internal/config"
)

// Magic bytes distinguish the control channel from the kernel-RPC
// sub-channel multiplexed on the same TCP connection, per spec.md §4.6.
// These alias internal/config's FrameMagicControl/FrameMagicKernel so the
// wire-format constants have one source of truth.
const (
	MagicControl byte = config.FrameMagicControl
	MagicKernel  byte = config.FrameMagicKernel
)

// FrameHeaderLen is magic:u8 | type:u8 | len:u32_be.
const FrameHeaderLen = config.FrameHeaderLen

// MaxFrameLen bounds a single frame's payload so a corrupt length field
// can't make the decoder try to buffer unbounded memory.
const MaxFrameLen = 1 << 20

var (
	ErrFrameTooLarge = errors.New("session: frame exceeds maximum length")
	ErrBadMagic      = errors.New("session: unrecognized frame magic byte")
)

// Frame is one decoded wire message.
type Frame struct {
	Magic   byte
	Type    byte
	Payload []byte
}

// EncodeFrame serializes f into the wire format. Byte order is little-
// endian for scalars generally, but the frame length field is explicitly
// big-endian per spec.md §4.6/§6.
func EncodeFrame(f Frame) []byte {
	out := make([]byte, FrameHeaderLen+len(f.Payload))
	out[0] = f.Magic
	out[1] = f.Type
	binary.BigEndian.PutUint32(out[2:6], uint32(len(f.Payload)))
	copy(out[6:], f.Payload)
	return out
}

// Decoder incrementally reassembles frames from a byte stream that may
// arrive split across multiple network reads, per spec.md §4.6's "partial
// frames are buffered" requirement. It never blocks: Feed just appends to
// an internal buffer and Next pops as many complete frames as are
// available.
type Decoder struct {
	buf []byte
}

// Feed appends newly received bytes to the decode buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf = append(d.buf, p...)
}

// Next pops one complete frame if available. ok is false (with no error)
// when more bytes are needed; err is non-nil only for a malformed header
// that can never become valid (bad magic or an oversized length field),
// which callers should treat as a fatal protocol error per spec.md §7.
func (d *Decoder) Next() (frame Frame, ok bool, err error) {
	if len(d.buf) < FrameHeaderLen {
		return Frame{}, false, nil
	}
	magic := d.buf[0]
	if magic != MagicControl && magic != MagicKernel {
		return Frame{}, false, ErrBadMagic
	}
	typ := d.buf[1]
	length := binary.BigEndian.Uint32(d.buf[2:6])
	if length > MaxFrameLen {
		return Frame{}, false, ErrFrameTooLarge
	}
	total := FrameHeaderLen + int(length)
	if len(d.buf) < total {
		return Frame{}, false, nil
	}
	payload := make([]byte, length)
	copy(payload, d.buf[FrameHeaderLen:total])
	d.buf = append(d.buf[:0], d.buf[total:]...)
	return Frame{Magic: magic, Type: typ, Payload: payload}, true, nil
}

// Pending reports how many undecoded bytes remain buffered.
func (d *Decoder) Pending() int {
	return len(d.buf)
}
