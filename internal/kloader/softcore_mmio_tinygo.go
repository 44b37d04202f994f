//go:build tinygo

package kloader

import (
	"encoding/binary"
	"runtime/volatile"
	"unsafe"

	"openenterprise/artiqrt/internal/mailbox"
)

// SoftCoreMMIORegs is the production SoftCoreRegs: a small memory-mapped
// control-and-mailbox window gateware exposes for the OR1K soft core, per
// spec.md §1's "FPGA gateware itself ... consumed as a memory-mapped
// register file." The exact register map is this reimplementation's own
// choice (spec.md names no concrete layout beyond "word-sized channels");
// it follows the same base-plus-offset volatile.Register32 pattern
// internal/rtio.MMIOCSR and tinygo-org/pio both use for their own register
// windows.
//
// Layout, word-indexed from base:
//
//	0: ENTRY              -- kernel entry point offset
//	1: SUPPORT_BASE        -- AMP support blob base address
//	2: CTRL                -- write 1=start, 2=reset
//	3: MBOX_TO_RUNTIME_HDR -- tag:u8 | reserved:u8 | len:u16, 0 tag = empty
//	4: MBOX_TO_KERNEL_HDR  -- same shape, runtime->kernel direction
//
// followed by two dataWindowWords-word data windows (to-runtime, then
// to-kernel) carrying the variable-length payload serialized by
// encodeMailboxPayload/decodeMailboxPayload.
const (
	regEntry            = 0
	regSupportBase      = 1
	regCtrl             = 2
	regMboxToRuntimeHdr = 3
	regMboxToKernelHdr  = 4
	dataWindowWords     = 64 // 256 bytes per direction

	ctrlStart = 1
	ctrlReset = 2
)

// SoftCoreMMIORegs implements kloader.SoftCoreRegs against the register
// window described above.
type SoftCoreMMIORegs struct {
	base uintptr
}

// NewSoftCoreMMIORegs wraps the register window starting at base. base is
// sourced from boarddesc.Descriptor.SoftCoreRegsBase; a zero base means no
// soft core is present and callers should use NullInterpreter instead.
func NewSoftCoreMMIORegs(base uintptr) *SoftCoreMMIORegs {
	return &SoftCoreMMIORegs{base: base}
}

func (r *SoftCoreMMIORegs) reg(word uintptr) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(r.base + word*4))
}

func (r *SoftCoreMMIORegs) dataWindow(word uintptr) *volatile.Register32 {
	return r.reg(5 + word)
}

func (r *SoftCoreMMIORegs) toKernelDataWindow(word uintptr) *volatile.Register32 {
	return r.reg(5 + dataWindowWords + word)
}

func (r *SoftCoreMMIORegs) SetEntry(addr uint32)       { r.reg(regEntry).Set(addr) }
func (r *SoftCoreMMIORegs) SetSupportBase(addr uint32) { r.reg(regSupportBase).Set(addr) }
func (r *SoftCoreMMIORegs) Start()                     { r.reg(regCtrl).Set(ctrlStart) }
func (r *SoftCoreMMIORegs) Reset()                     { r.reg(regCtrl).Set(ctrlReset) }

func (r *SoftCoreMMIORegs) MailboxPresent() bool {
	return r.reg(regMboxToRuntimeHdr).Get()>>24 != uint32(mailbox.TagNone)
}

func (r *SoftCoreMMIORegs) MailboxRead() mailbox.Message {
	hdr := r.reg(regMboxToRuntimeHdr).Get()
	tag := mailbox.Tag(hdr >> 24)
	length := int(hdr & 0xFFFF)
	buf := make([]byte, length)
	for i := 0; i < length; i += 4 {
		word := r.dataWindow(uintptr(i / 4)).Get()
		var wordBuf [4]byte
		binary.LittleEndian.PutUint32(wordBuf[:], word)
		copy(buf[i:], wordBuf[:])
	}
	r.reg(regMboxToRuntimeHdr).Set(0)
	return decodeMailboxPayload(tag, buf)
}

func (r *SoftCoreMMIORegs) MailboxWrite(m mailbox.Message) {
	buf := encodeMailboxPayload(m)
	if len(buf) > dataWindowWords*4 {
		buf = buf[:dataWindowWords*4]
	}
	for i := 0; i < len(buf); i += 4 {
		var word [4]byte
		copy(word[:], buf[i:])
		r.toKernelDataWindow(uintptr(i / 4)).Set(binary.LittleEndian.Uint32(word[:]))
	}
	r.reg(regMboxToKernelHdr).Set(uint32(m.Tag)<<24 | uint32(len(buf))&0xFFFF)
}

// encodeMailboxPayload serializes the variable-length part of m (service
// ID/arg tag/bytes for RPC, kind/text for exceptions, the raw log bytes, or
// the u64 cursor for NOW_SAVE) into a flat byte slice for the shared data
// window. An exception's Backtrace is not encoded.
func encodeMailboxPayload(m mailbox.Message) []byte {
	switch m.Tag {
	case mailbox.TagRPCCall, mailbox.TagRPCReply:
		out := make([]byte, 4+1+len(m.Bytes))
		binary.LittleEndian.PutUint32(out[0:4], m.ServiceID)
		out[4] = m.ArgTag
		copy(out[5:], m.Bytes)
		return out
	case mailbox.TagException:
		out := make([]byte, 0, 4+len(m.ExceptionKind)+len(m.Text))
		out = appendLenPrefixed(out, []byte(m.ExceptionKind))
		out = appendLenPrefixed(out, []byte(m.Text))
		return out
	case mailbox.TagLog:
		return m.Bytes
	case mailbox.TagNowSave:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], m.Now)
		return buf[:]
	default:
		return nil
	}
}

func decodeMailboxPayload(tag mailbox.Tag, buf []byte) mailbox.Message {
	m := mailbox.Message{Tag: tag}
	switch tag {
	case mailbox.TagRPCCall, mailbox.TagRPCReply:
		if len(buf) >= 5 {
			m.ServiceID = binary.LittleEndian.Uint32(buf[0:4])
			m.ArgTag = buf[4]
			m.Bytes = buf[5:]
		}
	case mailbox.TagException:
		kind, rest := readLenPrefixed(buf)
		text, _ := readLenPrefixed(rest)
		m.ExceptionKind = string(kind)
		m.Text = string(text)
	case mailbox.TagLog:
		m.Bytes = buf
	case mailbox.TagNowSave:
		if len(buf) >= 8 {
			m.Now = binary.LittleEndian.Uint64(buf)
		}
	}
	return m
}

func appendLenPrefixed(out []byte, b []byte) []byte {
	var lb [2]byte
	binary.LittleEndian.PutUint16(lb[:], uint16(len(b)))
	out = append(out, lb[:]...)
	return append(out, b...)
}

func readLenPrefixed(buf []byte) (field []byte, rest []byte) {
	if len(buf) < 2 {
		return nil, nil
	}
	n := int(binary.LittleEndian.Uint16(buf[:2]))
	buf = buf[2:]
	if n > len(buf) {
		n = len(buf)
	}
	return buf[:n], buf[n:]
}
