// Package monitor implements the always-on secondary port spec.md §4.6
// describes: read-only RTIO counters and manual TTL/DDS overrides when no
// kernel is running, coexisting with the control-port session.
//
// Grounded on console.go's read-only status commands (cmdStatus, cmdNet,
// cmdWifi) adapted from line-oriented telnet text to a small binary
// format: each request is one type byte followed by its payload, and each
// reply is type:u8 | len:u32_be | payload. There is no magic byte and no
// internal/session frame header on this port.
package monitor

import (
	"encoding/binary"

	"openenterprise/artiqrt/internal/rterr"
	"openenterprise/artiqrt/internal/rtio"
)

// Request types for the monitor port, deliberately small per spec.md §4.6.
const (
	ReqCounters byte = iota // -> RepCounters
	ReqTTLSet               // channel:u8 | level:u8 -> RepOK | RepError (rejected while a kernel runs)
	ReqDDSWrite             // channel:u8 | addr:u8 | data:u32 -> RepOK | RepError
)

const (
	RepOK       byte = iota
	RepError         // kind:u8 | code_len:u8 | code | message
	RepCounters      // cursor:u64 | underflow_count:u32 | fault_count:u32 | kernel_run_count:u32 | compaction_count:u32 | last_now_save:u64
)

// Counters tracks the read-only statistics the monitor port exposes and
// internal/telemetry publishes. The session engine updates KernelRunCount,
// FaultCount, LastNowSave, and UnderflowCount (for kernel underflow
// exceptions) as kernel runs complete; the monitor itself also bumps
// UnderflowCount for its own direct TTL/DDS writes. Nothing in this tree
// writes CompactionCount, so the counters reply carries whatever value the
// owner stored there.
type Counters struct {
	UnderflowCount  uint32
	FaultCount      uint32
	KernelRunCount  uint32
	CompactionCount uint32
	LastNowSave     uint64
}

// Monitor serves the injection/introspection request set. kernelRunning
// reports whether the control-port session currently owns the bridge; the
// monitor consults it before any override write, per spec.md §4.6.
type Monitor struct {
	bridge         *rtio.Bridge
	counters       *Counters
	kernelRunning  func() bool
}

func New(bridge *rtio.Bridge, counters *Counters, kernelRunning func() bool) *Monitor {
	return &Monitor{bridge: bridge, counters: counters, kernelRunning: kernelRunning}
}

type Reply struct {
	Type    byte
	Payload []byte
}

// errorReply uses the same RepError payload layout as internal/session, so
// both ports' error payloads decode the same way.
func errorReply(kind rterr.Kind, code, msg string) Reply {
	payload := make([]byte, 0, 2+len(code)+len(msg))
	payload = append(payload, byte(kind), byte(len(code)))
	payload = append(payload, code...)
	payload = append(payload, msg...)
	return Reply{Type: RepError, Payload: payload}
}

// errorReplyErr surfaces err's host-facing code (e.g. rterr.ErrBridgeBusy's
// BRIDGE_BUSY) when err is a *rterr.Error, falling back to defaultKind with
// no code otherwise.
func errorReplyErr(defaultKind rterr.Kind, err error) Reply {
	kind, code, msg := rterr.Split(defaultKind, err)
	return errorReply(kind, code, msg)
}

// Dispatch handles one monitor-port request.
func (m *Monitor) Dispatch(reqType byte, payload []byte) Reply {
	switch reqType {
	case ReqCounters:
		out := make([]byte, 8+4+4+4+4+8)
		binary.LittleEndian.PutUint64(out[0:8], uint64(m.bridge.Cursor()))
		binary.LittleEndian.PutUint32(out[8:12], m.counters.UnderflowCount)
		binary.LittleEndian.PutUint32(out[12:16], m.counters.FaultCount)
		binary.LittleEndian.PutUint32(out[16:20], m.counters.KernelRunCount)
		binary.LittleEndian.PutUint32(out[20:24], m.counters.CompactionCount)
		binary.LittleEndian.PutUint64(out[24:32], m.counters.LastNowSave)
		return Reply{Type: RepCounters, Payload: out}

	case ReqTTLSet:
		if m.kernelRunning() {
			return errorReplyErr(rterr.KindResource, rterr.ErrBridgeBusy)
		}
		if len(payload) < 2 {
			return errorReply(rterr.KindProtocol, "", "malformed ttl set")
		}
		channel := int(payload[0])
		level := payload[1]
		target := m.bridge.Cursor() + 1
		var data uint32
		if level != 0 {
			data = 1
		}
		if err := m.bridge.Write(channel, 0, data, target); err != nil {
			m.counters.UnderflowCount++
			return errorReplyErr(rterr.KindKernelFault, err)
		}
		return Reply{Type: RepOK}

	case ReqDDSWrite:
		if m.kernelRunning() {
			return errorReplyErr(rterr.KindResource, rterr.ErrBridgeBusy)
		}
		if len(payload) < 6 {
			return errorReply(rterr.KindProtocol, "", "malformed dds write")
		}
		channel := int(payload[0])
		addr := payload[1]
		data := binary.LittleEndian.Uint32(payload[2:6])
		target := m.bridge.Cursor() + 1
		if err := m.bridge.Write(channel, addr, data, target); err != nil {
			m.counters.UnderflowCount++
			return errorReplyErr(rterr.KindKernelFault, err)
		}
		return Reply{Type: RepOK}

	default:
		return errorReply(rterr.KindProtocol, "", "unknown monitor request")
	}
}
