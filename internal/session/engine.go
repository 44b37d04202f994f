package session

import (
	"encoding/binary"
	"strings"

	"openenterprise/artiqrt/internal/kloader"
	"openenterprise/artiqrt/internal/kvstore"
	"openenterprise/artiqrt/internal/logring"
	"openenterprise/artiqrt/internal/mailbox"
	"openenterprise/artiqrt/internal/monitor"
	"openenterprise/artiqrt/internal/rterr"
	"openenterprise/artiqrt/internal/rtio"
)

// State is the session's position in the lifecycle spec.md §3 defines.
type State uint8

const (
	StateIdle State = iota
	StateKernelLoading
	StateKernelRunning
	StateRPCWait
	StateRPCReply
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateKernelLoading:
		return "KERNEL_LOADING"
	case StateKernelRunning:
		return "KERNEL_RUNNING"
	case StateRPCWait:
		return "RPC_WAIT"
	case StateRPCReply:
		return "RPC_REPLY"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Request types, per spec.md §4.6.
const (
	ReqIdent       byte = iota // -> RepIdent
	ReqLog                     // -> RepLog
	ReqFlashRead               // key -> RepFlashData (zero-length value when the key can't be read)
	ReqFlashWrite              // key\0value -> RepOK | RepError
	ReqFlashRemove             // key -> RepOK | RepError
	ReqFlashErase              // -> RepOK | RepError
	ReqSwitchClock             // source:u8 -> RepOK | RepError (outside IDLE)
	ReqLoadKernel              // image bytes -> RepOK | RepError
	ReqRunKernel               // name -> RepOK | RepError (async completion arrives as RepKernelRunFinished/RepKernelException)
	ReqRPCReplyMsg             // ret_tag:u8 | ret_bytes -> RepOK | RepError (outside RPC_WAIT)
	ReqStopKernel              // -> RepOK | RepError
)

// Reply types.
const (
	RepOK                 byte = iota
	RepError                   // kind:u8 | code_len:u8 | code | message
	RepIdent                   // build string
	RepLog                     // log snapshot
	RepFlashData               // len:u16 | value
	RepKernelRunFinished       // terminal
	RepKernelException         // kind:u8 | exception_kind:u16-prefixed | text:u16-prefixed | drained_log:u16-prefixed
	RepRPCCall                 // service_id:u32 | arg_tag:u8 | arg_bytes
)

// Engine is the single active session's request dispatcher. One Engine
// handles the one control-port session spec.md §3 allows at a time.
type Engine struct {
	ident  string
	store  *kvstore.Store
	log    *logring.Ring
	loader *kloader.Loader
	bridge *rtio.Bridge

	state    State
	counters *monitor.Counters
}

// AttachCounters wires the shared fleet-counter struct the monitor port and
// internal/telemetry read, so a kernel run's outcome is visible there too.
// Optional: a nil counters pointer (the zero value of Engine) skips updates.
func (e *Engine) AttachCounters(c *monitor.Counters) {
	e.counters = c
}

// New constructs an Engine in the IDLE state.
func New(ident string, store *kvstore.Store, log *logring.Ring, loader *kloader.Loader, bridge *rtio.Bridge) *Engine {
	return &Engine{ident: ident, store: store, log: log, loader: loader, bridge: bridge, state: StateIdle}
}

func (e *Engine) State() State {
	return e.state
}

// Reply is the decoded result of one Dispatch call, ready for EncodeFrame.
type Reply struct {
	Type    byte
	Payload []byte
}

// errorReply builds a RepError payload carrying kind, an optional
// host-facing code (spec.md §8 scenario S3's BAD_IMAGE is one such code;
// empty when the failure has no stable identifier beyond its kind), and a
// free-text message.
func errorReply(kind rterr.Kind, code, msg string) Reply {
	payload := make([]byte, 0, 2+len(code)+len(msg))
	payload = append(payload, byte(kind), byte(len(code)))
	payload = append(payload, code...)
	payload = append(payload, msg...)
	return Reply{Type: RepError, Payload: payload}
}

// errorReplyErr wraps err into a RepError reply, using err's own
// rterr.Kind/Code when it is (or wraps) an *rterr.Error and falling back to
// defaultKind with no code otherwise.
func errorReplyErr(defaultKind rterr.Kind, err error) Reply {
	kind, code, msg := rterr.Split(defaultKind, err)
	return errorReply(kind, code, msg)
}

// Dispatch processes one request frame's payload against the current
// state and returns the reply to send back, advancing e.state as a side
// effect. Out-of-state requests get an error reply without otherwise
// changing state, per spec.md §7's protocol-error policy.
func (e *Engine) Dispatch(reqType byte, payload []byte) Reply {
	switch reqType {
	case ReqIdent:
		return Reply{Type: RepIdent, Payload: []byte(e.ident)}

	case ReqLog:
		snap := e.log.GetAndClear()
		return Reply{Type: RepLog, Payload: snap}

	case ReqFlashRead:
		return e.handleFlashRead(payload)

	case ReqFlashWrite:
		return e.handleFlashWrite(payload)

	case ReqFlashRemove:
		if err := e.store.Remove(string(payload)); err != nil {
			return errorReplyErr(rterr.KindResource, err)
		}
		return Reply{Type: RepOK}

	case ReqFlashErase:
		if err := e.store.Erase(); err != nil {
			return errorReplyErr(rterr.KindUnrecoverable, err)
		}
		return Reply{Type: RepOK}

	case ReqSwitchClock:
		// The bridge belongs to the runtime only in IDLE, per spec.md §4.4.
		if e.state != StateIdle {
			return errorReplyErr(rterr.KindResource, rterr.ErrBridgeBusy)
		}
		return Reply{Type: RepOK}

	case ReqLoadKernel:
		return e.handleLoadKernel(payload)

	case ReqRunKernel:
		return e.handleRunKernel(payload)

	case ReqRPCReplyMsg:
		return e.handleRPCReply(payload)

	case ReqStopKernel:
		return e.handleStopKernel()

	default:
		return errorReply(rterr.KindProtocol, "", "unknown request type")
	}
}

func (e *Engine) handleFlashRead(key []byte) Reply {
	val, err := e.store.Read(string(key))
	if err != nil {
		// Not found is not a fault: spec.md §4.3 fs_read returns 0 for a
		// missing or logically-deleted key, not an error.
		return Reply{Type: RepFlashData, Payload: encodeU16Prefixed(nil)}
	}
	return Reply{Type: RepFlashData, Payload: encodeU16Prefixed(val)}
}

func encodeU16Prefixed(v []byte) []byte {
	out := make([]byte, 2+len(v))
	binary.LittleEndian.PutUint16(out[:2], uint16(len(v)))
	copy(out[2:], v)
	return out
}

func (e *Engine) handleFlashWrite(payload []byte) Reply {
	nul := -1
	for i, b := range payload {
		if b == 0 {
			nul = i
			break
		}
	}
	if nul < 0 {
		return errorReply(rterr.KindProtocol, "", "malformed flash write payload")
	}
	key := string(payload[:nul])
	value := payload[nul+1:]
	if err := e.store.Write(key, value); err != nil {
		return errorReplyErr(rterr.KindResource, err)
	}
	return Reply{Type: RepOK}
}

// handleLoadKernel covers spec.md §8 scenario S3: a malformed image header
// produces an error reply distinguishable by rterr.ErrBadImage's "BAD_IMAGE"
// code, not just by its free-text message.
func (e *Engine) handleLoadKernel(image []byte) Reply {
	if e.state != StateIdle {
		return errorReply(rterr.KindProtocol, "", "not idle")
	}
	e.state = StateKernelLoading
	if err := e.loader.Load(image); err != nil {
		e.state = StateIdle
		return errorReplyErr(rterr.KindResource, err)
	}
	e.state = StateIdle
	return Reply{Type: RepOK}
}

func (e *Engine) handleRunKernel(name []byte) Reply {
	if e.state != StateIdle {
		return errorReply(rterr.KindProtocol, "", "not idle")
	}
	if err := e.loader.Start(string(name)); err != nil {
		return errorReplyErr(rterr.KindResource, err)
	}
	e.state = StateKernelRunning
	return Reply{Type: RepOK}
}

// handleRPCReply is only valid in RPC_WAIT, per spec.md §4.6: "Until the
// kernel exits, the engine only handles RPC_REPLY and STOP_KERNEL."
func (e *Engine) handleRPCReply(payload []byte) Reply {
	if e.state != StateRPCWait {
		return errorReply(rterr.KindProtocol, "", "no RPC pending")
	}
	if len(payload) < 1 {
		return errorReply(rterr.KindProtocol, "", "malformed rpc reply")
	}
	retTag := payload[0]
	retBytes := payload[1:]
	e.loader.SendMailbox(mailbox.Message{Tag: mailbox.TagRPCReply, ArgTag: retTag, Bytes: retBytes})
	e.state = StateKernelRunning
	return Reply{Type: RepOK}
}

// handleStopKernel is idempotent per spec.md §8 property 5: stopping an
// already-idle engine still returns success.
func (e *Engine) handleStopKernel() Reply {
	if err := e.loader.Stop(); err != nil {
		return errorReplyErr(rterr.KindUnrecoverable, err)
	}
	e.state = StateIdle
	return Reply{Type: RepOK}
}

// PollMailbox drains any pending kernel→runtime mailbox message and
// returns the reply frame it produces, if any. The caller (the service
// loop) invokes this once per iteration while KERNEL_RUNNING or RPC_WAIT;
// ok is false when there's nothing to report this round.
func (e *Engine) PollMailbox() (Reply, bool) {
	m, ok := e.loader.RecvMailbox()
	if !ok {
		return Reply{}, false
	}
	switch m.Tag {
	case mailbox.TagLog:
		e.log.Write(m.Bytes)
		return Reply{}, false

	case mailbox.TagRPCCall:
		e.state = StateRPCWait
		payload := make([]byte, 4+1+len(m.Bytes))
		binary.LittleEndian.PutUint32(payload[:4], m.ServiceID)
		payload[4] = m.ArgTag
		copy(payload[5:], m.Bytes)
		return Reply{Type: RepRPCCall, Payload: payload}, true

	case mailbox.TagRunFinished:
		e.loader.Stop()
		e.state = StateIdle
		if e.counters != nil {
			e.counters.KernelRunCount++
		}
		return Reply{Type: RepKernelRunFinished}, true

	case mailbox.TagException:
		// Drain the log atomically into the fault reply payload before
		// releasing the session to a new request, per spec.md §9's
		// resolved Open Question on LOG/STOP_KERNEL ordering.
		drained := e.log.GetAndClear()
		e.loader.Stop()
		e.state = StateIdle
		if e.counters != nil {
			e.counters.FaultCount++
			e.counters.KernelRunCount++
			if m.ExceptionKind == rterr.ErrRTIOUnderflow.Code || strings.Contains(m.ExceptionKind, "UNDERFLOW") {
				e.counters.UnderflowCount++
			}
		}
		payload := buildExceptionPayload(m, drained)
		return Reply{Type: RepKernelException, Payload: payload}, true

	case mailbox.TagNowSave:
		// Persisted for host telemetry (SPEC_FULL.md §5's NowSave), surfaced
		// through the monitor port's counters reply rather than a reply frame
		// of its own on the control channel.
		if e.counters != nil {
			e.counters.LastNowSave = m.Now
		}
		return Reply{}, false

	default:
		return Reply{}, false
	}
}

func buildExceptionPayload(m mailbox.Message, drainedLog []byte) []byte {
	kindLen := len(m.ExceptionKind)
	textLen := len(m.Text)
	out := make([]byte, 0, 1+2+kindLen+2+textLen+2+len(drainedLog))
	out = append(out, byte(rterr.KindKernelFault))
	out = appendU16String(out, m.ExceptionKind)
	out = appendU16String(out, m.Text)
	out = appendU16Bytes(out, drainedLog)
	return out
}

func appendU16String(out []byte, s string) []byte {
	return appendU16Bytes(out, []byte(s))
}

func appendU16Bytes(out []byte, b []byte) []byte {
	var lb [2]byte
	binary.LittleEndian.PutUint16(lb[:], uint16(len(b)))
	out = append(out, lb[:]...)
	return append(out, b...)
}
