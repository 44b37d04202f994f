// Package mailbox implements the one-slot-per-direction cross-CPU message
// channel between the runtime and a running kernel, per spec.md §3/§4.5.
//
// On AMP boards this models real shared-memory IPC between two cores; on UP
// boards (and in host tests) the same Channel type is used between the
// runtime and the kernel goroutine, since the message-passing discipline
// (exactly one in-flight message per direction, producer/consumer flags) is
// identical either way.
package mailbox

// Tag identifies the variant carried by a Message.
type Tag uint8

const (
	TagNone Tag = iota
	TagRunFinished
	TagException
	TagRPCCall
	TagRPCReply
	TagLog
	TagNowSave
)

func (t Tag) String() string {
	switch t {
	case TagRunFinished:
		return "RUN_FINISHED"
	case TagException:
		return "EXCEPTION"
	case TagRPCCall:
		return "RPC_CALL"
	case TagRPCReply:
		return "RPC_REPLY"
	case TagLog:
		return "LOG"
	case TagNowSave:
		return "NOW_SAVE"
	default:
		return "NONE"
	}
}

// Message is the tagged-union payload exchanged between runtime and kernel.
type Message struct {
	Tag Tag

	// RPCCall / RPCReply
	ServiceID uint32
	ArgTag    uint8
	Bytes     []byte

	// Exception
	ExceptionKind string
	Text          string
	Backtrace     []uint32

	// NowSave
	Now uint64
}

// direction is one single-slot channel with producer/consumer flags,
// matching the one-word mailbox hardware: at most one message in flight,
// never queued.
type direction struct {
	msg    Message
	full   bool
	closed bool
}

func (d *direction) send(m Message) bool {
	if d.closed || d.full {
		return false
	}
	d.msg = m
	d.full = true
	return true
}

func (d *direction) recv() (Message, bool) {
	if !d.full {
		return Message{}, false
	}
	m := d.msg
	d.full = false
	d.msg = Message{}
	return m, true
}

// Channel is a pair of single-slot mailboxes, one per direction: kernel→
// runtime and runtime→kernel.
type Channel struct {
	toRuntime direction
	toKernel  direction
}

// New returns an empty, open Channel.
func New() *Channel {
	return &Channel{}
}

// SendToRuntime is called by the kernel side. Returns false if the slot
// already holds an undelivered message (the kernel side must not overrun
// the runtime's drain rate).
func (c *Channel) SendToRuntime(m Message) bool {
	return c.toRuntime.send(m)
}

// RecvFromKernel is called by the runtime side, non-blocking.
func (c *Channel) RecvFromKernel() (Message, bool) {
	return c.toRuntime.recv()
}

// SendToKernel is called by the runtime side, typically an RPC_REPLY.
func (c *Channel) SendToKernel(m Message) bool {
	return c.toKernel.send(m)
}

// RecvFromRuntime is called by the kernel side, non-blocking.
func (c *Channel) RecvFromRuntime() (Message, bool) {
	return c.toKernel.recv()
}

// Reset clears both slots, used by kloader_stop to return the mailbox to a
// known-empty state regardless of in-flight messages.
func (c *Channel) Reset() {
	c.toRuntime = direction{}
	c.toKernel = direction{}
}

// Close marks the channel closed; further sends fail until Reset reopens
// both directions. The kernel stop paths call Reset, not Close.
func (c *Channel) Close() {
	c.toRuntime.closed = true
	c.toKernel.closed = true
}
