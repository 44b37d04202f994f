// Package rterr defines the runtime's error taxonomy (spec.md §7). Kinds,
// not names: every error the runtime surfaces to the host carries one of
// these, wire-encoded as a single byte by internal/session, plus an
// optional host-facing code string (e.g. "BAD_IMAGE" from spec.md §8's
// scenario S3) that lets the host distinguish error causes within a Kind
// without parsing free-text messages.
//
// This follows the teacher's flat sentinel-error style (ota.ErrConfirmFailed,
// ota.ErrImageTooLarge, ...) generalized into a small Kind enum plus a typed
// Error wrapper, so the session engine can encode both the kind and a stable
// code on the wire instead of string-matching a free-text message.
package rterr

import "errors"

// Kind classifies an error for wire encoding and recovery policy.
type Kind uint8

const (
	// KindNone marks the zero value; never sent on the wire.
	KindNone Kind = iota
	// KindProtocol: malformed frame or unexpected message in current state.
	KindProtocol
	// KindResource: flash full, image too large, bridge busy.
	KindResource
	// KindKernelFault: RTIO underflow, unhandled kernel exception, bus error.
	KindKernelFault
	// KindHardwareFault: missing link, DDS calibration failure.
	KindHardwareFault
	// KindUnrecoverable: stack canary tripped, flash erase verify failure.
	KindUnrecoverable
)

// String names a Kind for logging.
func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindResource:
		return "resource"
	case KindKernelFault:
		return "kernel_fault"
	case KindHardwareFault:
		return "hardware_fault"
	case KindUnrecoverable:
		return "unrecoverable"
	default:
		return "none"
	}
}

// Error pairs a Kind with an underlying cause and a host-facing code string
// (e.g. "BAD_IMAGE", "RTIO_UNDERFLOW" from spec.md §8).
type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String() + ": " + e.Code
	}
	return e.Kind.String() + ": " + e.Code + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error of the given kind and host-facing code.
func New(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

// Split extracts the wire-facing (Kind, Code, message) for err: if err is
// (or wraps) an *Error, its own Kind/Code win over defaultKind; otherwise
// defaultKind is used with an empty code, since not every error path has a
// specific host-facing identifier. Used by internal/session and
// internal/monitor so both encode RepError payloads the same way.
func Split(defaultKind Kind, err error) (kind Kind, code string, msg string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, e.Code, e.Error()
	}
	return defaultKind, "", err.Error()
}

// Sentinel causes the runtime surfaces as typed, coded errors, analogous to
// the teacher's ota.Err* values. Each pairs a stable host-facing Code with
// the Kind spec.md §7's taxonomy assigns it.
var (
	// ErrBadImage: spec.md §8 scenario S3, a LOAD_KERNEL payload that fails
	// header validation.
	ErrBadImage = New(KindResource, "BAD_IMAGE", errors.New("kernel image header invalid"))
	// ErrImageTooLarge: the image body exceeds the kernel memory window.
	ErrImageTooLarge = New(KindResource, "IMAGE_TOO_LARGE", errors.New("kernel image exceeds memory window"))
	// ErrSupportTooLarge: the AMP support blob exceeds its 32 KiB ceiling.
	ErrSupportTooLarge = New(KindResource, "SUPPORT_TOO_LARGE", errors.New("support blob exceeds 32 KiB"))
	// ErrFlashFull: fs_write still doesn't fit after compaction.
	ErrFlashFull = New(KindResource, "FLASH_FULL", errors.New("flash region has insufficient free space"))
	// ErrBridgeBusy: the bridge belongs to the running kernel, per spec.md
	// §4.4 ("the session engine may issue bridge calls only in IDLE").
	ErrBridgeBusy = New(KindResource, "BRIDGE_BUSY", errors.New("rtio bridge owned by running kernel"))
	// ErrRTIOUnderflow: spec.md §8 scenario S5, an event scheduled at or
	// before the current RTIO cursor.
	ErrRTIOUnderflow = New(KindKernelFault, "RTIO_UNDERFLOW", errors.New("rtio event scheduled at or before now"))
	// ErrNoActiveKernel: RUN_KERNEL requested with no image resident.
	ErrNoActiveKernel = New(KindResource, "NO_ACTIVE_KERNEL", errors.New("no kernel resident"))
)
