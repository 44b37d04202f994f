// Package clock provides the runtime's monotonic millisecond tick.
//
// On TinyGo targets the tick rides on the SoC's free-running timer via
// time.Now(); off-target it rides on the host monotonic clock so tests get
// the same wrap-safe comparison semantics without needing hardware.
package clock

import "time"

var boot = time.Now()

// GetMS returns milliseconds since boot, wrapping every 2^32 ms (~49.7
// days). Consumers must compare with Before/After, never with plain
// subtraction, since the value wraps.
func GetMS() uint32 {
	return uint32(time.Since(boot).Milliseconds())
}

// Before reports whether a precedes b, accounting for uint32 wraparound by
// comparing the signed difference.
func Before(a, b uint32) bool {
	return int32(a-b) < 0
}

// After reports whether a follows b under wraparound rules.
func After(a, b uint32) bool {
	return int32(a-b) > 0
}

// Event tracks the last time an elapsed-period check fired.
type Event struct {
	last uint32
	set  bool
}

// Elapsed reports whether period milliseconds have passed since the event
// last fired, and if so resets the event to now. Used for polled blink/retry
// loops the way the supervisor's boot blink and test-mode REPL do.
func Elapsed(ev *Event, period uint32) bool {
	now := GetMS()
	if !ev.set {
		ev.last = now
		ev.set = true
		return false
	}
	if now-ev.last >= period {
		ev.last = now
		return true
	}
	return false
}

// Reset clears an Event so the next Elapsed call starts a fresh interval.
func Reset(ev *Event) {
	ev.set = false
}
