// Package ratelimit defines the counting windows.
package ratelimit

import "time"

// WindowKind identifies one sliding counting window.
type WindowKind int

const (
	WindowBurst WindowKind = iota
	WindowMinute
	WindowHour
	WindowDay
)

// windowOrder lists windows smallest to largest. Violations are reported
// for the first exceeded window in this order.
var windowOrder = [...]WindowKind{WindowBurst, WindowMinute, WindowHour, WindowDay}

// retentionMargin pads key expiry beyond the largest window so abandoned
// identities self-clean without a sweep.
const retentionMargin = 5 * time.Minute

// Duration returns the window length.
func (w WindowKind) Duration() time.Duration {
	switch w {
	case WindowBurst:
		return 10 * time.Second
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// String returns the window label used in deny reasons and metrics.
func (w WindowKind) String() string {
	switch w {
	case WindowBurst:
		return "burst"
	case WindowMinute:
		return "minute"
	case WindowHour:
		return "hour"
	case WindowDay:
		return "day"
	default:
		return "unknown"
	}
}

// Windows returns all windows smallest to largest.
func Windows() []WindowKind {
	out := make([]WindowKind, len(windowOrder))
	copy(out, windowOrder[:])
	return out
}

// largestWindow is the retention horizon for pruning and key expiry.
func largestWindow() time.Duration {
	return windowOrder[len(windowOrder)-1].Duration()
}
