// Package ratelimit enforces per-credential request quotas over fixed
// time windows. Counters live in a pluggable CounterStore so a single
// gateway can run on in-process memory and a fleet can share Redis.
package ratelimit

import "time"

// Window is one of the fixed time windows a quota is counted over.
type Window int

const (
	PerMinute Window = iota
	PerHour
)

// Duration returns the length of the window.
func (w Window) Duration() time.Duration {
	switch w {
	case PerMinute:
		return time.Minute
	case PerHour:
		return time.Hour
	default:
		return time.Minute
	}
}

// Index returns the window ordinal containing now. Requests landing in
// the same ordinal share a counter.
func (w Window) Index(now time.Time) int64 {
	return now.Unix() / int64(w.Duration().Seconds())
}

// RetryAfter returns the advisory wait in seconds for a blocked request.
func (w Window) RetryAfter() int {
	return int(w.Duration().Seconds())
}

func (w Window) String() string {
	switch w {
	case PerMinute:
		return "minute"
	case PerHour:
		return "hour"
	default:
		return "unknown"
	}
}
