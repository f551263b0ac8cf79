// Package timing evaluates attempt deadlines against server time.
//
// Every function here is pure. Callers must pass a server-side clock
// reading — elapsed time reported by a client is never trusted.
package timing

import "time"

// Deadline returns the instant at which an attempt started at start with
// the given duration expires.
func Deadline(start time.Time, durationMinutes int) time.Time {
	return start.Add(time.Duration(durationMinutes) * time.Minute)
}

// Remaining returns the whole seconds left before the deadline, clamped at
// zero. Elapsed time is truncated to whole seconds, so a caller arriving
// 59.9s into a 1-minute attempt still has 1 second left.
func Remaining(start time.Time, durationMinutes int, now time.Time) int {
	elapsed := int(now.Sub(start) / time.Second)
	limit := durationMinutes * 60
	if remaining := limit - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}

// Expired reports whether the deadline has passed: Remaining == 0.
func Expired(start time.Time, durationMinutes int, now time.Time) bool {
	return Remaining(start, durationMinutes, now) == 0
}
