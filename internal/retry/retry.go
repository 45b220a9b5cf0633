// Package retry holds the reconnect backoff policy. It has no notion of
// transports or timers; callers schedule the delays it computes.
package retry

import "time"

// Policy computes deterministic exponential backoff without jitter.
type Policy struct {
	Base        time.Duration
	MaxAttempts int
}

// Delay returns Base * 2^(attempt-1) for attempt >= 1 and zero otherwise.
// The result saturates instead of overflowing.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 || p.Base <= 0 {
		return 0
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		if d > maxDuration/2 {
			return maxDuration
		}
		d *= 2
	}
	return d
}

// Allows reports whether attempt is within the configured cap.
func (p Policy) Allows(attempt int) bool {
	return attempt >= 1 && attempt <= p.MaxAttempts
}

const maxDuration = time.Duration(1<<63 - 1)

// Counter tracks consecutive failed attempts against a Policy.
type Counter struct {
	policy   Policy
	attempts int
}

func NewCounter(p Policy) *Counter {
	return &Counter{policy: p}
}

// Next records a failure and returns the attempt number to schedule next
// together with its delay. ok is false once the count exceeds the cap, in
// which case nothing should be scheduled.
func (c *Counter) Next() (attempt int, delay time.Duration, ok bool) {
	c.attempts++
	if !c.policy.Allows(c.attempts) {
		return c.attempts, 0, false
	}
	return c.attempts, c.policy.Delay(c.attempts), true
}

// Attempts returns the number of failures recorded since the last Reset.
func (c *Counter) Attempts() int { return c.attempts }

// Reset clears the count. Only a successful registration should call it.
func (c *Counter) Reset() { c.attempts = 0 }
