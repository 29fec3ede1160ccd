// Package backoff implements the explicit retry policy spec §9's
// Design Notes ask for, replacing a hand-rolled nanosecond sleep that
// doubles each iteration with an injectable value type.
package backoff

import "time"

// Policy is an exponential back-off schedule: Initial on the first
// retry, multiplied by Multiplier each subsequent attempt, capped at
// Cap, bounded by MaxAttempts.
type Policy struct {
	Initial    time.Duration
	Multiplier float64
	Cap        time.Duration
	MaxAttempts int
}

// Default mirrors the source's "start at 1ns, double each time" shape,
// given a real floor and ceiling so it terminates promptly against a
// responsive file system while still backing off under contention.
var Default = Policy{
	Initial:     time.Microsecond,
	Multiplier:  2,
	Cap:         50 * time.Millisecond,
	MaxAttempts: 10,
}

// Delay returns the sleep duration before retry attempt n (1-based).
// Delay(0) and negative n return 0.
func (p Policy) Delay(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	d := float64(p.Initial)
	for i := 1; i < n; i++ {
		d *= p.Multiplier
		if time.Duration(d) >= p.Cap {
			return p.Cap
		}
	}
	if time.Duration(d) > p.Cap {
		return p.Cap
	}
	return time.Duration(d)
}

// Sleep blocks for Delay(n).
func (p Policy) Sleep(n int) {
	time.Sleep(p.Delay(n))
}

// Exhausted reports whether attempt has reached MaxAttempts.
func (p Policy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}
