package sync

import "time"

// Backoff is a capped exponential retry delay: Base * 2^(n-1), at most Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff: 1s, 2s, 4s ... capped at 32s
var DefaultBackoff = Backoff{Base: time.Second, Max: 32 * time.Second}

// Delay returns how long to wait after the given number of failed attempts.
// Zero attempts means no wait.
func (b Backoff) Delay(retryCount int) time.Duration {
	if retryCount <= 0 || b.Base <= 0 {
		return 0
	}
	d := b.Base
	for i := 1; i < retryCount; i++ {
		if b.Max > 0 && d >= b.Max/2 {
			return b.Max
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// BackoffDelay is DefaultBackoff.Delay
func BackoffDelay(retryCount int) time.Duration {
	return DefaultBackoff.Delay(retryCount)
}
