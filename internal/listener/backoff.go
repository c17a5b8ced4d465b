package listener

import "time"

// retryState tracks consecutive bind failures. It is touched only from the
// engine's single loop, so it needs no locking. Reset on any successful bind.
type retryState struct {
	attempts    int
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
}

func (r *retryState) reset() { r.attempts = 0 }

// delay is the exponential backoff for the current attempt:
// min(base * 2^(attempt-1), max).
func (r *retryState) delay() time.Duration {
	return backoffDelay(r.attempts, r.baseDelay, r.maxDelay)
}

func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// Shifting past 62 bits would wrap; everything that far out is capped anyway.
	if attempt > 32 {
		return max
	}
	d := base << uint(attempt-1)
	if d <= 0 || d > max {
		return max
	}
	return d
}
