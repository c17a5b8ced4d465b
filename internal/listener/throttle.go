package listener

import (
	"time"

	"golang.org/x/time/rate"
)

// throttle rate-limits unauthorized-attempt logging per caller address so a
// probing client cannot flood the log. Entries are never evicted; address
// cardinality on a home network stays small. Touched only from the engine's
// single loop, so no locking.
type throttle struct {
	window   time.Duration
	limiters map[string]*rate.Limiter
}

func newThrottle(window time.Duration) *throttle {
	return &throttle{
		window:   window,
		limiters: make(map[string]*rate.Limiter),
	}
}

// allow reports whether an unauthorized attempt from addr may be logged now:
// at most one per window per address.
func (t *throttle) allow(addr string, now time.Time) bool {
	lim, ok := t.limiters[addr]
	if !ok {
		lim = rate.NewLimiter(rate.Every(t.window), 1)
		t.limiters[addr] = lim
	}
	return lim.AllowN(now, 1)
}
