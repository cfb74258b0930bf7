package supplier

import (
	"context"
	"sync"
	"time"
)

// throttle enforces a minimum interval between successive calls of the same
// logical operation. The wait is a deliberate in-request sleep, bounded by the
// configured interval, and respects context cancellation.
type throttle struct {
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastCall map[string]time.Time
}

func newThrottle(interval time.Duration, clock func() time.Time) *throttle {
	if clock == nil {
		clock = time.Now
	}
	return &throttle{
		interval: interval,
		now:      clock,
		lastCall: make(map[string]time.Time),
	}
}

// wait blocks until the minimum interval since the previous call of op has
// elapsed, then records the new call time.
func (t *throttle) wait(ctx context.Context, op string) error {
	if t == nil || t.interval <= 0 {
		return nil
	}

	t.mu.Lock()
	now := t.now()
	next := t.lastCall[op].Add(t.interval)
	var delay time.Duration
	if next.After(now) {
		delay = next.Sub(now)
	}
	t.lastCall[op] = now.Add(delay)
	t.mu.Unlock()

	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
