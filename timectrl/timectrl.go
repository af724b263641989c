package timectrl

import (
	"context"
	"sync"
	"time"
)

// DefaultTickPeriod is the real-time quantum between scheduler clock updates.
const DefaultTickPeriod = time.Millisecond

// Clock is a monotonic wall-clock source. The scheduler measures real
// elapsed time through it, which lets tests substitute a Manual clock and
// step time deterministically.
type Clock interface {
	// Now returns the current wall-clock instant.
	Now() time.Time
}

// System reads the process's wall clock. time.Time values returned by
// time.Now carry a monotonic reading, so Sub between them is immune to
// wall-clock steps.
type System struct{}

// Now implements Clock.
func (System) Now() time.Time { return time.Now() }

// Manual is a Clock that only moves when told to.
type Manual struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManual constructs a manual clock positioned at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now implements Clock.
func (m *Manual) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Advance moves the clock forward by d. Negative durations are ignored so
// the clock stays monotonic.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.now = m.now.Add(d)
	}
	return m.now
}

// Set positions the clock at t unless t is before the current instant.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.Before(m.now) {
		return
	}
	m.now = t
}

// Drive invokes fn every period until ctx is cancelled. Invocations never
// overlap: a slow fn delays the next call instead of stacking ticks, which
// matches time.Ticker's drop-on-slow-receiver behaviour.
func Drive(ctx context.Context, period time.Duration, fn func()) error {
	if period <= 0 {
		period = DefaultTickPeriod
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn()
		}
	}
}
