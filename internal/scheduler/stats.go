package scheduler

import (
	"fmt"
	"sync"
)

// Stats tracks in-memory counters for scheduler activity.
// All counters are concurrency-safe.
type Stats struct {
	mu sync.Mutex

	NumTicks          uint64
	NumPausedTicks    uint64
	NumEventsExecuted uint64
	NumActionFailures uint64
}

// NewStats creates a Stats instance with all counters at zero.
func NewStats() *Stats {
	return &Stats{}
}

func (m *Stats) incTicks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NumTicks++
}

func (m *Stats) incPausedTicks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NumPausedTicks++
}

func (m *Stats) incExecuted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NumEventsExecuted++
}

func (m *Stats) incFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NumActionFailures++
}

// StatsSnapshot is a copy of the counters, safe to read without locking.
type StatsSnapshot struct {
	NumTicks          uint64
	NumPausedTicks    uint64
	NumEventsExecuted uint64
	NumActionFailures uint64
}

// Snapshot returns the current counter values.
func (m *Stats) Snapshot() StatsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return StatsSnapshot{
		NumTicks:          m.NumTicks,
		NumPausedTicks:    m.NumPausedTicks,
		NumEventsExecuted: m.NumEventsExecuted,
		NumActionFailures: m.NumActionFailures,
	}
}

// String returns a human-readable summary.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf("scheduler stats: ticks=%d paused_ticks=%d executed=%d failures=%d",
		s.NumTicks,
		s.NumPausedTicks,
		s.NumEventsExecuted,
		s.NumActionFailures,
	)
}
