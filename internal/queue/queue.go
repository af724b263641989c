package queue

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// Action is the work attached to a scheduled event. A returned error (or a
// panic) is reported as an action failure by whoever drains the queue.
type Action func() error

// Event holds together an action, the logical time at which it is due and
// the scheduler generation that produced it.
type Event struct {
	Ref         string
	Time        float64
	SchedulerID int
	Action      Action
}

// EventQueue keeps scheduled events ordered by time. It does not track time
// itself; callers repeatedly invoke Next with the current logical time to
// obtain every event that is due.
//
// Events sharing the same time come out in the order they were added.
type EventQueue struct {
	mu      sync.Mutex
	counter uint64
	events  []Event // ordered by Time, FIFO among equal times
}

// New creates an empty queue.
func New() *EventQueue {
	return &EventQueue{}
}

// Add inserts an action due at time t and returns a reference usable with
// Remove. A NaN time is treated as 0.
func (q *EventQueue) Add(t float64, action Action, schedulerID int) string {
	if math.IsNaN(t) {
		t = 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.counter++
	ev := Event{
		Ref:         fmt.Sprintf("ev-%d", q.counter),
		Time:        t,
		SchedulerID: schedulerID,
		Action:      action,
	}

	// Upper bound: first event strictly later than t, so equal times stay FIFO.
	idx := sort.Search(len(q.events), func(i int) bool {
		return q.events[i].Time > t
	})

	q.events = append(q.events, Event{})
	copy(q.events[idx+1:], q.events[idx:])
	q.events[idx] = ev

	return ev.Ref
}

// Remove drops the event with the given reference. It reports whether an
// event was removed; unknown or already-fired references are a no-op.
func (q *EventQueue) Remove(ref string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i := range q.events {
		if q.events[i].Ref == ref {
			q.deleteLocked(i)
			return true
		}
	}
	return false
}

// RemoveIf drops every event for which match returns true and returns how
// many were removed. Relative order of the survivors is preserved.
func (q *EventQueue) RemoveIf(match func(Event) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.events[:0]
	removed := 0
	for _, ev := range q.events {
		if match(ev) {
			removed++
			continue
		}
		kept = append(kept, ev)
	}
	for i := len(kept); i < len(q.events); i++ {
		q.events[i] = Event{}
	}
	q.events = kept
	return removed
}

// Next pops the earliest event if it is due at now. It returns at most one
// event; call it until it reports false to drain everything due.
func (q *EventQueue) Next(now float64) (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 || q.events[0].Time > now {
		return Event{}, false
	}

	ev := q.events[0]
	q.deleteLocked(0)
	return ev, true
}

// Peek returns the earliest event without removing it.
func (q *EventQueue) Peek() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}
	return q.events[0], true
}

// Clear removes all pending events.
func (q *EventQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = nil
}

// Len returns the number of pending events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Events returns a snapshot of the pending events in firing order.
func (q *EventQueue) Events() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Event, len(q.events))
	copy(out, q.events)
	return out
}

// deleteLocked removes the event at index i. Caller must hold q.mu.
func (q *EventQueue) deleteLocked(i int) {
	copy(q.events[i:], q.events[i+1:])
	q.events[len(q.events)-1] = Event{} // release the action closure
	q.events = q.events[:len(q.events)-1]
}
