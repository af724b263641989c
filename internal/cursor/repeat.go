package cursor

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// Unbounded repeats until stopped.
const Unbounded = math.MaxInt

var (
	// ErrInvalidInterval is returned by Repeat for non-finite or non-positive intervals.
	ErrInvalidInterval = errors.New("repeat interval should be a finite positive number")
	// ErrInvalidCount is returned by Repeat for negative counts.
	ErrInvalidCount = errors.New("repeat count should not be negative")
)

// Repeater is a chain of single-shot events. Only the next occurrence is
// ever queued; each firing queues its successor once the action succeeds,
// so a failing iteration ends the chain.
type Repeater struct {
	c        *Cursor
	action   func(index int) error
	interval float64
	count    int

	mu        sync.Mutex
	remaining int
	next      float64
	ref       string
	stopped   bool
}

// Repeat schedules up to count runs of action spaced interval apart,
// starting at the cursor. Occurrences earlier than Now are skipped and
// still consume their index. It returns nil when every occurrence is in
// the past.
func (c *Cursor) Repeat(action func(index int) error, interval float64, count int) (*Repeater, error) {
	if math.IsNaN(interval) || math.IsInf(interval, 0) || interval <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInterval, interval)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCount, count)
	}

	now := c.Now()
	next := c.Position()
	remaining := count
	if next < now {
		steps := (now - next) / interval
		if steps >= float64(remaining) {
			return nil, nil
		}
		// Smallest skip leaving the candidate at or after now.
		skip := int(math.Ceil(steps))
		for skip > 0 && next+float64(skip-1)*interval >= now {
			skip--
		}
		for next+float64(skip)*interval < now {
			skip++
		}
		if skip >= remaining {
			return nil, nil
		}
		remaining -= skip
		next += float64(skip) * interval
	}
	if remaining == 0 {
		return nil, nil
	}

	r := &Repeater{
		c:         c,
		action:    action,
		interval:  interval,
		count:     count,
		remaining: remaining,
		next:      next,
	}
	r.mu.Lock()
	r.ref = c.sched.Schedule(next, c.generation, r.fire)
	r.mu.Unlock()
	return r, nil
}

func (r *Repeater) fire() error {
	r.mu.Lock()
	if r.stopped || r.remaining <= 0 {
		r.mu.Unlock()
		return nil
	}
	index := r.count - r.remaining
	r.remaining--
	r.ref = ""
	r.mu.Unlock()

	if r.action != nil {
		if err := r.action(index); err != nil {
			r.mu.Lock()
			r.remaining = 0
			r.mu.Unlock()
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped && r.remaining > 0 {
		r.next += r.interval
		r.ref = r.c.sched.Schedule(r.next, r.c.generation, r.fire)
	}
	return nil
}

// Stop removes the pending occurrence. Stopping a nil or finished
// Repeater is a no-op.
func (r *Repeater) Stop() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.ref != "" {
		r.c.sched.Remove(r.ref)
		r.ref = ""
	}
}

// Remaining returns how many occurrences are still to fire.
func (r *Repeater) Remaining() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return 0
	}
	return r.remaining
}

// Next returns the time of the pending occurrence.
func (r *Repeater) Next() (float64, bool) {
	if r == nil {
		return 0, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next, r.ref != ""
}
