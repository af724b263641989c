package queue

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func noop() error { return nil }

// drain pops everything due at +Inf and returns the refs in order.
func drain(q *EventQueue) []string {
	var refs []string
	for {
		ev, ok := q.Next(math.Inf(1))
		if !ok {
			return refs
		}
		refs = append(refs, ev.Ref)
	}
}

func TestEventQueue_OrdersByTime(t *testing.T) {
	q := New()

	r3 := q.Add(3, noop, 0)
	r1 := q.Add(1, noop, 0)
	r2 := q.Add(2, noop, 0)

	if diff := cmp.Diff([]string{r1, r2, r3}, drain(q)); diff != "" {
		t.Fatalf("drain order mismatch (-want +got):\n%s", diff)
	}
}

func TestEventQueue_EqualTimesAreFIFO(t *testing.T) {
	q := New()

	a := q.Add(1, noop, 0)
	early := q.Add(0.5, noop, 0)
	b := q.Add(1, noop, 0)
	c := q.Add(1, noop, 0)
	late := q.Add(2, noop, 0)

	want := []string{early, a, b, c, late}
	if diff := cmp.Diff(want, drain(q)); diff != "" {
		t.Fatalf("drain order mismatch (-want +got):\n%s", diff)
	}
}

func TestEventQueue_RandomInsertionOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	q := New()

	type added struct {
		ref  string
		time float64
		seq  int
	}
	var all []added
	for i := 0; i < 500; i++ {
		tm := float64(rng.Intn(40)) / 4
		all = append(all, added{ref: q.Add(tm, noop, 0), time: tm, seq: i})
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].time < all[j].time })
	want := make([]string, len(all))
	for i, a := range all {
		want[i] = a.ref
	}

	if diff := cmp.Diff(want, drain(q)); diff != "" {
		t.Fatalf("drain order mismatch (-want +got):\n%s", diff)
	}
}

func TestEventQueue_NextOnlyReturnsDueEvents(t *testing.T) {
	q := New()
	q.Add(1, noop, 0)
	q.Add(2, noop, 0)

	if _, ok := q.Next(0.5); ok {
		t.Fatalf("Next(0.5) returned an event, want none")
	}

	ev, ok := q.Next(1)
	if !ok || ev.Time != 1 {
		t.Fatalf("Next(1) = %+v, %v; want event at 1", ev, ok)
	}

	if _, ok := q.Next(1.5); ok {
		t.Fatalf("Next(1.5) returned a second event")
	}
	if got := q.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
}

func TestEventQueue_NaNTimeCoercedToZero(t *testing.T) {
	q := New()
	q.Add(1, noop, 0)
	ref := q.Add(math.NaN(), noop, 0)

	ev, ok := q.Next(0)
	if !ok || ev.Ref != ref || ev.Time != 0 {
		t.Fatalf("Next(0) = %+v, %v; want NaN event coerced to time 0", ev, ok)
	}
}

func TestEventQueue_RemovedEventNeverReturned(t *testing.T) {
	q := New()
	a := q.Add(1, noop, 0)
	b := q.Add(1, noop, 0)
	c := q.Add(2, noop, 0)

	if !q.Remove(b) {
		t.Fatalf("Remove(%s) = false, want true", b)
	}
	if q.Remove(b) {
		t.Fatalf("second Remove(%s) = true, want no-op", b)
	}
	if q.Remove("ev-unknown") {
		t.Fatalf("Remove of unknown ref reported true")
	}

	if diff := cmp.Diff([]string{a, c}, drain(q)); diff != "" {
		t.Fatalf("drain order mismatch (-want +got):\n%s", diff)
	}
}

func TestEventQueue_RemoveIfBySchedulerID(t *testing.T) {
	q := New()
	keep1 := q.Add(1, noop, 2)
	q.Add(1, noop, 1)
	keep2 := q.Add(3, noop, 2)
	q.Add(0, noop, 1)

	removed := q.RemoveIf(func(ev Event) bool { return ev.SchedulerID < 2 })
	if removed != 2 {
		t.Fatalf("RemoveIf removed %d, want 2", removed)
	}
	if diff := cmp.Diff([]string{keep1, keep2}, drain(q)); diff != "" {
		t.Fatalf("drain order mismatch (-want +got):\n%s", diff)
	}
}

func TestEventQueue_Clear(t *testing.T) {
	q := New()
	q.Add(1, noop, 0)
	q.Add(2, noop, 0)
	q.Clear()

	if got := q.Len(); got != 0 {
		t.Fatalf("Len() after Clear = %d, want 0", got)
	}
	if _, ok := q.Peek(); ok {
		t.Fatalf("Peek() after Clear returned an event")
	}
}

func TestEventQueue_RefsAreUnique(t *testing.T) {
	q := New()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ref := q.Add(float64(i%3), noop, 0)
		if seen[ref] {
			t.Fatalf("duplicate ref %s", ref)
		}
		seen[ref] = true
	}
}
