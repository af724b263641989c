package scheduler

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/signalsfoundry/timecursor/internal/output"
	"github.com/signalsfoundry/timecursor/timectrl"
)

const epsilon = 1e-9

func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *timectrl.Manual, *output.Buffer) {
	t.Helper()
	clock := timectrl.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	sink := output.NewBuffer(0)
	s, err := New(clock, sink, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, clock, sink
}

func approx(a, b float64) bool { return math.Abs(a-b) < epsilon }

func TestScheduler_IgnoresTicksBeforeStart(t *testing.T) {
	s, clock, _ := newTestScheduler(t)

	var fired bool
	s.Schedule(0, 0, func() error { fired = true; return nil })

	clock.Advance(time.Second)
	s.Tick()

	if fired || s.Clock() != 0 {
		t.Fatalf("tick before Start advanced state: fired=%v clock=%v", fired, s.Clock())
	}
}

func TestScheduler_AdvancesAndDrainsInOrder(t *testing.T) {
	s, clock, _ := newTestScheduler(t)
	s.Start()

	var order []string
	s.Schedule(0.3, 0, func() error { order = append(order, "c"); return nil })
	s.Schedule(0.1, 0, func() error { order = append(order, "a"); return nil })
	s.Schedule(0.1, 0, func() error { order = append(order, "b"); return nil })

	clock.Advance(200 * time.Millisecond)
	s.Tick()

	if diff := cmp.Diff([]string{"a", "b"}, order); diff != "" {
		t.Fatalf("first drain mismatch (-want +got):\n%s", diff)
	}
	if !approx(s.Clock(), 0.2) {
		t.Fatalf("Clock() = %v, want 0.2", s.Clock())
	}

	clock.Advance(200 * time.Millisecond)
	s.Tick()

	if diff := cmp.Diff([]string{"a", "b", "c"}, order); diff != "" {
		t.Fatalf("second drain mismatch (-want +got):\n%s", diff)
	}
}

func TestScheduler_NestedSchedulingFiresInSameTick(t *testing.T) {
	s, clock, _ := newTestScheduler(t)
	s.Start()

	var order []string
	s.Schedule(0.5, 0, func() error {
		order = append(order, "outer")
		s.Schedule(0.2, 0, func() error { order = append(order, "past"); return nil })
		s.Schedule(1.0, 0, func() error { order = append(order, "at-now"); return nil })
		s.Schedule(1.5, 0, func() error { order = append(order, "future"); return nil })
		return nil
	})

	clock.Advance(time.Second)
	s.Tick()

	if diff := cmp.Diff([]string{"outer", "past", "at-now"}, order); diff != "" {
		t.Fatalf("nested drain mismatch (-want +got):\n%s", diff)
	}
	if got := s.Queue().Len(); got != 1 {
		t.Fatalf("queue length = %d, want 1 future event", got)
	}
}

func TestScheduler_LongSelfReschedulingChain(t *testing.T) {
	s, clock, _ := newTestScheduler(t)
	s.Start()

	const n = 100000
	count := 0
	var step func() error
	step = func() error {
		count++
		if count < n {
			s.Schedule(0, 0, step)
		}
		return nil
	}
	s.Schedule(0, 0, step)

	clock.Advance(time.Millisecond)
	s.Tick()

	if count != n {
		t.Fatalf("chain executed %d steps, want %d", count, n)
	}
}

func TestScheduler_ContainsActionFailures(t *testing.T) {
	s, clock, sink := newTestScheduler(t)
	s.Start()

	var ran []string
	s.Schedule(0.1, 0, func() error { return errors.New("boom") })
	s.Schedule(0.1, 0, func() error { panic("kaboom") })
	s.Schedule(0.1, 0, func() error { ran = append(ran, "sibling"); return nil })

	clock.Advance(time.Second)
	s.Tick()

	if diff := cmp.Diff([]string{"sibling"}, ran); diff != "" {
		t.Fatalf("sibling execution mismatch (-want +got):\n%s", diff)
	}

	lines := sink.Lines()
	if len(lines) != 2 {
		t.Fatalf("sink lines = %v, want 2 failure lines", lines)
	}
	if !strings.Contains(lines[0], "boom") || !strings.Contains(lines[1], "kaboom") {
		t.Fatalf("unexpected failure lines: %v", lines)
	}

	stats := s.Stats()
	if stats.NumEventsExecuted != 3 || stats.NumActionFailures != 2 {
		t.Fatalf("stats = %+v, want 3 executed / 2 failures", stats)
	}

	// The scheduler keeps going after failures.
	var later bool
	s.Schedule(1.5, 0, func() error { later = true; return nil })
	clock.Advance(time.Second)
	s.Tick()
	if !later {
		t.Fatalf("scheduler stopped draining after failures")
	}
}

func TestScheduler_CurrentEventTime(t *testing.T) {
	s, clock, _ := newTestScheduler(t)
	s.Start()

	var during float64
	var draining bool
	s.Schedule(0.25, 0, func() error {
		during = s.CurrentEventTime()
		draining = s.Draining()
		return nil
	})

	clock.Advance(time.Second)
	s.Tick()

	if during != 0.25 || !draining {
		t.Fatalf("inside action: CurrentEventTime=%v Draining=%v, want 0.25/true", during, draining)
	}
	if !approx(s.CurrentEventTime(), 1) || s.Draining() {
		t.Fatalf("after drain: CurrentEventTime=%v Draining=%v, want 1/false", s.CurrentEventTime(), s.Draining())
	}
}

func TestScheduler_PauseFreezesClock(t *testing.T) {
	s, clock, _ := newTestScheduler(t)
	s.Start()

	clock.Advance(time.Second)
	s.Tick()

	if paused := s.TogglePaused(); !paused {
		t.Fatalf("TogglePaused() = false, want true")
	}

	var fired bool
	s.Schedule(1.5, 0, func() error { fired = true; return nil })

	clock.Advance(10 * time.Second)
	s.Tick()
	if !approx(s.Clock(), 1) || fired {
		t.Fatalf("paused tick advanced clock to %v (fired=%v)", s.Clock(), fired)
	}

	s.TogglePaused()
	clock.Advance(250 * time.Millisecond)
	s.Tick()

	if !approx(s.Clock(), 1.25) {
		t.Fatalf("Clock() after resume = %v, want 1.25 (no jump)", s.Clock())
	}
	if !approx(s.ElapsedSeconds(), 1.25) {
		t.Fatalf("ElapsedSeconds() = %v, want 1.25", s.ElapsedSeconds())
	}
	if fired {
		t.Fatalf("event at 1.5 fired early")
	}
	if got := s.Stats().NumPausedTicks; got != 1 {
		t.Fatalf("paused ticks = %d, want 1", got)
	}
}

func TestScheduler_StartResumesFromPaused(t *testing.T) {
	s, clock, _ := newTestScheduler(t)
	s.Start()
	s.TogglePaused()

	clock.Advance(5 * time.Second)
	s.Start()
	if s.Paused() {
		t.Fatalf("Paused() = true after Start")
	}

	clock.Advance(time.Second)
	s.Tick()
	if !approx(s.Clock(), 1) {
		t.Fatalf("Clock() = %v after Start from paused, want 1", s.Clock())
	}
}

func TestScheduler_SpeedScalesPlayTime(t *testing.T) {
	s, clock, _ := newTestScheduler(t)
	s.Start()

	if err := s.SetSpeed(2); err != nil {
		t.Fatalf("SetSpeed(2): %v", err)
	}
	for i := 0; i < 10; i++ {
		clock.Advance(100 * time.Millisecond)
		s.Tick()
	}

	if !approx(s.ElapsedSeconds(), 1) {
		t.Fatalf("ElapsedSeconds() = %v, want 1", s.ElapsedSeconds())
	}
	if !approx(s.Clock(), 2) {
		t.Fatalf("Clock() = %v, want 2", s.Clock())
	}

	// Only time after the change is rescaled.
	if err := s.SetSpeed(0.5); err != nil {
		t.Fatalf("SetSpeed(0.5): %v", err)
	}
	clock.Advance(time.Second)
	s.Tick()
	if !approx(s.Clock(), 2.5) {
		t.Fatalf("Clock() = %v, want 2.5", s.Clock())
	}
}

func TestScheduler_SetSpeedRejectsInvalid(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	if err := s.SetSpeed(3); err != nil {
		t.Fatalf("SetSpeed(3): %v", err)
	}

	for _, f := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
		err := s.SetSpeed(f)
		if !errors.Is(err, ErrInvalidSpeed) {
			t.Fatalf("SetSpeed(%v) error = %v, want ErrInvalidSpeed", f, err)
		}
		if s.Speed() != 3 {
			t.Fatalf("speed changed to %v after rejected SetSpeed(%v)", s.Speed(), f)
		}
	}
}

func TestScheduler_InitResets(t *testing.T) {
	s, clock, _ := newTestScheduler(t)
	s.Start()
	_ = s.SetSpeed(4)
	s.IncrementSchedulerID()
	s.IncrementSchedulerID()
	s.Schedule(100, 2, func() error { return nil })

	clock.Advance(time.Second)
	s.Tick()

	s.Init()

	if s.Clock() != 0 || s.ElapsedSeconds() != 0 || s.CurrentEventTime() != 0 {
		t.Fatalf("Init left time state: clock=%v elapsed=%v current=%v", s.Clock(), s.ElapsedSeconds(), s.CurrentEventTime())
	}
	if s.Speed() != 1 || s.SchedulerID() != 0 || s.Running() || s.Paused() {
		t.Fatalf("Init left state: speed=%v id=%v running=%v paused=%v", s.Speed(), s.SchedulerID(), s.Running(), s.Paused())
	}
	if got := s.Queue().Len(); got != 1 {
		t.Fatalf("Init should not clear the queue, len=%d", got)
	}

	clock.Advance(time.Second)
	s.Tick()
	if s.Clock() != 0 {
		t.Fatalf("tick after Init advanced clock to %v", s.Clock())
	}
}

func TestScheduler_SchedulerIDGenerations(t *testing.T) {
	s, _, _ := newTestScheduler(t)

	if got := s.IncrementSchedulerID(); got != 1 {
		t.Fatalf("IncrementSchedulerID() = %d, want 1", got)
	}
	if got := s.IncrementSchedulerID(); got != 2 {
		t.Fatalf("IncrementSchedulerID() = %d, want 2", got)
	}
	if got := s.DecrementSchedulerID(); got != 1 {
		t.Fatalf("DecrementSchedulerID() = %d, want 1", got)
	}

	ref := s.Schedule(1, s.SchedulerID(), nil)
	ev, ok := s.Queue().Peek()
	if !ok || ev.Ref != ref || ev.SchedulerID != 1 {
		t.Fatalf("queued event = %+v, want ref %s tagged 1", ev, ref)
	}

	s.Remove(ref)
	if s.Queue().Len() != 0 {
		t.Fatalf("Remove did not drop the event")
	}
}

func TestScheduler_RejectsBadTickPeriod(t *testing.T) {
	_, err := New(nil, nil, WithTickPeriod(0))
	if !errors.Is(err, ErrInvalidTickPeriod) {
		t.Fatalf("New error = %v, want ErrInvalidTickPeriod", err)
	}
}

type fakeRecorder struct {
	mu       sync.Mutex
	ticks    int
	executed int
	failures int
	depth    int
	playTime float64
	speed    float64
}

func (r *fakeRecorder) ObserveTick(time.Duration) { r.mu.Lock(); r.ticks++; r.mu.Unlock() }
func (r *fakeRecorder) IncEventsExecuted()        { r.mu.Lock(); r.executed++; r.mu.Unlock() }
func (r *fakeRecorder) IncActionFailures()        { r.mu.Lock(); r.failures++; r.mu.Unlock() }
func (r *fakeRecorder) SetQueueDepth(n int)       { r.mu.Lock(); r.depth = n; r.mu.Unlock() }
func (r *fakeRecorder) SetPlayTime(f float64)     { r.mu.Lock(); r.playTime = f; r.mu.Unlock() }
func (r *fakeRecorder) SetSpeed(f float64)        { r.mu.Lock(); r.speed = f; r.mu.Unlock() }

func TestScheduler_ReportsToRecorder(t *testing.T) {
	rec := &fakeRecorder{}
	s, clock, _ := newTestScheduler(t, WithRecorder(rec))
	s.Start()

	s.Schedule(0.1, 0, func() error { return nil })
	s.Schedule(0.2, 0, func() error { return errors.New("nope") })
	s.Schedule(5, 0, func() error { return nil })
	_ = s.SetSpeed(2)

	clock.Advance(500 * time.Millisecond)
	s.Tick()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.ticks != 1 || rec.executed != 2 || rec.failures != 1 || rec.depth != 1 {
		t.Fatalf("recorder = %+v", rec)
	}
	if !approx(rec.playTime, 1) || rec.speed != 2 {
		t.Fatalf("recorder playTime=%v speed=%v, want 1/2", rec.playTime, rec.speed)
	}
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	s, err := New(timectrl.System{}, nil, WithTickPeriod(time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start()

	ctx, cancel := context.WithCancel(context.Background())
	s.Schedule(0, 0, func() error { cancel(); return nil })

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v, want nil on cancellation", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestScheduler_DoSerializesWithTicks(t *testing.T) {
	s, clock, _ := newTestScheduler(t)
	s.Start()

	var inDo bool
	s.Schedule(0, 0, func() error {
		if inDo {
			t.Errorf("action ran while Do was active")
		}
		return nil
	})

	s.Do(func() {
		inDo = true
		clock.Advance(time.Millisecond)
		inDo = false
	})
	s.Tick()

	if s.Stats().NumEventsExecuted != 1 {
		t.Fatalf("expected the action to run after Do")
	}
}
