package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/signalsfoundry/timecursor/internal/logging"
	"github.com/signalsfoundry/timecursor/internal/output"
	"github.com/signalsfoundry/timecursor/internal/queue"
	"github.com/signalsfoundry/timecursor/timectrl"
)

var (
	// ErrInvalidSpeed is returned by SetSpeed for non-finite or non-positive factors.
	ErrInvalidSpeed = errors.New("speed should be a finite positive number")
	// ErrInvalidTickPeriod is returned by New for a non-positive tick period.
	ErrInvalidTickPeriod = errors.New("tick period should be positive")
)

// Recorder receives scheduler measurements. *observability.SchedulerCollector
// satisfies it.
type Recorder interface {
	ObserveTick(d time.Duration)
	IncEventsExecuted()
	IncActionFailures()
	SetQueueDepth(count int)
	SetPlayTime(seconds float64)
	SetSpeed(factor float64)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger used for lifecycle and failure logs.
func WithLogger(l logging.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithRecorder wires a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) { s.recorder = r }
}

// WithTickPeriod sets the real-time quantum used by Run.
func WithTickPeriod(d time.Duration) Option {
	return func(s *Scheduler) { s.tickPeriod = d }
}

// WithQueue makes the scheduler drain q instead of a private queue.
func WithQueue(q *queue.EventQueue) Option {
	return func(s *Scheduler) {
		if q != nil {
			s.queue = q
		}
	}
}

// Scheduler advances a logical play time from wall-clock deltas scaled by a
// speed factor and runs every queued action once it falls due.
//
// A Scheduler starts in the reset state: ticks are ignored until Start.
// Pausing keeps the tick source alive but freezes play time, so resuming
// never injects a jump.
type Scheduler struct {
	clock      timectrl.Clock
	queue      *queue.EventQueue
	sink       output.Sink
	log        logging.Logger
	recorder   Recorder
	tickPeriod time.Duration
	stats      *Stats

	// exec serializes drains with host work submitted through Do.
	exec sync.Mutex

	mu               sync.RWMutex
	running          bool
	paused           bool
	draining         bool
	speed            float64
	playTime         float64
	elapsedSeconds   float64
	currentEventTime float64
	schedulerID      int
	reference        time.Time
}

// New creates a scheduler reading wall-clock time from clock and reporting
// action failures to sink.
func New(clock timectrl.Clock, sink output.Sink, opts ...Option) (*Scheduler, error) {
	if clock == nil {
		clock = timectrl.System{}
	}
	if sink == nil {
		sink = output.Discard
	}

	s := &Scheduler{
		clock:      clock,
		queue:      queue.New(),
		sink:       sink,
		log:        logging.Noop(),
		tickPeriod: timectrl.DefaultTickPeriod,
		stats:      NewStats(),
		speed:      1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tickPeriod <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTickPeriod, s.tickPeriod)
	}
	if s.recorder != nil {
		s.recorder.SetSpeed(s.speed)
	}
	return s, nil
}

// Init resets the scheduler: ticks are ignored until the next Start, and
// play time, elapsed time, generation and current event time go back to
// zero with speed 1. Pending events are left in the queue.
func (s *Scheduler) Init() {
	s.mu.Lock()
	s.running = false
	s.paused = false
	s.draining = false
	s.speed = 1
	s.playTime = 0
	s.elapsedSeconds = 0
	s.currentEventTime = 0
	s.schedulerID = 0
	s.reference = time.Time{}
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.SetSpeed(1)
		s.recorder.SetPlayTime(0)
	}
	s.log.Debug(context.Background(), "scheduler initialised")
}

// Start begins accepting ticks, measuring elapsed time from now. A paused
// scheduler resumes.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.running = true
	s.paused = false
	s.reference = s.clock.Now()
	s.mu.Unlock()

	s.log.Debug(context.Background(), "scheduler started")
}

// TogglePaused flips between running and paused and returns the new paused
// state. Counters are preserved.
func (s *Scheduler) TogglePaused() bool {
	s.mu.Lock()
	s.paused = !s.paused
	paused := s.paused
	s.mu.Unlock()

	s.log.Info(context.Background(), "scheduler pause toggled", logging.Bool("paused", paused))
	return paused
}

// SetSpeed changes the logical-time speed factor for subsequent ticks.
// Already-queued event times are not rescaled.
func (s *Scheduler) SetSpeed(factor float64) error {
	if math.IsNaN(factor) || math.IsInf(factor, 0) || factor <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, factor)
	}

	s.mu.Lock()
	s.speed = factor
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.SetSpeed(factor)
	}
	return nil
}

// Tick advances the clock by the wall-clock time elapsed since the previous
// tick and drains every event due at the new play time. It is a no-op
// before Start.
func (s *Scheduler) Tick() {
	s.exec.Lock()
	defer s.exec.Unlock()

	started := time.Now()
	now := s.clock.Now()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	delta := now.Sub(s.reference).Seconds()
	s.reference = now
	if delta < 0 {
		delta = 0
	}
	if s.paused {
		s.mu.Unlock()
		s.stats.incPausedTicks()
		return
	}
	s.elapsedSeconds += delta
	s.playTime += delta * s.speed
	playTime := s.playTime
	s.mu.Unlock()

	s.stats.incTicks()
	s.drain(playTime)

	if s.recorder != nil {
		s.recorder.SetPlayTime(playTime)
		s.recorder.SetQueueDepth(s.queue.Len())
		s.recorder.ObserveTick(time.Since(started))
	}
}

// drain executes every event due at t, including events that actions
// enqueue at or before t while the drain is in progress.
func (s *Scheduler) drain(t float64) {
	for {
		ev, ok := s.queue.Next(t)
		if !ok {
			break
		}

		s.mu.Lock()
		s.currentEventTime = ev.Time
		s.draining = true
		s.mu.Unlock()

		s.execute(ev)
	}

	s.mu.Lock()
	s.currentEventTime = t
	s.draining = false
	s.mu.Unlock()
}

// execute runs one action, containing any error or panic it raises.
func (s *Scheduler) execute(ev queue.Event) {
	err := runAction(ev.Action)

	s.stats.incExecuted()
	if s.recorder != nil {
		s.recorder.IncEventsExecuted()
	}
	if err == nil {
		return
	}

	s.stats.incFailures()
	if s.recorder != nil {
		s.recorder.IncActionFailures()
	}
	s.sink.Push(fmt.Sprintf("error at %.3fs: %v", ev.Time, err))
	s.log.Warn(context.Background(), "scheduled action failed",
		logging.String("ref", ev.Ref),
		logging.Float("time", ev.Time),
		logging.Int("scheduler_id", ev.SchedulerID),
		logging.Err(err),
	)
}

func runAction(action queue.Action) (err error) {
	if action == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = fmt.Errorf("panic: %w", e)
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action()
}

// Run drives Tick every tick period until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info(ctx, "scheduler tick loop running", logging.Duration("tick_period", s.tickPeriod))
	err := timectrl.Drive(ctx, s.tickPeriod, s.Tick)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Do runs fn serialized with tick drains. Hosts evaluate scripts through it
// so evaluation never interleaves with action execution. Calling Do from an
// action deadlocks.
func (s *Scheduler) Do(fn func()) {
	s.exec.Lock()
	defer s.exec.Unlock()
	fn()
}

// Schedule queues action at logical time at, tagged with schedulerID.
func (s *Scheduler) Schedule(at float64, schedulerID int, action queue.Action) string {
	return s.queue.Add(at, action, schedulerID)
}

// Remove cancels a pending event; unknown refs are ignored.
func (s *Scheduler) Remove(ref string) {
	s.queue.Remove(ref)
}

// Queue exposes the event queue the scheduler drains.
func (s *Scheduler) Queue() *queue.EventQueue {
	return s.queue
}

// IncrementSchedulerID starts a new generation and returns it.
func (s *Scheduler) IncrementSchedulerID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedulerID++
	return s.schedulerID
}

// DecrementSchedulerID rolls the generation back by one and returns it.
func (s *Scheduler) DecrementSchedulerID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedulerID--
	return s.schedulerID
}

// SchedulerID returns the current generation.
func (s *Scheduler) SchedulerID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schedulerID
}

// Clock returns the logical play time in seconds.
func (s *Scheduler) Clock() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playTime
}

// ElapsedSeconds returns unscaled real time elapsed while running unpaused.
func (s *Scheduler) ElapsedSeconds() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.elapsedSeconds
}

// CurrentEventTime is the time of the executing event, or the play time
// when idle.
func (s *Scheduler) CurrentEventTime() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentEventTime
}

// Speed returns the speed factor.
func (s *Scheduler) Speed() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.speed
}

// Paused reports whether logical time is frozen.
func (s *Scheduler) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// Running reports whether ticks are being accepted.
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Draining reports whether an action is executing right now.
func (s *Scheduler) Draining() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.draining
}

// Stats returns a snapshot of the in-memory counters.
func (s *Scheduler) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}
