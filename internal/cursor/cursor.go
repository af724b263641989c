// Package cursor positions scheduled actions relative to a movable logical
// time offset. A Cursor is created for every script evaluation and starts
// at zero.
package cursor

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/signalsfoundry/timecursor/internal/midi"
	"github.com/signalsfoundry/timecursor/internal/output"
	"github.com/signalsfoundry/timecursor/internal/queue"
)

var (
	// ErrNoteRange is returned by Note for out-of-range pitch, velocity or channel.
	ErrNoteRange = errors.New("note parameter out of range")
	// ErrNoMIDIOutput is returned by Note when no MIDI output is attached.
	ErrNoMIDIOutput = errors.New("no MIDI output")
)

// Scheduler is the part of the scheduler a Cursor schedules against.
// *scheduler.Scheduler satisfies it.
type Scheduler interface {
	Schedule(at float64, schedulerID int, action queue.Action) string
	Remove(ref string)
	CurrentEventTime() float64
	Clock() float64
	Draining() bool
}

// Cursor schedules actions at its current position, tagged with the
// generation of the evaluation that created it.
type Cursor struct {
	sched      Scheduler
	sink       output.Sink
	notes      midi.NoteOutput
	generation int

	mu       sync.Mutex
	position float64
}

// New creates a cursor at position zero. notes may be nil, in which case
// Note reports ErrNoMIDIOutput.
func New(sched Scheduler, sink output.Sink, notes midi.NoteOutput, generation int) *Cursor {
	if sink == nil {
		sink = output.Discard
	}
	return &Cursor{
		sched:      sched,
		sink:       sink,
		notes:      notes,
		generation: generation,
	}
}

// Generation returns the scheduler ID events from this cursor are tagged with.
func (c *Cursor) Generation() int { return c.generation }

// At moves the cursor to an absolute time.
func (c *Cursor) At(t float64) {
	c.mu.Lock()
	c.position = t
	c.mu.Unlock()
}

// Wait offsets the cursor. Negative durations move it backwards.
func (c *Cursor) Wait(d float64) {
	c.mu.Lock()
	c.position += d
	c.mu.Unlock()
}

// Position returns the cursor value.
func (c *Cursor) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// Fire schedules action at the cursor and returns the event ref.
func (c *Cursor) Fire(action queue.Action) string {
	return c.sched.Schedule(c.Position(), c.generation, action)
}

// Log writes msg to the output sink immediately.
func (c *Cursor) Log(msg string) {
	c.sink.Push(msg)
}

// Flog logs msg when the scheduler reaches the cursor.
func (c *Cursor) Flog(msg string) string {
	return c.Fire(func() error {
		c.Log(msg)
		return nil
	})
}

// Note schedules a note-on at the cursor and the matching note-off duration
// seconds later. Channel is 0-based. Arguments are checked before anything
// is queued.
func (c *Cursor) Note(pitch, velocity int, duration float64, channel int) error {
	if pitch < 0 || pitch > 127 {
		return fmt.Errorf("%w: pitch %d", ErrNoteRange, pitch)
	}
	if velocity < 0 || velocity > 127 {
		return fmt.Errorf("%w: velocity %d", ErrNoteRange, velocity)
	}
	if channel < 0 || channel > 15 {
		return fmt.Errorf("%w: channel %d", ErrNoteRange, channel)
	}
	if c.notes == nil {
		return ErrNoMIDIOutput
	}
	if math.IsNaN(duration) || duration < 0 {
		duration = 0
	}

	ch, key, vel := uint8(channel), uint8(pitch), uint8(velocity)
	start := c.Position()
	c.sched.Schedule(start, c.generation, func() error {
		return c.notes.NoteOn(ch, key, vel)
	})
	c.sched.Schedule(start+duration, c.generation, func() error {
		return c.notes.NoteOff(ch, key)
	})
	return nil
}

// Now returns the logical time of the executing event, or the play time
// when no event is running.
func (c *Cursor) Now() float64 { return c.sched.CurrentEventTime() }

// Clock returns the scheduler play time.
func (c *Cursor) Clock() float64 { return c.sched.Clock() }

// ScopeTime is the time smoothed values are read at: the executing event's
// time inside an action, the cursor position otherwise.
func (c *Cursor) ScopeTime() float64 {
	if c.sched.Draining() {
		return c.sched.CurrentEventTime()
	}
	return c.Position()
}
