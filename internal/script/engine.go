// Package script evaluates live-coding scripts in a goja runtime exposing
// the cursor scheduling DSL.
package script

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/require"
	"github.com/spf13/afero"

	"github.com/signalsfoundry/timecursor/internal/cursor"
	"github.com/signalsfoundry/timecursor/internal/env"
	"github.com/signalsfoundry/timecursor/internal/logging"
	"github.com/signalsfoundry/timecursor/internal/midi"
	"github.com/signalsfoundry/timecursor/internal/output"
)

const (
	DefaultEvalBudget   = 2 * time.Second
	DefaultActionBudget = 100 * time.Millisecond
)

// ErrBudgetExceeded is reported when script code runs longer than allowed.
var ErrBudgetExceeded = errors.New("script exceeded its time budget")

// Scheduler is what the DSL drives. *scheduler.Scheduler satisfies it.
type Scheduler interface {
	cursor.Scheduler
	SetSpeed(factor float64) error
	Speed() float64
	TogglePaused() bool
	ElapsedSeconds() float64
}

// Error is a JavaScript exception raised by script code.
type Error struct {
	Message string
	Stack   string
}

func (e *Error) Error() string { return e.Message }

// Option configures an Engine.
type Option func(*Engine)

// WithFs sets the filesystem require() loads modules from.
func WithFs(fsys afero.Fs) Option {
	return func(e *Engine) {
		if fsys != nil {
			e.fs = fsys
		}
	}
}

// WithNotes attaches the MIDI output used by note().
func WithNotes(n midi.NoteOutput) Option {
	return func(e *Engine) { e.notes = n }
}

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithEvalBudget bounds how long a single evaluation may run.
func WithEvalBudget(d time.Duration) Option {
	return func(e *Engine) { e.evalBudget = d }
}

// WithActionBudget bounds how long a single scheduled callback may run.
func WithActionBudget(d time.Duration) Option {
	return func(e *Engine) { e.actionBudget = d }
}

// Engine owns one goja runtime shared by every evaluation, so values kept
// in env stay live JavaScript values across reloads. An Engine is not safe
// for concurrent use; the host serializes evaluation with scheduler drains.
type Engine struct {
	rt    *goja.Runtime
	sched Scheduler
	ctx   *env.Context
	sink  output.Sink
	notes midi.NoteOutput
	fs    afero.Fs
	log   logging.Logger

	evalBudget   time.Duration
	actionBudget time.Duration

	cur *cursor.Cursor
}

// New creates an engine and installs the DSL globals.
func New(sched Scheduler, ctx *env.Context, sink output.Sink, opts ...Option) (*Engine, error) {
	if sched == nil {
		return nil, errors.New("script: scheduler is required")
	}
	if ctx == nil {
		ctx = env.New()
	}
	if sink == nil {
		sink = output.Discard
	}

	e := &Engine{
		rt:           goja.New(),
		sched:        sched,
		ctx:          ctx,
		sink:         sink,
		fs:           afero.NewOsFs(),
		log:          logging.Noop(),
		evalBudget:   DefaultEvalBudget,
		actionBudget: DefaultActionBudget,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.cur = cursor.New(sched, sink, e.notes, 0)
	if err := e.installGlobals(); err != nil {
		return nil, fmt.Errorf("script: install globals: %w", err)
	}
	return e, nil
}

// Cursor returns the cursor of the latest evaluation.
func (e *Engine) Cursor() *cursor.Cursor { return e.cur }

// Eval runs src under a fresh cursor whose events are tagged with
// generation. Top-level declarations are local to this evaluation; state
// meant to survive a reload goes through env or define.
func (e *Engine) Eval(name, src string, generation int) error {
	e.cur = cursor.New(e.sched, e.sink, e.notes, generation)
	e.log.Debug(context.Background(), "evaluating script",
		logging.String("name", name),
		logging.Int("generation", generation),
		logging.Int("bytes", len(src)),
	)

	reg := require.NewRegistry(require.WithLoader(e.loadModule))
	reg.Enable(e.rt)

	// The source starts on the wrapper's first line so reported line
	// numbers match the file.
	wrapped := "(function(){" + src + "\n})()"
	err := e.guard(e.evalBudget, func() error {
		_, err := e.rt.RunScript(name, wrapped)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// guard runs fn, interrupting the runtime when budget elapses.
func (e *Engine) guard(budget time.Duration, fn func() error) error {
	if budget <= 0 {
		return convertError(fn())
	}

	fired := make(chan struct{})
	timer := time.AfterFunc(budget, func() {
		e.rt.Interrupt(ErrBudgetExceeded)
		close(fired)
	})
	err := fn()
	if !timer.Stop() {
		<-fired
	}
	e.rt.ClearInterrupt()
	return convertError(err)
}

func convertError(err error) error {
	if err == nil {
		return nil
	}

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return ErrBudgetExceeded
	}

	var ex *goja.Exception
	if errors.As(err, &ex) {
		msg := ex.Error()
		if v := ex.Value(); v != nil {
			msg = v.String()
		}
		return &Error{Message: msg, Stack: ex.String()}
	}
	return err
}

func (e *Engine) loadModule(p string) ([]byte, error) {
	data, err := afero.ReadFile(e.fs, filepath.FromSlash(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, require.ModuleFileDoesNotExistError
	}
	return data, err
}

// callback turns a JavaScript function into a budgeted scheduled action.
func (e *Engine) callback(fn goja.Callable, args ...goja.Value) func() error {
	return func() error {
		return e.guard(e.actionBudget, func() error {
			_, err := fn(goja.Undefined(), args...)
			return err
		})
	}
}

// throw raises err as a JavaScript exception from inside a Go function.
func (e *Engine) throw(err error) {
	panic(e.rt.NewGoError(err))
}
