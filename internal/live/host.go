// Package live runs a script against a scheduler and reloads it in place.
package live

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/timecursor/internal/env"
	"github.com/signalsfoundry/timecursor/internal/logging"
	"github.com/signalsfoundry/timecursor/internal/midi"
	"github.com/signalsfoundry/timecursor/internal/observability"
	"github.com/signalsfoundry/timecursor/internal/output"
	"github.com/signalsfoundry/timecursor/internal/queue"
	"github.com/signalsfoundry/timecursor/internal/scheduler"
	"github.com/signalsfoundry/timecursor/internal/script"
	"github.com/signalsfoundry/timecursor/timectrl"
)

// Options configures a Host. Zero values select defaults.
type Options struct {
	Clock          timectrl.Clock
	Fs             afero.Fs
	Notes          midi.NoteOutput
	Logger         logging.Logger
	Metrics        *observability.SchedulerCollector
	TracerProvider trace.TracerProvider

	// Echo receives every output line in addition to the host buffer.
	Echo output.Sink

	TickPeriod      time.Duration
	EvalBudget      time.Duration
	ActionBudget    time.Duration
	OutputRetention int

	// KeepSuperseded leaves events from earlier generations queued after a
	// successful reload.
	KeepSuperseded bool
}

// Host owns the scheduler, the persisted env, the output buffer and the
// script engine for one live session.
type Host struct {
	sched   *scheduler.Scheduler
	env     *env.Context
	out     *output.Buffer
	sink    output.Sink
	engine  *script.Engine
	fs      afero.Fs
	log     logging.Logger
	metrics *observability.SchedulerCollector
	tracer  trace.Tracer

	keepSuperseded bool
}

// New builds a host with a freshly initialised scheduler.
func New(opts Options) (*Host, error) {
	log := opts.Logger
	if log == nil {
		log = logging.Noop()
	}
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	out := output.NewBuffer(opts.OutputRetention)
	sink := output.Multi(out, opts.Echo)

	schedOpts := []scheduler.Option{scheduler.WithLogger(log)}
	if opts.Metrics != nil {
		schedOpts = append(schedOpts, scheduler.WithRecorder(opts.Metrics))
	}
	if opts.TickPeriod != 0 {
		schedOpts = append(schedOpts, scheduler.WithTickPeriod(opts.TickPeriod))
	}
	sched, err := scheduler.New(opts.Clock, sink, schedOpts...)
	if err != nil {
		return nil, fmt.Errorf("live: %w", err)
	}
	sched.Init()

	ctx := env.New()
	engineOpts := []script.Option{
		script.WithFs(fsys),
		script.WithNotes(opts.Notes),
		script.WithLogger(log),
	}
	if opts.EvalBudget != 0 {
		engineOpts = append(engineOpts, script.WithEvalBudget(opts.EvalBudget))
	}
	if opts.ActionBudget != 0 {
		engineOpts = append(engineOpts, script.WithActionBudget(opts.ActionBudget))
	}
	engine, err := script.New(sched, ctx, sink, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("live: %w", err)
	}

	return &Host{
		sched:          sched,
		env:            ctx,
		out:            out,
		sink:           sink,
		engine:         engine,
		fs:             fsys,
		log:            log,
		metrics:        opts.Metrics,
		tracer:         tp.Tracer(observability.TracerName),
		keepSuperseded: opts.KeepSuperseded,
	}, nil
}

// Load evaluates src as a new generation. On success, events queued by
// earlier generations are dropped unless KeepSuperseded is set. On failure
// the partial generation is discarded, the generation counter rolls back,
// the error is written to the output and returned.
func (h *Host) Load(ctx context.Context, name, src string) error {
	ctx, span := h.tracer.Start(ctx, "live.load", trace.WithAttributes(
		attribute.String("script.name", name),
		attribute.Int("script.bytes", len(src)),
	))
	defer span.End()

	started := time.Now()
	var (
		generation int
		dropped    int
		err        error
	)
	h.sched.Do(func() {
		generation = h.sched.IncrementSchedulerID()
		err = h.engine.Eval(name, src, generation)
		if err != nil {
			dropped = h.sched.Queue().RemoveIf(func(ev queue.Event) bool {
				return ev.SchedulerID == generation
			})
			h.sched.DecrementSchedulerID()
			return
		}
		if !h.keepSuperseded {
			dropped = h.sched.Queue().RemoveIf(func(ev queue.Event) bool {
				return ev.SchedulerID < generation
			})
		}
	})

	span.SetAttributes(
		attribute.Int("scheduler.generation", generation),
		attribute.Int("events.dropped", dropped),
		attribute.Int("events.queued", h.sched.Queue().Len()),
	)
	h.metrics.IncScriptLoads(err == nil)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.sink.Push(fmt.Sprintf("load failed: %v", err))
		h.log.Warn(ctx, "script load failed",
			logging.String("script", name),
			logging.Int("generation", generation),
			logging.Err(err),
		)
		return fmt.Errorf("live: load %s: %w", name, err)
	}

	h.log.Info(ctx, "script loaded",
		logging.String("script", name),
		logging.Int("generation", generation),
		logging.Int("dropped_events", dropped),
		logging.Duration("took", time.Since(started)),
	)
	return nil
}

// LoadFile reads path from the host filesystem and loads it.
func (h *Host) LoadFile(ctx context.Context, path string) error {
	src, err := afero.ReadFile(h.fs, path)
	if err != nil {
		h.sink.Push(fmt.Sprintf("load failed: %v", err))
		return fmt.Errorf("live: read %s: %w", path, err)
	}
	return h.Load(ctx, path, string(src))
}

// Start begins playback and drives the scheduler until ctx is done.
func (h *Host) Start(ctx context.Context) error {
	h.sched.Start()
	h.log.Info(ctx, "playback started")
	return h.sched.Run(ctx)
}

// TogglePaused flips playback between running and paused.
func (h *Host) TogglePaused() bool { return h.sched.TogglePaused() }

// SetSpeed changes the playback speed factor.
func (h *Host) SetSpeed(f float64) error { return h.sched.SetSpeed(f) }

// Scheduler exposes the host scheduler.
func (h *Host) Scheduler() *scheduler.Scheduler { return h.sched }

// Env exposes the persisted context shared by every generation.
func (h *Host) Env() *env.Context { return h.env }

// Output exposes the output buffer.
func (h *Host) Output() *output.Buffer { return h.out }
