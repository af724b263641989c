package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/timecursor/internal/config"
	"github.com/signalsfoundry/timecursor/internal/live"
	"github.com/signalsfoundry/timecursor/internal/logging"
	"github.com/signalsfoundry/timecursor/internal/observability"
	"github.com/signalsfoundry/timecursor/internal/output"
)

type runOptions struct {
	midiPort       string
	speed          float64
	tick           time.Duration
	metricsAddr    string
	keepSuperseded bool
	noWatch        bool
}

func newRunCommand(rootOpts *rootOptions, d deps) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [script]",
		Short: "Play a score and reload it on change",
		Long: `Evaluate the score, start the clock and play queued events as they
come due. Output lines from log(), flog() and failed actions are written
to stdout.

Send SIGUSR1 to toggle pause. Interrupt to stop.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, rootOpts, opts, args, d)
			if err != nil {
				return err
			}
			return runSession(cmd.Context(), cmd, cfg, d)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.midiPort, "midi-port", "", "MIDI output port (exact name or unique substring)")
	flags.Float64Var(&opts.speed, "speed", 1, "playback speed factor")
	flags.DurationVar(&opts.tick, "tick", 0, "scheduler tick period")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.BoolVar(&opts.keepSuperseded, "keep-superseded", false, "keep events from earlier loads after a reload")
	flags.BoolVar(&opts.noWatch, "no-watch", false, "do not reload the score when it changes")
	return cmd
}

// resolveConfig layers defaults, the config file, the environment and
// finally any flags set on the command line.
func resolveConfig(cmd *cobra.Command, rootOpts *rootOptions, opts *runOptions, args []string, d deps) (config.Config, error) {
	cfg := config.Default()
	if rootOpts.configPath != "" {
		loaded, err := config.Load(d.fs, rootOpts.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	cfg, err := cfg.ApplyEnv()
	if err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}

	flags := cmd.Flags()
	if len(args) == 1 {
		cfg.Script = args[0]
	}
	if flags.Changed("midi-port") {
		cfg.MIDIPort = opts.midiPort
	}
	if flags.Changed("speed") {
		cfg.Speed = opts.speed
	}
	if flags.Changed("tick") {
		cfg.TickPeriod = config.Duration(opts.tick)
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if flags.Changed("keep-superseded") {
		cfg.KeepSuperseded = opts.keepSuperseded
	}
	if opts.noWatch {
		cfg.Watch = false
	}

	if cfg.Script == "" {
		return cfg, errors.New("no script given: pass a path or set script in the config")
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runSession(ctx context.Context, cmd *cobra.Command, cfg config.Config, d deps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, log := logging.WithRunLogger(ctx, logging.New(cfg.Log))

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	var collector *observability.SchedulerCollector
	if cfg.MetricsAddr != "" {
		collector, err = observability.NewSchedulerCollector(nil)
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		srv := observability.ServeMetrics(cfg.MetricsAddr, collector, log)
		defer observability.ShutdownServer(context.Background(), srv, log)
	}

	hostOpts := live.Options{
		Fs:              d.fs,
		Logger:          log,
		Metrics:         collector,
		Echo:            output.NewWriterSink(cmd.OutOrStdout()),
		TickPeriod:      cfg.TickPeriod.Std(),
		EvalBudget:      cfg.EvalBudget.Std(),
		ActionBudget:    cfg.ActionBudget.Std(),
		OutputRetention: cfg.OutputRetention,
		KeepSuperseded:  cfg.KeepSuperseded,
	}
	if cfg.MIDIPort != "" {
		out, err := d.openPort(cfg.MIDIPort)
		if err != nil {
			return fmt.Errorf("open MIDI output: %w", err)
		}
		defer out.Close()
		hostOpts.Notes = out
		log.Info(ctx, "MIDI output open", logging.String("port", out.Name()))
	} else {
		log.Info(ctx, "no MIDI port configured; note() will fail")
	}

	host, err := live.New(hostOpts)
	if err != nil {
		return err
	}
	if err := host.SetSpeed(cfg.Speed); err != nil {
		return err
	}

	if err := host.LoadFile(ctx, cfg.Script); err != nil {
		if !cfg.Watch {
			return err
		}
		log.Warn(ctx, "initial load failed; waiting for the score to change",
			logging.String("script", cfg.Script), logging.Err(err))
	}

	notifyPause(ctx, func() {
		paused := host.TogglePaused()
		log.Info(ctx, "playback toggled", logging.Bool("paused", paused))
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return host.Start(gctx) })
	if cfg.Watch {
		w := live.NewWatcher(d.fs, cfg.Script, host.LoadFile,
			live.WithPollInterval(cfg.WatchInterval.Std()),
			live.WithStability(cfg.WatchStability.Std()),
			live.WithWatchLogger(log),
		)
		g.Go(func() error { return w.Run(gctx) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	log.Info(ctx, "playback stopped", logging.Float("clock", host.Scheduler().Clock()))
	return err
}
