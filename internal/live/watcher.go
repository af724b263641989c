package live

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/afero"

	"github.com/signalsfoundry/timecursor/internal/logging"
	"github.com/signalsfoundry/timecursor/timectrl"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultStability is how long a file must stay unchanged before it is
	// reloaded, so editors that write in several steps trigger one load.
	DefaultStability = 500 * time.Millisecond
)

// LoadFunc reloads the script at path.
type LoadFunc func(ctx context.Context, path string) error

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithPollInterval sets how often the file is checked.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithStability sets how long the file must stay unchanged before reload.
func WithStability(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.stability = d
		}
	}
}

// WithWatchClock sets the clock used to measure stability.
func WithWatchClock(c timectrl.Clock) WatcherOption {
	return func(w *Watcher) {
		if c != nil {
			w.clock = c
		}
	}
}

// WithWatchLogger sets the watcher logger.
func WithWatchLogger(l logging.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.log = l
		}
	}
}

type fileSignature struct {
	modTime time.Time
	size    int64
}

func (s fileSignature) equal(o fileSignature) bool {
	return s.size == o.size && s.modTime.Equal(o.modTime)
}

// Watcher polls a script file and reloads it once a change has settled.
type Watcher struct {
	fs        afero.Fs
	path      string
	load      LoadFunc
	interval  time.Duration
	stability time.Duration
	clock     timectrl.Clock
	log       logging.Logger

	primed    bool
	last      fileSignature
	pending   bool
	changedAt time.Time
}

// NewWatcher creates a watcher for path on fsys.
func NewWatcher(fsys afero.Fs, path string, load LoadFunc, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		fs:        fsys,
		path:      path,
		load:      load,
		interval:  DefaultPollInterval,
		stability: DefaultStability,
		clock:     timectrl.System{},
		log:       logging.Noop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info(ctx, "watching script",
		logging.String("path", w.path),
		logging.Duration("interval", w.interval),
		logging.Duration("stability", w.stability),
	)
	err := timectrl.Drive(ctx, w.interval, func() {
		if _, err := w.Poll(ctx); err != nil {
			w.log.Debug(ctx, "reload failed", logging.String("path", w.path), logging.Err(err))
		}
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Poll checks the file once and reloads it when a change has been stable
// for the configured duration. The first call only records the current
// state. It reports whether a reload ran.
func (w *Watcher) Poll(ctx context.Context) (bool, error) {
	info, err := w.fs.Stat(w.path)
	if err != nil {
		return false, nil
	}
	sig := fileSignature{modTime: info.ModTime(), size: info.Size()}
	now := w.clock.Now()

	if !w.primed {
		w.primed = true
		w.last = sig
		return false, nil
	}
	if !sig.equal(w.last) {
		w.last = sig
		w.pending = true
		w.changedAt = now
		return false, nil
	}
	if !w.pending || now.Sub(w.changedAt) < w.stability {
		return false, nil
	}

	w.pending = false
	w.log.Debug(ctx, "script changed", logging.String("path", w.path))
	return true, w.load(ctx, w.path)
}
