// Package config loads timecursor settings from YAML and the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/timecursor/internal/live"
	"github.com/signalsfoundry/timecursor/internal/logging"
	"github.com/signalsfoundry/timecursor/internal/observability"
	"github.com/signalsfoundry/timecursor/internal/script"
	"github.com/signalsfoundry/timecursor/timectrl"
)

// Duration is a time.Duration written as a Go duration string in YAML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalYAML accepts strings like "1ms" or "2s".
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes d as a duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the full runtime configuration of the timecursor binary.
type Config struct {
	Script   string  `yaml:"script"`
	MIDIPort string  `yaml:"midi_port"`
	Speed    float64 `yaml:"speed"`

	TickPeriod   Duration `yaml:"tick_period"`
	EvalBudget   Duration `yaml:"eval_budget"`
	ActionBudget Duration `yaml:"action_budget"`

	Watch          bool     `yaml:"watch"`
	WatchInterval  Duration `yaml:"watch_interval"`
	WatchStability Duration `yaml:"watch_stability"`

	KeepSuperseded  bool `yaml:"keep_superseded"`
	OutputRetention int  `yaml:"output_retention"`

	MetricsAddr string `yaml:"metrics_addr"`

	Log     logging.Config              `yaml:"log"`
	Tracing observability.TracingConfig `yaml:"tracing"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Speed:           1,
		TickPeriod:      Duration(timectrl.DefaultTickPeriod),
		EvalBudget:      Duration(script.DefaultEvalBudget),
		ActionBudget:    Duration(script.DefaultActionBudget),
		Watch:           true,
		WatchInterval:   Duration(live.DefaultPollInterval),
		WatchStability:  Duration(live.DefaultStability),
		OutputRetention: 1000,
		Log: logging.Config{
			Level:  "info",
			Format: "text",
		},
		Tracing: observability.DefaultTracingConfig(),
	}
}

// Load reads path from fsys over Default. Unknown keys are rejected.
func Load(fsys afero.Fs, path string) (Config, error) {
	cfg := Default()

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays TIMECURSOR_* variables, plus the LOG_* and tracing
// variables understood by the logging and observability packages.
// Malformed numbers are reported rather than ignored.
func (c Config) ApplyEnv() (Config, error) {
	var errs []error

	if v := os.Getenv("TIMECURSOR_SCRIPT"); v != "" {
		c.Script = v
	}
	if v := os.Getenv("TIMECURSOR_MIDI_PORT"); v != "" {
		c.MIDIPort = v
	}
	if v := os.Getenv("TIMECURSOR_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("TIMECURSOR_SPEED"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TIMECURSOR_SPEED: %w", err))
		} else {
			c.Speed = f
		}
	}
	if v := os.Getenv("TIMECURSOR_KEEP_SUPERSEDED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TIMECURSOR_KEEP_SUPERSEDED: %w", err))
		} else {
			c.KeepSuperseded = b
		}
	}
	if v := os.Getenv("TIMECURSOR_WATCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TIMECURSOR_WATCH: %w", err))
		} else {
			c.Watch = b
		}
	}
	for name, dst := range map[string]*Duration{
		"TIMECURSOR_TICK_PERIOD":     &c.TickPeriod,
		"TIMECURSOR_EVAL_BUDGET":     &c.EvalBudget,
		"TIMECURSOR_ACTION_BUDGET":   &c.ActionBudget,
		"TIMECURSOR_WATCH_INTERVAL":  &c.WatchInterval,
		"TIMECURSOR_WATCH_STABILITY": &c.WatchStability,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		*dst = Duration(d)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Log.File = v
	}
	c.Tracing = c.Tracing.ApplyEnv()

	return c, errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var problems []string

	if math.IsNaN(c.Speed) || math.IsInf(c.Speed, 0) || c.Speed <= 0 {
		problems = append(problems, fmt.Sprintf("speed must be a finite positive number, got %v", c.Speed))
	}
	if c.TickPeriod <= 0 {
		problems = append(problems, "tick_period must be positive")
	}
	if c.EvalBudget < 0 || c.ActionBudget < 0 {
		problems = append(problems, "budgets must not be negative")
	}
	if c.Watch && c.WatchInterval <= 0 {
		problems = append(problems, "watch_interval must be positive")
	}
	if c.WatchStability < 0 {
		problems = append(problems, "watch_stability must not be negative")
	}
	if c.OutputRetention < 0 {
		problems = append(problems, "output_retention must not be negative")
	}
	switch strings.ToLower(c.Tracing.Exporter) {
	case "", "stdout", "otlp":
	default:
		problems = append(problems, fmt.Sprintf("tracing.exporter %q is not supported", c.Tracing.Exporter))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
