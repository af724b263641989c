package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SchedulerCollector exposes scheduler-specific Prometheus metrics.
type SchedulerCollector struct {
	gatherer prometheus.Gatherer

	TickDuration   prometheus.Histogram
	EventsExecuted prometheus.Counter
	ActionFailures prometheus.Counter
	QueueDepth     prometheus.Gauge
	PlayTime       prometheus.Gauge
	Speed          prometheus.Gauge
	ScriptLoads    *prometheus.CounterVec
}

// NewSchedulerCollector registers scheduler metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSchedulerCollector(reg prometheus.Registerer) (*SchedulerCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	tickHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timecursor_tick_duration_seconds",
		Help:    "Wall-clock time spent advancing the clock and draining due events per tick.",
		Buckets: []float64{0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.1},
	})
	tickHistogram, err := registerHistogram(reg, tickHistogram, "timecursor_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	executed, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timecursor_events_executed_total",
		Help: "Cumulative number of scheduled actions executed.",
	}), "timecursor_events_executed_total")
	if err != nil {
		return nil, err
	}

	failures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timecursor_action_failures_total",
		Help: "Cumulative number of scheduled actions that returned an error or panicked.",
	}), "timecursor_action_failures_total")
	if err != nil {
		return nil, err
	}

	depth, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timecursor_queue_depth",
		Help: "Number of events pending in the event queue after the last tick.",
	}), "timecursor_queue_depth")
	if err != nil {
		return nil, err
	}

	playTime, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timecursor_play_time_seconds",
		Help: "Current logical play time of the scheduler.",
	}), "timecursor_play_time_seconds")
	if err != nil {
		return nil, err
	}

	speed, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timecursor_speed_factor",
		Help: "Current logical-time speed factor.",
	}), "timecursor_speed_factor")
	if err != nil {
		return nil, err
	}

	loads, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timecursor_script_loads_total",
		Help: "Script (re-)evaluations, labeled by result (ok or error).",
	}, []string{"result"}), "timecursor_script_loads_total")
	if err != nil {
		return nil, err
	}

	return &SchedulerCollector{
		gatherer:       gatherer,
		TickDuration:   tickHistogram,
		EventsExecuted: executed,
		ActionFailures: failures,
		QueueDepth:     depth,
		PlayTime:       playTime,
		Speed:          speed,
		ScriptLoads:    loads,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *SchedulerCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SchedulerCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveTick records how long one tick took.
func (c *SchedulerCollector) ObserveTick(d time.Duration) {
	if c == nil || c.TickDuration == nil {
		return
	}
	c.TickDuration.Observe(d.Seconds())
}

// IncEventsExecuted counts one executed action.
func (c *SchedulerCollector) IncEventsExecuted() {
	if c == nil || c.EventsExecuted == nil {
		return
	}
	c.EventsExecuted.Inc()
}

// IncActionFailures counts one failed action.
func (c *SchedulerCollector) IncActionFailures() {
	if c == nil || c.ActionFailures == nil {
		return
	}
	c.ActionFailures.Inc()
}

// SetQueueDepth updates the queue depth gauge.
func (c *SchedulerCollector) SetQueueDepth(count int) {
	if c == nil || c.QueueDepth == nil {
		return
	}
	c.QueueDepth.Set(float64(count))
}

// SetPlayTime updates the logical clock gauge.
func (c *SchedulerCollector) SetPlayTime(seconds float64) {
	if c == nil || c.PlayTime == nil {
		return
	}
	c.PlayTime.Set(seconds)
}

// SetSpeed updates the speed gauge.
func (c *SchedulerCollector) SetSpeed(factor float64) {
	if c == nil || c.Speed == nil {
		return
	}
	c.Speed.Set(factor)
}

// IncScriptLoads counts one script evaluation with its outcome.
func (c *SchedulerCollector) IncScriptLoads(ok bool) {
	if c == nil || c.ScriptLoads == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	c.ScriptLoads.WithLabelValues(result).Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
