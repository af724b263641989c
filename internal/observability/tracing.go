package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/signalsfoundry/timecursor/internal/logging"
)

// TracerName is the instrumentation scope used for spans emitted by the
// live host.
const TracerName = "github.com/signalsfoundry/timecursor"

// TracingConfig governs how tracing is initialised.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"` // stdout | otlp
	Endpoint    string  `yaml:"endpoint"` // used when Exporter == otlp
	SampleRatio float64 `yaml:"sample_ratio"`
	// File receives stdout-exporter spans, rotated. Empty means stderr,
	// leaving stdout to the score output.
	File string `yaml:"file"`
}

// DefaultTracingConfig returns tracing disabled with stdout export and full
// sampling once enabled.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "timecursor",
		Exporter:    "stdout",
		SampleRatio: 1.0,
	}
}

// ApplyEnv overlays TIMECURSOR_TRACING_* environment variables on cfg.
// Unset or malformed variables leave the corresponding field untouched.
func (cfg TracingConfig) ApplyEnv() TracingConfig {
	if raw := os.Getenv("TIMECURSOR_TRACING_ENABLED"); raw != "" {
		cfg.Enabled = strings.EqualFold(raw, "true")
	}
	if exporter := os.Getenv("TIMECURSOR_TRACING_EXPORTER"); exporter != "" {
		cfg.Exporter = strings.ToLower(exporter)
	}
	if service := os.Getenv("TIMECURSOR_TRACING_SERVICE_NAME"); service != "" {
		cfg.ServiceName = service
	}
	if endpoint := os.Getenv("TIMECURSOR_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if file := os.Getenv("TIMECURSOR_TRACING_FILE"); file != "" {
		cfg.File = file
	}
	if rawRatio := os.Getenv("TIMECURSOR_TRACING_SAMPLE_RATIO"); rawRatio != "" {
		if parsed, err := strconv.ParseFloat(rawRatio, 64); err == nil && parsed >= 0 && parsed <= 1 {
			cfg.SampleRatio = parsed
		}
	}
	return cfg
}

// TracingConfigFromEnv is DefaultTracingConfig with the environment applied.
func TracingConfigFromEnv() TracingConfig {
	return DefaultTracingConfig().ApplyEnv()
}

// InitTracing installs the global tracer provider described by cfg. Spans
// carry the run ID from ctx as a resource attribute so every reload of one
// session lands under the same run. The returned function flushes and
// stops the provider.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exp, closeExp, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}
	if runID := logging.RunIDFromContext(ctx); runID != "" {
		attrs = append(attrs, attribute.String("timecursor.run_id", runID))
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(attrs...),
		resource.WithHost(),
		resource.WithProcessPID(),
	)
	if err != nil {
		closeExp()
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(newSampler(cfg.SampleRatio)),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float("sample_ratio", cfg.SampleRatio),
	)

	return func(ctx context.Context) error {
		defer closeExp()
		if err := tp.ForceFlush(ctx); err != nil {
			return errors.Join(err, tp.Shutdown(ctx))
		}
		return tp.Shutdown(ctx)
	}, nil
}

// newSampler samples a ratio of root spans; child spans follow their parent.
func newSampler(ratio float64) sdktrace.Sampler {
	switch {
	case ratio >= 1:
		return sdktrace.AlwaysSample()
	case ratio <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}
}

// newExporter builds the span exporter and a func releasing anything it
// opened beyond the exporter itself.
func newExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, func(), error) {
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		var w io.Writer = os.Stderr
		closeFn := func() {}
		if cfg.File != "" {
			rotated := &lumberjack.Logger{Filename: cfg.File, MaxSize: 50, MaxBackups: 3}
			w = rotated
			closeFn = func() { _ = rotated.Close() }
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("stdout exporter: %w", err)
		}
		return exp, closeFn, nil
	case "otlp":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
		if err != nil {
			return nil, nil, fmt.Errorf("otlp exporter %s: %w", endpoint, err)
		}
		return exp, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// ShutdownWithTimeout invokes the provided shutdown function with a bounded
// timeout, swallowing errors in the shutdown path.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.String("error", err.Error()))
	}
}
