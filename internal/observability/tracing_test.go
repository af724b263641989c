package observability

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"

	"github.com/signalsfoundry/timecursor/internal/logging"
)

func TestTracingConfigApplyEnv(t *testing.T) {
	t.Setenv("TIMECURSOR_TRACING_ENABLED", "TRUE")
	t.Setenv("TIMECURSOR_TRACING_EXPORTER", "OTLP")
	t.Setenv("TIMECURSOR_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("TIMECURSOR_TRACING_SAMPLE_RATIO", "0.25")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled {
		t.Fatalf("Enabled = false, want true")
	}
	if cfg.Exporter != "otlp" || cfg.Endpoint != "collector:4317" {
		t.Fatalf("exporter/endpoint = %q/%q", cfg.Exporter, cfg.Endpoint)
	}
	if cfg.SampleRatio != 0.25 {
		t.Fatalf("SampleRatio = %v, want 0.25", cfg.SampleRatio)
	}
	if cfg.ServiceName != "timecursor" {
		t.Fatalf("ServiceName = %q, want default", cfg.ServiceName)
	}
}

func TestTracingConfigIgnoresBadRatio(t *testing.T) {
	t.Setenv("TIMECURSOR_TRACING_SAMPLE_RATIO", "7")

	if got := TracingConfigFromEnv().SampleRatio; got != 1.0 {
		t.Fatalf("SampleRatio = %v, want default 1.0", got)
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), DefaultTracingConfig(), nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.Exporter = "carrier-pigeon"

	if _, err := InitTracing(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}

func TestInitTracingWritesSpansToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spans.json")
	cfg := DefaultTracingConfig()
	cfg.Enabled = true
	cfg.File = path

	ctx := logging.ContextWithRunID(context.Background(), "run-42")
	shutdown, err := InitTracing(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	t.Cleanup(func() { _, _ = InitTracing(context.Background(), DefaultTracingConfig(), nil) })

	_, span := otel.Tracer(TracerName).Start(ctx, "live.load")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read spans: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "live.load") {
		t.Fatalf("span file missing span name: %s", out)
	}
	if !strings.Contains(out, "run-42") {
		t.Fatalf("span file missing run id resource attribute: %s", out)
	}
}

func TestNewSampler(t *testing.T) {
	cases := []struct {
		ratio float64
		want  string
	}{
		{1, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tc := range cases {
		if got := newSampler(tc.ratio).Description(); !strings.Contains(got, tc.want) {
			t.Fatalf("newSampler(%v) = %q, want %q", tc.ratio, got, tc.want)
		}
	}
}
