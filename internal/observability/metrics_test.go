package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestSimCollectorRecordsSteps(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	c.ObserveStep(2 * time.Millisecond)
	c.ObserveStep(time.Millisecond)
	c.LegCompleted(1)

	if got := testutil.ToFloat64(c.Steps); got != 2 {
		t.Fatalf("lidarsim_steps_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.LegsCompleted); got != 1 {
		t.Fatalf("lidarsim_legs_completed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.CurrentLeg); got != 1 {
		t.Fatalf("lidarsim_current_leg = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "lidarsim_step_duration_seconds"); count != 2 {
		t.Fatalf("step duration sample_count = %d, want 2", count)
	}
}

func TestSimCollectorCallbacksAndPulses(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	c.ObserveCallback(12)
	c.ObserveCallback(0)
	c.ObservePulse(1e-9, 2e-9)
	c.ObservePulse()

	if got := testutil.ToFloat64(c.Callbacks); got != 2 {
		t.Fatalf("lidarsim_callbacks_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Pulses); got != 2 {
		t.Fatalf("lidarsim_pulses_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Returns); got != 2 {
		t.Fatalf("lidarsim_returns_total = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "lidarsim_callback_batch_size"); count != 2 {
		t.Fatalf("batch size sample_count = %d, want 2", count)
	}
	if count := histogramSampleCount(t, reg, "lidarsim_received_power_watts"); count != 2 {
		t.Fatalf("received power sample_count = %d, want 2", count)
	}
}

func TestSimCollectorGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}

	c.SetSpeedFactor(4)
	c.SetPaused(true)
	if got := testutil.ToFloat64(c.SpeedFactor); got != 4 {
		t.Fatalf("lidarsim_speed_factor = %v, want 4", got)
	}
	if got := testutil.ToFloat64(c.Paused); got != 1 {
		t.Fatalf("lidarsim_paused = %v, want 1", got)
	}
	c.SetPaused(false)
	if got := testutil.ToFloat64(c.Paused); got != 0 {
		t.Fatalf("lidarsim_paused = %v, want 0", got)
	}
}

func TestSimCollectorReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	second, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimCollector: %v", err)
	}

	second.ObserveStep(0)
	if got := testutil.ToFloat64(first.Steps); got != 1 {
		t.Fatalf("shared counter = %v, want 1", got)
	}
}

func TestNilSimCollectorIsSafe(t *testing.T) {
	var c *SimCollector
	c.ObserveStep(time.Second)
	c.LegCompleted(3)
	c.ObserveCallback(1)
	c.ObservePulse(1)
	c.SetSpeedFactor(2)
	c.SetPaused(true)
	if c.Gatherer() != nil {
		t.Fatal("nil collector returned a gatherer")
	}
}

func TestMetricsHandlerExposesSimMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimCollector(reg)
	if err != nil {
		t.Fatalf("NewSimCollector: %v", err)
	}
	c.ObserveStep(time.Millisecond)
	c.SetSpeedFactor(1)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{"lidarsim_steps_total 1", "lidarsim_speed_factor 1"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %q", name)
		}
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestInitTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		ServiceName: "lidarsim-test",
		Exporter:    "stdout",
		SampleRatio: 1,
		Writer:      &buf,
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}

	_, span := Tracer().Start(context.Background(), "simulation.run")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	if !strings.Contains(buf.String(), "simulation.run") {
		t.Fatalf("exported spans missing simulation.run: %s", buf.String())
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin"}, nil)
	if err == nil {
		t.Fatal("expected error for unknown exporter")
	}
}

func histogramSampleCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name || mf.GetType() != dto.MetricType_HISTOGRAM {
			continue
		}
		var total uint64
		for _, m := range mf.GetMetric() {
			total += m.GetHistogram().GetSampleCount()
		}
		return total
	}
	t.Fatalf("histogram %s not found", name)
	return 0
}
