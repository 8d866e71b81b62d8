package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsInitialized(t *testing.T) {
	Init()
	Init() // idempotent

	if CommandsHandled == nil || JobDuration == nil || JobFailures == nil {
		t.Fatal("vector metrics not initialized")
	}
	if MessagesSent == nil || QueueDepthGauge == nil || TransportConnected == nil {
		t.Fatal("scalar metrics not initialized")
	}
}

func TestObserveCommandCounts(t *testing.T) {
	Init()

	before := counterValue(t, CommandsHandled.WithLabelValues("ping", "ok"))
	ObserveCommand("ping", "ok")
	ObserveCommand("ping", "ok")
	after := counterValue(t, CommandsHandled.WithLabelValues("ping", "ok"))
	if after-before != 2 {
		t.Errorf("ping/ok delta = %v, want 2", after-before)
	}
}

func TestObserveJobCountsFailures(t *testing.T) {
	Init()

	before := counterValue(t, JobFailures.WithLabelValues("audit"))
	ObserveJob("audit", 10*time.Millisecond, nil)
	ObserveJob("audit", 10*time.Millisecond, errors.New("boom"))
	after := counterValue(t, JobFailures.WithLabelValues("audit"))
	if after-before != 1 {
		t.Errorf("audit failures delta = %v, want 1", after-before)
	}
}

func TestGauges(t *testing.T) {
	Init()

	tests := []struct {
		name  string
		set   func()
		gauge prometheus.Gauge
		want  float64
	}{
		{"queue", func() { SetQueueDepth(12) }, QueueDepthGauge, 12},
		{"rooms", func() { SetRoomCount(7) }, RoomCountGauge, 7},
		{"channels", func() { SetKnownChannels(3) }, KnownChannelsGauge, 3},
		{"connected", func() { SetTransportConnected(true) }, TransportConnected, 1},
		{"disconnected", func() { SetTransportConnected(false) }, TransportConnected, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.set()
			m := &dto.Metric{}
			if err := tt.gauge.Write(m); err != nil {
				t.Fatalf("write: %v", err)
			}
			if got := m.GetGauge().GetValue(); got != tt.want {
				t.Errorf("gauge = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.Histogram == nil {
		t.Fatal("Histogram metric is nil")
	}
	if *metric.Histogram.SampleCount == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("empty ctx corr = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc")
	if got := GetCorrelation(ctx); got != "abc" {
		t.Errorf("corr = %q, want abc", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}
