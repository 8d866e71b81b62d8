// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	CommandsHandled  *prometheus.CounterVec // labels: command, outcome
	MessagesSent     prometheus.Counter
	SendFailures     prometheus.Counter
	MessagesDropped  prometheus.Counter
	SamplesRecorded  prometheus.Counter
	SamplesDiscarded prometheus.Counter
	RoomsRemoved     prometheus.Counter
	DepartFailures   prometheus.Counter
	JobFailures      *prometheus.CounterVec // labels: job

	// Histograms (seconds)
	JobDuration *prometheus.HistogramVec // labels: job

	// Gauges
	QueueDepthGauge    prometheus.Gauge
	RoomCountGauge     prometheus.Gauge
	KnownChannelsGauge prometheus.Gauge
	TransportConnected prometheus.Gauge // 1=connected,0=disconnected
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{Name: "confbot_commands_total", Help: "Commands dispatched by name and outcome"}, []string{"command", "outcome"})
		MessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "confbot_queue_messages_sent_total", Help: "Queued messages delivered to the transport"})
		SendFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "confbot_queue_send_failures_total", Help: "Queued message deliveries that failed and were left queued"})
		MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "confbot_queue_messages_dropped_total", Help: "Queued messages dropped after a send failure that cannot be retried"})
		SamplesRecorded = promauto.NewCounter(prometheus.CounterOpts{Name: "confbot_occupancy_samples_total", Help: "Membership replies recorded as occupancy samples"})
		SamplesDiscarded = promauto.NewCounter(prometheus.CounterOpts{Name: "confbot_occupancy_samples_discarded_total", Help: "Membership replies discarded as stale or malformed"})
		RoomsRemoved = promauto.NewCounter(prometheus.CounterOpts{Name: "confbot_rooms_removed_total", Help: "Rooms removed by the occupancy audit"})
		DepartFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "confbot_depart_failures_total", Help: "Failed attempts to leave an audited channel"})
		JobFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "confbot_job_failures_total", Help: "Periodic job runs that returned an error"}, []string{"job"})
		JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "confbot_job_duration_seconds", Help: "Periodic job run duration seconds", Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5}}, []string{"job"})
		QueueDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "confbot_queue_depth", Help: "Current number of queued outbound messages"})
		RoomCountGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "confbot_rooms", Help: "Current number of open rooms"})
		KnownChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "confbot_known_channels", Help: "Channels with a current occupancy sample"})
		TransportConnected = promauto.NewGauge(prometheus.GaugeOpts{Name: "confbot_transport_connected", Help: "Chat transport connected=1 disconnected=0"})
	})
}

// ObserveCommand counts one dispatched command.
func ObserveCommand(command, outcome string) {
	if CommandsHandled != nil {
		CommandsHandled.WithLabelValues(command, outcome).Inc()
	}
}

// ObserveJob records a periodic job run and its failure, if any.
func ObserveJob(job string, d time.Duration, err error) {
	if JobDuration != nil {
		JobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
	if err != nil && JobFailures != nil {
		JobFailures.WithLabelValues(job).Inc()
	}
}

// SetQueueDepth records the current outbound queue length.
func SetQueueDepth(n int) {
	if QueueDepthGauge != nil {
		QueueDepthGauge.Set(float64(n))
	}
}

// SetRoomCount records the current number of open rooms.
func SetRoomCount(n int) {
	if RoomCountGauge != nil {
		RoomCountGauge.Set(float64(n))
	}
}

// SetKnownChannels records how many channels have a current sample.
func SetKnownChannels(n int) {
	if KnownChannelsGauge != nil {
		KnownChannelsGauge.Set(float64(n))
	}
}

// SetTransportConnected sets gauge to 1 if connected else 0.
func SetTransportConnected(up bool) {
	if TransportConnected == nil {
		return
	}
	if up {
		TransportConnected.Set(1)
	} else {
		TransportConnected.Set(0)
	}
}

// Inc increments c if it has been registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
