package relay

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "focusrelay"

// Metrics instruments sessions and streams. A nil *Metrics records nothing.
type Metrics struct {
	ActiveStreams       prometheus.Gauge
	FramesTotal         *prometheus.CounterVec
	ErrorFramesTotal    *prometheus.CounterVec
	StreamsTotal        *prometheus.CounterVec
	PersistenceFailures *prometheus.CounterVec
	StreamDuration      prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "relay", Name: "active_streams",
			Help: "Answer streams currently being consumed.",
		}),
		FramesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "relay", Name: "frames_total",
			Help: "Outbound frames written, by frame type.",
		}, []string{"type"}),
		ErrorFramesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "relay", Name: "error_frames_total",
			Help: "Error frames written, by error key.",
		}, []string{"key"}),
		StreamsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "relay", Name: "streams_total",
			Help: "Answer streams by outcome (completed, detached).",
		}, []string{"outcome"}),
		PersistenceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "relay", Name: "persistence_failures_total",
			Help: "Failed persistence calls, by turn role.",
		}, []string{"role"}),
		StreamDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "relay", Name: "stream_duration_seconds",
			Help:    "Time from dispatch to the end of a stream.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}
}

func (m *Metrics) frameWritten(typ, key string) {
	if m == nil {
		return
	}
	m.FramesTotal.WithLabelValues(typ).Inc()
	if key != "" {
		m.ErrorFramesTotal.WithLabelValues(key).Inc()
	}
}

func (m *Metrics) streamStarted() {
	if m == nil {
		return
	}
	m.ActiveStreams.Inc()
}

func (m *Metrics) streamFinished(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.ActiveStreams.Dec()
	m.StreamsTotal.WithLabelValues(outcome).Inc()
	m.StreamDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) persistenceFailed(role string) {
	if m == nil {
		return
	}
	m.PersistenceFailures.WithLabelValues(role).Inc()
}
