// Package metrics provides Prometheus metrics for echoprobe.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "echoprobe"
)

// Metrics contains all Prometheus metrics for the probing engine.
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsFailed  *prometheus.CounterVec
	SessionsActive  prometheus.Gauge

	// Per-packet metrics
	PacketsSent       prometheus.Counter
	PacketsReceived   prometheus.Counter
	SendFailures      prometheus.Counter
	UnexpectedPackets *prometheus.CounterVec

	// Round-trip latency
	RTT prometheus.Histogram

	// Resolution metrics
	Resolutions       prometheus.Counter
	ResolutionErrors  *prometheus.CounterVec
	ResolutionLatency prometheus.Histogram
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total probing sessions that reached the ready state",
		}),
		SessionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_failed_total",
			Help:      "Total probing sessions that ended in failure, by cause",
		}, []string{"cause"}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active probing sessions",
		}),

		PacketsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Total echo requests transmitted",
		}),
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Total matching echo replies received",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Total echo request transmissions that failed",
		}),
		UnexpectedPackets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unexpected_packets_total",
			Help:      "Total datagrams that did not validate as a matching echo reply, by reason",
		}, []string{"reason"}),

		RTT: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rtt_seconds",
			Help:      "Echo round-trip time",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),

		Resolutions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Total successful hostname resolutions",
		}),
		ResolutionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolution_errors_total",
			Help:      "Total failed hostname resolutions, by reason",
		}, []string{"reason"}),
		ResolutionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_seconds",
			Help:      "Hostname resolution latency",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	return m
}
