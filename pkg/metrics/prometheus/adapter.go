// Package prometheus holds the Prometheus implementations of the metrics
// interfaces declared by pkg/metrics and by the storage packages.
package prometheus

import (
	"time"

	"github.com/marmos91/shardgate/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics is the Prometheus implementation of metrics.ServerMetrics.
type serverMetrics struct {
	commandsTotal          *prometheus.CounterVec
	commandDuration        *prometheus.HistogramVec
	bytesTransferred       *prometheus.CounterVec
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
	connectionsRejected    prometheus.Counter
}

// NewServerMetrics creates Prometheus-backed ServerMetrics for the named
// adapter ("gateway" or "node"), carried as the adapter label.
//
// Returns a no-op implementation if metrics are not enabled.
func NewServerMetrics(adapter string) metrics.ServerMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopServerMetrics()
	}
	return newServerMetrics(metrics.GetRegistry(), adapter)
}

func newServerMetrics(reg prometheus.Registerer, adapter string) *serverMetrics {
	labels := prometheus.Labels{"adapter": adapter}
	f := promauto.With(reg)

	return &serverMetrics{
		commandsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "shardgate_commands_total",
				Help:        "Total number of protocol commands by verb and outcome",
				ConstLabels: labels,
			},
			[]string{"verb", "outcome"},
		),
		commandDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "shardgate_command_duration_milliseconds",
				Help:        "Duration of protocol commands in milliseconds",
				ConstLabels: labels,
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
					60000, // 1m
				},
			},
			[]string{"verb"},
		),
		bytesTransferred: f.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "shardgate_bytes_transferred_total",
				Help:        "Total payload bytes moved by direction",
				ConstLabels: labels,
			},
			[]string{"direction"},
		),
		activeConnections: f.NewGauge(prometheus.GaugeOpts{
			Name:        "shardgate_active_connections",
			Help:        "Current number of active connections",
			ConstLabels: labels,
		}),
		connectionsAccepted: f.NewCounter(prometheus.CounterOpts{
			Name:        "shardgate_connections_accepted_total",
			Help:        "Total number of connections accepted",
			ConstLabels: labels,
		}),
		connectionsClosed: f.NewCounter(prometheus.CounterOpts{
			Name:        "shardgate_connections_closed_total",
			Help:        "Total number of connections closed",
			ConstLabels: labels,
		}),
		connectionsForceClosed: f.NewCounter(prometheus.CounterOpts{
			Name:        "shardgate_connections_force_closed_total",
			Help:        "Total number of connections force-closed at shutdown",
			ConstLabels: labels,
		}),
		connectionsRejected: f.NewCounter(prometheus.CounterOpts{
			Name:        "shardgate_connections_rejected_total",
			Help:        "Total number of connections rejected at the connection limit",
			ConstLabels: labels,
		}),
	}
}

func (m *serverMetrics) RecordCommand(verb string, duration time.Duration, outcome string) {
	m.commandsTotal.WithLabelValues(verb, outcome).Inc()
	m.commandDuration.WithLabelValues(verb).Observe(float64(duration.Milliseconds()))
}

func (m *serverMetrics) RecordBytesTransferred(direction string, bytes int64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *serverMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *serverMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *serverMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *serverMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *serverMetrics) RecordConnectionRejected() {
	m.connectionsRejected.Inc()
}
