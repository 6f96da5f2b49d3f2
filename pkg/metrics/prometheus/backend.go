package prometheus

import (
	"time"

	"github.com/marmos91/shardgate/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type backendMetrics struct {
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
}

// NewBackendMetrics creates Prometheus-backed BackendMetrics.
//
// Returns a no-op implementation if metrics are not enabled.
func NewBackendMetrics() metrics.BackendMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopBackendMetrics()
	}
	return newBackendMetrics(metrics.GetRegistry())
}

func newBackendMetrics(reg prometheus.Registerer) *backendMetrics {
	f := promauto.With(reg)
	return &backendMetrics{
		callsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shardgate_backend_calls_total",
				Help: "Total number of storage node calls by extension, operation and outcome",
			},
			[]string{"extension", "operation", "outcome"},
		),
		callDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "shardgate_backend_call_duration_seconds",
				Help: "Duration of storage node calls in seconds",
				Buckets: []float64{
					0.001, // 1ms
					0.01,  // 10ms
					0.1,   // 100ms
					0.5,   // 500ms
					1.0,   // 1s
					5.0,   // 5s
					30.0,  // 30s
				},
			},
			[]string{"extension", "operation"},
		),
	}
}

func (m *backendMetrics) RecordCall(extension, operation string, duration time.Duration, outcome string) {
	m.callsTotal.WithLabelValues(extension, operation, outcome).Inc()
	m.callDuration.WithLabelValues(extension, operation).Observe(duration.Seconds())
}
