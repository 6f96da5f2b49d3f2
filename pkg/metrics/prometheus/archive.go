package prometheus

import (
	"github.com/marmos91/shardgate/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type archiveMetrics struct {
	copiesTotal *prometheus.CounterVec
	bytesTotal  *prometheus.CounterVec
}

// NewArchiveMetrics creates Prometheus-backed ArchiveMetrics.
//
// Returns a no-op implementation if metrics are not enabled.
func NewArchiveMetrics() metrics.ArchiveMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopArchiveMetrics()
	}
	return newArchiveMetrics(metrics.GetRegistry())
}

func newArchiveMetrics(reg prometheus.Registerer) *archiveMetrics {
	f := promauto.With(reg)
	return &archiveMetrics{
		copiesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shardgate_archive_copies_total",
				Help: "Total number of archive copies by kind and status",
			},
			[]string{"kind", "status"},
		),
		bytesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shardgate_archive_bytes_total",
				Help: "Total bytes written to the archive by kind",
			},
			[]string{"kind"},
		),
	}
}

func (m *archiveMetrics) RecordCopy(kind string, bytes int64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.copiesTotal.WithLabelValues(kind, status).Inc()
	if err == nil {
		m.bytesTotal.WithLabelValues(kind).Add(float64(bytes))
	}
}
