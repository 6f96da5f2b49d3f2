package config

import (
	"github.com/marmos91/shardgate/pkg/metrics"
	promMetrics "github.com/marmos91/shardgate/pkg/metrics/prometheus"
	"github.com/marmos91/shardgate/pkg/store/content/s3"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// ServerMetrics instruments the listener (never nil, uses noop if disabled)
	ServerMetrics metrics.ServerMetrics

	// BackendMetrics instruments node calls made by the gateway
	BackendMetrics metrics.BackendMetrics

	// ArchiveMetrics instruments archive copies
	ArchiveMetrics metrics.ArchiveMetrics

	// S3Metrics is nil when disabled; the S3 store then uses its own noop
	S3Metrics s3.S3Metrics
}

// InitializeMetrics creates the metrics components for one process.
//
// If metrics are enabled the global Prometheus registry is initialized and
// Prometheus-backed collectors are returned together with the HTTP server.
// Otherwise every collector is a no-op and Server is nil.
//
// adapter labels the listener metrics ("gateway" or "node").
func InitializeMetrics(cfg *ServerConfig, adapter string) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			ServerMetrics:  metrics.NewNoopServerMetrics(),
			BackendMetrics: metrics.NewNoopBackendMetrics(),
			ArchiveMetrics: metrics.NewNoopArchiveMetrics(),
		}
	}

	metrics.InitRegistry()

	return &MetricsResult{
		Server:         metrics.NewServer(metrics.ServerConfig{Port: cfg.Metrics.Port}),
		ServerMetrics:  promMetrics.NewServerMetrics(adapter),
		BackendMetrics: promMetrics.NewBackendMetrics(),
		ArchiveMetrics: promMetrics.NewArchiveMetrics(),
		S3Metrics:      promMetrics.NewS3Metrics(),
	}
}
