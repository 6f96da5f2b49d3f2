// Package metrics provides Prometheus metrics collection for shardgate
// components.
//
// All metrics are optional. When the registry is not initialized, components
// fall back to no-op implementations, so the gateway and the storage nodes
// run the same way with or without metrics enabled.
//
// Usage:
//
//	// Initialize the global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	serverMetrics := prometheus.NewServerMetrics("gateway")
//	backendMetrics := prometheus.NewBackendMetrics()
//
//	// Or use nil for no-op behavior
//	adapter := gateway.New(config, deps, nil)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is the global Prometheus registry, written once by InitRegistry.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry, together with the
// Go runtime and process collectors.
//
// It must be called before creating any metrics instances. Subsequent calls
// are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the global Prometheus registry, or nil when metrics
// are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
