package metrics

import "time"

// BackendMetrics provides observability for gateway to storage node calls.
type BackendMetrics interface {
	// RecordCall records one backend operation ("store", "fetch", "delete",
	// "list", "tar") against the node owning extension. outcome is "ok",
	// "rejected" (the node answered ERR) or "unavailable" (connect or I/O
	// failure).
	RecordCall(extension, operation string, duration time.Duration, outcome string)
}

// NewNoopBackendMetrics returns a BackendMetrics that discards everything.
func NewNoopBackendMetrics() BackendMetrics {
	return noopBackendMetrics{}
}

type noopBackendMetrics struct{}

func (noopBackendMetrics) RecordCall(string, string, time.Duration, string) {}
