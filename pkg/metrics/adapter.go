package metrics

import "time"

// ServerMetrics provides observability for protocol adapters: the gateway's
// client-facing listener and each storage node's listener.
//
// Optional: adapters given nil use NewNoopServerMetrics.
type ServerMetrics interface {
	// RecordCommand records a completed command with its verb, duration
	// and outcome. outcome is "ok" or a short failure class such as
	// "rejected" or "aborted".
	RecordCommand(verb string, duration time.Duration, outcome string)

	// RecordBytesTransferred records payload bytes moved; direction is
	// "in" (from the peer) or "out" (to the peer).
	RecordBytesTransferred(direction string, bytes int64)

	// SetActiveConnections updates the current connection count.
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed increments the counter of connections
	// closed because the shutdown timeout expired.
	RecordConnectionForceClosed()

	// RecordConnectionRejected increments the counter of connections turned
	// away at the connection limit.
	RecordConnectionRejected()
}

// NewNoopServerMetrics returns a ServerMetrics that discards everything.
func NewNoopServerMetrics() ServerMetrics {
	return noopServerMetrics{}
}

type noopServerMetrics struct{}

func (noopServerMetrics) RecordCommand(string, time.Duration, string) {}
func (noopServerMetrics) RecordBytesTransferred(string, int64)        {}
func (noopServerMetrics) SetActiveConnections(int32)                  {}
func (noopServerMetrics) RecordConnectionAccepted()                   {}
func (noopServerMetrics) RecordConnectionClosed()                     {}
func (noopServerMetrics) RecordConnectionForceClosed()                {}
func (noopServerMetrics) RecordConnectionRejected()                   {}
