package adapter

import (
	"context"
)

// Adapter is a protocol server managed by server.Server.
//
// Shardgate runs two kinds: the client-facing gateway and the storage node.
// Both are built with their dependencies already wired, so the lifecycle is
// only Serve and Stop.
//
// Thread safety:
// Implementations must be safe for concurrent use. Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Wait for active sessions to complete (with timeout)
	//   - Force-close what is left
	//
	// If Serve returns before context cancellation, the server treats it as
	// a fatal error and stops all other adapters.
	Serve(ctx context.Context) error

	// Stop initiates graceful shutdown. It is idempotent and respects the
	// context deadline.
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging and metrics.
	Protocol() string

	// Port returns the TCP port the adapter listens on. Once listening, a
	// configured port of 0 reports the port the OS chose.
	Port() int
}
