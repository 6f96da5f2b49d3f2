// Package node is the adapter of a storage node: it serves the
// STORE/FETCH/DELETE/LIST/TAR protocol for one extension class.
package node

import (
	"context"
	"net"

	"github.com/marmos91/shardgate/internal/protocol/node/handlers"
	"github.com/marmos91/shardgate/pkg/adapter"
	"github.com/marmos91/shardgate/pkg/adapter/tcp"
	"github.com/marmos91/shardgate/pkg/metrics"
)

// Config configures the node listener.
type Config struct {
	tcp.Config `mapstructure:",squash"`

	// MaxLineLength bounds a request line; 0 selects 4096.
	MaxLineLength int `mapstructure:"max_line_length" validate:"min=0"`
}

// NodeAdapter serves gateway requests for one extension class.
type NodeAdapter struct {
	config  Config
	handler *handlers.Handler
	server  *tcp.Server
}

var _ adapter.Adapter = (*NodeAdapter)(nil)

// New creates a stopped adapter.
func New(config Config, handler *handlers.Handler, m metrics.ServerMetrics) *NodeAdapter {
	a := &NodeAdapter{config: config, handler: handler}
	a.server = tcp.NewServer("node "+handler.Extension(), config.Config, func(conn net.Conn) tcp.Connection {
		return NewNodeConnection(a, conn)
	}, m)
	return a
}

func (a *NodeAdapter) Serve(ctx context.Context) error {
	return a.server.Serve(ctx)
}

func (a *NodeAdapter) Stop(ctx context.Context) error {
	return a.server.Stop(ctx)
}

func (a *NodeAdapter) Protocol() string {
	return "node"
}

func (a *NodeAdapter) Port() int {
	return a.server.Port()
}

// Ready is closed once the listener is open.
func (a *NodeAdapter) Ready() <-chan struct{} {
	return a.server.Ready()
}

// Addr returns the listening address once Ready.
func (a *NodeAdapter) Addr() net.Addr {
	return a.server.Addr()
}
