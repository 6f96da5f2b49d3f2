// Package gateway is the client-facing adapter of the front-end node.
package gateway

import (
	"context"
	"net"

	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/internal/protocol/gateway/handlers"
	"github.com/marmos91/shardgate/pkg/adapter"
	"github.com/marmos91/shardgate/pkg/adapter/tcp"
	"github.com/marmos91/shardgate/pkg/metrics"
	"github.com/marmos91/shardgate/pkg/staging"
)

// Config configures the gateway listener and its sessions.
type Config struct {
	tcp.Config `mapstructure:",squash"`

	// MaxLineLength bounds a command line; 0 selects 4096.
	MaxLineLength int `mapstructure:"max_line_length" validate:"min=0"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles commands per session. A zero rate disables it.
type RateLimitConfig struct {
	RequestsPerSecond uint `mapstructure:"requests_per_second"`
	Burst             uint `mapstructure:"burst"`
}

// GatewayAdapter serves the UPLOADF/DOWNLF/REMOVEF/DOWNTAR/DISP protocol.
type GatewayAdapter struct {
	config  Config
	handler *handlers.Handler
	staging *staging.Area
	server  *tcp.Server
}

var _ adapter.Adapter = (*GatewayAdapter)(nil)

// New creates a stopped adapter. Each connection gets its own staging
// session under area.
func New(config Config, handler *handlers.Handler, area *staging.Area, m metrics.ServerMetrics) *GatewayAdapter {
	a := &GatewayAdapter{
		config:  config,
		handler: handler,
		staging: area,
	}
	a.server = tcp.NewServer("gateway", config.Config, func(conn net.Conn) tcp.Connection {
		return NewGatewayConnection(a, conn)
	}, m)
	logger.Debug("Gateway staging area: %s", area.Root())
	return a
}

func (a *GatewayAdapter) Serve(ctx context.Context) error {
	return a.server.Serve(ctx)
}

func (a *GatewayAdapter) Stop(ctx context.Context) error {
	return a.server.Stop(ctx)
}

func (a *GatewayAdapter) Protocol() string {
	return "gateway"
}

func (a *GatewayAdapter) Port() int {
	return a.server.Port()
}

// Ready is closed once the listener is open.
func (a *GatewayAdapter) Ready() <-chan struct{} {
	return a.server.Ready()
}

// Addr returns the listening address once Ready.
func (a *GatewayAdapter) Addr() net.Addr {
	return a.server.Addr()
}
