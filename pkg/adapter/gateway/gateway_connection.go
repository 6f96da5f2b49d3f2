package gateway

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/shardgate/internal/logger"
	proto "github.com/marmos91/shardgate/internal/protocol/gateway"
	"github.com/marmos91/shardgate/internal/protocol/gateway/handlers"
	"github.com/marmos91/shardgate/internal/protocol/wire"
	"github.com/marmos91/shardgate/internal/ratelimiter"
)

// GatewayConnection is one client session: AwaitCommand, Dispatch, repeat.
type GatewayConnection struct {
	adapter *GatewayAdapter
	conn    net.Conn
	id      string
}

func NewGatewayConnection(a *GatewayAdapter, conn net.Conn) *GatewayConnection {
	return &GatewayConnection{
		adapter: a,
		conn:    conn,
		id:      uuid.NewString(),
	}
}

// Serve runs the session until the client leaves, a command fails fatally
// or the server shuts down. Panics are recovered so one session cannot take
// the server down. The session's staging directory is removed on exit.
func (c *GatewayConnection) Serve(ctx context.Context) {
	clientAddr := c.conn.RemoteAddr().String()
	session := c.adapter.staging.Session(c.id)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in gateway session %s from %s: %v", c.id, clientAddr, r)
		}
		_ = c.conn.Close()
		if err := session.Close(); err != nil {
			logger.Warn("Session %s: %v", c.id, err)
		}
	}()

	// Unblock a read waiting for the next command when the server stops.
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	logger.Debug("Gateway session %s started for %s", c.id, clientAddr)

	timeouts := c.adapter.config.Timeouts
	reader := wire.NewReader(c.conn, c.adapter.config.MaxLineLength)
	limiter := ratelimiter.New(c.adapter.config.RateLimit.RequestsPerSecond, c.adapter.config.RateLimit.Burst)

	cmdCtx := &handlers.CommandContext{
		Context:    ctx,
		ClientAddr: clientAddr,
		Reader:     reader,
		Writer:     c.conn,
		Staging:    session,
	}

	for {
		if err := timeouts.ArmIdle(c.conn); err != nil {
			logger.Debug("Session %s: set idle deadline: %v", c.id, err)
			return
		}
		if ctx.Err() != nil {
			logger.Debug("Session %s closed due to server shutdown", c.id)
			return
		}

		line, err := reader.ReadLine()
		if errors.Is(err, wire.ErrLineTooLong) {
			if err := proto.WriteError(c.conn, proto.ReasonLineTooLong); err != nil {
				return
			}
			continue
		}
		if err != nil {
			c.logEnd(err)
			return
		}

		if err := limiter.Wait(ctx); err != nil {
			c.logEnd(err)
			return
		}
		if err := timeouts.ArmCommand(c.conn); err != nil {
			return
		}

		if err := c.handleLine(cmdCtx, line); err != nil {
			c.logEnd(err)
			return
		}
	}
}

// handleLine parses and dispatches one command. A returned error ends the
// session; protocol errors are answered and swallowed.
func (c *GatewayConnection) handleLine(ctx *handlers.CommandContext, line string) error {
	cmd, err := proto.ParseCommand(line)
	if err == nil {
		err = c.adapter.handler.Dispatch(ctx, cmd)
	}
	if pe, ok := proto.AsProtocolError(err); ok {
		logger.Debug("Session %s: %v", c.id, pe)
		return proto.WriteError(c.conn, pe.Reason)
	}
	return err
}

func (c *GatewayConnection) logEnd(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("Session %s closed by client", c.id)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("Session %s timed out: %v", c.id, err)
	case errors.Is(err, context.Canceled), errors.Is(err, net.ErrClosed):
		logger.Debug("Session %s cancelled: %v", c.id, err)
	default:
		logger.Info("Session %s aborted: %v", c.id, err)
	}
}
