package node

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/marmos91/shardgate/internal/logger"
	proto "github.com/marmos91/shardgate/internal/protocol/node"
	"github.com/marmos91/shardgate/internal/protocol/node/handlers"
	"github.com/marmos91/shardgate/internal/protocol/wire"
)

type NodeConnection struct {
	adapter *NodeAdapter
	conn    net.Conn
}

func NewNodeConnection(a *NodeAdapter, conn net.Conn) *NodeConnection {
	return &NodeConnection{adapter: a, conn: conn}
}

// Serve handles requests until the gateway closes the connection. The
// gateway normally sends one request per connection, but any number is
// accepted.
func (c *NodeConnection) Serve(ctx context.Context) {
	clientAddr := c.conn.RemoteAddr().String()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in node connection from %s: %v", clientAddr, r)
		}
		_ = c.conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	timeouts := c.adapter.config.Timeouts
	reqCtx := &handlers.RequestContext{
		Context:    ctx,
		ClientAddr: clientAddr,
		Reader:     wire.NewReader(c.conn, c.adapter.config.MaxLineLength),
		Writer:     c.conn,
	}

	for {
		if err := timeouts.ArmIdle(c.conn); err != nil || ctx.Err() != nil {
			return
		}

		line, err := reqCtx.Reader.ReadLine()
		if errors.Is(err, wire.ErrLineTooLong) {
			if err := c.adapter.handler.Unknown(reqCtx); err != nil {
				return
			}
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("Node connection from %s: %v", clientAddr, err)
			}
			return
		}

		if err := timeouts.ArmCommand(c.conn); err != nil {
			return
		}

		req, err := proto.ParseRequest(line)
		if err != nil {
			logger.Debug("Node request from %s: %v", clientAddr, err)
			err = c.adapter.handler.Unknown(reqCtx)
		} else {
			err = c.adapter.handler.Handle(reqCtx, req)
		}
		if err != nil {
			logger.Debug("Node connection from %s aborted: %v", clientAddr, err)
			return
		}
	}
}
