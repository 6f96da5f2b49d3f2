// Package backend is the gateway's client for the storage nodes.
//
// Every operation dials a fresh TCP connection, performs one request/reply
// exchange and closes it. Failures fall in two classes that callers usually
// treat alike but log differently: ErrUnavailable (connect or transport
// failure) and ErrRejected (the node answered ERR).
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/internal/protocol/node"
	"github.com/marmos91/shardgate/internal/protocol/wire"
	"github.com/marmos91/shardgate/pkg/metrics"
	"github.com/marmos91/shardgate/pkg/registry"
)

var (
	// ErrUnavailable means the node could not be reached or the exchange
	// broke off mid-way.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrRejected means the node replied ERR.
	ErrRejected = errors.New("backend rejected request")
)

// Config tunes backend connections. Zero timeouts disable the limit.
type Config struct {
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration

	// IOTimeout bounds the whole exchange once connected.
	IOTimeout time.Duration

	// MaxLineLength bounds reply lines; 0 selects the wire default.
	MaxLineLength int

	// Metrics is optional.
	Metrics metrics.BackendMetrics
}

// Client talks to the node owning one extension class.
//
// Thread Safety:
// Safe for concurrent use; calls share no connection.
type Client struct {
	endpoint registry.Endpoint
	cfg      Config
	metrics  metrics.BackendMetrics
}

// NewClient returns a client for ep.
func NewClient(ep registry.Endpoint, cfg Config) *Client {
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNoopBackendMetrics()
	}
	return &Client{endpoint: ep, cfg: cfg, metrics: m}
}

// Endpoint returns the node this client talks to.
func (c *Client) Endpoint() registry.Endpoint {
	return c.endpoint
}

// exchange is one connected request/reply session.
type exchange struct {
	conn net.Conn
	r    *wire.Reader
	stop func() bool
}

func (c *Client) dial(ctx context.Context) (*exchange, error) {
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.endpoint.Address())
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrUnavailable, c.endpoint, err)
	}

	if c.cfg.IOTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.cfg.IOTimeout))
	}

	return &exchange{
		conn: conn,
		r:    wire.NewReader(conn, c.cfg.MaxLineLength),
		// Unblock reads and writes when the caller gives up.
		stop: context.AfterFunc(ctx, func() { _ = conn.Close() }),
	}, nil
}

func (e *exchange) close() {
	e.stop()
	_ = e.conn.Close()
}

func (c *Client) unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, op, c.endpoint, err)
}

// readReply reads and decodes one status line, mapping ERR to ErrRejected.
func (c *Client) readReply(e *exchange, op string) (node.Reply, error) {
	line, err := e.r.ReadLine()
	if err != nil {
		return node.Reply{}, c.unavailable(op, err)
	}
	reply, err := node.ParseReply(line)
	if err != nil {
		return node.Reply{}, c.unavailable(op, err)
	}
	if !reply.OK {
		return reply, fmt.Errorf("%w: %s %s: %s", ErrRejected, op, c.endpoint, reply.Reason)
	}
	return reply, nil
}

func (c *Client) observe(op string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, ErrRejected):
		outcome = "rejected"
		logger.Debug("Backend %s rejected %s: %v", c.endpoint, op, err)
	case err != nil:
		outcome = "unavailable"
		logger.Warn("Backend %s unavailable for %s: %v", c.endpoint, op, err)
	}
	c.metrics.RecordCall(c.endpoint.Extension, op, time.Since(start), outcome)
}

// Store uploads size bytes from r as <relDir>/<name> on the node.
func (c *Client) Store(ctx context.Context, relDir, name string, r io.Reader, size int64) (err error) {
	start := time.Now()
	defer func() { c.observe("store", start, err) }()

	e, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	if err := wire.WriteLine(e.conn, node.Line(&node.StoreRequest{Dir: relDir, Name: name})); err != nil {
		return c.unavailable("store", err)
	}
	if err := wire.WriteLine(e.conn, wire.FormatSize(size)); err != nil {
		return c.unavailable("store", err)
	}
	if _, err := wire.SendExact(e.conn, r, size); err != nil {
		return c.unavailable("store", err)
	}

	_, err = c.readReply(e, "store")
	return err
}

// Fetch streams the file at rel into dst and returns the node's name and
// size for it.
func (c *Client) Fetch(ctx context.Context, rel string, dst io.Writer) (name string, size int64, err error) {
	start := time.Now()
	defer func() { c.observe("fetch", start, err) }()

	return c.download(ctx, "fetch", &node.FetchRequest{Path: rel}, dst)
}

// Tar streams the node's bundle of its extension into dst and returns the
// node's fixed bundle name and size.
func (c *Client) Tar(ctx context.Context, dst io.Writer) (name string, size int64, err error) {
	start := time.Now()
	defer func() { c.observe("tar", start, err) }()

	return c.download(ctx, "tar", &node.TarRequest{Extension: c.endpoint.Extension}, dst)
}

func (c *Client) download(ctx context.Context, op string, req node.Request, dst io.Writer) (string, int64, error) {
	e, err := c.dial(ctx)
	if err != nil {
		return "", 0, err
	}
	defer e.close()

	if err := wire.WriteLine(e.conn, node.Line(req)); err != nil {
		return "", 0, c.unavailable(op, err)
	}

	reply, err := c.readReply(e, op)
	if err != nil {
		return "", 0, err
	}
	name, size, err := reply.FileHeader()
	if err != nil {
		return "", 0, c.unavailable(op, err)
	}

	if _, err := e.r.ReceiveExact(dst, size); err != nil {
		return "", 0, c.unavailable(op, err)
	}
	return name, size, nil
}

// Delete unlinks the file at rel on the node.
func (c *Client) Delete(ctx context.Context, rel string) (err error) {
	start := time.Now()
	defer func() { c.observe("delete", start, err) }()

	e, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer e.close()

	if err := wire.WriteLine(e.conn, node.Line(&node.DeleteRequest{Path: rel})); err != nil {
		return c.unavailable("delete", err)
	}
	_, err = c.readReply(e, "delete")
	return err
}

// List returns the names the node holds directly under relDir.
func (c *Client) List(ctx context.Context, relDir string) (names []string, err error) {
	start := time.Now()
	defer func() { c.observe("list", start, err) }()

	e, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer e.close()

	if err := wire.WriteLine(e.conn, node.Line(&node.ListRequest{Dir: relDir})); err != nil {
		return nil, c.unavailable("list", err)
	}
	if _, err := c.readReply(e, "list"); err != nil {
		return nil, err
	}

	for {
		line, err := e.r.ReadLine()
		if err != nil {
			return nil, c.unavailable("list", err)
		}
		if line == node.ReplyEnd {
			return names, nil
		}
		tag, name, ok := strings.Cut(line, wire.Separator)
		if !ok || tag != node.ReplyName {
			return nil, c.unavailable("list", fmt.Errorf("unexpected line %q", line))
		}
		names = append(names, name)
	}
}
