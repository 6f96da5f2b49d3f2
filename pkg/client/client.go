// Package client speaks the gateway protocol from the client side.
//
// A Client wraps one connection and runs one command at a time; the gateway
// keeps the connection across commands.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/shardgate/internal/protocol/gateway"
	"github.com/marmos91/shardgate/internal/protocol/wire"
)

// ErrAborted means the gateway dropped the connection instead of replying,
// which is how it signals a failed upload.
var ErrAborted = errors.New("gateway closed the connection")

// ServerError is an ERR|<reason> reply.
type ServerError struct {
	Reason string
}

func (e *ServerError) Error() string {
	return "gateway error: " + e.Reason
}

// File is one upload.
type File struct {
	Name string
	Data []byte
}

// Download is the outcome for one requested path.
type Download struct {
	Path  string
	Found bool
	Name  string
	Data  []byte
}

// Removal is the outcome for one removed path.
type Removal struct {
	Path   string
	OK     bool
	Reason string
}

// Client is a gateway connection.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	r    *wire.Reader
}

// Dial connects to the gateway at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial gateway %s: %w", addr, err)
	}
	return &Client{conn: conn, r: wire.NewReader(conn, 0)}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// begin serializes commands and applies ctx's deadline to the connection.
func (c *Client) begin(ctx context.Context) func() {
	c.mu.Lock()
	deadline, _ := ctx.Deadline()
	_ = c.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Now()) })
	return func() {
		stop()
		c.mu.Unlock()
	}
}

func (c *Client) readLine() (string, error) {
	line, err := c.r.ReadLine()
	if errors.Is(err, io.EOF) {
		return "", ErrAborted
	}
	return line, err
}

// asError turns an ERR line into a *ServerError.
func asError(line string) error {
	if reason, ok := strings.CutPrefix(line, gateway.ReplyErr+wire.Separator); ok {
		return &ServerError{Reason: reason}
	}
	return nil
}

// Do sends one raw line and returns the first reply line. It is meant for
// single-line exchanges and protocol tests.
func (c *Client) Do(ctx context.Context, line string) (string, error) {
	defer c.begin(ctx)()

	if err := wire.WriteLine(c.conn, line); err != nil {
		return "", err
	}
	return c.readLine()
}

// Upload sends files into the virtual directory dest.
func (c *Client) Upload(ctx context.Context, dest string, files ...File) error {
	defer c.begin(ctx)()

	if err := wire.WriteLine(c.conn, gateway.VerbUpload, fmt.Sprint(len(files)), dest); err != nil {
		return err
	}
	for _, f := range files {
		if err := gateway.WriteFileMeta(c.conn, f.Name, int64(len(f.Data))); err != nil {
			return err
		}
		if _, err := c.conn.Write(f.Data); err != nil {
			return err
		}
	}

	line, err := c.readLine()
	if err != nil {
		return err
	}
	if err := asError(line); err != nil {
		return err
	}
	if line != gateway.ReplyOK {
		return fmt.Errorf("unexpected upload reply %q", line)
	}
	return nil
}

// Download fetches each path. Paths the gateway cannot serve come back with
// Found false.
func (c *Client) Download(ctx context.Context, paths ...string) ([]Download, error) {
	defer c.begin(ctx)()

	fields := append([]string{gateway.VerbDownload, fmt.Sprint(len(paths))}, paths...)
	if err := wire.WriteLine(c.conn, fields...); err != nil {
		return nil, err
	}

	out := make([]Download, 0, len(paths))
	for {
		line, err := c.readLine()
		if err != nil {
			return out, err
		}
		if err := asError(line); err != nil {
			return nil, err
		}

		switch {
		case line == gateway.TagDone:
			return out, nil

		case strings.HasPrefix(line, gateway.TagFileNotFound+wire.Separator):
			out = append(out, Download{Path: strings.TrimPrefix(line, gateway.TagFileNotFound+wire.Separator)})

		default:
			name, data, err := c.readFile(line)
			if err != nil {
				return out, err
			}
			path := ""
			if len(out) < len(paths) {
				path = paths[len(out)]
			}
			out = append(out, Download{Path: path, Found: true, Name: name, Data: data})
		}
	}
}

// Remove deletes each path and reports the per-path outcome.
func (c *Client) Remove(ctx context.Context, paths ...string) ([]Removal, error) {
	defer c.begin(ctx)()

	fields := append([]string{gateway.VerbRemove, fmt.Sprint(len(paths))}, paths...)
	if err := wire.WriteLine(c.conn, fields...); err != nil {
		return nil, err
	}

	out := make([]Removal, 0, len(paths))
	for range paths {
		line, err := c.readLine()
		if err != nil {
			return out, err
		}
		if err := asError(line); err != nil {
			return nil, err
		}

		f := wire.Split(line)
		switch {
		case len(f) == 2 && f[0] == gateway.TagRemoveOK:
			out = append(out, Removal{Path: f[1], OK: true})
		case len(f) >= 3 && f[0] == gateway.TagRemoveErr:
			out = append(out, Removal{Path: f[1], Reason: wire.Join(f[2:]...)})
		default:
			return out, fmt.Errorf("unexpected remove reply %q", line)
		}
	}
	return out, nil
}

// DownloadTar fetches the bundle of extension ext.
func (c *Client) DownloadTar(ctx context.Context, ext string) (string, []byte, error) {
	defer c.begin(ctx)()

	if err := wire.WriteLine(c.conn, gateway.VerbDownloadTar, ext); err != nil {
		return "", nil, err
	}
	line, err := c.readLine()
	if err != nil {
		return "", nil, err
	}
	if err := asError(line); err != nil {
		return "", nil, err
	}
	return c.readFile(line)
}

// List returns the aggregated listing of the virtual directory path.
func (c *Client) List(ctx context.Context, path string) ([]gateway.ListEntry, error) {
	defer c.begin(ctx)()

	if err := wire.WriteLine(c.conn, gateway.VerbList, path); err != nil {
		return nil, err
	}
	line, err := c.readLine()
	if err != nil {
		return nil, err
	}
	if err := asError(line); err != nil {
		return nil, err
	}
	if line != gateway.TagListBegin {
		return nil, fmt.Errorf("unexpected listing start %q", line)
	}

	var out []gateway.ListEntry
	for {
		line, err := c.readLine()
		if err != nil {
			return out, err
		}
		if line == gateway.TagListEnd {
			return out, nil
		}
		e, err := gateway.ParseListName(line)
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

func (c *Client) readFile(header string) (string, []byte, error) {
	name, size, err := gateway.ParseFileResponse(header)
	if err != nil {
		return "", nil, err
	}
	var buf bytes.Buffer
	if _, err := c.r.ReceiveExact(&buf, size); err != nil {
		return "", nil, err
	}
	return name, buf.Bytes(), nil
}
