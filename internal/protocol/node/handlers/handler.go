// Package handlers serves the storage node requests over a content store.
//
// A node owns one extension class. STORE, FETCH and DELETE act on single
// files, LIST reports the class's files directly under a directory and TAR
// bundles every file of the class. Failures are answered with ERR|<reason>
// and leave the connection usable; only transport errors end it.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/internal/protocol/node"
	"github.com/marmos91/shardgate/internal/protocol/wire"
	"github.com/marmos91/shardgate/pkg/bundle"
	"github.com/marmos91/shardgate/pkg/metrics"
	"github.com/marmos91/shardgate/pkg/registry"
	"github.com/marmos91/shardgate/pkg/store/content"
	"github.com/marmos91/shardgate/pkg/vpath"
)

// RequestContext carries the connection state a request runs with.
type RequestContext struct {
	Context    context.Context
	ClientAddr string
	Reader     *wire.Reader
	Writer     io.Writer
}

// Config wires a Handler.
type Config struct {
	// Extension is the class this node owns, e.g. ".pdf".
	Extension string

	// BundleName is the name reported for TAR replies; defaults to
	// "<ext>.tar" without the dot.
	BundleName string

	Store content.ContentStore

	// TempDir holds bundles while their size is measured; defaults to the
	// OS temp directory.
	TempDir string

	// MaxFileSize caps STORE payloads; 0 means unlimited.
	MaxFileSize int64

	// Metrics is optional.
	Metrics metrics.ServerMetrics
}

// Handler executes node requests.
//
// Thread Safety:
// Safe for concurrent use by multiple connections.
type Handler struct {
	ext         string
	bundleName  string
	store       content.ContentStore
	tempDir     string
	maxFileSize int64
	metrics     metrics.ServerMetrics
}

// NewHandler validates cfg and returns a Handler.
func NewHandler(cfg Config) (*Handler, error) {
	ext := registry.NormalizeExt(cfg.Extension)
	if ext == "" {
		return nil, errors.New("handlers: node extension is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("handlers: content store is required")
	}

	name := cfg.BundleName
	if name == "" {
		name = ext[1:] + ".tar"
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNoopServerMetrics()
	}

	return &Handler{
		ext:         ext,
		bundleName:  name,
		store:       cfg.Store,
		tempDir:     cfg.TempDir,
		maxFileSize: cfg.MaxFileSize,
		metrics:     m,
	}, nil
}

// Extension returns the class the node owns.
func (h *Handler) Extension() string {
	return h.ext
}

// Handle runs one request. A nil error means the reply was written in full.
func (h *Handler) Handle(ctx *RequestContext, req node.Request) error {
	start := time.Now()

	var err error
	switch r := req.(type) {
	case *node.StoreRequest:
		err = h.Store(ctx, r)
	case *node.FetchRequest:
		err = h.Fetch(ctx, r)
	case *node.DeleteRequest:
		err = h.Delete(ctx, r)
	case *node.ListRequest:
		err = h.List(ctx, r)
	case *node.TarRequest:
		err = h.Tar(ctx, r)
	default:
		err = reject(ctx, node.ReasonUnknown)
	}

	outcome := "ok"
	if err != nil {
		outcome = "aborted"
	}
	h.metrics.RecordCommand(req.Verb(), time.Since(start), outcome)
	return err
}

// Unknown answers a line ParseRequest did not recognize.
func (h *Handler) Unknown(ctx *RequestContext) error {
	h.metrics.RecordCommand("UNKNOWN", 0, "rejected")
	return reject(ctx, node.ReasonUnknown)
}

// Store receives the size line and payload that follow a STORE header.
func (h *Handler) Store(ctx *RequestContext, req *node.StoreRequest) error {
	sizeLine, err := ctx.Reader.ReadLine()
	if err != nil {
		return fmt.Errorf("read size line: %w", err)
	}
	size, err := wire.ParseSize(sizeLine)
	if err != nil {
		// Without a size the payload cannot be skipped.
		return err
	}
	if h.maxFileSize > 0 && size > h.maxFileSize {
		return fmt.Errorf("store %s: %d bytes exceeds limit", req.Name, size)
	}

	rel, reason := h.storePath(req)
	if reason != "" {
		if _, err := ctx.Reader.Discard(size); err != nil {
			return err
		}
		return reject(ctx, reason)
	}

	payload := &countingReader{r: ctx.Reader.Payload(size)}
	if err := h.store.Put(ctx.Context, rel, payload, size); err != nil {
		h.metrics.RecordBytesTransferred("in", payload.n)
		// Drain what the store did not consume; a stream that ends early is
		// a transport failure.
		if _, derr := ctx.Reader.Discard(size - payload.n); derr != nil {
			return fmt.Errorf("receive %s: %w", rel, derr)
		}
		logger.Warn("STORE %s failed: %v", rel, err)
		return reject(ctx, node.ReasonStore)
	}
	h.metrics.RecordBytesTransferred("in", size)
	logger.Debug("Stored %s (%d bytes)", rel, size)
	return ok(ctx)
}

func (h *Handler) storePath(req *node.StoreRequest) (string, string) {
	if err := vpath.ValidateName(req.Name); err != nil {
		return "", node.ReasonBadPath
	}
	rel, err := vpath.Clean(req.Dir)
	if err != nil {
		return "", node.ReasonBadPath
	}
	return vpath.Join(rel, req.Name), ""
}

// Fetch sends OK|<name>|<size> and the file bytes, or ERR|nofile.
func (h *Handler) Fetch(ctx *RequestContext, req *node.FetchRequest) error {
	rel, err := vpath.Clean(req.Path)
	if err != nil || rel == node.RootDir {
		return reject(ctx, node.ReasonNoFile)
	}

	rc, info, err := h.store.Open(ctx.Context, rel)
	if err != nil {
		logger.Debug("FETCH %s: %v", rel, err)
		return reject(ctx, node.ReasonNoFile)
	}
	defer func() { _ = rc.Close() }()

	return h.send(ctx, info.Name, rc, info.Size)
}

// Delete unlinks one file.
func (h *Handler) Delete(ctx *RequestContext, req *node.DeleteRequest) error {
	rel, err := vpath.Clean(req.Path)
	if err != nil || rel == node.RootDir {
		return reject(ctx, node.ReasonUnlink)
	}
	if err := h.store.Remove(ctx.Context, rel); err != nil {
		logger.Debug("DELETE %s: %v", rel, err)
		return reject(ctx, node.ReasonUnlink)
	}
	return ok(ctx)
}

// List reports files of the node's class directly under the directory. A
// missing directory is an empty listing.
func (h *Handler) List(ctx *RequestContext, req *node.ListRequest) error {
	var names []string
	if rel, err := vpath.Clean(req.Dir); err == nil {
		files, err := h.store.List(ctx.Context, rel)
		if err != nil {
			logger.Warn("LIST %s: %v", rel, err)
		}
		for _, fi := range files {
			if vpath.Ext(fi.Name) == h.ext {
				names = append(names, fi.Name)
			}
		}
	}

	if err := ok(ctx); err != nil {
		return err
	}
	for _, n := range names {
		if err := wire.WriteLine(ctx.Writer, node.ReplyName, n); err != nil {
			return err
		}
	}
	return wire.WriteLine(ctx.Writer, node.ReplyEnd)
}

// Tar bundles the node's class into a temporary file to learn its size,
// then streams it.
func (h *Handler) Tar(ctx *RequestContext, req *node.TarRequest) error {
	if registry.NormalizeExt(req.Extension) != h.ext {
		return reject(ctx, node.ReasonUnknown)
	}

	f, err := os.CreateTemp(h.tempDir, "shardnode-bundle-*.tar")
	if err != nil {
		logger.Error("TAR: create temp file: %v", err)
		return reject(ctx, node.ReasonTar)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(f.Name())
	}()

	if _, err := bundle.Write(ctx.Context, f, h.store, h.ext); err != nil {
		if !errors.Is(err, bundle.ErrEmpty) {
			logger.Error("TAR %s: %v", h.ext, err)
			return reject(ctx, node.ReasonTar)
		}
		return reject(ctx, node.ReasonEmpty)
	}

	size, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return reject(ctx, node.ReasonTar)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return reject(ctx, node.ReasonTar)
	}
	return h.send(ctx, h.bundleName, f, size)
}

func (h *Handler) send(ctx *RequestContext, name string, r io.Reader, size int64) error {
	if err := wire.WriteLine(ctx.Writer, node.ReplyOK, name, wire.FormatSize(size)); err != nil {
		return err
	}
	n, err := wire.SendExact(ctx.Writer, r, size)
	h.metrics.RecordBytesTransferred("out", n)
	return err
}

func ok(ctx *RequestContext) error {
	return wire.WriteLine(ctx.Writer, node.ReplyOK)
}

func reject(ctx *RequestContext, reason string) error {
	return wire.WriteLine(ctx.Writer, node.ReplyErr, reason)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
