// Package handlers implements the five gateway commands.
//
// A Handler is shared by every connection; per-connection state travels in
// a CommandContext. Handlers report outcomes through their error:
//
//   - nil: the command completed (including per-entry failures such as
//     FILENOTFOUND or REMERR, which are ordinary replies)
//   - *gateway.ProtocolError: the caller sends ERR|<reason> and keeps the
//     connection
//   - anything else: the exchange is broken and the connection is dropped
//     without a reply
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/internal/protocol/gateway"
	"github.com/marmos91/shardgate/internal/protocol/wire"
	"github.com/marmos91/shardgate/pkg/archive"
	"github.com/marmos91/shardgate/pkg/backend"
	"github.com/marmos91/shardgate/pkg/metrics"
	"github.com/marmos91/shardgate/pkg/registry"
	"github.com/marmos91/shardgate/pkg/staging"
	"github.com/marmos91/shardgate/pkg/store/content"
	"github.com/marmos91/shardgate/pkg/vpath"
)

// CommandContext carries the connection state a command runs with.
type CommandContext struct {
	// Context is cancelled on server shutdown.
	Context context.Context

	// ClientAddr is the peer address, for logging.
	ClientAddr string

	// Reader is positioned right after the command line; UPLOADF reads its
	// file headers and payloads from it.
	Reader *wire.Reader

	// Writer receives reply lines and payloads.
	Writer io.Writer

	// Staging is the connection's staging session.
	Staging *staging.Session
}

// Config wires a Handler.
type Config struct {
	Resolver *vpath.Resolver
	Registry *registry.Registry

	// Local stores the local extension class under the gateway root.
	Local content.ContentStore

	Backends *backend.Directory

	// Archive receives download and bundle copies; nil disables them.
	Archive *archive.Manager

	// MaxFileSize caps a single upload; 0 means unlimited.
	MaxFileSize int64

	// Metrics is optional.
	Metrics metrics.ServerMetrics
}

// Handler executes gateway commands.
//
// Thread Safety:
// Safe for concurrent use by multiple connections.
type Handler struct {
	resolver    *vpath.Resolver
	registry    *registry.Registry
	local       content.ContentStore
	backends    *backend.Directory
	archive     *archive.Manager
	maxFileSize int64
	metrics     metrics.ServerMetrics
}

// NewHandler validates cfg and returns a Handler.
func NewHandler(cfg Config) (*Handler, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("handlers: registry is required")
	case cfg.Local == nil:
		return nil, errors.New("handlers: local store is required")
	case cfg.Backends == nil:
		return nil, errors.New("handlers: backend directory is required")
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = vpath.NewResolver(vpath.DefaultMarker)
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNoopServerMetrics()
	}

	return &Handler{
		resolver:    resolver,
		registry:    cfg.Registry,
		local:       cfg.Local,
		backends:    cfg.Backends,
		archive:     cfg.Archive,
		maxFileSize: cfg.MaxFileSize,
		metrics:     m,
	}, nil
}

// ============================================================================
// Dispatch
// ============================================================================

type commandHandler func(h *Handler, ctx *CommandContext, cmd gateway.Command) error

// commandInfo describes one dispatchable command.
type commandInfo struct {
	// Name is the verb, for logging and metrics.
	Name string

	Handler commandHandler
}

var dispatchTable = map[string]*commandInfo{
	gateway.VerbUpload: {
		Name: gateway.VerbUpload,
		Handler: func(h *Handler, ctx *CommandContext, cmd gateway.Command) error {
			return h.Upload(ctx, cmd.(*gateway.UploadCommand))
		},
	},
	gateway.VerbDownload: {
		Name: gateway.VerbDownload,
		Handler: func(h *Handler, ctx *CommandContext, cmd gateway.Command) error {
			return h.Download(ctx, cmd.(*gateway.DownloadCommand))
		},
	},
	gateway.VerbRemove: {
		Name: gateway.VerbRemove,
		Handler: func(h *Handler, ctx *CommandContext, cmd gateway.Command) error {
			return h.Remove(ctx, cmd.(*gateway.RemoveCommand))
		},
	},
	gateway.VerbDownloadTar: {
		Name: gateway.VerbDownloadTar,
		Handler: func(h *Handler, ctx *CommandContext, cmd gateway.Command) error {
			return h.DownloadTar(ctx, cmd.(*gateway.DownloadTarCommand))
		},
	},
	gateway.VerbList: {
		Name: gateway.VerbList,
		Handler: func(h *Handler, ctx *CommandContext, cmd gateway.Command) error {
			return h.List(ctx, cmd.(*gateway.ListCommand))
		},
	},
}

// Dispatch runs cmd and records its outcome.
func (h *Handler) Dispatch(ctx *CommandContext, cmd gateway.Command) error {
	info, ok := dispatchTable[cmd.Verb()]
	if !ok {
		return &gateway.ProtocolError{Reason: gateway.ReasonUnknownCmd}
	}

	if err := ctx.Context.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := info.Handler(h, ctx, cmd)

	outcome := "ok"
	if err != nil {
		if _, ok := gateway.AsProtocolError(err); ok {
			outcome = "rejected"
		} else {
			outcome = "aborted"
		}
	}
	h.metrics.RecordCommand(info.Name, time.Since(start), outcome)
	logger.Debug("%s from %s: %s (%v)", info.Name, ctx.ClientAddr, outcome, time.Since(start))

	return err
}

// ============================================================================
// Shared helpers
// ============================================================================

// sendFile writes FILERESP|<name>|<size> followed by exactly size bytes of r.
func (h *Handler) sendFile(ctx *CommandContext, name string, r io.Reader, size int64) error {
	if err := gateway.WriteFileResponse(ctx.Writer, name, size); err != nil {
		return err
	}
	n, err := wire.SendExact(ctx.Writer, r, size)
	h.metrics.RecordBytesTransferred("out", n)
	if err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	return nil
}

// archiveCopy saves a copy of the size bytes open yields. Failures are
// logged and dropped.
func (h *Handler) archiveCopy(ctx *CommandContext, kind archive.Kind, name, source string, open func() (io.ReadCloser, int64, error)) {
	if h.archive == nil {
		return
	}
	rc, size, err := open()
	if err != nil {
		logger.Warn("Archive copy of %s skipped: %v", source, err)
		return
	}
	defer func() { _ = rc.Close() }()

	entry, err := h.archive.Save(ctx.Context, kind, name, source, rc, size)
	if err != nil {
		logger.Warn("Archive copy of %s failed: %v", source, err)
		return
	}
	logger.Debug("Archived %s as %s", source, entry.StoredPath)
}

// stagedReader rewinds a staging file for one more read pass.
func stagedReader(f *staging.File) func() (io.ReadCloser, int64, error) {
	return func() (io.ReadCloser, int64, error) {
		r, size, err := f.Rewind()
		if err != nil {
			return nil, 0, err
		}
		return io.NopCloser(r), size, nil
	}
}
