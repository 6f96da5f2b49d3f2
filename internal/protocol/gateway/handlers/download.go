package handlers

import (
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/internal/protocol/gateway"
	"github.com/marmos91/shardgate/pkg/archive"
	"github.com/marmos91/shardgate/pkg/registry"
	"github.com/marmos91/shardgate/pkg/staging"
	"github.com/marmos91/shardgate/pkg/vpath"
)

// errNotServed marks a path answered with FILENOTFOUND.
var errNotServed = errors.New("not served")

// Download sends every requested file that can be found, then DONE.
func (h *Handler) Download(ctx *CommandContext, cmd *gateway.DownloadCommand) error {
	for _, p := range cmd.Paths {
		err := h.downloadOne(ctx, p)
		if errors.Is(err, errNotServed) {
			logger.Debug("DOWNLF from %s: %v", ctx.ClientAddr, err)
			if err := gateway.WriteFileNotFound(ctx.Writer, p); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
	}
	return gateway.WriteDone(ctx.Writer)
}

// downloadOne returns an errNotServed wrap for anything the client should
// see as FILENOTFOUND; other errors are fatal to the connection.
func (h *Handler) downloadOne(ctx *CommandContext, p string) error {
	rel, err := h.resolver.Resolve(p)
	if err != nil {
		return fmt.Errorf("%w: %v", errNotServed, err)
	}
	ext := vpath.Ext(rel)
	name := vpath.Base(rel)

	switch h.registry.Classify(ext) {
	case registry.ClassLocal:
		rc, info, err := h.local.Open(ctx.Context, rel)
		if err != nil {
			return fmt.Errorf("%w: %v", errNotServed, err)
		}
		defer func() { _ = rc.Close() }()

		h.archiveCopy(ctx, archive.KindDownload, name, p, func() (io.ReadCloser, int64, error) {
			ac, ai, err := h.local.Open(ctx.Context, rel)
			return ac, ai.Size, err
		})

		return h.sendFile(ctx, name, rc, info.Size)

	case registry.ClassRemote:
		client, _ := h.backends.Lookup(ext)
		f, err := ctx.Staging.Create()
		if err != nil {
			return err
		}
		defer func() { _ = f.Discard() }()

		if _, _, err := client.Fetch(ctx.Context, rel, f); err != nil {
			return fmt.Errorf("%w: %v", errNotServed, err)
		}
		return h.sendStaged(ctx, archive.KindDownload, name, p, f)

	default:
		return fmt.Errorf("%w: no class owns %q", errNotServed, ext)
	}
}

// sendStaged archives and sends a fully staged file under name.
func (h *Handler) sendStaged(ctx *CommandContext, kind archive.Kind, name, source string, f *staging.File) error {
	h.archiveCopy(ctx, kind, name, source, stagedReader(f))

	r, size, err := f.Rewind()
	if err != nil {
		return err
	}
	return h.sendFile(ctx, name, r, size)
}
