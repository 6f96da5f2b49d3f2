package handlers

import (
	"errors"
	iofs "io/fs"
	"syscall"

	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/internal/protocol/gateway"
	"github.com/marmos91/shardgate/pkg/registry"
	"github.com/marmos91/shardgate/pkg/store/content"
	"github.com/marmos91/shardgate/pkg/vpath"
)

// Remove deletes each path and answers REMOK or REMERR per entry. There is
// no terminator line.
func (h *Handler) Remove(ctx *CommandContext, cmd *gateway.RemoveCommand) error {
	for _, p := range cmd.Paths {
		reason, ok := h.removeOne(ctx, p)
		var err error
		if ok {
			err = gateway.WriteRemoveOK(ctx.Writer, p)
		} else {
			err = gateway.WriteRemoveError(ctx.Writer, p, reason)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) removeOne(ctx *CommandContext, p string) (string, bool) {
	rel, err := h.resolver.Resolve(p)
	if err != nil {
		logger.Debug("REMOVEF from %s: %v", ctx.ClientAddr, err)
		return gateway.ReasonBadPath, false
	}
	ext := vpath.Ext(rel)

	switch h.registry.Classify(ext) {
	case registry.ClassLocal:
		if err := h.local.Remove(ctx.Context, rel); err != nil {
			logger.Debug("REMOVEF %s: %v", rel, err)
			return osReason(err), false
		}
		return "", true

	case registry.ClassRemote:
		client, _ := h.backends.Lookup(ext)
		if err := client.Delete(ctx.Context, rel); err != nil {
			return gateway.RemoveNotFound, false
		}
		return "", true

	default:
		return gateway.RemoveUnsupported, false
	}
}

// osReason renders a local unlink failure the way the OS describes it,
// e.g. "no such file or directory".
func osReason(err error) string {
	var pathErr *iofs.PathError
	switch {
	case errors.As(err, &pathErr):
		return pathErr.Err.Error()
	case errors.Is(err, content.ErrNotFound):
		return syscall.ENOENT.Error()
	case errors.Is(err, content.ErrIsDirectory):
		return syscall.EISDIR.Error()
	default:
		return err.Error()
	}
}
