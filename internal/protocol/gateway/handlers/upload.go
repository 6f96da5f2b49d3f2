package handlers

import (
	"fmt"

	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/internal/protocol/gateway"
	"github.com/marmos91/shardgate/pkg/registry"
	"github.com/marmos91/shardgate/pkg/vpath"
)

// Upload receives cmd.Count files into the virtual directory cmd.Dest.
//
// Each payload is staged first, then either committed into the local store
// by rename or forwarded to the owning node. Files already placed stay
// placed when a later one fails; the failure itself aborts the command with
// no reply.
func (h *Handler) Upload(ctx *CommandContext, cmd *gateway.UploadCommand) error {
	relDir, err := h.resolver.Resolve(cmd.Dest)
	if err != nil {
		logger.Debug("UPLOADF from %s: %v", ctx.ClientAddr, err)
		return &gateway.ProtocolError{Reason: gateway.ReasonBadUpload}
	}

	for i := 0; i < cmd.Count; i++ {
		if err := h.uploadOne(ctx, relDir); err != nil {
			return fmt.Errorf("upload %d/%d: %w", i+1, cmd.Count, err)
		}
	}

	return gateway.WriteOK(ctx.Writer)
}

func (h *Handler) uploadOne(ctx *CommandContext, relDir string) error {
	line, err := ctx.Reader.ReadLine()
	if err != nil {
		return fmt.Errorf("read file header: %w", err)
	}
	meta, err := gateway.ParseFileMeta(line, h.maxFileSize)
	if err != nil {
		return err
	}
	if err := vpath.ValidateName(meta.Name); err != nil {
		return err
	}

	f, err := ctx.Staging.Create()
	if err != nil {
		return err
	}
	defer func() { _ = f.Discard() }()

	n, err := ctx.Reader.ReceiveExact(f, meta.Size)
	h.metrics.RecordBytesTransferred("in", n)
	if err != nil {
		return fmt.Errorf("receive %s: %w", meta.Name, err)
	}

	ext := vpath.Ext(meta.Name)
	rel := vpath.Join(relDir, meta.Name)

	switch h.registry.Classify(ext) {
	case registry.ClassLocal:
		if err := f.Commit(ctx.Context, h.local, rel); err != nil {
			return fmt.Errorf("commit %s: %w", rel, err)
		}
		logger.Debug("Stored %s locally (%d bytes)", rel, meta.Size)

	case registry.ClassRemote:
		client, _ := h.backends.Lookup(ext)
		r, size, err := f.Rewind()
		if err != nil {
			return err
		}
		if err := client.Store(ctx.Context, relDir, meta.Name, r, size); err != nil {
			return fmt.Errorf("forward %s: %w", rel, err)
		}
		logger.Debug("Forwarded %s to %s (%d bytes)", rel, client.Endpoint(), size)

	default:
		logger.Warn("UPLOADF from %s: discarding %s, no class owns %q", ctx.ClientAddr, meta.Name, ext)
	}
	return nil
}
