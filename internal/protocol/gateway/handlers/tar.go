package handlers

import (
	"errors"

	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/internal/protocol/gateway"
	"github.com/marmos91/shardgate/pkg/archive"
	"github.com/marmos91/shardgate/pkg/bundle"
	"github.com/marmos91/shardgate/pkg/registry"
)

// DownloadTar sends the bundle of one extension class under its canonical
// name. The local class is bundled in process; remote classes are relayed
// byte for byte from their node.
func (h *Handler) DownloadTar(ctx *CommandContext, cmd *gateway.DownloadTarCommand) error {
	ext := registry.NormalizeExt(cmd.Extension)
	class := h.registry.Classify(ext)
	if class == registry.ClassUnsupported {
		return &gateway.ProtocolError{Reason: gateway.ReasonUnsupportedType}
	}
	name, _ := h.registry.BundleName(ext)

	f, err := ctx.Staging.Create()
	if err != nil {
		return err
	}
	defer func() { _ = f.Discard() }()

	if class == registry.ClassLocal {
		stats, err := bundle.Write(ctx.Context, f, h.local, ext)
		if err != nil {
			if !errors.Is(err, bundle.ErrEmpty) {
				logger.Error("DOWNTAR %s: building bundle: %v", ext, err)
			}
			return &gateway.ProtocolError{Reason: gateway.NoFilesReason(ext)}
		}
		logger.Debug("Built %s: %d member(s), %d bytes", name, stats.Members, stats.Bytes)
	} else {
		client, _ := h.backends.Lookup(ext)
		if _, _, err := client.Tar(ctx.Context, f); err != nil {
			return &gateway.ProtocolError{Reason: gateway.ReasonTarBackend}
		}
	}

	return h.sendStaged(ctx, archive.KindBundle, name, ext, f)
}
