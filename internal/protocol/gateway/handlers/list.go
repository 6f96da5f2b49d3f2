package handlers

import (
	"context"

	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/internal/protocol/gateway"
	"github.com/marmos91/shardgate/pkg/aggregate"
	"github.com/marmos91/shardgate/pkg/backend"
	"github.com/marmos91/shardgate/pkg/vpath"
)

// List answers DISP with the local class files directly under the
// directory followed by every backend's listing, each group sorted.
func (h *Handler) List(ctx *CommandContext, cmd *gateway.ListCommand) error {
	rel, err := h.resolver.Resolve(cmd.Path)
	if err != nil {
		logger.Debug("DISP from %s: %v", ctx.ClientAddr, err)
		return &gateway.ProtocolError{Reason: gateway.ReasonBadPath}
	}

	localExt := h.registry.Local().Extension
	sources := []aggregate.Source{{
		Extension: localExt,
		List: func(c context.Context) ([]string, error) {
			files, err := h.local.List(c, rel)
			if err != nil {
				return nil, err
			}
			var names []string
			for _, fi := range files {
				if vpath.Ext(fi.Name) == localExt {
					names = append(names, fi.Name)
				}
			}
			return names, nil
		},
	}}
	for _, c := range h.backends.Clients() {
		sources = append(sources, backendSource(c, rel))
	}

	merged := aggregate.Merge(ctx.Context, sources, func(ext string, err error) {
		logger.Debug("DISP %s: %s contributes nothing: %v", cmd.Path, ext, err)
	})

	entries := make([]gateway.ListEntry, len(merged))
	for i, e := range merged {
		entries[i] = gateway.ListEntry{Extension: e.Extension, Name: e.Name}
	}
	return gateway.WriteListing(ctx.Writer, entries)
}

func backendSource(c *backend.Client, rel string) aggregate.Source {
	return aggregate.Source{
		Extension: c.Endpoint().Extension,
		List: func(ctx context.Context) ([]string, error) {
			return c.List(ctx, rel)
		},
	}
}
