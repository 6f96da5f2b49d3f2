package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/shardgate/internal/logger"
	gwhandlers "github.com/marmos91/shardgate/internal/protocol/gateway/handlers"
	nodehandlers "github.com/marmos91/shardgate/internal/protocol/node/handlers"
	gwadapter "github.com/marmos91/shardgate/pkg/adapter/gateway"
	nodeadapter "github.com/marmos91/shardgate/pkg/adapter/node"
	"github.com/marmos91/shardgate/pkg/archive"
	"github.com/marmos91/shardgate/pkg/backend"
	"github.com/marmos91/shardgate/pkg/gc"
	"github.com/marmos91/shardgate/pkg/registry"
	"github.com/marmos91/shardgate/pkg/staging"
	"github.com/marmos91/shardgate/pkg/store/content"
	contentfs "github.com/marmos91/shardgate/pkg/store/content/fs"
	"github.com/marmos91/shardgate/pkg/vpath"
)

// Gateway is a front-end assembled from configuration.
type Gateway struct {
	Adapter   *gwadapter.GatewayAdapter
	Registry  *registry.Registry
	Catalog   archive.Catalog
	Collector *gc.Collector

	local content.ContentStore
}

// Close stops the staging collector and releases the local store and the
// catalog. Call it after the adapter has stopped.
func (g *Gateway) Close() error {
	var errs []error
	if g.Collector != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		errs = append(errs, g.Collector.Stop(ctx))
		cancel()
	}
	errs = append(errs, g.local.Close(), g.Catalog.Close())
	return errors.Join(errs...)
}

// BuildRegistry creates the extension registry of cfg.
func BuildRegistry(cfg *Config) (*registry.Registry, error) {
	endpoints := make([]registry.Endpoint, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		endpoints = append(endpoints, registry.Endpoint{
			Extension:  b.Extension,
			Host:       b.Host,
			Port:       b.Port,
			BundleName: b.BundleName,
		})
	}
	return registry.New(registry.LocalClass{
		Extension:  cfg.Local.Extension,
		BundleName: cfg.Local.BundleName,
	}, endpoints...)
}

// CreateGateway wires the front-end: registry, local store rooted at the
// gateway root, staging area and its collector, archive manager, backend
// directory, command handler and adapter. Staging leftovers from a previous
// run are swept before it returns.
//
// The staging and archive directories live under the root. They are hidden
// from the local store's walks and reserved in the resolver, so clients can
// neither see nor address them.
func CreateGateway(ctx context.Context, cfg *Config, m *MetricsResult) (*Gateway, error) {
	reg, err := BuildRegistry(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}

	root := ExpandHome(cfg.Gateway.Root)
	local, err := contentfs.NewFSContentStore(ctx, root,
		staging.DirName, cfg.Archive.DownloadsDir, cfg.Archive.BundlesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open gateway root: %w", err)
	}

	area, err := staging.NewArea(filepath.Join(root, staging.DirName))
	if err != nil {
		_ = local.Close()
		return nil, err
	}

	catalog, err := CreateCatalog(ctx, &cfg.Archive.Catalog)
	if err != nil {
		_ = local.Close()
		return nil, err
	}

	gw := &Gateway{Registry: reg, Catalog: catalog, local: local}

	archives, err := archive.NewManager(archive.Config{
		DownloadsDir: filepath.Join(root, cfg.Archive.DownloadsDir),
		BundlesDir:   filepath.Join(root, cfg.Archive.BundlesDir),
		Catalog:      catalog,
		Metrics:      m.ArchiveMetrics,
	})
	if err != nil {
		_ = gw.Close()
		return nil, err
	}

	handler, err := gwhandlers.NewHandler(gwhandlers.Config{
		Resolver: vpath.NewResolver(cfg.Gateway.Marker,
			staging.DirName, cfg.Archive.DownloadsDir, cfg.Archive.BundlesDir),
		Registry: reg,
		Local:    local,
		Backends: backend.NewDirectory(reg, backend.Config{
			DialTimeout:   cfg.Backend.DialTimeout,
			IOTimeout:     cfg.Backend.IOTimeout,
			MaxLineLength: cfg.Gateway.MaxLineLength,
			Metrics:       m.BackendMetrics,
		}),
		Archive:     archives,
		MaxFileSize: cfg.Gateway.MaxFileSize,
		Metrics:     m.ServerMetrics,
	})
	if err != nil {
		_ = gw.Close()
		return nil, err
	}

	gw.Adapter = gwadapter.New(cfg.Gateway.Config, handler, area, m.ServerMetrics)

	gw.Collector = gc.NewCollector(area, gc.Config{
		Enabled:  cfg.Gateway.StagingGC.Enabled,
		Interval: cfg.Gateway.StagingGC.Interval,
		MaxAge:   cfg.Gateway.StagingGC.MaxAge,
		DryRun:   cfg.Gateway.StagingGC.DryRun,
	})
	if stats, err := gw.Collector.RunNow(ctx); err != nil {
		logger.Warn("Startup staging sweep failed: %v", err)
	} else if stats.FoundCount > 0 {
		logger.Info("Startup staging sweep: %s", stats.Summary())
	}
	gw.Collector.Start()

	logger.Info("Gateway root %s serving %s (local class %s)",
		root, strings.Join(reg.Extensions(), " "), reg.Local().Extension)
	for _, ep := range reg.Endpoints() {
		logger.Info("  %s", ep)
	}
	return gw, nil
}

// Node is a storage node assembled from configuration.
type Node struct {
	Adapter *nodeadapter.NodeAdapter
	Store   content.ContentStore
}

// Close releases the node's store. Call it after the adapter has stopped.
func (n *Node) Close() error {
	return n.Store.Close()
}

// CreateNode wires a storage node: content store, request handler and
// adapter.
func CreateNode(ctx context.Context, cfg *NodeConfig, m *MetricsResult) (*Node, error) {
	store, err := CreateContentStore(ctx, &cfg.Content, m.S3Metrics)
	if err != nil {
		return nil, err
	}

	handler, err := nodehandlers.NewHandler(nodehandlers.Config{
		Extension:   cfg.Node.Extension,
		BundleName:  cfg.Node.BundleName,
		Store:       store,
		TempDir:     cfg.Node.TempDir,
		MaxFileSize: cfg.Node.MaxFileSize,
		Metrics:     m.ServerMetrics,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	logger.Info("Node for %s using %s content store", handler.Extension(), cfg.Content.Type)
	return &Node{
		Adapter: nodeadapter.New(cfg.Node.Config, handler, m.ServerMetrics),
		Store:   store,
	}, nil
}
