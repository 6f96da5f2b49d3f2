package config

import (
	"strings"
	"time"

	"github.com/marmos91/shardgate/pkg/archive"
	"github.com/marmos91/shardgate/pkg/registry"
	"github.com/marmos91/shardgate/pkg/vpath"
)

// Default ports of the front-end and of the three storage nodes.
const (
	DefaultGatewayPort = 5001
	DefaultPDFPort     = 5002
	DefaultTXTPort     = 5003
	DefaultZIPPort     = 5004
)

// DefaultBackends is the stock partition in aggregation priority order.
func DefaultBackends() []BackendConfig {
	return []BackendConfig{
		{Extension: ".pdf", Host: "127.0.0.1", Port: DefaultPDFPort, BundleName: "pdfs.tar"},
		{Extension: ".txt", Host: "127.0.0.1", Port: DefaultTXTPort, BundleName: "textiles.tar"},
		{Extension: ".zip", Host: "127.0.0.1", Port: DefaultZIPPort, BundleName: "zips.tar"},
	}
}

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyGatewayDefaults(&cfg.Gateway, &cfg.Server)

	if cfg.Local.Extension == "" {
		cfg.Local.Extension = ".c"
	}
	cfg.Local.Extension = registry.NormalizeExt(cfg.Local.Extension)
	if cfg.Local.BundleName == "" {
		cfg.Local.BundleName = strings.TrimPrefix(cfg.Local.Extension, ".") + "files.tar"
	}

	if len(cfg.Backends) == 0 {
		cfg.Backends = DefaultBackends()
	}
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		b.Extension = registry.NormalizeExt(b.Extension)
		if b.Host == "" {
			b.Host = "127.0.0.1"
		}
		if b.BundleName == "" && b.Extension != "" {
			b.BundleName = strings.TrimPrefix(b.Extension, ".") + "s.tar"
		}
	}

	applyArchiveDefaults(&cfg.Archive)
}

// ApplyNodeDefaults sets storage node defaults.
func ApplyNodeDefaults(cfg *NodeConfig) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)

	n := &cfg.Node
	if n.Extension == "" {
		n.Extension = ".pdf"
	}
	n.Extension = registry.NormalizeExt(n.Extension)
	if n.Port == 0 {
		n.Port = DefaultPDFPort
	}
	if n.ShutdownTimeout == 0 {
		n.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}
	if n.MetricsLogInterval == 0 {
		n.MetricsLogInterval = 5 * time.Minute
	}

	applyContentDefaults(&cfg.Content)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

func applyGatewayDefaults(cfg *GatewayConfig, server *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultGatewayPort
	}
	if cfg.Root == "" {
		cfg.Root = "~/S1"
	}
	if cfg.Marker == "" {
		cfg.Marker = vpath.DefaultMarker
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = server.ShutdownTimeout
	}
	if cfg.MetricsLogInterval == 0 {
		cfg.MetricsLogInterval = 5 * time.Minute
	}
	if cfg.StagingGC.Interval == 0 {
		cfg.StagingGC.Interval = time.Hour
	}
	if cfg.StagingGC.MaxAge == 0 {
		cfg.StagingGC.MaxAge = 24 * time.Hour
	}
}

func applyArchiveDefaults(cfg *ArchiveConfig) {
	if cfg.DownloadsDir == "" {
		cfg.DownloadsDir = archive.DefaultDownloadsDir
	}
	if cfg.BundlesDir == "" {
		cfg.BundlesDir = archive.DefaultBundlesDir
	}
	if cfg.Catalog.Type == "" {
		cfg.Catalog.Type = "memory"
	}
	if cfg.Catalog.Badger == nil {
		cfg.Catalog.Badger = make(map[string]any)
	}
	if _, ok := cfg.Catalog.Badger["db_path"]; !ok {
		cfg.Catalog.Badger["db_path"] = "~/S1-catalog"
	}
}

// applyContentDefaults sets content store defaults.
func applyContentDefaults(cfg *ContentConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = "~/S2"
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
}

// GetDefaultConfig returns a front-end Config with all defaults applied.
//
// This is useful for generating sample configuration files and for tests.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// GetDefaultNodeConfig returns a node configuration with all defaults
// applied.
func GetDefaultNodeConfig() *NodeConfig {
	cfg := &NodeConfig{}
	ApplyNodeDefaults(cfg)
	return cfg
}
