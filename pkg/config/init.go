package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// section is one top-level key of a generated file.
type section struct {
	key     string
	comment string
	value   any
}

// InitConfig writes a sample configuration for binary to its default
// location and returns the path. An existing file is kept unless force is
// set.
func InitConfig(binary string, force bool) (string, error) {
	path := GetDefaultConfigPath(binary)
	if err := InitConfigToPath(binary, path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration for binary to path.
func InitConfigToPath(binary, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	text, err := GenerateSample(binary)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateSample renders the default configuration of binary as commented
// YAML.
func GenerateSample(binary string) (string, error) {
	switch binary {
	case GatewayBinary:
		return generateYAMLWithComments("Shardgate Configuration File", gatewaySections(GetDefaultConfig()))
	case NodeBinary:
		return generateYAMLWithComments("Shardnode Configuration File", nodeSections(GetDefaultNodeConfig()))
	default:
		return "", fmt.Errorf("unknown binary %q", binary)
	}
}

func generateYAMLWithComments(title string, sections []section) (string, error) {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, s := range sections {
		var value yaml.Node
		if err := value.Encode(s.value); err != nil {
			return "", fmt.Errorf("failed to encode %s: %w", s.key, err)
		}
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: s.key, HeadComment: s.comment},
			&value,
		)
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	header := "# " + title + "\n" +
		"#\n" +
		"# Durations use Go syntax (30s, 5m). A zero timeout disables the limit.\n\n"
	return header + string(out), nil
}

func gatewaySections(cfg *Config) []section {
	backends := make([]map[string]any, 0, len(cfg.Backends))
	for _, b := range cfg.Backends {
		backends = append(backends, map[string]any{
			"extension":   b.Extension,
			"host":        b.Host,
			"port":        b.Port,
			"bundle_name": b.BundleName,
		})
	}

	gw := cfg.Gateway
	return []section{
		loggingSection(cfg.Logging),
		serverSection(cfg.Server),
		{
			key:     "gateway",
			comment: "Client-facing listener. root holds the local class, staging and archives.",
			value: map[string]any{
				"bind":                 gw.Bind,
				"port":                 gw.Port,
				"max_connections":      gw.MaxConnections,
				"timeouts":             timeoutsSample(gw.Timeouts.Read, gw.Timeouts.Write, gw.Timeouts.Idle),
				"shutdown_timeout":     gw.ShutdownTimeout.String(),
				"metrics_log_interval": gw.MetricsLogInterval.String(),
				"max_line_length":      gw.MaxLineLength,
				"rate_limit": map[string]any{
					"requests_per_second": gw.RateLimit.RequestsPerSecond,
					"burst":               gw.RateLimit.Burst,
				},
				"root":          gw.Root,
				"marker":        gw.Marker,
				"max_file_size": gw.MaxFileSize,
				"staging_gc": map[string]any{
					"enabled":  gw.StagingGC.Enabled,
					"interval": gw.StagingGC.Interval.String(),
					"max_age":  gw.StagingGC.MaxAge.String(),
					"dry_run":  gw.StagingGC.DryRun,
				},
			},
		},
		{
			key:     "local",
			comment: "Extension class stored on the gateway itself.",
			value: map[string]any{
				"extension":   cfg.Local.Extension,
				"bundle_name": cfg.Local.BundleName,
			},
		},
		{
			key:     "backends",
			comment: "Storage nodes, in listing priority order. Exactly three are required.",
			value:   backends,
		},
		{
			key:   "backend",
			value: timeoutsPair(cfg.Backend.DialTimeout, cfg.Backend.IOTimeout),
		},
		{
			key:     "archive",
			comment: "Copies of served downloads and bundles, relative to gateway.root.",
			value: map[string]any{
				"downloads_dir": cfg.Archive.DownloadsDir,
				"bundles_dir":   cfg.Archive.BundlesDir,
				"catalog": map[string]any{
					"type":   cfg.Archive.Catalog.Type,
					"badger": cfg.Archive.Catalog.Badger,
				},
			},
		},
	}
}

func nodeSections(cfg *NodeConfig) []section {
	n := cfg.Node
	return []section{
		loggingSection(cfg.Logging),
		serverSection(cfg.Server),
		{
			key:     "node",
			comment: "The extension class this node owns and its listener.",
			value: map[string]any{
				"extension":            n.Extension,
				"bundle_name":          n.BundleName,
				"bind":                 n.Bind,
				"port":                 n.Port,
				"max_connections":      n.MaxConnections,
				"timeouts":             timeoutsSample(n.Timeouts.Read, n.Timeouts.Write, n.Timeouts.Idle),
				"shutdown_timeout":     n.ShutdownTimeout.String(),
				"metrics_log_interval": n.MetricsLogInterval.String(),
				"max_line_length":      n.MaxLineLength,
				"max_file_size":        n.MaxFileSize,
				"temp_dir":             n.TempDir,
			},
		},
		{
			key:     "content",
			comment: "Content store: filesystem, memory or s3.",
			value: map[string]any{
				"type":       cfg.Content.Type,
				"filesystem": cfg.Content.Filesystem,
				"s3": map[string]any{
					"region":     "us-east-1",
					"bucket":     "",
					"key_prefix": "",
					"endpoint":   "",
				},
			},
		},
	}
}

func loggingSection(cfg LoggingConfig) section {
	return section{
		key:     "logging",
		comment: "level: DEBUG, INFO, WARN, ERROR. format: text or json. output: stdout, stderr or a file.",
		value: map[string]any{
			"level":  cfg.Level,
			"format": cfg.Format,
			"output": cfg.Output,
		},
	}
}

func serverSection(cfg ServerConfig) section {
	return section{
		key: "server",
		value: map[string]any{
			"shutdown_timeout": cfg.ShutdownTimeout.String(),
			"metrics": map[string]any{
				"enabled": cfg.Metrics.Enabled,
				"port":    cfg.Metrics.Port,
			},
		},
	}
}

func timeoutsSample(read, write, idle time.Duration) map[string]any {
	return map[string]any{
		"read":  read.String(),
		"write": write.String(),
		"idle":  idle.String(),
	}
}

func timeoutsPair(dial, io time.Duration) map[string]any {
	return map[string]any{
		"dial_timeout": dial.String(),
		"io_timeout":   io.String(),
	}
}
