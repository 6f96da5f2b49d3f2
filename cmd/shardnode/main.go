package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/pkg/config"
	"github.com/marmos91/shardgate/pkg/server"
)

const usage = `Shardnode - storage node for one extension class

Usage:
  shardnode [flags] [port]
  shardnode init [--force] [--config path]

Flags:
`

func main() {
	if len(os.Args) > 1 && os.Args[1] == "init" {
		os.Exit(runInit(os.Args[2:]))
	}
	os.Exit(runServe(os.Args[1:]))
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("shardnode", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/shardnode/config.yaml)")
	extension := fs.String("extension", "", "Override the extension class this node owns (e.g. .txt)")
	storePath := fs.String("path", "", "Override the filesystem store path")
	logLevel := fs.String("log-level", "", "Override the configured log level (DEBUG, INFO, WARN, ERROR)")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	cfg, err := config.LoadNode(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if err := config.ApplyNodeOverrides(cfg, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid arguments: %v\n", err)
		fs.Usage()
		return 2
	}
	if *extension != "" {
		cfg.Node.Extension = *extension
		cfg.Node.BundleName = ""
	}
	if *storePath != "" {
		cfg.Content.Filesystem["path"] = *storePath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := config.ValidateNode(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	if err := logger.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := config.InitializeMetrics(&cfg.Server, "node")

	node, err := config.CreateNode(ctx, cfg, m)
	if err != nil {
		logger.Error("Failed to initialize node: %v", err)
		return 1
	}
	defer func() {
		if err := node.Close(); err != nil {
			logger.Warn("Failed to close store: %v", err)
		}
	}()

	srv := server.New()
	if err := srv.AddAdapter(node.Adapter); err != nil {
		logger.Error("%v", err)
		return 1
	}
	srv.SetMetricsServer(m.Server)

	logger.Info("Shardnode for %s starting on port %d. Press Ctrl+C to stop.", cfg.Node.Extension, cfg.Node.Port)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error: %v", err)
		return 1
	}
	logger.Info("Shardnode stopped")
	return 0
}

func runInit(args []string) int {
	fs := flag.NewFlagSet("shardnode init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	configPath := fs.String("config", "", "Where to write the config file")
	_ = fs.Parse(args)

	path := *configPath
	var err error
	if path == "" {
		path, err = config.InitConfig(config.NodeBinary, *force)
	} else {
		err = config.InitConfigToPath(config.NodeBinary, path, *force)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration written to %s\n", path)
	return 0
}
