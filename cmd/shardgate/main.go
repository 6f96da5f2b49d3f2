package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/pkg/config"
	"github.com/marmos91/shardgate/pkg/server"
)

const usage = `Shardgate - extension-partitioned file gateway

Usage:
  shardgate [flags] [port [pdfHost pdfPort [txtHost txtPort [zipHost zipPort]]]]
  shardgate init [--force] [--config path]
  shardgate archives [--config path]

Flags:
`

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			os.Exit(runInit(os.Args[2:]))
		case "archives":
			os.Exit(runArchives(os.Args[2:]))
		}
	}
	os.Exit(runServe(os.Args[1:]))
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("shardgate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/shardgate/config.yaml)")
	logLevel := fs.String("log-level", "", "Override the configured log level (DEBUG, INFO, WARN, ERROR)")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if err := config.ApplyOverrides(cfg, fs.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid arguments: %v\n", err)
		fs.Usage()
		return 2
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := config.Validate(cfg); err != nil {
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

	m := config.InitializeMetrics(&cfg.Server, "gateway")

	gw, err := config.CreateGateway(ctx, cfg, m)
	if err != nil {
		logger.Error("Failed to initialize gateway: %v", err)
		return 1
	}
	defer func() {
		if err := gw.Close(); err != nil {
			logger.Warn("Failed to release gateway resources: %v", err)
		}
	}()

	srv := server.New()
	if err := srv.AddAdapter(gw.Adapter); err != nil {
		logger.Error("%v", err)
		return 1
	}
	srv.SetMetricsServer(m.Server)

	logger.Info("Shardgate starting on port %d. Press Ctrl+C to stop.", cfg.Gateway.Port)
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error: %v", err)
		return 1
	}
	logger.Info("Shardgate stopped")
	return 0
}

func runInit(args []string) int {
	fs := flag.NewFlagSet("shardgate init", flag.ExitOnError)
	force := fs.Bool("force", false, "Overwrite an existing config file")
	configPath := fs.String("config", "", "Where to write the config file")
	_ = fs.Parse(args)

	path := *configPath
	var err error
	if path == "" {
		path, err = config.InitConfig(config.GatewayBinary, *force)
	} else {
		err = config.InitConfigToPath(config.GatewayBinary, path, *force)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration written to %s\n", path)
	return 0
}

// runArchives prints the archive catalog. A badger catalog is locked by a
// running gateway, so this is meant for a stopped one.
func runArchives(args []string) int {
	fs := flag.NewFlagSet("shardgate archives", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	if cfg.Archive.Catalog.Type == "memory" {
		fmt.Println("The memory catalog does not outlive the gateway; configure archive.catalog.type: badger to keep entries.")
		return 0
	}

	ctx := context.Background()
	catalog, err := config.CreateCatalog(ctx, &cfg.Archive.Catalog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open catalog: %v\n", err)
		return 1
	}
	defer func() { _ = catalog.Close() }()

	entries, err := catalog.List(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list catalog: %v\n", err)
		return 1
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tKIND\tSIZE\tSOURCE\tSTORED AS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.Kind, e.Size, e.Source, e.StoredPath)
	}
	_ = w.Flush()
	return 0
}
