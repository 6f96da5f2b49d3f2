package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	gwadapter "github.com/marmos91/shardgate/pkg/adapter/gateway"
	nodeadapter "github.com/marmos91/shardgate/pkg/adapter/node"
	"github.com/spf13/viper"
)

// Config is the complete front-end (shardgate) configuration.
//
// Configuration sources (in order of precedence):
//  1. Positional CLI overrides (applied by the caller with ApplyOverrides)
//  2. Environment variables (SHARDGATE_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values
//
// Once loaded, a Config is treated as immutable and passed explicitly.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains process-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Gateway configures the client-facing listener and the namespace
	Gateway GatewayConfig `mapstructure:"gateway"`

	// Local is the extension class kept on the gateway's own disk
	Local LocalConfig `mapstructure:"local"`

	// Backends lists the storage nodes in aggregation priority order
	Backends []BackendConfig `mapstructure:"backends" validate:"dive"`

	// Backend tunes the connections made to the nodes
	Backend BackendClientConfig `mapstructure:"backend"`

	// Archive configures download and bundle copies
	Archive ArchiveConfig `mapstructure:"archive"`
}

// NodeConfig is the complete storage node (shardnode) configuration.
type NodeConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
	Node    NodeSettings  `mapstructure:"node"`

	// Content selects the store holding this node's files
	Content ContentConfig `mapstructure:"content"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains process-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// GatewayConfig configures the front-end listener.
type GatewayConfig struct {
	gwadapter.Config `mapstructure:",squash"`

	// Root is the gateway's storage root. Local-class files, the staging
	// area and the archive directories live under it. A leading "~" is
	// expanded to the home directory.
	Root string `mapstructure:"root" validate:"required"`

	// Marker is the namespace marker clients prefix paths with
	Marker string `mapstructure:"marker" validate:"required,startswith=~"`

	// MaxFileSize caps one uploaded file; 0 means unlimited
	MaxFileSize int64 `mapstructure:"max_file_size" validate:"min=0"`

	StagingGC StagingGCConfig `mapstructure:"staging_gc"`
}

// StagingGCConfig controls the sweep of abandoned staging directories.
// Leftovers are always removed once at startup; Enabled adds the
// periodic sweep.
type StagingGCConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"min=0"`
	MaxAge   time.Duration `mapstructure:"max_age" validate:"min=0"`
	DryRun   bool          `mapstructure:"dry_run"`
}

// LocalConfig names the local extension class.
type LocalConfig struct {
	Extension  string `mapstructure:"extension" validate:"required"`
	BundleName string `mapstructure:"bundle_name" validate:"required"`
}

// BackendConfig is one storage node entry.
type BackendConfig struct {
	Extension  string `mapstructure:"extension" validate:"required"`
	Host       string `mapstructure:"host" validate:"required"`
	Port       int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	BundleName string `mapstructure:"bundle_name" validate:"required"`
}

// BackendClientConfig bounds node exchanges. Zero disables a limit.
type BackendClientConfig struct {
	DialTimeout time.Duration `mapstructure:"dial_timeout" validate:"min=0"`
	IOTimeout   time.Duration `mapstructure:"io_timeout" validate:"min=0"`
}

// ArchiveConfig configures archive copies.
type ArchiveConfig struct {
	// DownloadsDir and BundlesDir are relative to the gateway root
	DownloadsDir string `mapstructure:"downloads_dir" validate:"required"`
	BundlesDir   string `mapstructure:"bundles_dir" validate:"required"`

	Catalog CatalogConfig `mapstructure:"catalog"`
}

// CatalogConfig selects the archive catalog implementation.
//
// Only the section matching Type is used.
type CatalogConfig struct {
	// Type specifies which catalog to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	Badger map[string]any `mapstructure:"badger"`
}

// NodeSettings configures a storage node.
type NodeSettings struct {
	nodeadapter.Config `mapstructure:",squash"`

	// Extension is the class this node owns, e.g. ".pdf"
	Extension string `mapstructure:"extension" validate:"required"`

	// BundleName is reported in TAR replies; defaults to "<ext>.tar"
	BundleName string `mapstructure:"bundle_name"`

	// MaxFileSize caps one stored file; 0 means unlimited
	MaxFileSize int64 `mapstructure:"max_file_size" validate:"min=0"`

	// TempDir holds bundles while they are measured; defaults to the OS
	// temp directory
	TempDir string `mapstructure:"temp_dir"`
}

// ContentConfig specifies content store configuration.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type ContentConfig struct {
	// Type specifies which content store implementation to use
	// Valid values: filesystem, memory, s3
	Type string `mapstructure:"type" validate:"required,oneof=filesystem memory s3"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`
}

// Binary names, which double as config directory names and env prefixes.
const (
	GatewayBinary = "shardgate"
	NodeBinary    = "shardnode"
)

// Load loads the front-end configuration from file, environment and
// defaults, then validates it.
//
// Parameters:
//   - configPath: Path to config file (empty string uses the default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, GatewayBinary, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadNode loads a storage node configuration.
func LoadNode(configPath string) (*NodeConfig, error) {
	v := viper.New()
	setupViper(v, NodeBinary, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg NodeConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyNodeDefaults(&cfg)

	if err := ValidateNode(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// setupViper configures viper with environment variables and config file
// settings. Environment variables use the upper-cased binary name as prefix,
// for example SHARDGATE_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, binary, configPath string) {
	v.SetEnvPrefix(strings.ToUpper(binary))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	// $XDG_CONFIG_HOME/<binary>/config.{yaml,toml}
	v.AddConfigPath(getConfigDir(binary))
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if it exists. A missing file,
// explicit or not, leaves the defaults.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory of binary.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir(binary string) string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, binary)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", binary)
}

// GetDefaultConfigPath returns the default configuration file of binary.
func GetDefaultConfigPath(binary string) string {
	return filepath.Join(getConfigDir(binary), "config.yaml")
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
