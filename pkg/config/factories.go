package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/pkg/archive"
	archivebadger "github.com/marmos91/shardgate/pkg/archive/badger"
	archivememory "github.com/marmos91/shardgate/pkg/archive/memory"
	"github.com/marmos91/shardgate/pkg/store/content"
	contentfs "github.com/marmos91/shardgate/pkg/store/content/fs"
	contentmemory "github.com/marmos91/shardgate/pkg/store/content/memory"
	contents3 "github.com/marmos91/shardgate/pkg/store/content/s3"
	"github.com/mitchellh/mapstructure"
)

// s3YAMLConfig represents S3 configuration loaded from the content.s3 section.
type s3YAMLConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	PartSize        int64  `mapstructure:"part_size"`
	MaxRetries      int    `mapstructure:"max_retries"`
}

// CreateContentStore creates a node's content store based on configuration.
//
// Supported types:
//   - "filesystem": pkg/store/content/fs rooted at filesystem.path
//   - "memory": pkg/store/content/memory (ephemeral)
//   - "s3": pkg/store/content/s3 (Amazon S3 or compatible storage)
//
// s3Metrics is optional and only used by the s3 store.
func CreateContentStore(ctx context.Context, cfg *ContentConfig, s3Metrics contents3.S3Metrics) (content.ContentStore, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemContentStore(ctx, cfg.Filesystem)
	case "memory":
		return contentmemory.NewMemoryContentStore(ctx)
	case "s3":
		return createS3ContentStore(ctx, cfg.S3, s3Metrics)
	default:
		return nil, fmt.Errorf("unknown content store type: %q", cfg.Type)
	}
}

// createFilesystemContentStore creates a filesystem-backed content store.
func createFilesystemContentStore(ctx context.Context, options map[string]any) (content.ContentStore, error) {
	var fsCfg struct {
		Path string `mapstructure:"path"`
	}
	if err := mapstructure.Decode(options, &fsCfg); err != nil {
		return nil, fmt.Errorf("invalid filesystem config: %w", err)
	}
	if fsCfg.Path == "" {
		return nil, fmt.Errorf("filesystem path is required")
	}

	store, err := contentfs.NewFSContentStore(ctx, ExpandHome(fsCfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize filesystem store: %w", err)
	}
	return store, nil
}

// createS3ContentStore creates an S3-backed content store.
func createS3ContentStore(ctx context.Context, options map[string]any, m contents3.S3Metrics) (content.ContentStore, error) {
	var yamlCfg s3YAMLConfig
	if err := mapstructure.Decode(options, &yamlCfg); err != nil {
		return nil, fmt.Errorf("invalid S3 config: %w", err)
	}
	if yamlCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}
	if yamlCfg.Region == "" {
		return nil, fmt.Errorf("S3 region is required")
	}

	client, err := newS3Client(ctx, yamlCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	store, err := contents3.NewS3ContentStore(ctx, contents3.S3ContentStoreConfig{
		Client:    client,
		Bucket:    yamlCfg.Bucket,
		KeyPrefix: yamlCfg.KeyPrefix,
		PartSize:  yamlCfg.PartSize,
		Metrics:   m,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 store: %w", err)
	}

	logger.Info("S3 content store initialized: bucket=%s, region=%s, prefix=%s",
		yamlCfg.Bucket, yamlCfg.Region, yamlCfg.KeyPrefix)
	return store, nil
}

// newS3Client builds an S3 client with static credentials when given, the
// default credential chain otherwise, and a custom endpoint for MinIO or
// Localstack.
func newS3Client(ctx context.Context, cfg s3YAMLConfig) (*awss3.Client, error) {
	opts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(cfg.Region),
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	// Transient errors (502, 503, timeouts) are retried more than the SDK
	// default of 3 attempts.
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	opts = append(opts, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// CreateCatalog creates the archive catalog based on configuration.
//
// Supported types:
//   - "memory": entries live for the process lifetime
//   - "badger": pkg/archive/badger, persistent at badger.db_path
func CreateCatalog(ctx context.Context, cfg *CatalogConfig) (archive.Catalog, error) {
	switch cfg.Type {
	case "", "memory":
		return archivememory.NewMemoryCatalog(), nil
	case "badger":
		var badgerCfg struct {
			DBPath string `mapstructure:"db_path"`
		}
		if err := mapstructure.Decode(cfg.Badger, &badgerCfg); err != nil {
			return nil, fmt.Errorf("invalid badger config: %w", err)
		}
		catalog, err := archivebadger.NewBadgerCatalog(ctx, archivebadger.BadgerCatalogConfig{
			DBPath: ExpandHome(badgerCfg.DBPath),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open badger catalog: %w", err)
		}
		return catalog, nil
	default:
		return nil, fmt.Errorf("unknown catalog type: %q", cfg.Type)
	}
}
