// Package s3 implements S3-based content storage for storage nodes.
//
// This file contains the store type, its constructor, key mapping and the
// read-side operations.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/marmos91/shardgate/pkg/store/content"
)

// S3ContentStore implements content.ContentStore on Amazon S3 or an
// S3-compatible service.
//
// Path-Based Key Design:
// The relative file path is used directly as the object key, behind an
// optional prefix, so the bucket mirrors the directory layout:
//
//	Path:       "reports/2024/q1.pdf"
//	Key Prefix: "shardgate/pdf/"
//	S3 Key:     "shardgate/pdf/reports/2024/q1.pdf"
//
// Directories exist only implicitly through key prefixes; List uses the "/"
// delimiter to emulate a single directory level.
//
// Thread Safety:
// Safe for concurrent use. Concurrent writes to one key are last-writer-wins.
type S3ContentStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	partSize  int64
	metrics   S3Metrics
}

// S3ContentStoreConfig contains configuration for the S3 content store.
type S3ContentStoreConfig struct {
	// Client is the configured S3 client
	Client *s3.Client

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys. A trailing "/"
	// is added when missing.
	KeyPrefix string

	// PartSize is the multipart threshold and part size (default: 10MB).
	// Must be between 5MB and 5GB.
	PartSize int64

	// Metrics is optional; nil disables S3 metrics.
	Metrics S3Metrics
}

var _ content.ContentStore = (*S3ContentStore)(nil)

// NewS3ContentStore creates a new S3-based content store.
//
// The bucket must already exist; access is verified with HeadBucket.
func NewS3ContentStore(ctx context.Context, cfg S3ContentStoreConfig) (*S3ContentStore, error) {
	// ========================================================================
	// Step 1: Check context before S3 operations
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Validate configuration
	// ========================================================================

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	partSize := cfg.PartSize
	if partSize == 0 {
		partSize = 10 * 1024 * 1024
	}
	if partSize < 5*1024*1024 {
		return nil, fmt.Errorf("part size must be at least 5MB, got %d bytes", partSize)
	}
	if partSize > 5*1024*1024*1024 {
		return nil, fmt.Errorf("part size must be at most 5GB, got %d bytes", partSize)
	}

	prefix := strings.TrimLeft(cfg.KeyPrefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	m := cfg.Metrics
	if m == nil {
		m = noopMetrics{}
	}

	// ========================================================================
	// Step 3: Verify bucket access
	// ========================================================================

	if _, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3ContentStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: prefix,
		partSize:  partSize,
		metrics:   m,
	}, nil
}

// objectKey maps a relative path to its object key.
func (s *S3ContentStore) objectKey(p string) (string, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	if clean == "." {
		return "", fmt.Errorf("%w: %q", content.ErrInvalidPath, p)
	}
	return s.keyPrefix + clean, nil
}

// dirPrefix maps a relative directory to the key prefix of its children.
func (s *S3ContentStore) dirPrefix(dir string) (string, error) {
	clean, err := cleanPath(dir)
	if err != nil {
		return "", err
	}
	if clean == "." {
		return s.keyPrefix, nil
	}
	return s.keyPrefix + clean + "/", nil
}

func cleanPath(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q", content.ErrInvalidPath, p)
	}
	c := path.Clean(p)
	if c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", content.ErrInvalidPath, p)
	}
	return c, nil
}

// relPath strips the store prefix from an object key.
func (s *S3ContentStore) relPath(key string) string {
	return strings.TrimPrefix(key, s.keyPrefix)
}

// ============================================================================
// Read Operations
// ============================================================================

// Open downloads the object at p. The caller must close the reader.
func (s *S3ContentStore) Open(ctx context.Context, p string) (io.ReadCloser, content.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, content.FileInfo{}, err
	}

	key, err := s.objectKey(p)
	if err != nil {
		return nil, content.FileInfo{}, err
	}

	start := time.Now()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	s.metrics.ObserveOperation("GetObject", time.Since(start), err)
	if err != nil {
		if isNotFound(err) {
			return nil, content.FileInfo{}, fmt.Errorf("open %s: %w", p, content.ErrNotFound)
		}
		return nil, content.FileInfo{}, fmt.Errorf("failed to get object %s: %w", key, err)
	}

	info := content.FileInfo{
		Name: path.Base(key),
		Path: s.relPath(key),
		Size: aws.ToInt64(out.ContentLength),
	}
	if out.LastModified != nil {
		info.ModTime = *out.LastModified
	}

	body := &metricsReadCloser{ReadCloser: out.Body, metrics: s.metrics, operation: "read"}
	return body, info, nil
}

// Stat issues a HeadObject for p.
func (s *S3ContentStore) Stat(ctx context.Context, p string) (content.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return content.FileInfo{}, err
	}

	key, err := s.objectKey(p)
	if err != nil {
		return content.FileInfo{}, err
	}

	start := time.Now()
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	s.metrics.ObserveOperation("HeadObject", time.Since(start), err)
	if err != nil {
		if isNotFound(err) {
			return content.FileInfo{}, fmt.Errorf("stat %s: %w", p, content.ErrNotFound)
		}
		return content.FileInfo{}, fmt.Errorf("failed to head object %s: %w", key, err)
	}

	info := content.FileInfo{
		Name: path.Base(key),
		Path: s.relPath(key),
		Size: aws.ToInt64(out.ContentLength),
	}
	if out.LastModified != nil {
		info.ModTime = *out.LastModified
	}
	return info, nil
}

// List returns the objects directly under dir.
func (s *S3ContentStore) List(ctx context.Context, dir string) ([]content.FileInfo, error) {
	prefix, err := s.dirPrefix(dir)
	if err != nil {
		return nil, err
	}

	var out []content.FileInfo
	err = s.listObjects(ctx, prefix, "/", func(info content.FileInfo) error {
		out = append(out, info)
		return nil
	})
	return out, err
}

// Walk visits every object under the store prefix in key order.
func (s *S3ContentStore) Walk(ctx context.Context, fn content.WalkFunc) error {
	return s.listObjects(ctx, s.keyPrefix, "", fn)
}

func (s *S3ContentStore) listObjects(ctx context.Context, prefix, delimiter string, fn content.WalkFunc) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if delimiter != "" {
		input.Delimiter = aws.String(delimiter)
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		start := time.Now()
		page, err := paginator.NextPage(ctx)
		s.metrics.ObserveOperation("ListObjectsV2", time.Since(start), err)
		if err != nil {
			return fmt.Errorf("failed to list objects under %q: %w", prefix, err)
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			info := content.FileInfo{
				Name: path.Base(key),
				Path: s.relPath(key),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.ModTime = *obj.LastModified
			}
			if err := fn(info); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close is a no-op; the S3 client holds no per-store resources.
func (s *S3ContentStore) Close() error {
	return nil
}

// isNotFound reports whether err is S3's missing-object signal.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "404":
			return true
		}
	}
	return false
}
