// Package archive keeps secondary copies of everything the gateway serves.
//
// Each file sent by DOWNLF is copied to the downloads directory and each
// bundle sent by DOWNTAR to the bundles directory, under a name made unique
// by suffixing (report.pdf, report_1.pdf, report_2.pdf, ...). Copies are
// best effort: callers log failures and carry on. Every successful copy is
// recorded in a Catalog.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/pkg/metrics"
)

// Default directory names under the gateway root.
const (
	DefaultDownloadsDir = "downloaded_files"
	DefaultBundlesDir   = "tar_files"
)

// Kind distinguishes archived downloads from archived bundles.
type Kind string

const (
	KindDownload Kind = "download"
	KindBundle   Kind = "bundle"
)

// Entry records one archive copy.
type Entry struct {
	ID uuid.UUID `json:"id"`

	Kind Kind `json:"kind"`

	// Source is the virtual path for downloads, the extension for bundles.
	Source string `json:"source"`

	// StoredPath is the absolute path of the copy.
	StoredPath string `json:"stored_path"`

	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Catalog is the append-only record of archive copies.
type Catalog interface {
	// Record appends an entry.
	Record(ctx context.Context, e Entry) error

	// List returns entries in creation order.
	List(ctx context.Context) ([]Entry, error)

	// Close releases the catalog.
	Close() error
}

// Config configures a Manager.
type Config struct {
	// DownloadsDir and BundlesDir are absolute directories, created on demand.
	DownloadsDir string
	BundlesDir   string

	// Catalog is optional; nil disables bookkeeping.
	Catalog Catalog

	// Metrics is optional.
	Metrics metrics.ArchiveMetrics
}

// Manager writes archive copies.
//
// Thread Safety:
// Safe for concurrent use. Name collisions between sessions are resolved
// by exclusive creation.
type Manager struct {
	downloadsDir string
	bundlesDir   string
	catalog      Catalog
	metrics      metrics.ArchiveMetrics
	now          func() time.Time
}

// NewManager creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.DownloadsDir == "" || cfg.BundlesDir == "" {
		return nil, errors.New("archive: downloads and bundles directories are required")
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNoopArchiveMetrics()
	}
	return &Manager{
		downloadsDir: cfg.DownloadsDir,
		bundlesDir:   cfg.BundlesDir,
		catalog:      cfg.Catalog,
		metrics:      m,
		now:          time.Now,
	}, nil
}

// Dir returns the directory holding copies of kind.
func (m *Manager) Dir(kind Kind) string {
	if kind == KindBundle {
		return m.bundlesDir
	}
	return m.downloadsDir
}

// Save copies size bytes from r into the directory for kind under a unique
// variant of name and records the copy in the catalog. A partial copy is
// removed.
func (m *Manager) Save(ctx context.Context, kind Kind, name, source string, r io.Reader, size int64) (Entry, error) {
	entry, err := m.save(ctx, kind, name, source, r, size)
	m.metrics.RecordCopy(string(kind), size, err)
	if err != nil {
		return Entry{}, err
	}

	if m.catalog != nil {
		if err := m.catalog.Record(ctx, entry); err != nil {
			logger.Warn("Archive catalog record failed for %s: %v", entry.StoredPath, err)
		}
	}
	return entry, nil
}

func (m *Manager) save(ctx context.Context, kind Kind, name, source string, r io.Reader, size int64) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}

	dir := m.Dir(kind)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Entry{}, fmt.Errorf("create archive dir: %w", err)
	}

	f, p, err := createUnique(dir, filepath.Base(name))
	if err != nil {
		return Entry{}, err
	}

	n, copyErr := io.CopyN(f, r, size)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(p)
		if copyErr != nil {
			return Entry{}, fmt.Errorf("copy into %s after %d bytes: %w", p, n, copyErr)
		}
		return Entry{}, fmt.Errorf("close %s: %w", p, closeErr)
	}

	return Entry{
		ID:         uuid.New(),
		Kind:       kind,
		Source:     source,
		StoredPath: p,
		Size:       n,
		CreatedAt:  m.now(),
	}, nil
}
