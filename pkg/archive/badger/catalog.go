// Package badger implements a persistent archive catalog on BadgerDB.
package badger

import (
	"context"
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/shardgate/pkg/archive"
)

// Key Layout
// ==========
//
//	entry/<created-unix-nanos, 20 digits>/<uuid>  ->  archive.Entry (JSON)
//
// The zero-padded timestamp makes Badger's lexical key order equal to
// creation order, so List is a single prefix scan.
const entryPrefix = "entry/"

func entryKey(e archive.Entry) []byte {
	return fmt.Appendf(nil, "%s%020d/%s", entryPrefix, e.CreatedAt.UnixNano(), e.ID)
}

// BadgerCatalog stores archive entries in BadgerDB.
//
// Thread Safety:
// BadgerDB transactions are safe for concurrent use; the catalog adds no
// locking of its own.
type BadgerCatalog struct {
	db *badger.DB
}

var _ archive.Catalog = (*BadgerCatalog)(nil)

// BadgerCatalogConfig configures the catalog.
type BadgerCatalogConfig struct {
	// DBPath is the directory holding the database, created if missing.
	DBPath string

	// InMemory runs Badger without touching disk (tests).
	InMemory bool
}

// NewBadgerCatalog opens (or creates) the catalog database.
func NewBadgerCatalog(ctx context.Context, cfg BadgerCatalogConfig) (*BadgerCatalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.DBPath == "" {
			return nil, fmt.Errorf("badger catalog: db_path is required")
		}
		opts = badger.DefaultOptions(cfg.DBPath)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}
	return &BadgerCatalog{db: db}, nil
}

func (c *BadgerCatalog) Record(ctx context.Context, e archive.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(e), data)
	})
}

func (c *BadgerCatalog) List(ctx context.Context) ([]archive.Entry, error) {
	var out []archive.Entry

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e archive.Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return fmt.Errorf("failed to decode entry %s: %w", it.Item().Key(), err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BadgerCatalog) Close() error {
	return c.db.Close()
}
