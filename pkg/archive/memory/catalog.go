// Package memory implements an in-process archive catalog.
package memory

import (
	"context"
	"sync"

	"github.com/marmos91/shardgate/pkg/archive"
)

// MemoryCatalog keeps archive entries in a slice. Contents are lost on exit.
type MemoryCatalog struct {
	mu      sync.RWMutex
	entries []archive.Entry
}

var _ archive.Catalog = (*MemoryCatalog)(nil)

// NewMemoryCatalog returns an empty catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{}
}

func (c *MemoryCatalog) Record(ctx context.Context, e archive.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.entries = append(c.entries, e)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCatalog) List(ctx context.Context) ([]archive.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]archive.Entry, len(c.entries))
	copy(out, c.entries)
	return out, nil
}

func (c *MemoryCatalog) Close() error {
	return nil
}
