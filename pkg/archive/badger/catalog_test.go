package badger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/shardgate/pkg/archive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryAt(ts time.Time, source string) archive.Entry {
	return archive.Entry{
		ID:         uuid.New(),
		Kind:       archive.KindDownload,
		Source:     source,
		StoredPath: "/srv/downloaded_files/" + source,
		Size:       1,
		CreatedAt:  ts,
	}
}

func TestBadgerCatalog_ListsInCreationOrder(t *testing.T) {
	ctx := context.Background()
	c, err := NewBadgerCatalog(ctx, BadgerCatalogConfig{InMemory: true})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	base := time.Unix(1700000000, 0)
	require.NoError(t, c.Record(ctx, entryAt(base.Add(2*time.Second), "third")))
	require.NoError(t, c.Record(ctx, entryAt(base, "first")))
	require.NoError(t, c.Record(ctx, entryAt(base.Add(time.Second), "second")))

	entries, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "first", entries[0].Source)
	assert.Equal(t, "second", entries[1].Source)
	assert.Equal(t, "third", entries[2].Source)
}

func TestBadgerCatalog_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := NewBadgerCatalog(ctx, BadgerCatalogConfig{DBPath: dir})
	require.NoError(t, err)
	e := entryAt(time.Now(), "kept.pdf")
	require.NoError(t, c.Record(ctx, e))
	require.NoError(t, c.Close())

	c, err = NewBadgerCatalog(ctx, BadgerCatalogConfig{DBPath: dir})
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	entries, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, e.ID, entries[0].ID)
	assert.True(t, e.CreatedAt.Equal(entries[0].CreatedAt))
}

func TestNewBadgerCatalog_RequiresPath(t *testing.T) {
	_, err := NewBadgerCatalog(context.Background(), BadgerCatalogConfig{})
	assert.Error(t, err)
}
