package fs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/marmos91/shardgate/pkg/store/content"
	storetesting "github.com/marmos91/shardgate/pkg/store/content/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSContentStore(t *testing.T) {
	suite := &storetesting.StoreTestSuite{
		NewStore: func(t *testing.T) content.ContentStore {
			store, err := NewFSContentStore(context.Background(), t.TempDir())
			require.NoError(t, err)
			return store
		},
	}
	suite.Run(t)
}

func TestFSContentStore_WalkSkipsExcludedDirs(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSContentStore(ctx, t.TempDir(), "tmp", "downloaded_files")
	require.NoError(t, err)

	for _, p := range []string{"keep.c", "src/main.c", "tmp/sess/staged.c", "downloaded_files/old.c"} {
		require.NoError(t, store.Put(ctx, p, bytes.NewReader([]byte("int x;")), 6))
	}

	var seen []string
	require.NoError(t, store.Walk(ctx, func(fi content.FileInfo) error {
		seen = append(seen, fi.Path)
		return nil
	}))
	sort.Strings(seen)

	assert.Equal(t, []string{"keep.c", "src/main.c"}, seen)
}

func TestFSContentStore_RemoveDirectory(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFSContentStore(ctx, root)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "adir"), 0755))

	err = store.Remove(ctx, "adir")

	require.ErrorIs(t, err, content.ErrIsDirectory)
}

func TestFSContentStore_Import(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFSContentStore(ctx, root)
	require.NoError(t, err)

	src := filepath.Join(root, "staged.bin")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	require.NoError(t, store.Import(ctx, src, "final/dir/file.c"))

	data, err := os.ReadFile(filepath.Join(root, "final", "dir", "file.c"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestFSContentStore_ListHidesTempFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	store, err := NewFSContentStore(ctx, root)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(root, tempPrefix+"123"), []byte("x"), 0644))
	require.NoError(t, store.Put(ctx, "real.txt", bytes.NewReader([]byte("y")), 1))

	infos, err := store.List(ctx, ".")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "real.txt", infos[0].Name)
}

func TestFSContentStore_ListFileAsDirIsEmpty(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSContentStore(ctx, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "f.txt", bytes.NewReader([]byte("y")), 1))

	infos, err := store.List(ctx, "f.txt")

	require.NoError(t, err)
	assert.Empty(t, infos)
}
