package archive_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/shardgate/pkg/archive"
	"github.com/marmos91/shardgate/pkg/archive/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitName(t *testing.T) {
	tests := []struct {
		name, stem, ext string
	}{
		{"report.pdf", "report", ".pdf"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{"noext", "noext", ""},
		{".bashrc", ".bashrc", ""},
		{".hidden.txt", ".hidden", ".txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stem, ext := archive.SplitName(tt.name)
			assert.Equal(t, tt.stem, stem)
			assert.Equal(t, tt.ext, ext)
		})
	}
}

func TestCandidateName(t *testing.T) {
	assert.Equal(t, "a.pdf", archive.CandidateName("a.pdf", 0))
	assert.Equal(t, "a_1.pdf", archive.CandidateName("a.pdf", 1))
	assert.Equal(t, "a_2.pdf", archive.CandidateName("a.pdf", 2))
	assert.Equal(t, ".profile_1", archive.CandidateName(".profile", 1))
	assert.Equal(t, "Makefile_3", archive.CandidateName("Makefile", 3))
}

func newManager(t *testing.T) (*archive.Manager, *memory.MemoryCatalog, string) {
	t.Helper()
	root := t.TempDir()
	catalog := memory.NewMemoryCatalog()
	m, err := archive.NewManager(archive.Config{
		DownloadsDir: filepath.Join(root, archive.DefaultDownloadsDir),
		BundlesDir:   filepath.Join(root, archive.DefaultBundlesDir),
		Catalog:      catalog,
	})
	require.NoError(t, err)
	return m, catalog, root
}

func TestManager_SaveSuffixesDuplicates(t *testing.T) {
	ctx := context.Background()
	m, catalog, root := newManager(t)

	for i := 0; i < 3; i++ {
		_, err := m.Save(ctx, archive.KindDownload, "report.pdf", "~S1/d/report.pdf", strings.NewReader("pdf!"), 4)
		require.NoError(t, err)
	}

	dir := filepath.Join(root, archive.DefaultDownloadsDir)
	for _, name := range []string{"report.pdf", "report_1.pdf", "report_2.pdf"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		assert.Equal(t, "pdf!", string(data))
	}

	entries, err := catalog.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, filepath.Join(dir, "report_2.pdf"), entries[2].StoredPath)
	assert.Equal(t, archive.KindDownload, entries[0].Kind)
	assert.Equal(t, int64(4), entries[0].Size)
}

func TestManager_SaveSkipsExistingFiles(t *testing.T) {
	ctx := context.Background()
	m, _, root := newManager(t)

	dir := filepath.Join(root, archive.DefaultDownloadsDir)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.txt"), []byte("old"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x_1.txt"), []byte("old"), 0644))

	entry, err := m.Save(ctx, archive.KindDownload, "x.txt", "~S1/x.txt", strings.NewReader("new"), 3)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "x_2.txt"), entry.StoredPath)

	data, err := os.ReadFile(filepath.Join(dir, "x.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
}

func TestManager_BundlesGoToTheirOwnDir(t *testing.T) {
	ctx := context.Background()
	m, _, root := newManager(t)

	entry, err := m.Save(ctx, archive.KindBundle, "cfiles.tar", ".c", bytes.NewReader([]byte("tar")), 3)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, archive.DefaultBundlesDir, "cfiles.tar"), entry.StoredPath)
}

func TestManager_ShortSourceLeavesNoCopy(t *testing.T) {
	ctx := context.Background()
	m, catalog, root := newManager(t)

	_, err := m.Save(ctx, archive.KindDownload, "a.txt", "~S1/a.txt", strings.NewReader("ab"), 10)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(root, archive.DefaultDownloadsDir, "a.txt"))
	assert.True(t, os.IsNotExist(statErr))
	entries, err := catalog.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
