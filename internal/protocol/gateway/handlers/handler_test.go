package handlers

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/marmos91/shardgate/internal/protocol/gateway"
	"github.com/marmos91/shardgate/pkg/archive"
	"github.com/marmos91/shardgate/pkg/archive/memory"
	"github.com/marmos91/shardgate/pkg/backend"
	"github.com/marmos91/shardgate/pkg/registry"
	"github.com/marmos91/shardgate/pkg/staging"
	"github.com/marmos91/shardgate/pkg/store/content"
	memstore "github.com/marmos91/shardgate/pkg/store/content/memory"
	"github.com/marmos91/shardgate/pkg/vpath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noStatStore serves reads but fails every Stat.
type noStatStore struct {
	content.ContentStore
}

func (noStatStore) Stat(context.Context, string) (content.FileInfo, error) {
	return content.FileInfo{}, errors.New("stat unavailable")
}

type fixture struct {
	handler *Handler
	local   content.ContentStore
	root    string
	out     *bytes.Buffer
	ctx     *CommandContext
}

func newFixture(t *testing.T, wrap func(content.ContentStore) content.ContentStore) *fixture {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()

	store, err := memstore.NewMemoryContentStore(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	var local content.ContentStore = store
	if wrap != nil {
		local = wrap(store)
	}

	reg, err := registry.New(registry.LocalClass{Extension: ".c"},
		registry.Endpoint{Extension: ".pdf", Host: "127.0.0.1", Port: 1})
	require.NoError(t, err)

	archives, err := archive.NewManager(archive.Config{
		DownloadsDir: filepath.Join(root, archive.DefaultDownloadsDir),
		BundlesDir:   filepath.Join(root, archive.DefaultBundlesDir),
		Catalog:      memory.NewMemoryCatalog(),
	})
	require.NoError(t, err)

	h, err := NewHandler(Config{
		Resolver: vpath.NewResolver(vpath.DefaultMarker, staging.DirName, archive.DefaultDownloadsDir),
		Registry: reg,
		Local:    local,
		Backends: backend.NewDirectory(reg, backend.Config{}),
		Archive:  archives,
	})
	require.NoError(t, err)

	area, err := staging.NewArea(filepath.Join(root, staging.DirName))
	require.NoError(t, err)

	out := &bytes.Buffer{}
	return &fixture{
		handler: h,
		local:   store,
		root:    root,
		out:     out,
		ctx: &CommandContext{
			Context:    ctx,
			ClientAddr: "test",
			Writer:     out,
			Staging:    area.Session("s"),
		},
	}
}

func TestDownload_LocalSizeComesFromOpen(t *testing.T) {
	f := newFixture(t, func(s content.ContentStore) content.ContentStore { return noStatStore{s} })
	require.NoError(t, f.local.Put(context.Background(), "docs/a.c", strings.NewReader("hello"), 5))

	err := f.handler.Download(f.ctx, &gateway.DownloadCommand{Paths: []string{"~S1/docs/a.c"}})
	require.NoError(t, err)

	assert.Equal(t, "FILERESP|a.c|5\nhelloDONE\n", f.out.String())

	data, err := os.ReadFile(filepath.Join(f.root, archive.DefaultDownloadsDir, "a.c"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCommands_ReservedPathsAreRefused(t *testing.T) {
	f := newFixture(t, nil)

	err := f.handler.Download(f.ctx, &gateway.DownloadCommand{Paths: []string{"~S1/downloaded_files/a.c"}})
	require.NoError(t, err)
	assert.Equal(t, "FILENOTFOUND|~S1/downloaded_files/a.c\nDONE\n", f.out.String())

	f.out.Reset()
	err = f.handler.Remove(f.ctx, &gateway.RemoveCommand{Paths: []string{"~S1/tmp/s/x.c"}})
	require.NoError(t, err)
	assert.Equal(t, "REMERR|~S1/tmp/s/x.c|bad_path\n", f.out.String())

	f.out.Reset()
	err = f.handler.List(f.ctx, &gateway.ListCommand{Path: "~S1/tmp"})
	pe, ok := gateway.AsProtocolError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, gateway.ReasonBadPath, pe.Reason)

	err = f.handler.Upload(f.ctx, &gateway.UploadCommand{Count: 1, Dest: "~S1/tmp/project"})
	pe, ok = gateway.AsProtocolError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, gateway.ReasonBadUpload, pe.Reason)
}
