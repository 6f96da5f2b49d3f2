package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateContentStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Filesystem", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "S2")
		store, err := CreateContentStore(ctx, &ContentConfig{
			Type:       "filesystem",
			Filesystem: map[string]any{"path": dir},
		}, nil)
		if err != nil {
			t.Fatalf("CreateContentStore failed: %v", err)
		}
		defer func() { _ = store.Close() }()

		if err := store.Put(ctx, "a/b.pdf", strings.NewReader("pdf"), 3); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		info, err := store.Stat(ctx, "a/b.pdf")
		if err != nil || info.Size != 3 {
			t.Fatalf("Stat = %+v, %v", info, err)
		}
	})

	t.Run("FilesystemRequiresPath", func(t *testing.T) {
		_, err := CreateContentStore(ctx, &ContentConfig{Type: "filesystem"}, nil)
		if err == nil {
			t.Fatal("Expected error without path")
		}
	})

	t.Run("Memory", func(t *testing.T) {
		store, err := CreateContentStore(ctx, &ContentConfig{Type: "memory"}, nil)
		if err != nil {
			t.Fatalf("CreateContentStore failed: %v", err)
		}
		_ = store.Close()
	})

	t.Run("S3RequiresBucket", func(t *testing.T) {
		_, err := CreateContentStore(ctx, &ContentConfig{
			Type: "s3",
			S3:   map[string]any{"region": "us-east-1"},
		}, nil)
		if err == nil || !strings.Contains(err.Error(), "bucket") {
			t.Fatalf("Expected bucket error, got %v", err)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if _, err := CreateContentStore(ctx, &ContentConfig{Type: "tape"}, nil); err == nil {
			t.Fatal("Expected error for unknown type")
		}
	})
}

func TestCreateCatalog(t *testing.T) {
	ctx := context.Background()

	memory, err := CreateCatalog(ctx, &CatalogConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("memory catalog: %v", err)
	}
	_ = memory.Close()

	badger, err := CreateCatalog(ctx, &CatalogConfig{
		Type:   "badger",
		Badger: map[string]any{"db_path": filepath.Join(t.TempDir(), "catalog")},
	})
	if err != nil {
		t.Fatalf("badger catalog: %v", err)
	}
	entries, err := badger.List(ctx)
	if err != nil || len(entries) != 0 {
		t.Fatalf("List = %v, %v", entries, err)
	}
	_ = badger.Close()

	if _, err := CreateCatalog(ctx, &CatalogConfig{Type: "sql"}); err == nil {
		t.Fatal("Expected error for unknown catalog type")
	}
}

func TestCreateGateway(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Gateway.Root = t.TempDir()
	cfg.Gateway.Port = 0

	leftover := filepath.Join(cfg.Gateway.Root, "tmp", "crashed-session")
	if err := os.MkdirAll(leftover, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(leftover, "partial"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	gw, err := CreateGateway(context.Background(), cfg, InitializeMetrics(&cfg.Server, "gateway"))
	if err != nil {
		t.Fatalf("CreateGateway failed: %v", err)
	}
	defer func() { _ = gw.Close() }()

	if gw.Adapter == nil || gw.Adapter.Protocol() != "gateway" {
		t.Fatalf("Unexpected adapter %v", gw.Adapter)
	}
	if got := gw.Registry.Extensions(); len(got) != 4 {
		t.Errorf("Expected 4 extension classes, got %v", got)
	}
	if name, ok := gw.Registry.BundleName(".txt"); !ok || name != "textiles.tar" {
		t.Errorf("BundleName(.txt) = %q, %v", name, ok)
	}
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Errorf("Expected startup sweep to remove %s, stat err = %v", leftover, err)
	}
}

func TestCreateNode(t *testing.T) {
	cfg := GetDefaultNodeConfig()
	cfg.Node.Extension = ".zip"
	cfg.Node.Port = 0
	cfg.Content.Type = "memory"

	node, err := CreateNode(context.Background(), cfg, InitializeMetrics(&cfg.Server, "node"))
	if err != nil {
		t.Fatalf("CreateNode failed: %v", err)
	}
	defer func() { _ = node.Close() }()

	if node.Adapter.Protocol() != "node" {
		t.Errorf("Unexpected protocol %q", node.Adapter.Protocol())
	}
}
