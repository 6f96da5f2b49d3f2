package gateway_test

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/shardgate/internal/protocol/gateway"
	"github.com/marmos91/shardgate/pkg/client"
	"github.com/marmos91/shardgate/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// servable is what both adapters expose to the harness.
type servable interface {
	Serve(ctx context.Context) error
	Ready() <-chan struct{}
	Port() int
}

// cluster is a gateway with three filesystem-backed nodes, all on
// ephemeral ports.
type cluster struct {
	root  string
	nodes map[string]string
	addr  string
}

func serve(t *testing.T, a servable) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Serve(ctx) }()

	select {
	case <-a.Ready():
	case err := <-errc:
		cancel()
		t.Fatalf("adapter failed to start: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("adapter did not become ready")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case <-errc:
		case <-time.After(10 * time.Second):
			t.Error("adapter did not stop")
		}
	})
}

// clusterOption adjusts how startCluster builds the cluster.
type clusterOption func(dead map[string]bool)

// withDeadBackend points ext at a port nobody listens on.
func withDeadBackend(ext string) clusterOption {
	return func(dead map[string]bool) { dead[ext] = true }
}

// closedPort returns a loopback port that refuses connections.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func startCluster(t *testing.T, opts ...clusterOption) *cluster {
	t.Helper()
	ctx := context.Background()

	dead := make(map[string]bool)
	for _, o := range opts {
		o(dead)
	}

	c := &cluster{root: t.TempDir(), nodes: make(map[string]string)}
	cfg := config.GetDefaultConfig()
	cfg.Gateway.Root = c.root
	cfg.Gateway.Port = 0
	cfg.Backend.DialTimeout = time.Second

	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		b.Host = "127.0.0.1"

		if dead[b.Extension] {
			b.Port = closedPort(t)
			continue
		}

		ncfg := config.GetDefaultNodeConfig()
		ncfg.Node.Extension = b.Extension
		ncfg.Node.BundleName = b.BundleName
		ncfg.Node.Port = 0
		dir := t.TempDir()
		ncfg.Content.Filesystem["path"] = dir
		c.nodes[b.Extension] = dir

		node, err := config.CreateNode(ctx, ncfg, config.InitializeMetrics(&ncfg.Server, "node"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = node.Close() })
		serve(t, node.Adapter)

		b.Port = node.Adapter.Port()
	}

	gw, err := config.CreateGateway(ctx, cfg, config.InitializeMetrics(&cfg.Server, "gateway"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Close() })
	serve(t, gw.Adapter)

	c.addr = fmt.Sprintf("127.0.0.1:%d", gw.Adapter.Port())
	return c
}

// rawConn opens a plain connection to the gateway for exchanges the client
// cannot express.
func (c *cluster) rawConn(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", c.addr, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, conn.SetDeadline(time.Now().Add(10*time.Second)))
	return conn
}

func (c *cluster) dial(t *testing.T) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cl, err := client.Dial(ctx, c.addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })
	return cl
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestEndToEnd_UploadDownloadRoundTrip(t *testing.T) {
	c := startCluster(t)
	cl := c.dial(t)
	ctx := testContext(t)

	files := []client.File{
		{Name: "main.c", Data: []byte("int main(void) { return 0; }\n")},
		{Name: "paper.pdf", Data: []byte("%PDF-1.7 fake")},
		{Name: "notes.txt", Data: []byte("remember the milk")},
	}
	require.NoError(t, cl.Upload(ctx, "~S1/docs", files...))

	assert.FileExists(t, filepath.Join(c.root, "docs", "main.c"))
	assert.FileExists(t, filepath.Join(c.nodes[".pdf"], "docs", "paper.pdf"))
	assert.FileExists(t, filepath.Join(c.nodes[".txt"], "docs", "notes.txt"))
	assert.NoFileExists(t, filepath.Join(c.root, "docs", "paper.pdf"))

	got, err := cl.Download(ctx, "~S1/docs/main.c", "~S1/docs/paper.pdf")
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i, want := range files[:2] {
		assert.True(t, got[i].Found)
		assert.Equal(t, want.Name, got[i].Name)
		assert.Equal(t, want.Data, got[i].Data)
	}

	got, err = cl.Download(ctx, "~S1/docs/notes.txt")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, files[2].Data, got[0].Data)
}

func TestEndToEnd_DownloadMissing(t *testing.T) {
	c := startCluster(t)
	cl := c.dial(t)
	ctx := testContext(t)

	got, err := cl.Download(ctx, "~S1/nope.c", "~S1/nope.zip")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, got[0].Found)
	assert.Equal(t, "~S1/nope.c", got[0].Path)
	assert.False(t, got[1].Found)
}

func TestEndToEnd_ListingOrder(t *testing.T) {
	c := startCluster(t)
	cl := c.dial(t)
	ctx := testContext(t)

	require.NoError(t, cl.Upload(ctx, "~S1/mix",
		client.File{Name: "b.c", Data: []byte("b")},
		client.File{Name: "A.c", Data: []byte("a")},
		client.File{Name: "z.pdf", Data: []byte("z")},
	))
	require.NoError(t, cl.Upload(ctx, "~S1/mix",
		client.File{Name: "n.zip", Data: []byte("n")},
		client.File{Name: "m.txt", Data: []byte("m")},
	))

	entries, err := cl.List(ctx, "~S1/mix")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"A.c", "b.c", "z.pdf", "m.txt", "n.zip"}, names)
	assert.Equal(t, ".c", entries[0].Extension)
	assert.Equal(t, ".zip", entries[4].Extension)
}

func TestEndToEnd_RemoveThenList(t *testing.T) {
	c := startCluster(t)
	cl := c.dial(t)
	ctx := testContext(t)

	require.NoError(t, cl.Upload(ctx, "~S1",
		client.File{Name: "gone.c", Data: []byte("c")},
		client.File{Name: "gone.pdf", Data: []byte("p")},
	))

	res, err := cl.Remove(ctx, "~S1/gone.c", "~S1/gone.pdf")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.True(t, res[0].OK)
	assert.True(t, res[1].OK)

	entries, err := cl.List(ctx, "~S1")
	require.NoError(t, err)
	assert.Empty(t, entries)

	res, err = cl.Remove(ctx, "~S1/gone.c", "~S1/gone.pdf")
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.False(t, res[0].OK)
	assert.Equal(t, "no such file or directory", res[0].Reason)
	assert.False(t, res[1].OK)
	assert.Equal(t, "NOT FOUND", res[1].Reason)
}

func TestEndToEnd_DownloadTar(t *testing.T) {
	c := startCluster(t)
	cl := c.dial(t)
	ctx := testContext(t)

	_, _, err := cl.DownloadTar(ctx, ".c")
	var serr *client.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "no_c_files", serr.Reason)

	require.NoError(t, cl.Upload(ctx, "~S1/papers",
		client.File{Name: "one.pdf", Data: []byte("first")},
		client.File{Name: "two.pdf", Data: []byte("second")},
	))

	name, data, err := cl.DownloadTar(ctx, "pdf")
	require.NoError(t, err)
	assert.Equal(t, "pdfs.tar", name)

	members := map[string]string{}
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(tr)
		require.NoError(t, err)
		members[filepath.Base(hdr.Name)] = string(body)
	}
	assert.Equal(t, map[string]string{"one.pdf": "first", "two.pdf": "second"}, members)

	assert.FileExists(t, filepath.Join(c.root, "tar_files", "pdfs.tar"))

	_, _, err = cl.DownloadTar(ctx, ".exe")
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "unsupported_type", serr.Reason)
}

func TestEndToEnd_DownloadArchiveNaming(t *testing.T) {
	c := startCluster(t)
	cl := c.dial(t)
	ctx := testContext(t)

	require.NoError(t, cl.Upload(ctx, "~S1", client.File{Name: "dup.c", Data: []byte("dup")}))

	for range 2 {
		got, err := cl.Download(ctx, "~S1/dup.c")
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.True(t, got[0].Found)
	}

	dir := filepath.Join(c.root, "downloaded_files")
	assert.FileExists(t, filepath.Join(dir, "dup.c"))
	assert.FileExists(t, filepath.Join(dir, "dup_1.c"))

	entries, err := cl.List(ctx, "~S1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dup.c", entries[0].Name)
}

func TestEndToEnd_ErrorsKeepConnection(t *testing.T) {
	c := startCluster(t)
	cl := c.dial(t)
	ctx := testContext(t)

	reply, err := cl.Do(ctx, "UPLOADF|4|~S1")
	require.NoError(t, err)
	assert.Equal(t, "ERR|bad upload header", reply)

	reply, err = cl.Do(ctx, "HELLO")
	require.NoError(t, err)
	assert.Equal(t, "ERR|unknown_cmd", reply)

	reply, err = cl.Do(ctx, "DOWNTAR|")
	require.NoError(t, err)
	assert.Equal(t, "ERR|missing_type", reply)

	require.NoError(t, cl.Upload(ctx, "~S1", client.File{Name: "after.c", Data: []byte("ok")}))
	entries, err := cl.List(ctx, "~S1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "after.c", entries[0].Name)
}

func TestEndToEnd_UploadLeavesNoStagingFiles(t *testing.T) {
	c := startCluster(t)
	cl := c.dial(t)
	ctx := testContext(t)

	require.NoError(t, cl.Upload(ctx, "~S1/deep/dir",
		client.File{Name: "x.c", Data: []byte(strings.Repeat("x", 64<<10))},
		client.File{Name: "y.zip", Data: []byte("PK")},
	))

	data, err := os.ReadFile(filepath.Join(c.root, "deep", "dir", "x.c"))
	require.NoError(t, err)
	assert.Len(t, data, 64<<10)

	var leftovers []string
	err = filepath.WalkDir(filepath.Join(c.root, "tmp"), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			leftovers = append(leftovers, p)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestEndToEnd_TraversalRejected(t *testing.T) {
	c := startCluster(t)
	cl := c.dial(t)
	ctx := testContext(t)

	got, err := cl.Download(ctx, "~S1/../../etc/passwd.c")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Found)

	_, err = cl.List(ctx, "/not/under/marker")
	var serr *client.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "bad_path", serr.Reason)
}

func TestEndToEnd_ReservedDirectoriesRejected(t *testing.T) {
	c := startCluster(t)
	cl := c.dial(t)
	ctx := testContext(t)

	require.NoError(t, cl.Upload(ctx, "~S1", client.File{Name: "dup.c", Data: []byte("dup")}))
	got, err := cl.Download(ctx, "~S1/dup.c")
	require.NoError(t, err)
	require.True(t, got[0].Found)
	copyPath := filepath.Join(c.root, "downloaded_files", "dup.c")
	require.FileExists(t, copyPath)

	reply, err := cl.Do(ctx, "UPLOADF|1|~S1/tmp/project")
	require.NoError(t, err)
	assert.Equal(t, "ERR|bad upload header", reply)

	got, err = cl.Download(ctx, "~S1/downloaded_files/dup.c", "~S1/tar_files/pdfs.tar")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, got[0].Found)
	assert.False(t, got[1].Found)

	res, err := cl.Remove(ctx, "~S1/downloaded_files/dup.c")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.False(t, res[0].OK)
	assert.Equal(t, "bad_path", res[0].Reason)
	assert.FileExists(t, copyPath)

	_, err = cl.List(ctx, "~S1/tmp")
	var serr *client.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "bad_path", serr.Reason)

	entries, err := cl.List(ctx, "~S1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "dup.c", entries[0].Name)
}

func TestEndToEnd_UploadCommitIsAtomic(t *testing.T) {
	c := startCluster(t)
	observer := c.dial(t)
	ctx := testContext(t)

	payload := bytes.Repeat([]byte("a"), 256<<10)
	half := len(payload) / 2

	conn := c.rawConn(t)
	_, err := fmt.Fprintf(conn, "UPLOADF|1|~S1/atomic\n")
	require.NoError(t, err)
	require.NoError(t, gateway.WriteFileMeta(conn, "big.c", int64(len(payload))))
	_, err = conn.Write(payload[:half])
	require.NoError(t, err)

	for range 5 {
		entries, err := observer.List(ctx, "~S1/atomic")
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.NoFileExists(t, filepath.Join(c.root, "atomic", "big.c"))
		time.Sleep(10 * time.Millisecond)
	}

	_, err = conn.Write(payload[half:])
	require.NoError(t, err)
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "OK\n", line)

	entries, err := observer.List(ctx, "~S1/atomic")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "big.c", entries[0].Name)

	data, err := os.ReadFile(filepath.Join(c.root, "atomic", "big.c"))
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestEndToEnd_UploadFailureKeepsEarlierFiles(t *testing.T) {
	c := startCluster(t)

	conn := c.rawConn(t)
	_, err := io.WriteString(conn, "UPLOADF|2|~S1/part\nFILEMETA|first.c|3\nabcFILEMETA|second.c|x\n")
	require.NoError(t, err)

	// The gateway drops the connection without answering.
	n, err := conn.Read(make([]byte, 64))
	assert.Zero(t, n)
	require.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrDeadlineExceeded), "connection was not closed: %v", err)

	data, err := os.ReadFile(filepath.Join(c.root, "part", "first.c"))
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
	assert.NoFileExists(t, filepath.Join(c.root, "part", "second.c"))

	cl := c.dial(t)
	entries, err := cl.List(testContext(t), "~S1/part")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "first.c", entries[0].Name)
}

func TestEndToEnd_DownloadTarWithoutMatchesStoresNothing(t *testing.T) {
	c := startCluster(t)
	cl := c.dial(t)
	ctx := testContext(t)

	require.NoError(t, cl.Upload(ctx, "~S1", client.File{Name: "only.pdf", Data: []byte("p")}))

	for _, ext := range []string{".c", ".zip"} {
		_, _, err := cl.DownloadTar(ctx, ext)
		var serr *client.ServerError
		require.ErrorAs(t, err, &serr, ext)
	}

	entries, err := os.ReadDir(filepath.Join(c.root, "tar_files"))
	if !errors.Is(err, fs.ErrNotExist) {
		require.NoError(t, err)
	}
	assert.Empty(t, entries)
}

func TestEndToEnd_UnreachableNodeListsEmpty(t *testing.T) {
	c := startCluster(t, withDeadBackend(".txt"))
	cl := c.dial(t)
	ctx := testContext(t)

	require.NoError(t, cl.Upload(ctx, "~S1/mix",
		client.File{Name: "a.c", Data: []byte("a")},
		client.File{Name: "b.pdf", Data: []byte("b")},
		client.File{Name: "c.zip", Data: []byte("c")},
	))

	entries, err := cl.List(ctx, "~S1/mix")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		assert.NotEqual(t, ".txt", e.Extension)
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a.c", "b.pdf", "c.zip"}, names)

	_, _, err = cl.DownloadTar(ctx, ".txt")
	var serr *client.ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, gateway.ReasonTarBackend, serr.Reason)
}
