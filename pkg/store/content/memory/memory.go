package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/shardgate/pkg/store/content"
)

// MemoryContentStore implements content.ContentStore in memory.
//
// It is meant for tests and ephemeral nodes; everything is lost when the
// process exits.
//
// Thread Safety:
// All operations are protected by a sync.RWMutex. Data is copied on the way
// in and out, so callers never share buffers with the store.
type MemoryContentStore struct {
	mu    sync.RWMutex
	files map[string]*entry
}

type entry struct {
	data    []byte
	modTime time.Time
}

var _ content.ContentStore = (*MemoryContentStore)(nil)

// NewMemoryContentStore creates an empty in-memory store.
func NewMemoryContentStore(ctx context.Context) (*MemoryContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &MemoryContentStore{
		files: make(map[string]*entry),
	}, nil
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

func (s *MemoryContentStore) Put(ctx context.Context, p string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := cleanPath(p)
	if err != nil {
		return err
	}
	if key == "." {
		return fmt.Errorf("%w: %q", content.ErrInvalidPath, p)
	}

	var buf bytes.Buffer
	n, err := io.CopyN(&buf, r, size)
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("write %s: got %d of %d bytes: %w", p, n, size, io.ErrUnexpectedEOF)
		}
		return fmt.Errorf("write %s: %w", p, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isDirLocked(key) {
		return fmt.Errorf("write %s: %w", p, content.ErrIsDirectory)
	}
	s.files[key] = &entry{data: buf.Bytes(), modTime: time.Now()}
	return nil
}

func (s *MemoryContentStore) Open(ctx context.Context, p string) (io.ReadCloser, content.FileInfo, error) {
	info, data, err := s.get(ctx, p)
	if err != nil {
		return nil, content.FileInfo{}, err
	}
	return io.NopCloser(bytes.NewReader(data)), info, nil
}

func (s *MemoryContentStore) Stat(ctx context.Context, p string) (content.FileInfo, error) {
	info, _, err := s.get(ctx, p)
	return info, err
}

func (s *MemoryContentStore) Remove(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := cleanPath(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[key]; !ok {
		if s.isDirLocked(key) {
			return fmt.Errorf("remove %s: %w", p, content.ErrIsDirectory)
		}
		return fmt.Errorf("remove %s: %w", p, content.ErrNotFound)
	}
	delete(s.files, key)
	return nil
}

func (s *MemoryContentStore) List(ctx context.Context, dir string) ([]content.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, err := cleanPath(dir)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []content.FileInfo
	for p, e := range s.files {
		if path.Dir(p) == key {
			out = append(out, info(p, e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Walk visits files in lexical path order over a snapshot taken at the start.
func (s *MemoryContentStore) Walk(ctx context.Context, fn content.WalkFunc) error {
	s.mu.RLock()
	snapshot := make([]content.FileInfo, 0, len(s.files))
	for p, e := range s.files {
		snapshot = append(snapshot, info(p, e))
	}
	s.mu.RUnlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Path < snapshot[j].Path })

	for _, fi := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(fi); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryContentStore) Close() error {
	return nil
}

func (s *MemoryContentStore) get(ctx context.Context, p string) (content.FileInfo, []byte, error) {
	if err := ctx.Err(); err != nil {
		return content.FileInfo{}, nil, err
	}

	key, err := cleanPath(p)
	if err != nil {
		return content.FileInfo{}, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.files[key]
	if !ok {
		return content.FileInfo{}, nil, fmt.Errorf("open %s: %w", p, content.ErrNotFound)
	}
	data := make([]byte, len(e.data))
	copy(data, e.data)
	return info(key, e), data, nil
}

// isDirLocked reports whether any file lives below key. Callers hold mu.
func (s *MemoryContentStore) isDirLocked(key string) bool {
	if key == "." {
		return true
	}
	prefix := key + "/"
	for p := range s.files {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func info(p string, e *entry) content.FileInfo {
	return content.FileInfo{
		Name:    path.Base(p),
		Path:    p,
		Size:    int64(len(e.data)),
		ModTime: e.modTime,
	}
}
