// Package staging manages connection-scoped temporary files.
//
// Every payload that crosses the gateway lands in a staging file first:
// uploads before they are committed locally or forwarded to a node, remote
// downloads before they are sent to the client, local bundles while they are
// built. Each connection owns one session directory, <root>/<id>/, that is
// never shared. Files are committed into a content store by rename when the
// store supports it, otherwise by copy.
//
// Files abandoned by an aborted transfer stay on disk until their session is
// closed.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/shardgate/internal/logger"
	"github.com/marmos91/shardgate/pkg/store/content"
)

// DirName is the default staging directory under a gateway root.
const DirName = "tmp"

// Area is the parent directory of all session directories. It tracks which
// sessions are open so stale directories can be swept without touching live
// ones.
type Area struct {
	root string

	mu     sync.Mutex
	active map[string]struct{}
}

// NewArea returns an Area rooted at dir, creating it if needed.
func NewArea(dir string) (*Area, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve staging dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Area{root: abs, active: make(map[string]struct{})}, nil
}

// Root returns the absolute staging directory.
func (a *Area) Root() string {
	return a.root
}

// Session opens the staging session id. Its directory is created lazily on
// the first Create.
func (a *Area) Session(id string) *Session {
	a.mu.Lock()
	a.active[id] = struct{}{}
	a.mu.Unlock()

	return &Session{
		area: a,
		id:   id,
		dir:  filepath.Join(a.root, id),
	}
}

// Stale returns the directories under the area that belong to no open
// session and were last modified before cutoff. A zero cutoff returns every
// directory without an open session.
func (a *Area) Stale(cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		return nil, fmt.Errorf("read staging dir: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var out []string
	for _, e := range entries {
		if _, ok := a.active[e.Name()]; ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if cutoff.IsZero() || info.ModTime().Before(cutoff) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Remove deletes the staging entry name unless a session with that id is
// open.
func (a *Area) Remove(name string) error {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return fmt.Errorf("invalid staging entry %q", name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.active[name]; ok {
		return fmt.Errorf("staging session %s is open", name)
	}
	return os.RemoveAll(filepath.Join(a.root, name))
}

func (a *Area) release(id string) {
	a.mu.Lock()
	delete(a.active, id)
	a.mu.Unlock()
}

// Session is the staging scope of one connection. It is not safe for
// concurrent use, matching the one-goroutine-per-connection model.
type Session struct {
	area *Area
	id   string
	dir  string

	once    sync.Once
	initErr error
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Dir returns the session directory.
func (s *Session) Dir() string {
	return s.dir
}

// Create opens a new, empty, uniquely named staging file.
func (s *Session) Create() (*File, error) {
	s.once.Do(func() {
		s.initErr = os.MkdirAll(s.dir, 0755)
	})
	if s.initErr != nil {
		return nil, fmt.Errorf("create session dir: %w", s.initErr)
	}

	p := filepath.Join(s.dir, uuid.NewString())
	f, err := os.OpenFile(p, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	return &File{f: f, path: p}, nil
}

// Close removes the session directory and anything left in it.
func (s *Session) Close() error {
	defer s.area.release(s.id)
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove session dir %s: %w", s.dir, err)
	}
	return nil
}

// File is one staging file. It is created open for reading and writing.
type File struct {
	f    *os.File
	path string
	done bool
}

// Path returns the absolute path of the file.
func (f *File) Path() string {
	return f.path
}

// Write appends to the file.
func (f *File) Write(p []byte) (int, error) {
	return f.f.Write(p)
}

// Rewind flushes pending writes and returns the file positioned at its start
// together with its size.
func (f *File) Rewind() (io.Reader, int64, error) {
	if _, err := f.f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, fmt.Errorf("rewind staging file: %w", err)
	}
	st, err := f.f.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("stat staging file: %w", err)
	}
	return f.f, st.Size(), nil
}

// Commit moves the file into store at rel. Stores implementing
// content.Importer adopt the file by rename, so it appears atomically;
// others receive a copy. The staging file is gone afterwards on success.
func (f *File) Commit(ctx context.Context, store content.ContentStore, rel string) error {
	if f.done {
		return errors.New("staging file already committed or discarded")
	}

	if imp, ok := store.(content.Importer); ok {
		if err := f.f.Close(); err != nil {
			return fmt.Errorf("close staging file: %w", err)
		}
		err := imp.Import(ctx, f.path, rel)
		if err == nil {
			f.done = true
			return nil
		}
		if !errors.Is(err, syscall.EXDEV) {
			return err
		}
		logger.Debug("Staging rename across devices for %s, copying instead", rel)
		if f.f, err = os.Open(f.path); err != nil {
			return fmt.Errorf("reopen staging file: %w", err)
		}
	}

	r, size, err := f.Rewind()
	if err != nil {
		return err
	}
	if err := store.Put(ctx, rel, r, size); err != nil {
		return err
	}
	return f.Discard()
}

// Discard closes and deletes the file. It is safe to call more than once.
func (f *File) Discard() error {
	if f.done {
		return nil
	}
	f.done = true
	_ = f.f.Close()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove staging file: %w", err)
	}
	return nil
}
