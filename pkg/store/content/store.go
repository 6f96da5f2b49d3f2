// Package content defines the storage abstraction holding file bytes for one
// node: the gateway's local extension class, or a backend node's class.
//
// Paths passed to a ContentStore are clean, slash-separated and relative to
// the store root ("." is the root itself). Callers resolve and guard client
// input with pkg/vpath before reaching a store; implementations still refuse
// paths that would escape their root.
package content

import (
	"context"
	"io"
	"time"
)

// FileInfo describes one regular file held by a store.
type FileInfo struct {
	// Name is the base name.
	Name string

	// Path is the root-relative, slash-separated path.
	Path string

	// Size is the length in bytes.
	Size int64

	// ModTime is the last modification time, zero when unknown.
	ModTime time.Time
}

// WalkFunc is called for every regular file visited by Walk. Returning an
// error stops the walk and is returned by Walk.
type WalkFunc func(info FileInfo) error

// ContentStore holds file bytes addressed by relative path.
//
// Only regular files are visible: Open, Stat and Remove report ErrNotFound
// for directories, List and Walk skip everything else.
//
// Thread safety:
// Implementations must be safe for concurrent use. Concurrent writers to the
// same path race with last-writer-wins semantics.
type ContentStore interface {
	// Put stores exactly size bytes read from r at path, creating parent
	// directories as needed. The file becomes visible only once complete.
	// A reader shorter than size fails with an error wrapping
	// io.ErrUnexpectedEOF and leaves no partial file behind.
	Put(ctx context.Context, path string, r io.Reader, size int64) error

	// Open returns a reader for the file at path together with its info.
	Open(ctx context.Context, path string) (io.ReadCloser, FileInfo, error)

	// Stat returns the info of the file at path.
	Stat(ctx context.Context, path string) (FileInfo, error)

	// Remove deletes the file at path.
	Remove(ctx context.Context, path string) error

	// List returns the regular files directly under dir. A missing
	// directory yields an empty listing and no error.
	List(ctx context.Context, dir string) ([]FileInfo, error)

	// Walk visits every regular file in the store, recursively.
	Walk(ctx context.Context, fn WalkFunc) error

	// Close releases resources held by the store.
	Close() error
}

// Importer is implemented by stores that can adopt a finished local file
// by renaming it into place, avoiding a copy. src is an absolute filesystem
// path; on success the store owns the file.
type Importer interface {
	Import(ctx context.Context, src string, path string) error
}
