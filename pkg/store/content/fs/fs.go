// Package fs implements filesystem-based content storage.
//
// Files live under a base directory with the same relative layout clients
// see. Writes go to a hidden temporary file in the destination directory and
// are renamed into place, so readers never observe a partially written file.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/marmos91/shardgate/pkg/store/content"
	"github.com/marmos91/shardgate/pkg/vpath"
)

// tempPrefix marks in-flight writes; such files are hidden from List and Walk.
const tempPrefix = ".shardgate-tmp-"

// FSContentStore implements content.ContentStore on the local filesystem.
//
// Thread Safety:
// Filesystem operations are safe at the OS level. Concurrent Put calls to
// the same path each write their own temporary file; the last rename wins.
type FSContentStore struct {
	basePath string

	// exclude holds root-relative directories skipped by Walk (the gateway's
	// staging and archive areas live under the same root).
	exclude map[string]struct{}
}

var (
	_ content.ContentStore = (*FSContentStore)(nil)
	_ content.Importer     = (*FSContentStore)(nil)
)

// NewFSContentStore creates a store rooted at basePath, creating the
// directory (mode 0755) if needed.
//
// Parameters:
//   - ctx: Context for cancellation
//   - basePath: Root directory for stored files
//   - exclude: Root-relative directories Walk must not descend into
func NewFSContentStore(ctx context.Context, basePath string, exclude ...string) (*FSContentStore, error) {
	// ========================================================================
	// Step 1: Check context before filesystem operation
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Create the base directory if it doesn't exist
	// ========================================================================

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	excluded := make(map[string]struct{}, len(exclude))
	for _, dir := range exclude {
		clean := path.Clean(filepath.ToSlash(dir))
		if clean != "." && clean != "" {
			excluded[clean] = struct{}{}
		}
	}

	return &FSContentStore{
		basePath: absBase,
		exclude:  excluded,
	}, nil
}

// BasePath returns the absolute root directory.
func (s *FSContentStore) BasePath() string {
	return s.basePath
}

// getFilePath maps a relative path to an absolute one under basePath.
func (s *FSContentStore) getFilePath(p string) (string, error) {
	if p == "" || filepath.IsAbs(p) {
		return "", fmt.Errorf("%w: %q", content.ErrInvalidPath, p)
	}
	abs, err := vpath.Contain(s.basePath, p)
	if err != nil {
		return "", fmt.Errorf("%w: %v", content.ErrInvalidPath, err)
	}
	return abs, nil
}

// Put writes size bytes from r to p through a temporary file and a rename.
func (s *FSContentStore) Put(ctx context.Context, p string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest, err := s.getFilePath(p)
	if err != nil {
		return err
	}
	if dest == s.basePath {
		return fmt.Errorf("%w: %q", content.ErrInvalidPath, p)
	}

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", p, err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", p, err)
	}
	tmpName := tmp.Name()

	n, copyErr := io.CopyN(tmp, r, size)
	closeErr := tmp.Close()

	switch {
	case copyErr != nil && errors.Is(copyErr, io.EOF):
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: got %d of %d bytes: %w", p, n, size, io.ErrUnexpectedEOF)
	case copyErr != nil:
		_ = os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", p, copyErr)
	case closeErr != nil:
		_ = os.Remove(tmpName)
		return fmt.Errorf("flush %s: %w", p, closeErr)
	}

	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", p, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into %s: %w", p, err)
	}
	return nil
}

// Import renames the finished file src into p. src must be on the same
// filesystem as the store.
func (s *FSContentStore) Import(ctx context.Context, src string, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest, err := s.getFilePath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", p, err)
	}
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("rename into %s: %w", p, err)
	}
	return nil
}

// Open opens the regular file at p.
func (s *FSContentStore) Open(ctx context.Context, p string) (io.ReadCloser, content.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, content.FileInfo{}, err
	}

	abs, err := s.getFilePath(p)
	if err != nil {
		return nil, content.FileInfo{}, err
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, content.FileInfo{}, s.wrapErr(p, err)
	}

	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, content.FileInfo{}, fmt.Errorf("stat %s: %w", p, err)
	}
	if !st.Mode().IsRegular() {
		_ = f.Close()
		return nil, content.FileInfo{}, fmt.Errorf("open %s: %w", p, content.ErrNotFound)
	}

	return f, s.fileInfo(p, st), nil
}

// Stat returns info for the regular file at p.
func (s *FSContentStore) Stat(ctx context.Context, p string) (content.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return content.FileInfo{}, err
	}

	abs, err := s.getFilePath(p)
	if err != nil {
		return content.FileInfo{}, err
	}

	st, err := os.Stat(abs)
	if err != nil {
		return content.FileInfo{}, s.wrapErr(p, err)
	}
	if !st.Mode().IsRegular() {
		return content.FileInfo{}, fmt.Errorf("stat %s: %w", p, content.ErrNotFound)
	}
	return s.fileInfo(p, st), nil
}

// Remove unlinks the file at p. Directories are refused with
// content.ErrIsDirectory; OS errors are wrapped so callers can report them.
func (s *FSContentStore) Remove(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	abs, err := s.getFilePath(p)
	if err != nil {
		return err
	}

	st, err := os.Lstat(abs)
	if err != nil {
		return s.wrapErr(p, err)
	}
	if st.IsDir() {
		return &iofs.PathError{Op: "unlink", Path: p, Err: content.ErrIsDirectory}
	}

	if err := os.Remove(abs); err != nil {
		return s.wrapErr(p, err)
	}
	return nil
}

// List returns the regular files directly under dir, in directory order.
func (s *FSContentStore) List(ctx context.Context, dir string) ([]content.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abs, err := s.getFilePath(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) || errors.Is(err, iofs.ErrInvalid) {
			return nil, nil
		}
		var pathErr *iofs.PathError
		if errors.As(err, &pathErr) && isNotDir(pathErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	out := make([]content.FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		// Follow symlinks the way stat(2) would.
		st, err := os.Stat(filepath.Join(abs, e.Name()))
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		out = append(out, s.fileInfo(vpath.Join(path.Clean(dir), e.Name()), st))
	}
	return out, nil
}

// Walk visits every regular file under the root, skipping excluded
// directories and in-flight temporary files. Symlinks are not followed.
func (s *FSContentStore) Walk(ctx context.Context, fn content.WalkFunc) error {
	return filepath.WalkDir(s.basePath, func(abs string, d iofs.DirEntry, err error) error {
		if err != nil {
			if abs == s.basePath {
				return err
			}
			// Unreadable subtrees are skipped rather than failing the walk.
			if d != nil && d.IsDir() {
				return iofs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(s.basePath, abs)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if _, skip := s.exclude[rel]; skip {
				return iofs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		st, err := d.Info()
		if err != nil {
			return nil
		}
		return fn(s.fileInfo(rel, st))
	})
}

// Close is a no-op; the store holds no open descriptors.
func (s *FSContentStore) Close() error {
	return nil
}

func (s *FSContentStore) fileInfo(rel string, st os.FileInfo) content.FileInfo {
	return content.FileInfo{
		Name:    st.Name(),
		Path:    rel,
		Size:    st.Size(),
		ModTime: st.ModTime(),
	}
}

func (s *FSContentStore) wrapErr(p string, err error) error {
	if errors.Is(err, iofs.ErrNotExist) {
		return fmt.Errorf("%w: %w", content.ErrNotFound, err)
	}
	var pathErr *iofs.PathError
	if errors.As(err, &pathErr) && isNotDir(pathErr) {
		return fmt.Errorf("%w: %w", content.ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", p, err)
}

func isNotDir(err *iofs.PathError) bool {
	return errors.Is(err.Err, syscall.ENOTDIR)
}
