// Package vpath maps client-supplied virtual paths onto storage-relative paths.
//
// Clients address everything through a namespace marker (for example "~S1").
// A virtual path is either the bare marker or the marker followed by '/' and
// a slash-separated path. Resolution strips the marker, canonicalizes the
// remainder and refuses anything that would climb above the storage root, so
// every store receives a clean relative path ("." for the root itself).
package vpath

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// DefaultMarker is the namespace marker used when none is configured.
const DefaultMarker = "~S1"

var (
	// ErrOutsideNamespace is returned for paths not rooted at the marker.
	ErrOutsideNamespace = errors.New("path is outside the namespace")

	// ErrEscapesRoot is returned for paths that resolve above the root.
	ErrEscapesRoot = errors.New("path escapes the storage root")

	// ErrInvalidName is returned for file names that are not plain base names.
	ErrInvalidName = errors.New("invalid file name")

	// ErrReserved is returned for paths inside a directory the server keeps
	// for itself.
	ErrReserved = errors.New("path is reserved")
)

// Resolver resolves virtual paths for one namespace marker.
type Resolver struct {
	marker   string
	reserved map[string]struct{}
}

// NewResolver returns a Resolver for marker. An empty marker selects
// DefaultMarker; a trailing slash is ignored.
//
// reserved names top-level directories of the root that clients may not
// address (staging, archives). Only the first segment of each entry counts.
func NewResolver(marker string, reserved ...string) *Resolver {
	marker = strings.TrimRight(marker, "/")
	if marker == "" {
		marker = DefaultMarker
	}

	r := &Resolver{marker: marker, reserved: make(map[string]struct{}, len(reserved))}
	for _, dir := range reserved {
		c, err := Clean(filepath.ToSlash(dir))
		if err != nil || c == "." {
			continue
		}
		r.reserved[firstSegment(c)] = struct{}{}
	}
	return r
}

// InNamespace reports whether p is rooted at the marker.
func (r *Resolver) InNamespace(p string) bool {
	return p == r.marker || strings.HasPrefix(p, r.marker+"/")
}

// Resolve converts a virtual path into a clean, slash-separated path relative
// to the storage root. The namespace root resolves to ".".
func (r *Resolver) Resolve(p string) (string, error) {
	if !r.InNamespace(p) {
		return "", fmt.Errorf("%w: %q", ErrOutsideNamespace, p)
	}
	rel, err := Clean(strings.TrimPrefix(p, r.marker))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, p)
	}
	if _, ok := r.reserved[firstSegment(rel)]; ok {
		return "", fmt.Errorf("%w: %q", ErrReserved, p)
	}
	return rel, nil
}

func firstSegment(rel string) string {
	first, _, _ := strings.Cut(rel, "/")
	return first
}

// Clean canonicalizes a root-relative path. Leading slashes are dropped,
// the root itself becomes "." and anything climbing above the root is
// refused.
func Clean(rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, rel)
	}
	c := path.Clean(strings.TrimLeft(rel, "/"))
	if c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, rel)
	}
	return c, nil
}

// Base returns the last element of a virtual or relative path.
func Base(p string) string {
	return path.Base(strings.TrimRight(p, "/"))
}

// Ext returns the lowercased extension of the last path element, including
// the leading dot, or "" when there is none.
func Ext(p string) string {
	return strings.ToLower(path.Ext(Base(p)))
}

// Join joins a relative directory and a name. A "." directory yields the
// bare name.
func Join(relDir, name string) string {
	if relDir == "" || relDir == "." {
		return name
	}
	return path.Join(relDir, name)
}

// ValidateName checks that name is a plain file name: non-empty, no
// separators, and not "." or "..".
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Contain joins a relative path onto an absolute filesystem root and verifies
// the result still lives under it.
func Contain(root, rel string) (string, error) {
	joined := filepath.Join(root, filepath.Clean(filepath.FromSlash(rel)))
	r, err := filepath.Rel(root, joined)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrEscapesRoot, rel)
	}
	return joined, nil
}
