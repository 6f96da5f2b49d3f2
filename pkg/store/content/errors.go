package content

import "errors"

// ============================================================================
// Standard Content Store Errors
// ============================================================================

// Implementations wrap these with context so handlers can classify failures:
//
//	if errors.Is(err, content.ErrNotFound) {
//	    return reply.FileNotFound(path)
//	}

var (
	// ErrNotFound indicates no regular file exists at the path.
	ErrNotFound = errors.New("content not found")

	// ErrInvalidPath indicates a path that is empty, absolute, or escapes
	// the store root.
	ErrInvalidPath = errors.New("invalid content path")

	// ErrIsDirectory indicates the path names a directory where a regular
	// file was required.
	ErrIsDirectory = errors.New("is a directory")
)
