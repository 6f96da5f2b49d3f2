// Package bundle builds tar archives of every file of one extension class.
//
// Member selection walks a content store recursively and keeps regular files
// whose extension matches case-insensitively. Member names are the
// root-relative paths, without a leading separator.
package bundle

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/shardgate/pkg/registry"
	"github.com/marmos91/shardgate/pkg/store/content"
	"github.com/marmos91/shardgate/pkg/vpath"
)

// ErrEmpty is returned when no file matches the extension. Nothing has been
// written to the destination in that case.
var ErrEmpty = errors.New("no matching files")

// Stats summarizes a written bundle.
type Stats struct {
	Members int
	Bytes   int64
}

// Write streams a tar of every file in store with extension ext into w.
func Write(ctx context.Context, w io.Writer, store content.ContentStore, ext string) (Stats, error) {
	ext = registry.NormalizeExt(ext)
	if ext == "" {
		return Stats{}, errors.New("bundle: extension is required")
	}

	var matches []content.FileInfo
	err := store.Walk(ctx, func(fi content.FileInfo) error {
		if vpath.Ext(fi.Name) == ext {
			matches = append(matches, fi)
		}
		return nil
	})
	if err != nil {
		return Stats{}, fmt.Errorf("walk store: %w", err)
	}
	if len(matches) == 0 {
		return Stats{}, ErrEmpty
	}

	tw := tar.NewWriter(w)
	var stats Stats
	for _, fi := range matches {
		n, err := addMember(ctx, tw, store, fi)
		if err != nil {
			if errors.Is(err, content.ErrNotFound) {
				// Removed between the walk and the read.
				continue
			}
			return stats, err
		}
		stats.Members++
		stats.Bytes += n
	}
	if stats.Members == 0 {
		return stats, ErrEmpty
	}
	if err := tw.Close(); err != nil {
		return stats, fmt.Errorf("finish tar: %w", err)
	}
	return stats, nil
}

func addMember(ctx context.Context, tw *tar.Writer, store content.ContentStore, fi content.FileInfo) (int64, error) {
	rc, info, err := store.Open(ctx, fi.Path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rc.Close() }()

	modTime := info.ModTime
	if modTime.IsZero() {
		modTime = time.Now()
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     fi.Path,
		Mode:     0644,
		Size:     info.Size,
		ModTime:  modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, fmt.Errorf("write tar header for %s: %w", fi.Path, err)
	}
	n, err := io.CopyN(tw, rc, info.Size)
	if err != nil {
		return n, fmt.Errorf("write tar member %s: %w", fi.Path, err)
	}
	return n, nil
}
