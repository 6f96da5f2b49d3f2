// Package aggregate merges per-class file listings into the single ordered
// listing DISP returns.
//
// Each source contributes a group. Groups keep the fixed class priority
// (local class first, then backends in registry order); inside a group names
// are sorted case-insensitively. A failed source contributes nothing.
package aggregate

import (
	"context"
	"sort"
	"strings"
)

// Entry is one listed file.
type Entry struct {
	Extension string
	Name      string
}

// Source produces the names of one extension class.
type Source struct {
	Extension string
	List      func(ctx context.Context) ([]string, error)
}

// Merge calls every source in order and concatenates their sorted groups.
// onError, when non-nil, is told about each failed source.
func Merge(ctx context.Context, sources []Source, onError func(ext string, err error)) []Entry {
	var out []Entry
	for _, src := range sources {
		names, err := src.List(ctx)
		if err != nil {
			if onError != nil {
				onError(src.Extension, err)
			}
			continue
		}
		out = append(out, Group(src.Extension, names)...)
	}
	return out
}

// Group sorts names case-insensitively and tags them with ext. Ties on the
// folded name fall back to byte order so the result is deterministic.
func Group(ext string, names []string) []Entry {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := strings.ToLower(sorted[i]), strings.ToLower(sorted[j])
		if a != b {
			return a < b
		}
		return sorted[i] < sorted[j]
	})

	out := make([]Entry, len(sorted))
	for i, n := range sorted {
		out[i] = Entry{Extension: ext, Name: n}
	}
	return out
}
