package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SplitName splits name into stem and extension. A leading dot does not
// start an extension, so ".bashrc" has no extension while "a.tar" splits
// into "a" and ".tar".
func SplitName(name string) (stem, ext string) {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// CandidateName returns the n-th candidate for name: name itself for 0,
// otherwise stem_n followed by the extension.
func CandidateName(name string, n int) string {
	if n == 0 {
		return name
	}
	stem, ext := SplitName(name)
	return fmt.Sprintf("%s_%d%s", stem, n, ext)
}

// createUnique creates the first free candidate of name in dir with
// O_EXCL, so two concurrent sessions never claim the same name. Candidates
// are tried until one is free.
func createUnique(dir, name string) (*os.File, string, error) {
	for n := 0; ; n++ {
		candidate := CandidateName(name, n)
		p := filepath.Join(dir, candidate)
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, p, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", fmt.Errorf("create %s: %w", p, err)
		}
	}
}
