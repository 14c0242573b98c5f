package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// LocalStore serves figures from a directory tree whose first level plays the
// role of buckets.
type LocalStore struct {
	fs afero.Fs
}

// NewLocalStore roots a store at dir on the host filesystem.
func NewLocalStore(dir string) *LocalStore {
	return NewLocalStoreFs(afero.NewBasePathFs(afero.NewOsFs(), dir))
}

// NewLocalStoreFs wraps any afero filesystem.
func NewLocalStoreFs(fsys afero.Fs) *LocalStore {
	return &LocalStore{fs: fsys}
}

// Glob matches the pattern against the tree.
func (s *LocalStore) Glob(_ context.Context, pattern string) ([]string, error) {
	matches, err := afero.Glob(s.fs, filepath.FromSlash("/"+trimSlash(pattern)))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		info, err := s.fs.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		out = append(out, trimSlash(filepath.ToSlash(m)))
	}
	sort.Strings(out)
	return out, nil
}

// Open opens one file.
func (s *LocalStore) Open(_ context.Context, p string) (io.ReadCloser, error) {
	f, err := s.fs.Open(filepath.FromSlash("/" + trimSlash(p)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to open %s: %w", p, err)
	}
	return f, nil
}

func trimSlash(p string) string {
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	return p
}
