// Package storage lists and opens figure objects in a bucket-addressed store.
// Paths have the form "<bucket>/<key>"; glob patterns follow path.Match, so "*"
// never crosses a "/".
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrNotFound is returned when opening a path that does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectStore is a read-only view of a bucket store.
type ObjectStore interface {
	// Glob lists every path matching the pattern, sorted.
	Glob(ctx context.Context, pattern string) ([]string, error)
	// Open streams the object at path. The caller closes the reader.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// SplitPath separates "<bucket>/<key>".
func SplitPath(p string) (bucket, key string) {
	p = strings.TrimPrefix(p, "/")
	bucket, key, _ = strings.Cut(p, "/")
	return bucket, key
}

// LiteralPrefix returns the part of a glob pattern before its first
// metacharacter. Listing with it as prefix returns a superset of the matches.
func LiteralPrefix(pattern string) string {
	if i := strings.IndexAny(pattern, `*?[\`); i >= 0 {
		return pattern[:i]
	}
	return pattern
}
