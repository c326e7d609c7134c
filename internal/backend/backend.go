package backend

import (
	"context"
	"fmt"
	"strings"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"
)

// Backend stores encrypted blobs. Implementations must be safe for concurrent use.
type Backend interface {
	// Put stores data under key, replacing any existing value.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the value for key or an error matching ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Has reports whether key exists without reading its value.
	Has(ctx context.Context, key string) (bool, error)

	// List returns all keys starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// Kinds accepted by Open.
const (
	KindFS     = "fs"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// Open returns a backend of the given kind rooted at path.
func Open(kind, path string) (Backend, error) {
	switch kind {
	case KindFS, "":
		return NewFS(path)
	case KindSQLite:
		return NewSQLite(path)
	case KindMemory:
		return NewMemory(), nil
	}
	return nil, fmt.Errorf("%w: unknown storage backend %q", kerrors.ErrInvalidConfig, kind)
}

// ValidateKey rejects keys that could escape a backend's namespace.
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return fmt.Errorf("invalid backend key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, "\\\x00") {
			return fmt.Errorf("invalid backend key %q", key)
		}
	}
	return nil
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", kerrors.ErrNotFound, key)
}
