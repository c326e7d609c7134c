package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"
)

// FS stores each blob as a file below a root directory.
type FS struct {
	root string
}

// NewFS creates root if needed.
func NewFS(root string) (*FS, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: filesystem backend requires a path", kerrors.ErrInvalidConfig)
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("creating backend directory %s: %w", root, err)
	}
	return &FS{root: root}, nil
}

func (b *FS) path(key string) string {
	return filepath.Join(b.root, filepath.FromSlash(key))
}

func (b *FS) Put(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	target := b.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return classify(fmt.Errorf("creating directory for %s: %w", key, err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return classify(fmt.Errorf("creating temp file for %s: %w", key, err))
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return classify(fmt.Errorf("writing %s: %w", key, err))
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return classify(fmt.Errorf("syncing %s: %w", key, err))
	}
	if err := tmp.Close(); err != nil {
		return classify(fmt.Errorf("closing %s: %w", key, err))
	}

	if err := os.Rename(tmpName, target); err != nil {
		return classify(fmt.Errorf("renaming %s: %w", key, err))
	}
	return nil
}

func (b *FS) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("reading %s: %w", key, err))
	}
	return data, nil
}

func (b *FS) Has(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}

	_, err := os.Stat(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, classify(fmt.Errorf("checking %s: %w", key, err))
	}
	return true, nil
}

func (b *FS) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	err := filepath.WalkDir(b.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}

		rel, err := filepath.Rel(b.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, classify(fmt.Errorf("listing %q: %w", prefix, err))
	}

	sort.Strings(keys)
	return keys, nil
}

func (b *FS) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := os.Remove(b.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return classify(fmt.Errorf("deleting %s: %w", key, err))
	}
	return nil
}

func (b *FS) Close() error { return nil }

// classify marks errors the OS reports as temporary.
func classify(err error) error {
	for _, errno := range []syscall.Errno{syscall.EAGAIN, syscall.EBUSY, syscall.EINTR, syscall.ETIMEDOUT} {
		if errors.Is(err, errno) {
			return kerrors.Transient(err)
		}
	}
	return err
}
