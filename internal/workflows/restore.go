package workflows

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PolarWolf314/rimu/internal/audit"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/manifest"
)

// RestoreOptions configures the restore workflow.
type RestoreOptions struct {
	RepoOptions

	// Paths selects files or directories, as manifest paths ("/notes/a.md")
	// or relative paths. Empty restores every live file.
	Paths []string

	// From names a published manifest by storage key. Empty means the view
	// from the last push or pull.
	From string

	// Target is the directory files are written below. Empty means the
	// repository root.
	Target string

	// Overwrite replaces existing files instead of skipping them.
	Overwrite bool
}

// RestoreResult contains the outcome of a restore operation.
type RestoreResult struct {
	ManifestID string
	Restored   []string
	Skipped    []string
	Bytes      int64
}

// Restore writes files from a manifest to disk, verifying every chunk.
//
// Returns ErrNotFound if no manifest is available or a requested path is not in it.
func Restore(ctx context.Context, opts RestoreOptions) (*RestoreResult, error) {
	r, err := openRepo(ctx, opts.RepoOptions)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	m, err := r.sourceManifest(ctx, opts.From)
	if err != nil {
		return nil, err
	}
	selected, err := selectEntries(m, opts.Paths)
	if err != nil {
		return nil, err
	}

	target := opts.Target
	if target == "" {
		target = r.root
	}

	result := &RestoreResult{ManifestID: m.ID}
	for _, e := range selected {
		dest := localPath(target, e.Path)
		if _, err := os.Stat(dest); err == nil && !opts.Overwrite {
			result.Skipped = append(result.Skipped, e.Path)
			continue
		}
		if err := writeEntry(ctx, r.store, dest, e); err != nil {
			return nil, fmt.Errorf("restoring %s: %w", e.Path, err)
		}
		result.Restored = append(result.Restored, e.Path)
		result.Bytes += e.Size
	}

	entry := audit.LogWithDevice("restore", r.config)
	entry.Manifest = m.ID
	entry.Files = result.Restored
	entry.Bytes = result.Bytes
	audit.Log(r.root, entry)

	return result, nil
}

// sourceManifest returns the published manifest stored at key, or the local
// base when key is empty.
func (r *repo) sourceManifest(ctx context.Context, key string) (*manifest.Manifest, error) {
	if key == "" {
		base, err := loadBase(r.settings)
		if err != nil {
			return nil, err
		}
		if base == nil {
			return nil, fmt.Errorf("%w: nothing has been pushed or pulled yet", kerrors.ErrNotFound)
		}
		return base, nil
	}

	tree, err := r.trust(ctx)
	if err != nil {
		return nil, err
	}
	published, err := r.publisher.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	for _, pub := range published {
		if pub.Key == key {
			return openPublished(pub, tree)
		}
	}
	return nil, fmt.Errorf("%w: manifest %s", kerrors.ErrNotFound, key)
}

// selectEntries returns the live entries of m under any of paths.
func selectEntries(m *manifest.Manifest, paths []string) ([]manifest.Entry, error) {
	live := m.Live()
	if len(paths) == 0 {
		return live, nil
	}

	var out []manifest.Entry
	for _, raw := range paths {
		p := "/" + strings.Trim(filepath.ToSlash(raw), "/")
		var found bool
		for _, e := range live {
			if p == "/" || e.Path == p || strings.HasPrefix(e.Path, p+"/") {
				out = append(out, e)
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s", kerrors.ErrNotFound, raw)
		}
	}
	return out, nil
}

// HistoryOptions configures the history workflow.
type HistoryOptions struct {
	RepoOptions

	// Device limits the listing to one device ID.
	Device string
}

// HistoryEntry describes one published manifest.
type HistoryEntry struct {
	Key       string
	Device    string
	Seq       uint64
	ID        string
	CreatedAt time.Time
	Files     int
	Err       error
}

// History lists every published manifest, verified against the trust tree.
// Manifests that fail verification are listed with Err set.
func History(ctx context.Context, opts HistoryOptions) ([]HistoryEntry, error) {
	r, err := openRepo(ctx, opts.RepoOptions)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	tree, err := r.trust(ctx)
	if err != nil {
		return nil, err
	}
	published, err := r.publisher.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	var out []HistoryEntry
	for _, pub := range published {
		if opts.Device != "" && pub.Device != opts.Device {
			continue
		}
		h := HistoryEntry{Key: pub.Key, Device: pub.Device, Seq: pub.Seq}
		m, err := openPublished(pub, tree)
		if err != nil {
			h.Err = err
		} else {
			h.ID = m.ID
			h.CreatedAt = m.CreatedAt
			h.Files = len(m.Live())
		}
		out = append(out, h)
	}
	return out, nil
}
