package workflows

import (
	"context"
	"fmt"

	"github.com/PolarWolf314/rimu/internal/audit"
	"github.com/PolarWolf314/rimu/internal/chunks"
	"github.com/PolarWolf314/rimu/internal/manifest"
)

// PushOptions configures the push workflow.
type PushOptions struct {
	RepoOptions

	// Force publishes a manifest even when nothing changed.
	Force bool
}

// PushResult contains the outcome of a push operation.
type PushResult struct {
	// ManifestKey is the storage key of the published manifest. Empty when
	// nothing changed.
	ManifestKey string
	ManifestID  string

	Files        int
	FilesChunked int
	Stats        chunks.Stats

	// Unchanged is true when the working tree matched the last manifest.
	Unchanged bool
}

// Push stores every changed file as chunks, then signs and publishes a new
// manifest describing this device's tree.
func Push(ctx context.Context, opts PushOptions) (*PushResult, error) {
	r, err := openRepo(ctx, opts.RepoOptions)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.push(ctx, opts.Force)
}

func (r *repo) push(ctx context.Context, force bool) (*PushResult, error) {
	base, err := loadBase(r.settings)
	if err != nil {
		return nil, err
	}
	ignore, err := loadIgnore(r.root)
	if err != nil {
		return nil, err
	}
	disk, err := scanWorktree(r.root, ignore, base)
	if err != nil {
		return nil, err
	}

	private := !r.config.Sync.Dedup
	snap, chunked, err := snapshot(ctx, r.store, base, disk, private)
	if err != nil {
		return nil, err
	}

	builder := manifest.NewBuilder(r.config.Device.ID, base)
	m, err := builder.Build(snap)
	if err != nil {
		return nil, fmt.Errorf("building manifest: %w", err)
	}

	result := &PushResult{Files: len(snap.Files), FilesChunked: chunked, Stats: r.store.Stats()}
	if !force && base != nil && sameEntries(base, m) {
		intact, err := r.stored(ctx, base)
		if err != nil {
			return nil, err
		}
		if intact {
			result.Unchanged = true
			result.ManifestID = base.ID
			r.log.Infof("Nothing changed since the last manifest")
			return result, nil
		}

		// The store lost what base describes. Read every file again so its
		// chunks are uploaded, then publish a fresh head.
		r.log.Warnf("Store is missing this device's manifest or chunks, publishing again")
		snap, chunked, err = snapshot(ctx, r.store, nil, disk, private)
		if err != nil {
			return nil, err
		}
		if m, err = manifest.NewBuilder(r.config.Device.ID, base).Build(snap); err != nil {
			return nil, fmt.Errorf("building manifest: %w", err)
		}
		result.Files, result.FilesChunked = len(snap.Files), chunked
	}

	signed, err := manifest.Sign(m, r.device)
	if err != nil {
		return nil, fmt.Errorf("signing manifest: %w", err)
	}
	key, err := r.publisher.Publish(ctx, r.config.Device.ID, signed)
	if err != nil {
		return nil, fmt.Errorf("publishing manifest: %w", err)
	}
	if err := saveBase(r.settings, m); err != nil {
		return nil, err
	}

	result.ManifestKey = key
	result.ManifestID = m.ID
	result.Stats = r.store.Stats()
	r.log.Infof("Published manifest %s with %d entries", key, len(m.Entries))

	entry := audit.LogWithDevice("push", r.config)
	entry.Manifest = m.ID
	entry.FilesCount = result.Files
	entry.ChunksStored = int(result.Stats.Stored)
	entry.ChunksDeduped = int(result.Stats.Deduped)
	entry.Bytes = result.Stats.BytesIn
	audit.Log(r.root, entry)

	return result, nil
}

// sameEntries reports whether a and b describe the same tree at the same
// versions. Modification times are compared too so a touch is published.
func sameEntries(a, b *manifest.Manifest) bool {
	if len(a.Entries) != len(b.Entries) {
		return false
	}
	for i := range a.Entries {
		x, y := a.Entries[i], b.Entries[i]
		if x.Path != y.Path || x.Version != y.Version || x.Digest() != y.Digest() || !x.ModTime.Equal(y.ModTime) {
			return false
		}
	}
	return true
}

// stored reports whether this device still has a published manifest and
// every chunk base references is in the store.
func (r *repo) stored(ctx context.Context, base *manifest.Manifest) (bool, error) {
	heads, err := r.backend.List(ctx, manifest.Prefix+r.config.Device.ID+"/")
	if err != nil {
		return false, fmt.Errorf("listing manifests: %w", err)
	}
	if len(heads) == 0 {
		return false, nil
	}
	for _, e := range base.Entries {
		for _, ref := range e.Chunks {
			ok, err := r.store.Has(ctx, ref)
			if err != nil {
				return false, fmt.Errorf("checking chunk %s: %w", ref, err)
			}
			if !ok {
				r.log.Debugf("chunk %s of %s is missing", ref, e.Path)
				return false, nil
			}
		}
	}
	return true, nil
}
