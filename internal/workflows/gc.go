package workflows

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/PolarWolf314/rimu/internal/audit"
	"github.com/PolarWolf314/rimu/internal/chunks"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/manifest"
)

// GCOptions configures the gc workflow.
type GCOptions struct {
	RepoOptions

	// DryRun reports what would be removed without deleting anything.
	DryRun bool

	// Retention overrides the configured number of manifests kept per
	// device. Negative means use the config.
	Retention int
}

// GCResult contains the outcome of a gc operation.
type GCResult struct {
	// PrunedManifests are the storage keys of manifests beyond the retention limit.
	PrunedManifests []string
	Chunks          *chunks.GCResult
}

// GC prunes manifests beyond the retention limit and deletes every chunk
// that no remaining manifest references. Revisions are ranked by their
// publish sequence, so the newest manifest of every device always survives.
//
// Every published manifest that decrypts counts as a root, trusted or not.
// Returns ErrUnreadableHistory if any manifest cannot be decrypted, since its
// chunks cannot be told apart from garbage.
func GC(ctx context.Context, opts GCOptions) (*GCResult, error) {
	r, err := openRepo(ctx, opts.RepoOptions)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	keep := opts.Retention
	if keep < 0 {
		keep = r.config.Sync.Retention
	}

	published, err := r.publisher.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching manifests: %w", err)
	}

	history := make([]manifest.Revision, 0, len(published))
	for _, pub := range published {
		if pub.Err != nil {
			return nil, fmt.Errorf("%w: %v", kerrors.ErrUnreadableHistory, pub.Err)
		}
		var m manifest.Manifest
		if err := json.Unmarshal(pub.Signed.Payload, &m); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", kerrors.ErrUnreadableHistory, pub.Key, err)
		}
		history = append(history, manifest.Revision{Key: pub.Key, Device: pub.Device, Seq: pub.Seq, Manifest: &m})
	}

	kept, pruned := manifest.Retain(history, keep)

	base, err := loadBase(r.settings)
	if err != nil {
		return nil, err
	}
	reachable := manifest.Reachable(append(manifest.Manifests(kept), base)...)

	result := &GCResult{}
	for _, rev := range pruned {
		if !opts.DryRun {
			if err := r.publisher.Delete(ctx, rev.Key); err != nil {
				return nil, fmt.Errorf("pruning %s: %w", rev.Key, err)
			}
		}
		result.PrunedManifests = append(result.PrunedManifests, rev.Key)
	}

	result.Chunks, err = r.store.GC(ctx, reachable, chunks.GCOptions{DryRun: opts.DryRun})
	if err != nil {
		return nil, err
	}
	r.log.Infof("Scanned %d chunks, %d unreferenced", result.Chunks.Scanned, len(result.Chunks.Removed))

	entry := audit.LogWithDevice("gc", r.config)
	entry.RemovedCount = len(result.Chunks.Removed)
	entry.DryRun = opts.DryRun
	audit.Log(r.root, entry)

	return result, nil
}
