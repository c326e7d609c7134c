package workflows

import (
	"context"
)

// SyncOptions configures the sync workflow.
type SyncOptions struct {
	RepoOptions
}

// SyncResult contains the outcome of a sync operation.
type SyncResult struct {
	Push *PushResult
	Pull *PullResult
}

// Sync pushes local changes and then pulls every other device's, unlocking
// the key hierarchy once for both.
func Sync(ctx context.Context, opts SyncOptions) (*SyncResult, error) {
	r, err := openRepo(ctx, opts.RepoOptions)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	pushed, err := r.push(ctx, false)
	if err != nil {
		return nil, err
	}
	pulled, err := r.pull(ctx, false)
	if err != nil {
		return &SyncResult{Push: pushed}, err
	}
	return &SyncResult{Push: pushed, Pull: pulled}, nil
}
