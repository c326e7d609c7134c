package chunks

import (
	"context"
)

// GCOptions controls a garbage collection run.
type GCOptions struct {
	// DryRun reports what would be removed without deleting anything.
	DryRun bool
}

// GCResult summarizes a garbage collection run.
type GCResult struct {
	Scanned int
	Removed []ID
	Kept    int
}

// GC deletes every stored chunk whose ID is not in reachable. Chunks written
// by this Store are never removed, since a manifest referencing them may not
// have been published yet.
//
// reachable must be computed over every retained manifest, not only the
// latest one.
func (s *Store) GC(ctx context.Context, reachable map[ID]struct{}, opts GCOptions) (*GCResult, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	result := &GCResult{Scanned: len(ids)}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if _, ok := reachable[id]; ok || s.writtenThisSession(id) {
			result.Kept++
			continue
		}

		if !opts.DryRun {
			if err := s.backend.Delete(ctx, id.Key()); err != nil {
				return result, err
			}
			s.forget(id)
			s.log.Debugf("removed chunk %s", id.Short())
		}
		result.Removed = append(result.Removed, id)
	}

	return result, nil
}

// ReachableSet builds the set GC expects from a list of references.
func ReachableSet(refs ...[]Ref) map[ID]struct{} {
	set := make(map[ID]struct{})
	for _, list := range refs {
		for _, r := range list {
			set[r.ID] = struct{}{}
		}
	}
	return set
}
