package manifest

import (
	"sort"

	"github.com/PolarWolf314/rimu/internal/chunks"
)

// Reachable returns every chunk referenced by any entry of any manifest,
// conflict variants included. Pass the full retained history, not only the
// latest merge, or chunks of older versions will be collected.
func Reachable(manifests ...*Manifest) map[chunks.ID]struct{} {
	set := make(map[chunks.ID]struct{})
	for _, m := range manifests {
		if m == nil {
			continue
		}
		for _, e := range m.Entries {
			for _, r := range e.Chunks {
				set[r.ID] = struct{}{}
			}
		}
	}
	return set
}

// Revision is a manifest together with where and in which order its device
// published it.
type Revision struct {
	Key      string
	Device   string
	Seq      uint64
	Manifest *Manifest
}

// Retain keeps the keep highest-sequence revisions of every device and
// returns the rest as pruned. Sequence numbers come from the store, so a
// device with a wrong clock cannot lose its head revision. keep <= 0
// retains everything.
func Retain(history []Revision, keep int) (kept, pruned []Revision) {
	if keep <= 0 {
		return history, nil
	}

	byDevice := make(map[string][]Revision)
	for _, r := range history {
		byDevice[r.Device] = append(byDevice[r.Device], r)
	}

	for _, rs := range byDevice {
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].Seq > rs[j].Seq })
		for i, r := range rs {
			if i < keep {
				kept = append(kept, r)
			} else {
				pruned = append(pruned, r)
			}
		}
	}

	bySeq := func(s []Revision) {
		sort.SliceStable(s, func(i, j int) bool {
			if s[i].Device != s[j].Device {
				return s[i].Device < s[j].Device
			}
			return s[i].Seq < s[j].Seq
		})
	}
	bySeq(kept)
	bySeq(pruned)
	return kept, pruned
}

// Manifests returns the manifests of rs in order.
func Manifests(rs []Revision) []*Manifest {
	out := make([]*Manifest, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Manifest)
	}
	return out
}
