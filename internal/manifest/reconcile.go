package manifest

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// mergeNamespace scopes the content-derived IDs of merged manifests.
var mergeNamespace = uuid.MustParse("6f1c5b0e-3d7a-4c52-9a1e-2b8f4d6e7a90")

// Conflict lists the variants retained for a path whose latest version was
// written differently on different devices.
type Conflict struct {
	Path     string
	Version  uint64
	Variants []Entry
}

// Result is the outcome of a reconciliation. Conflicts are not errors.
type Result struct {
	Manifest  *Manifest
	Conflicts []Conflict
}

// Reconcile merges local and remote.
func Reconcile(local, remote *Manifest) *Result {
	return Merge(local, remote)
}

// Merge reconciles any number of manifests. The result does not depend on
// argument order or on how the inputs were grouped into earlier merges.
func Merge(manifests ...*Manifest) *Result {
	type variantSet map[string]Entry
	latest := make(map[string]uint64)
	sets := make(map[string]variantSet)
	var createdAt time.Time

	for _, m := range manifests {
		if m == nil {
			continue
		}
		if m.CreatedAt.After(createdAt) {
			createdAt = m.CreatedAt
		}
		for _, e := range m.Entries {
			logical := e.Logical()
			v := e
			v.Path = logical
			v.ConflictOf = ""

			switch {
			case v.Version > latest[logical]:
				latest[logical] = v.Version
				sets[logical] = variantSet{}
			case v.Version < latest[logical]:
				continue
			}

			d := v.Digest()
			if existing, ok := sets[logical][d]; ok && !v.ModTime.After(existing.ModTime) {
				continue
			}
			sets[logical][d] = v
		}
	}

	merged := &Manifest{Format: FormatVersion, CreatedAt: createdAt.UTC()}
	var conflicts []Conflict

	for logical, set := range sets {
		if len(set) == 1 {
			for _, v := range set {
				merged.Entries = append(merged.Entries, v)
			}
			continue
		}

		c := Conflict{Path: logical, Version: latest[logical]}
		for d, v := range set {
			v.Path = ConflictPath(logical, d)
			v.ConflictOf = logical
			merged.Entries = append(merged.Entries, v)
			c.Variants = append(c.Variants, v)
		}
		sort.Slice(c.Variants, func(i, j int) bool { return c.Variants[i].Path < c.Variants[j].Path })
		conflicts = append(conflicts, c)
	}

	merged.sortEntries()
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
	merged.ID = contentID(merged)

	return &Result{Manifest: merged, Conflicts: conflicts}
}

func contentID(m *Manifest) string {
	payload, err := m.Canonical()
	if err != nil {
		return uuid.NewString()
	}
	return uuid.NewSHA1(mergeNamespace, payload).String()
}
