package manifest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/PolarWolf314/rimu/internal/chunks"

	"github.com/google/uuid"
)

// FileState is one file in a Snapshot.
type FileState struct {
	Path    string
	Chunks  []chunks.Ref
	Size    int64
	ModTime time.Time
}

// Snapshot is a consistent view of a device's tree.
type Snapshot struct {
	Files   []FileState
	TakenAt time.Time
}

// Builder produces successive manifests for one device. Calls are
// serialized so each build starts from the previous one.
type Builder struct {
	mu     sync.Mutex
	device string
	last   *Manifest
}

// NewBuilder starts from last, which may be nil for a new device.
func NewBuilder(device string, last *Manifest) *Builder {
	return &Builder{device: device, last: last}
}

// Last returns the manifest the next build is compared against.
func (b *Builder) Last() *Manifest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Adopt replaces the base manifest, typically with the merged view after a pull.
func (b *Builder) Adopt(m *Manifest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = m
}

// Build compares snap against the last manifest. A changed path gets the
// previous version plus one, a new path version 1, and a path that is gone
// a tombstone one version above the entry it replaces.
//
// A path in conflict is resolved when the snapshot holds a file at the
// original path, or when every variant file has been removed. Until then its
// variants are carried over unchanged.
func (b *Builder) Build(snap Snapshot) (*Manifest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	files := make(map[string]FileState, len(snap.Files))
	for _, f := range snap.Files {
		if err := ValidatePath(f.Path); err != nil {
			return nil, err
		}
		if _, dup := files[f.Path]; dup {
			return nil, fmt.Errorf("snapshot lists %q twice", f.Path)
		}
		files[f.Path] = f
	}

	regular := make(map[string]Entry)
	variants := make(map[string][]Entry)
	if b.last != nil {
		for _, e := range b.last.Entries {
			if e.ConflictOf != "" {
				variants[e.ConflictOf] = append(variants[e.ConflictOf], e)
			} else {
				regular[e.Path] = e
			}
		}
	}

	takenAt := snap.TakenAt
	if takenAt.IsZero() {
		takenAt = time.Now()
	}
	takenAt = takenAt.UTC()

	var entries []Entry

	// claimed paths are synthetic conflict paths still owned by an
	// unresolved conflict.
	claimed := make(map[string]bool)
	for logical, vs := range variants {
		_, atOriginal := files[logical]
		anyPresent := false
		for _, v := range vs {
			if _, ok := files[v.Path]; ok {
				anyPresent = true
			}
		}
		if !atOriginal && anyPresent {
			for _, v := range vs {
				claimed[v.Path] = true
			}
			entries = append(entries, vs...)
		}
	}

	logicalPaths := make(map[string]bool)
	for p := range regular {
		logicalPaths[p] = true
	}
	for p := range variants {
		if !claimed[variants[p][0].Path] {
			logicalPaths[p] = true
		}
	}
	for p := range files {
		if !claimed[p] {
			logicalPaths[p] = true
		}
	}

	for p := range logicalPaths {
		base, hadPrev, prev := previous(regular, variants[p], p)
		f, present := files[p]

		switch {
		case present && hadPrev && !prev.Deleted && prev.SameContent(entryFor(f, 0)):
			e := prev
			e.ModTime = f.ModTime.UTC()
			entries = append(entries, e)
		case present:
			entries = append(entries, entryFor(f, base+1))
		case hadPrev && prev.Deleted:
			entries = append(entries, prev)
		case hadPrev || base > 0:
			entries = append(entries, Entry{Path: p, ModTime: takenAt, Version: base + 1, Deleted: true})
		}
	}

	m := &Manifest{
		Format:    FormatVersion,
		ID:        uuid.NewString(),
		Device:    b.device,
		CreatedAt: takenAt,
		Entries:   entries,
	}
	m.sortEntries()
	b.last = m
	return m, nil
}

// previous returns the highest version recorded for path p, whether p had a
// single regular entry, and that entry. A path with unresolved variants has
// no single previous entry.
func previous(regular map[string]Entry, vs []Entry, p string) (uint64, bool, Entry) {
	var base uint64
	for _, v := range vs {
		base = max(base, v.Version)
	}
	prev, ok := regular[p]
	if ok {
		base = max(base, prev.Version)
	}
	if len(vs) > 0 {
		return base, false, Entry{}
	}
	return base, ok, prev
}

func entryFor(f FileState, version uint64) Entry {
	refs := append([]chunks.Ref(nil), f.Chunks...)
	return Entry{
		Path:    f.Path,
		Chunks:  refs,
		Size:    f.Size,
		ModTime: f.ModTime.UTC(),
		Version: version,
	}
}

// SortedPaths returns the paths of m in order, for display.
func SortedPaths(m *Manifest) []string {
	out := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		out = append(out, e.Path)
	}
	sort.Strings(out)
	return out
}
