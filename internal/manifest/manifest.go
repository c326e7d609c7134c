package manifest

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/PolarWolf314/rimu/internal/chunks"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"

	"github.com/zeebo/blake3"
)

// FormatVersion is the manifest document format written by this package.
const FormatVersion = 1

// conflictMarker separates a path from the digest of a conflicting variant.
const conflictMarker = ".conflict-"

// Entry describes one path. A deleted entry is a tombstone and carries no chunks.
type Entry struct {
	Path    string       `json:"path"`
	Chunks  []chunks.Ref `json:"chunks,omitempty"`
	Size    int64        `json:"size"`
	ModTime time.Time    `json:"mtime"`
	Version uint64       `json:"version"`
	Deleted bool         `json:"deleted,omitempty"`

	// ConflictOf is set on conflict variants to the path they compete for.
	ConflictOf string `json:"conflict_of,omitempty"`
}

// Logical returns the path the entry competes for.
func (e Entry) Logical() string {
	if e.ConflictOf != "" {
		return e.ConflictOf
	}
	return e.Path
}

// Digest identifies the entry's content: deletion flag, size and chunk list.
// Modification time is not part of it.
func (e Entry) Digest() string {
	h := blake3.New()
	if e.Deleted {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	_ = binary.Write(h, binary.BigEndian, e.Size)
	for _, r := range e.Chunks {
		h.Write([]byte(r.String()))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// SameContent reports whether e and o describe the same bytes.
func (e Entry) SameContent(o Entry) bool {
	if e.Deleted != o.Deleted || e.Size != o.Size || len(e.Chunks) != len(o.Chunks) {
		return false
	}
	for i := range e.Chunks {
		if e.Chunks[i] != o.Chunks[i] {
			return false
		}
	}
	return true
}

// ConflictPath is the synthetic path of a conflict variant of logical.
func ConflictPath(logical, digest string) string {
	return logical + conflictMarker + digest[:12]
}

// Manifest is a point-in-time listing of a device's tree.
type Manifest struct {
	Format    int       `json:"format"`
	ID        string    `json:"id"`
	Device    string    `json:"device"`
	CreatedAt time.Time `json:"created_at"`
	Entries   []Entry   `json:"entries"`
}

// Lookup returns the entry stored at p.
func (m *Manifest) Lookup(p string) (Entry, bool) {
	i := sort.Search(len(m.Entries), func(i int) bool { return m.Entries[i].Path >= p })
	if i < len(m.Entries) && m.Entries[i].Path == p {
		return m.Entries[i], true
	}
	return Entry{}, false
}

// Live returns the entries that exist as files: everything except tombstones.
func (m *Manifest) Live() []Entry {
	var out []Entry
	for _, e := range m.Entries {
		if !e.Deleted {
			out = append(out, e)
		}
	}
	return out
}

// Conflicts groups conflict variants by the path they compete for.
func (m *Manifest) Conflicts() map[string][]Entry {
	out := make(map[string][]Entry)
	for _, e := range m.Entries {
		if e.ConflictOf != "" {
			out[e.ConflictOf] = append(out[e.ConflictOf], e)
		}
	}
	return out
}

func (m *Manifest) sortEntries() {
	sort.Slice(m.Entries, func(i, j int) bool { return m.Entries[i].Path < m.Entries[j].Path })
}

// Canonical returns the byte form that is signed: entries sorted by path,
// times in UTC.
func (m *Manifest) Canonical() ([]byte, error) {
	c := *m
	c.CreatedAt = m.CreatedAt.UTC()
	c.Entries = make([]Entry, len(m.Entries))
	for i, e := range m.Entries {
		e.ModTime = e.ModTime.UTC()
		c.Entries[i] = e
	}
	c.sortEntries()
	return json.Marshal(&c)
}

// Validate checks the format version and that paths are clean and unique.
func (m *Manifest) Validate() error {
	if m.Format != FormatVersion {
		return fmt.Errorf("%w: manifest format %d", kerrors.ErrUnsupportedFormat, m.Format)
	}

	seen := make(map[string]bool, len(m.Entries))
	for _, e := range m.Entries {
		if err := ValidatePath(e.Path); err != nil {
			return fmt.Errorf("%w: %v", kerrors.ErrIntegrity, err)
		}
		if seen[e.Path] {
			return fmt.Errorf("%w: duplicate path %q", kerrors.ErrIntegrity, e.Path)
		}
		seen[e.Path] = true
		if e.Deleted && len(e.Chunks) > 0 {
			return fmt.Errorf("%w: tombstone %q carries chunks", kerrors.ErrIntegrity, e.Path)
		}
		if e.Version == 0 {
			return fmt.Errorf("%w: %q has version 0", kerrors.ErrIntegrity, e.Path)
		}
	}
	return nil
}

// StateDir is the per-repository state directory. No manifest path may
// enter it, at any depth, or a peer could overwrite local sync state.
const StateDir = ".rimu"

// ValidatePath accepts clean, slash-rooted paths such as "/docs/a.txt".
func ValidatePath(p string) error {
	if !strings.HasPrefix(p, "/") || p == "/" || path.Clean(p) != p || strings.ContainsRune(p, 0) {
		return fmt.Errorf("invalid manifest path %q", p)
	}
	for _, part := range strings.Split(p[1:], "/") {
		if part == StateDir {
			return fmt.Errorf("manifest path %q enters %s", p, StateDir)
		}
	}
	return nil
}
