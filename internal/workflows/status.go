package workflows

import (
	"context"
	"sort"
	"strings"

	"github.com/PolarWolf314/rimu/internal/configs"
	logger "github.com/PolarWolf314/rimu/internal/logging"
	"github.com/PolarWolf314/rimu/internal/manifest"
)

// FileStatus is the state of a path relative to the last push or pull.
type FileStatus string

const (
	// StatusSynced means the file matches the last manifest.
	StatusSynced FileStatus = "synced"
	// StatusModified means the file changed since the last manifest.
	StatusModified FileStatus = "modified"
	// StatusAdded means the file is not in the last manifest.
	StatusAdded FileStatus = "added"
	// StatusDeleted means the manifest has the file but the disk does not.
	StatusDeleted FileStatus = "deleted"
	// StatusConflict means the file is one variant of an unresolved conflict.
	StatusConflict FileStatus = "conflict"
)

// FileStatusInfo holds the status of one path.
type FileStatusInfo struct {
	Path   string
	Status FileStatus

	// ConflictOf is the original path of a conflict variant.
	ConflictOf string
}

// StatusSummary holds counts of files by status.
type StatusSummary struct {
	Synced    int
	Modified  int
	Added     int
	Deleted   int
	Conflicts int
}

// StatusOptions configures the status workflow.
type StatusOptions struct {
	// Root is the repository root. Empty means the nearest .rimu above the
	// working directory.
	Root string

	// All includes synced files in Files.
	All bool

	Logger logger.Logger
}

// StatusResult contains the outcome of a status operation.
type StatusResult struct {
	Root   string
	Config *configs.Config

	// LastManifest is the ID of the manifest the working tree is compared to.
	LastManifest string

	Files   []FileStatusInfo
	Summary StatusSummary

	// Published counts stored manifests per device ID.
	Published map[string]int
}

// Status compares the working tree with the last pushed or pulled manifest.
// It does not need the passphrase: it reads local state and lists storage
// keys without opening anything.
func Status(ctx context.Context, opts StatusOptions) (*StatusResult, error) {
	root, config, err := loadRepo(opts.Root)
	if err != nil {
		return nil, err
	}
	settings := configs.SettingsFor(root)

	base, err := loadBase(settings)
	if err != nil {
		return nil, err
	}
	ignore, err := loadIgnore(root)
	if err != nil {
		return nil, err
	}
	disk, err := scanWorktree(root, ignore, base)
	if err != nil {
		return nil, err
	}

	result := &StatusResult{Root: root, Config: config, Published: make(map[string]int)}
	if base != nil {
		result.LastManifest = base.ID
	}
	for _, info := range compareTree(base, disk) {
		switch info.Status {
		case StatusSynced:
			result.Summary.Synced++
			if !opts.All {
				continue
			}
		case StatusModified:
			result.Summary.Modified++
		case StatusAdded:
			result.Summary.Added++
		case StatusDeleted:
			result.Summary.Deleted++
		case StatusConflict:
			result.Summary.Conflicts++
		}
		result.Files = append(result.Files, info)
	}

	b, err := openBackend(root, config, opts.Logger)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	keyList, err := b.List(ctx, manifest.Prefix)
	if err != nil {
		return nil, err
	}
	for _, k := range keyList {
		device, _, ok := strings.Cut(strings.TrimPrefix(k, manifest.Prefix), "/")
		if ok {
			result.Published[device]++
		}
	}

	return result, nil
}

// compareTree classifies every path in base or on disk.
func compareTree(base *manifest.Manifest, disk map[string]diskFile) []FileStatusInfo {
	var out []FileStatusInfo
	seen := make(map[string]bool)

	if base != nil {
		for _, e := range base.Entries {
			if e.Deleted {
				continue
			}
			seen[e.Path] = true
			f, ok := disk[e.Path]
			info := FileStatusInfo{Path: e.Path, ConflictOf: e.ConflictOf}
			switch {
			case !ok:
				info.Status = StatusDeleted
			case e.ConflictOf != "":
				info.Status = StatusConflict
			case f.matches(e):
				info.Status = StatusSynced
			default:
				info.Status = StatusModified
			}
			out = append(out, info)
		}
	}
	for p := range disk {
		if !seen[p] {
			out = append(out, FileStatusInfo{Path: p, Status: StatusAdded})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
