package workflows

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/PolarWolf314/rimu/internal/audit"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/identity"
	"github.com/PolarWolf314/rimu/internal/manifest"
)

// PullOptions configures the pull workflow.
type PullOptions struct {
	RepoOptions

	// DryRun computes the merge without touching the working tree.
	DryRun bool
}

// PullResult contains the outcome of a pull operation.
type PullResult struct {
	// ManifestID is the content-derived ID of the merged view.
	ManifestID string

	// Merged is the number of remote manifests that verified and were merged.
	Merged int

	// Rejected lists manifests that failed to open or verify. They do not
	// affect the merge.
	Rejected []error

	Written []string
	Removed []string

	// Skipped lists paths with local changes that were not pushed yet. They
	// are left alone and will conflict or win on the next push.
	Skipped []string

	// Failed lists paths that could not be updated, such as a file whose
	// name is a directory on this device. Every other path is applied and
	// the next pull tries these again.
	Failed []PathError

	Conflicts []manifest.Conflict
}

// PathError is a failure confined to one manifest path.
type PathError struct {
	Path string
	Err  error
}

func (e PathError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

func (e PathError) Unwrap() error {
	return e.Err
}

// Pull merges every trusted manifest into the working tree.
//
// Manifests that fail authentication, signature or trust checks are skipped
// and reported in Rejected. Files changed locally since the last push or pull
// are never overwritten.
func Pull(ctx context.Context, opts PullOptions) (*PullResult, error) {
	r, err := openRepo(ctx, opts.RepoOptions)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.pull(ctx, opts.DryRun)
}

func (r *repo) pull(ctx context.Context, dryRun bool) (*PullResult, error) {
	base, err := loadBase(r.settings)
	if err != nil {
		return nil, err
	}
	tree, err := r.trust(ctx)
	if err != nil {
		return nil, err
	}
	latest, rejected, err := r.verifiedHeads(ctx, tree)
	if err != nil {
		return nil, err
	}

	inputs := append([]*manifest.Manifest{base}, latest...)
	merged := manifest.Merge(inputs...)

	// Ignored files are listed too, so pull treats them as local changes and
	// never overwrites them.
	disk, err := scanWorktree(r.root, nil, nil)
	if err != nil {
		return nil, err
	}

	result := &PullResult{
		ManifestID: merged.Manifest.ID,
		Merged:     len(latest),
		Rejected:   rejected,
		Conflicts:  merged.Conflicts,
	}
	p := planPull(base, merged.Manifest, disk)
	result.Written, result.Removed, result.Skipped = p.writePaths(), p.removePaths(), p.skipped

	if dryRun {
		return result, nil
	}

	result.Written, result.Removed = nil, nil
	fail := func(path string, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		r.log.Warnf("could not update %s: %v", path, err)
		result.Failed = append(result.Failed, PathError{Path: path, Err: err})
		return nil
	}

	for _, e := range p.write {
		if err := writeEntry(ctx, r.store, localPath(r.root, e.Path), e); err != nil {
			if err := fail(e.Path, err); err != nil {
				return nil, err
			}
			continue
		}
		result.Written = append(result.Written, e.Path)
	}
	for _, e := range p.touch {
		if err := os.Chtimes(localPath(r.root, e.Path), e.ModTime, e.ModTime); err != nil {
			if err := fail(e.Path, err); err != nil {
				return nil, err
			}
		}
	}
	for _, path := range p.remove {
		if err := removeFile(r.root, localPath(r.root, path)); err != nil {
			if err := fail(path, err); err != nil {
				return nil, err
			}
			continue
		}
		result.Removed = append(result.Removed, path)
	}

	// Failed paths keep their base entry, like skipped ones, so the disk
	// still matches base and the next pull retries them.
	keep := append([]string(nil), p.skipped...)
	for _, f := range result.Failed {
		keep = append(keep, f.Path)
	}
	if err := saveBase(r.settings, adoptable(merged.Manifest, base, keep)); err != nil {
		return nil, err
	}

	for _, c := range merged.Conflicts {
		r.log.Warnf("%s has %d conflicting versions", c.Path, len(c.Variants))
	}

	entry := audit.LogWithDevice("pull", r.config)
	entry.Manifest = merged.Manifest.ID
	entry.FilesCount = len(result.Written) + len(result.Removed)
	for _, c := range merged.Conflicts {
		entry.Conflicts = append(entry.Conflicts, c.Path)
	}
	audit.Log(r.root, entry)

	return result, nil
}

// verifiedHeads returns the newest manifest of every device that verifies
// against tree. A device whose newest manifest is rejected falls back to its
// newest one that is still trusted.
func (r *repo) verifiedHeads(ctx context.Context, tree *identity.Tree) ([]*manifest.Manifest, []error, error) {
	published, err := r.publisher.Fetch(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching manifests: %w", err)
	}

	type head struct {
		seq uint64
		m   *manifest.Manifest
	}
	heads := make(map[string]head)
	var rejected []error

	for _, pub := range published {
		m, err := openPublished(pub, tree)
		if err != nil {
			r.log.Warnf("skipping %v", err)
			rejected = append(rejected, err)
			continue
		}
		if h, ok := heads[pub.Device]; !ok || pub.Seq > h.seq {
			heads[pub.Device] = head{seq: pub.Seq, m: m}
		}
	}

	devices := make([]string, 0, len(heads))
	for d := range heads {
		devices = append(devices, d)
	}
	sort.Strings(devices)
	out := make([]*manifest.Manifest, 0, len(devices))
	for _, d := range devices {
		out = append(out, heads[d].m)
	}
	return out, rejected, nil
}

// openPublished verifies pub and checks it was stored under its own device.
func openPublished(pub manifest.Published, tree *identity.Tree) (*manifest.Manifest, error) {
	if pub.Err != nil {
		return nil, pub.Err
	}
	m, err := manifest.Verify(pub.Signed, tree)
	if err != nil {
		var me *kerrors.ManifestError
		if !errors.As(err, &me) {
			err = &kerrors.ManifestError{ID: pub.Key, Device: pub.Device, Err: err}
		}
		return nil, err
	}
	if m.Device != pub.Device {
		return nil, &kerrors.ManifestError{ID: m.ID, Device: pub.Device,
			Err: fmt.Errorf("%w: manifest of device %s stored under %s", kerrors.ErrIntegrity, m.Device, pub.Device)}
	}
	return m, nil
}

type pullPlan struct {
	write   []manifest.Entry
	touch   []manifest.Entry
	remove  []string
	skipped []string
}

func (p pullPlan) writePaths() []string {
	out := make([]string, 0, len(p.write))
	for _, e := range p.write {
		out = append(out, e.Path)
	}
	return out
}

func (p pullPlan) removePaths() []string {
	return append([]string(nil), p.remove...)
}

// planPull decides what to do with every path known to base or merged.
// A path is clean when the disk still holds what base recorded for it; only
// clean paths are changed.
func planPull(base, merged *manifest.Manifest, disk map[string]diskFile) pullPlan {
	live := func(m *manifest.Manifest, p string) (manifest.Entry, bool) {
		if m == nil {
			return manifest.Entry{}, false
		}
		e, ok := m.Lookup(p)
		return e, ok && !e.Deleted
	}

	paths := make(map[string]bool)
	for _, m := range []*manifest.Manifest{base, merged} {
		if m == nil {
			continue
		}
		for _, e := range m.Entries {
			paths[e.Path] = true
		}
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	var plan pullPlan
	for _, p := range sorted {
		want, wok := live(merged, p)
		have, hok := live(base, p)
		f, onDisk := disk[p]
		clean := (hok && onDisk && f.matches(have)) || (!hok && !onDisk)

		switch {
		case !hok && onDisk && !wok:
			// Untracked local file; the next push picks it up.
		case !clean:
			plan.skipped = append(plan.skipped, p)
		case !wok:
			if onDisk {
				plan.remove = append(plan.remove, p)
			}
		case hok && have.SameContent(want):
			if !have.ModTime.Equal(want.ModTime) {
				plan.touch = append(plan.touch, want)
			}
		default:
			plan.write = append(plan.write, want)
		}
	}
	return plan
}

// adoptable returns the manifest the next push builds on: the merged view,
// except that skipped paths keep what base recorded so their next version
// races the remote one instead of silently replacing it.
func adoptable(merged, base *manifest.Manifest, skipped []string) *manifest.Manifest {
	if len(skipped) == 0 {
		return merged
	}
	skip := make(map[string]bool, len(skipped))
	for _, p := range skipped {
		skip[p] = true
	}

	out := *merged
	out.Entries = nil
	for _, e := range merged.Entries {
		if !skip[e.Path] {
			out.Entries = append(out.Entries, e)
		}
	}
	if base != nil {
		for _, e := range base.Entries {
			if skip[e.Path] {
				out.Entries = append(out.Entries, e)
			}
		}
	}
	sort.Slice(out.Entries, func(i, j int) bool { return out.Entries[i].Path < out.Entries[j].Path })
	return &out
}
