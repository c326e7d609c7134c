package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PolarWolf314/rimu/internal/chunks"
	"github.com/PolarWolf314/rimu/internal/configs"
	"github.com/PolarWolf314/rimu/internal/manifest"
)

const tempPrefix = ".rimu-tmp-"

// now stamps snapshots. Tests move it to simulate a device with a wrong clock.
var now = time.Now

// diskFile is a regular file found in the working tree.
type diskFile struct {
	abs     string
	size    int64
	modTime time.Time
}

// manifestPath converts a path relative to root into manifest form.
func manifestPath(rel string) string {
	return "/" + filepath.ToSlash(rel)
}

// localPath converts a manifest path into a path below root.
func localPath(root, p string) string {
	return filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
}

// scanWorktree lists every regular file below root except rimu's own state.
// Paths matched by ignore are left out unless base tracks them, so ignoring a
// file never deletes it from other devices. A nil ignore lists everything.
func scanWorktree(root string, ignore *ignoreRules, base *manifest.Manifest) (map[string]diskFile, error) {
	files := make(map[string]diskFile)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == configs.DirName && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		p := manifestPath(rel)
		if ignore.Ignored(p) && !tracked(base, p) {
			return nil
		}
		files[p] = diskFile{abs: path, size: info.Size(), modTime: info.ModTime().UTC()}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning working tree: %w", err)
	}
	return files, nil
}

func tracked(base *manifest.Manifest, p string) bool {
	if base == nil {
		return false
	}
	e, ok := base.Lookup(p)
	return ok && !e.Deleted
}

// matches reports whether f is still the file described by e.
func (f diskFile) matches(e manifest.Entry) bool {
	return !e.Deleted && f.size == e.Size && f.modTime.Equal(e.ModTime)
}

// snapshot chunks every file that changed since base. Files whose size and
// modification time match base reuse its chunk list. A chunked file is
// recorded with the size and time it had while its bytes were read, not
// what the earlier scan saw.
func snapshot(ctx context.Context, store *chunks.Store, base *manifest.Manifest, disk map[string]diskFile, private bool) (manifest.Snapshot, int, error) {
	snap := manifest.Snapshot{TakenAt: now().UTC()}
	var chunked int

	for p, f := range disk {
		if err := ctx.Err(); err != nil {
			return snap, chunked, err
		}
		if base != nil {
			if e, ok := base.Lookup(p); ok && f.matches(e) {
				snap.Files = append(snap.Files, manifest.FileState{Path: p, Chunks: e.Chunks, Size: e.Size, ModTime: e.ModTime})
				continue
			}
		}

		refs, info, err := chunkFile(ctx, store, f.abs, private)
		if err != nil {
			return snap, chunked, fmt.Errorf("storing %s: %w", p, err)
		}
		snap.Files = append(snap.Files, manifest.FileState{Path: p, Chunks: refs, Size: info.Size(), ModTime: info.ModTime().UTC()})
		chunked++
	}
	return snap, chunked, nil
}

// chunkFile stores the file at path and returns its chunks together with the
// file info that held while those exact bytes were read.
func chunkFile(ctx context.Context, store *chunks.Store, path string, private bool) ([]chunks.Ref, fs.FileInfo, error) {
	var refs []chunks.Ref
	info, err := readStable(path, func(f *os.File) (int64, error) {
		var (
			size int64
			err  error
		)
		refs, size, err = store.PutFile(ctx, f, private)
		return size, err
	})
	if err != nil {
		return nil, nil, err
	}
	return refs, info, nil
}

const maxReadAttempts = 3

// readStable runs read over path until the file kept its size and
// modification time for the whole read and read consumed exactly that many
// bytes. read returns the number of bytes it consumed.
func readStable(path string, read func(f *os.File) (int64, error)) (fs.FileInfo, error) {
	for attempt := 1; ; attempt++ {
		before, after, n, err := readOnce(path, read)
		if err != nil {
			return nil, err
		}
		if n == after.Size() && before.Size() == after.Size() && before.ModTime().Equal(after.ModTime()) {
			return after, nil
		}
		if attempt == maxReadAttempts {
			return nil, fmt.Errorf("%s changed while being read %d times", path, maxReadAttempts)
		}
	}
}

func readOnce(path string, read func(f *os.File) (int64, error)) (before, after fs.FileInfo, n int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, err
	}
	defer f.Close()

	if before, err = f.Stat(); err != nil {
		return nil, nil, 0, err
	}
	if n, err = read(f); err != nil {
		return nil, nil, 0, err
	}
	if after, err = os.Stat(path); err != nil {
		return nil, nil, 0, err
	}
	return before, after, n, nil
}

// writeEntry materializes e at dest. The file appears atomically and carries
// the entry's modification time so later scans see it as unchanged.
func writeEntry(ctx context.Context, store *chunks.Store, dest string, e manifest.Entry) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), tempPrefix+"*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := store.ReadFile(ctx, e.Chunks, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return err
	}
	if err := os.Chtimes(tmp.Name(), e.ModTime, e.ModTime); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dest)
}

// removeFile deletes path and any directories it leaves empty below root.
func removeFile(root, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	for dir := filepath.Dir(path); dir != root && strings.HasPrefix(dir, root); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}

func basePath(settings *configs.RepoSettings) string {
	return filepath.Join(settings.StatePath, "base.json")
}

// loadBase returns the manifest this device last built or adopted, or nil.
func loadBase(settings *configs.RepoSettings) (*manifest.Manifest, error) {
	data, err := os.ReadFile(basePath(settings))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading sync state: %w", err)
	}
	var m manifest.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding sync state: %w", err)
	}
	return &m, nil
}

func saveBase(settings *configs.RepoSettings, m *manifest.Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(settings.StatePath, 0700); err != nil {
		return err
	}
	tmp := basePath(settings) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, basePath(settings))
}
