package workflows

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PolarWolf314/rimu/internal/backend"
	"github.com/PolarWolf314/rimu/internal/manifest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCKeepsNewestManifestOfSkewedDevice(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	a := initDevice(t, store, "laptop")
	b := initDevice(t, store, "desktop")

	b.write("plan.txt", "first version")
	b.push()

	// desktop's clock falls an hour behind before its second push.
	now = func() time.Time { return time.Now().Add(-time.Hour) }
	t.Cleanup(func() { now = time.Now })
	b.write("plan.txt", "second version")
	second := b.push()
	now = time.Now

	res, err := GC(ctx, GCOptions{RepoOptions: a.opts(), Retention: 1})
	require.NoError(t, err)
	require.Len(t, res.PrunedManifests, 1)
	assert.NotEqual(t, second.ManifestKey, res.PrunedManifests[0])

	target := t.TempDir()
	_, err = Restore(ctx, RestoreOptions{RepoOptions: b.opts(), From: second.ManifestKey, Target: target})
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(target, "plan.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second version", string(data))

	assert.True(t, b.push().Unchanged)
	a.pull()
	assert.Equal(t, "second version", a.read("plan.txt"))
}

func TestPushRepublishesWhatTheStoreLost(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	a := initDevice(t, store, "laptop")
	b := initDevice(t, store, "desktop")

	a.write("notes.txt", "do not lose me")
	first := a.push()

	blobs, err := backend.NewFS(store)
	require.NoError(t, err)
	for _, prefix := range []string{manifest.Prefix, "chunks/"} {
		keys, err := blobs.List(ctx, prefix)
		require.NoError(t, err)
		for _, k := range keys {
			require.NoError(t, blobs.Delete(ctx, k))
		}
	}

	res := a.push()
	assert.False(t, res.Unchanged, "a lost head is published again")
	assert.NotEmpty(t, res.ManifestKey)
	assert.Equal(t, 1, res.FilesChunked)
	assert.NotEqual(t, first.ManifestID, res.ManifestID)

	b.pull()
	assert.Equal(t, "do not lose me", b.read("notes.txt"))

	again := a.push()
	assert.True(t, again.Unchanged)
	assert.Equal(t, res.ManifestID, again.ManifestID)
}

func TestPullWritesAroundFileDirectoryClash(t *testing.T) {
	store := newStore(t)
	a := initDevice(t, store, "laptop")
	b := initDevice(t, store, "desktop")

	a.write("docs", "a file named docs")
	a.write("zz.txt", "unrelated")
	a.push()
	b.write("docs/a.txt", "a file inside docs")
	b.push()

	res := b.pull()
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "/docs", res.Failed[0].Path)
	assert.Equal(t, []string{"/zz.txt"}, res.Written)
	assert.Equal(t, "unrelated", b.read("zz.txt"))
	assert.Equal(t, "a file inside docs", b.read("docs/a.txt"))

	again := b.pull()
	require.Len(t, again.Failed, 1, "the clash is reported again, not fatal")
	assert.Empty(t, again.Written)

	// Pushing afterwards does not delete laptop's file.
	b.push()
	a.pull()
	assert.Equal(t, "a file named docs", a.read("docs"))

	other := a.pull()
	require.Len(t, other.Failed, 1)
	assert.Equal(t, "/docs/a.txt", other.Failed[0].Path)
}
