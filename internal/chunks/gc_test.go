package chunks

import (
	"context"
	"testing"

	"github.com/PolarWolf314/rimu/internal/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGCRemovesUnreachableChunks(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()
	session := testSession(t, "correct-horse")

	writer := testStore(t, mem, session)
	var refs []Ref
	for _, s := range []string{"a", "b", "c"} {
		ref, err := writer.Put(ctx, []byte(s))
		require.NoError(t, err)
		refs = append(refs, ref)
	}

	collector := testStore(t, mem, session)
	reachable := ReachableSet(refs[:1])

	dry, err := collector.GC(ctx, reachable, GCOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 3, dry.Scanned)
	assert.Len(t, dry.Removed, 2)
	for _, ref := range refs {
		ok, err := mem.Has(ctx, ref.ID.Key())
		require.NoError(t, err)
		assert.True(t, ok)
	}

	res, err := collector.GC(ctx, reachable, GCOptions{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []ID{refs[1].ID, refs[2].ID}, res.Removed)
	assert.Equal(t, 1, res.Kept)

	_, err = collector.Get(ctx, refs[0])
	require.NoError(t, err)
	_, err = collector.Get(ctx, refs[1])
	assert.True(t, IsMissing(err))
}

func TestGCKeepsChunksWrittenBySameStore(t *testing.T) {
	ctx := context.Background()
	store := testStore(t, backend.NewMemory(), testSession(t, "correct-horse"))

	ref, err := store.Put(ctx, []byte("not yet in any manifest"))
	require.NoError(t, err)

	res, err := store.GC(ctx, ReachableSet(), GCOptions{})
	require.NoError(t, err)
	assert.Empty(t, res.Removed)

	ok, err := store.Has(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGCIgnoresForeignObjects(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()
	require.NoError(t, mem.Put(ctx, "chunks/garbage", []byte("x")))

	store := testStore(t, mem, testSession(t, "correct-horse"))
	res, err := store.GC(ctx, ReachableSet(), GCOptions{})
	require.NoError(t, err)
	assert.Zero(t, res.Scanned)

	ok, err := mem.Has(ctx, "chunks/garbage")
	require.NoError(t, err)
	assert.True(t, ok)
}
