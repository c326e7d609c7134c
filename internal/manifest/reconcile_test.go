package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileHigherVersionWins(t *testing.T) {
	local := manifestOf("d1", t0, entry("/a.txt", 2, 1), entry("/b.txt", 1, 2))
	remote := manifestOf("d2", t0, entry("/a.txt", 1, 9), entry("/b.txt", 3, 3), entry("/c.txt", 1, 4))

	res := Reconcile(local, remote)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, map[string]uint64{"/a.txt": 2, "/b.txt": 3, "/c.txt": 1}, versions(res.Manifest))

	a, _ := res.Manifest.Lookup("/a.txt")
	assert.Equal(t, entry("/a.txt", 2, 1).Chunks, a.Chunks)
}

func TestReconcileConflictKeepsBothVariants(t *testing.T) {
	m1 := manifestOf("d1", t0, entry("/a.txt", 1, 1))
	m2 := manifestOf("d2", t0.Add(time.Second), entry("/a.txt", 1, 2))

	res := Reconcile(m1, m2)
	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	assert.Equal(t, "/a.txt", c.Path)
	assert.Equal(t, uint64(1), c.Version)
	require.Len(t, c.Variants, 2)

	_, ok := res.Manifest.Lookup("/a.txt")
	assert.False(t, ok, "no variant silently takes the original path")

	var contents [][]byte
	for _, v := range c.Variants {
		assert.Equal(t, "/a.txt", v.ConflictOf)
		assert.Contains(t, v.Path, "/a.txt.conflict-")
		got, ok := res.Manifest.Lookup(v.Path)
		require.True(t, ok)
		contents = append(contents, []byte{got.Chunks[0].ID[0]})
	}
	assert.ElementsMatch(t, [][]byte{{1}, {2}}, contents)

	reach := Reachable(res.Manifest)
	assert.Contains(t, reach, ref(1).ID)
	assert.Contains(t, reach, ref(2).ID)
}

func TestReconcileTombstones(t *testing.T) {
	created := manifestOf("d1", t0, entry("/a.txt", 1, 1))
	deleted := manifestOf("d2", t0.Add(time.Minute), tombstone("/a.txt", 2))

	res := Reconcile(created, deleted)
	require.Empty(t, res.Conflicts)
	e, ok := res.Manifest.Lookup("/a.txt")
	require.True(t, ok)
	assert.True(t, e.Deleted)
	assert.Empty(t, res.Manifest.Live())

	recreated := manifestOf("d1", t0.Add(2*time.Minute), entry("/a.txt", 3, 8))
	res = Reconcile(res.Manifest, recreated)
	e, _ = res.Manifest.Lookup("/a.txt")
	assert.False(t, e.Deleted)
	assert.Equal(t, uint64(3), e.Version)

	// The stale creation cannot resurrect the file.
	res = Reconcile(deleted, created)
	e, _ = res.Manifest.Lookup("/a.txt")
	assert.True(t, e.Deleted)
}

func TestReconcileIdenticalVariantsMerge(t *testing.T) {
	a := entry("/a.txt", 1, 1)
	b := entry("/a.txt", 1, 1)
	b.ModTime = t0.Add(time.Hour)

	res := Reconcile(manifestOf("d1", t0, a), manifestOf("d2", t0, b))
	assert.Empty(t, res.Conflicts)
	e, ok := res.Manifest.Lookup("/a.txt")
	require.True(t, ok)
	assert.True(t, e.ModTime.Equal(b.ModTime))
}

func reconcileFixtures() []*Manifest {
	return []*Manifest{
		manifestOf("d1", t0, entry("/a.txt", 1, 1), entry("/b.txt", 2, 2), tombstone("/c.txt", 2)),
		manifestOf("d2", t0.Add(time.Minute), entry("/a.txt", 1, 3), entry("/b.txt", 1, 2), entry("/c.txt", 1, 4)),
		manifestOf("d3", t0.Add(2*time.Minute), entry("/a.txt", 1, 5), entry("/b.txt", 2, 6), entry("/d.txt", 1, 7)),
		manifestOf("d4", t0.Add(3*time.Minute), entry("/a.txt", 2, 1), tombstone("/b.txt", 2)),
	}
}

func TestReconcileIsCommutative(t *testing.T) {
	ms := reconcileFixtures()
	for i := range ms {
		for j := range ms {
			ab := Reconcile(ms[i], ms[j])
			ba := Reconcile(ms[j], ms[i])
			assert.Equal(t, ab.Manifest, ba.Manifest, "manifests %d and %d", i, j)
			assert.Equal(t, ab.Conflicts, ba.Conflicts, "manifests %d and %d", i, j)
		}
	}
}

func TestReconcileIsAssociativeAndIdempotent(t *testing.T) {
	ms := reconcileFixtures()
	a, b, c := ms[0], ms[1], ms[2]

	left := Reconcile(Reconcile(a, b).Manifest, c).Manifest
	right := Reconcile(a, Reconcile(b, c).Manifest).Manifest
	all := Merge(c, a, b).Manifest
	assert.Equal(t, left, right)
	assert.Equal(t, left, all)

	once := Merge(ms...).Manifest
	twice := Reconcile(once, once).Manifest
	assert.Equal(t, once, twice)

	// Feeding a merged view back in with a stale input changes nothing.
	assert.Equal(t, once, Merge(once, ms[1]).Manifest)
}

func TestMergeOfManyDevices(t *testing.T) {
	res := Merge(reconcileFixtures()...)

	// /a.txt: d4 wrote version 2. /b.txt: d4's tombstone and d1/d3 at
	// version 2 disagree. /c.txt: d1's tombstone wins. /d.txt only on d3.
	a, ok := res.Manifest.Lookup("/a.txt")
	require.True(t, ok)
	assert.Equal(t, uint64(2), a.Version)

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "/b.txt", res.Conflicts[0].Path)
	assert.Len(t, res.Conflicts[0].Variants, 3)

	c, _ := res.Manifest.Lookup("/c.txt")
	assert.True(t, c.Deleted)
	_, ok = res.Manifest.Lookup("/d.txt")
	assert.True(t, ok)
	assert.True(t, res.Manifest.CreatedAt.Equal(t0.Add(3*time.Minute)))
}

func TestRetainKeepsNewestPerDevice(t *testing.T) {
	var history []Revision
	for i := 0; i < 4; i++ {
		at := t0.Add(time.Duration(i) * time.Minute)
		seq := uint64(i + 1)
		history = append(history,
			Revision{Device: "d1", Seq: seq, Manifest: manifestOf("d1", at, entry("/a.txt", seq, byte(i)))},
			Revision{Device: "d2", Seq: seq, Manifest: manifestOf("d2", at, entry("/b.txt", seq, byte(10+i)))},
		)
	}

	kept, pruned := Retain(history, 2)
	assert.Len(t, kept, 4)
	assert.Len(t, pruned, 4)
	for _, r := range kept {
		assert.Greater(t, r.Seq, uint64(2))
	}

	reach := Reachable(Manifests(kept)...)
	assert.NotContains(t, reach, ref(0).ID)
	assert.Contains(t, reach, ref(3).ID)
	assert.Contains(t, reach, ref(13).ID)

	all, none := Retain(history, 0)
	assert.Len(t, all, len(history))
	assert.Empty(t, none)
}

func TestRetainOrdersBySequenceNotClock(t *testing.T) {
	// The second revision was signed on a clock running an hour behind.
	history := []Revision{
		{Key: "k1", Device: "d1", Seq: 1, Manifest: manifestOf("d1", t0, entry("/a.txt", 1, 1))},
		{Key: "k2", Device: "d1", Seq: 2, Manifest: manifestOf("d1", t0.Add(-time.Hour), entry("/a.txt", 2, 2))},
	}

	kept, pruned := Retain(history, 1)
	require.Len(t, kept, 1)
	require.Len(t, pruned, 1)
	assert.Equal(t, "k2", kept[0].Key)
	assert.Equal(t, "k1", pruned[0].Key)
	assert.Contains(t, Reachable(Manifests(kept)...), ref(2).ID)
}
