package chunks

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/PolarWolf314/rimu/internal/backend"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelloWorldRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := testStore(t, backend.NewMemory(), testSession(t, "correct-horse"))

	parts, err := store.Split([]byte("hello world"))
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, []byte("hello world"), parts[0])

	ref, err := store.Put(ctx, parts[0])
	require.NoError(t, err)
	assert.False(t, ref.Private)

	got, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
}

func TestPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()
	store := testStore(t, mem, testSession(t, "correct-horse"))

	a, err := store.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)
	b, err := store.Put(ctx, []byte("same bytes"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 1, mem.PutCount(a.ID.Key()))
	assert.Equal(t, int64(1), store.Stats().Stored)
	assert.Equal(t, int64(1), store.Stats().Deduped)
}

func TestConcurrentPutsWriteOnce(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()
	store := testStore(t, mem, testSession(t, "correct-horse"))
	data := randomBytes(1, 4096)

	var wg sync.WaitGroup
	refs := make([]Ref, 32)
	errs := make([]error, 32)
	for i := range refs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refs[i], errs[i] = store.Put(ctx, data)
		}()
	}
	wg.Wait()

	for i := range refs {
		require.NoError(t, errs[i])
		assert.Equal(t, refs[0], refs[i])
	}
	assert.Equal(t, 1, mem.PutCount(refs[0].ID.Key()))
}

func TestPutSkipsChunksAlreadyInBackend(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()

	// Two devices of the same user share the backend.
	first := testStore(t, mem, testSession(t, "correct-horse"))
	second := testStore(t, mem, testSession(t, "correct-horse"))

	a, err := first.Put(ctx, []byte("shared chunk"))
	require.NoError(t, err)
	b, err := second.Put(ctx, []byte("shared chunk"))
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, 1, mem.PutCount(a.ID.Key()))
	assert.Equal(t, int64(0), second.Stats().Stored)
}

func TestIdenticalChunksProduceIdenticalEnvelopes(t *testing.T) {
	ctx := context.Background()
	memA, memB := backend.NewMemory(), backend.NewMemory()
	a := testStore(t, memA, testSession(t, "correct-horse"))
	b := testStore(t, memB, testSession(t, "correct-horse"))

	refA, err := a.Put(ctx, []byte("dedup me"))
	require.NoError(t, err)
	refB, err := b.Put(ctx, []byte("dedup me"))
	require.NoError(t, err)

	blobA, err := memA.Get(ctx, refA.ID.Key())
	require.NoError(t, err)
	blobB, err := memB.Get(ctx, refB.ID.Key())
	require.NoError(t, err)
	assert.Equal(t, blobA, blobB)

	other, err := a.Put(ctx, []byte("dedup me!"))
	require.NoError(t, err)
	assert.NotEqual(t, refA.ID, other.ID)
}

func TestDifferentUsersHaveDifferentIDs(t *testing.T) {
	alice := testStore(t, backend.NewMemory(), testSession(t, "correct-horse"))
	bob := testStore(t, backend.NewMemory(), testSession(t, "battery-staple"))

	a, err := alice.Hash([]byte("hello world"))
	require.NoError(t, err)
	b, err := bob.Hash([]byte("hello world"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestTamperedChunkFailsAuthentication(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()
	store := testStore(t, mem, testSession(t, "correct-horse"))

	ref, err := store.Put(ctx, []byte("hello world"))
	require.NoError(t, err)
	blob, err := mem.Get(ctx, ref.ID.Key())
	require.NoError(t, err)

	for i := range blob {
		tampered := append([]byte(nil), blob...)
		tampered[i] ^= 0x01
		mem.Set(ref.ID.Key(), tampered)

		got, err := store.Get(ctx, ref)
		require.Errorf(t, err, "byte %d", i)
		assert.Nil(t, got)
		assert.Truef(t, errors.Is(err, kerrors.ErrAuthentication) || errors.Is(err, kerrors.ErrUnsupportedFormat),
			"byte %d: %v", i, err)
	}
}

func TestSwappedChunkFailsAuthentication(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()
	store := testStore(t, mem, testSession(t, "correct-horse"))

	a, err := store.Put(ctx, []byte("chunk a"))
	require.NoError(t, err)
	b, err := store.Put(ctx, []byte("chunk b"))
	require.NoError(t, err)

	blobB, err := mem.Get(ctx, b.ID.Key())
	require.NoError(t, err)
	mem.Set(a.ID.Key(), blobB)

	_, err = store.Get(ctx, a)
	require.ErrorIs(t, err, kerrors.ErrAuthentication)

	var chunkErr *kerrors.ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, a.ID.String(), chunkErr.ID)
}

func TestGetMissingChunk(t *testing.T) {
	store := testStore(t, backend.NewMemory(), testSession(t, "correct-horse"))

	id, err := store.Hash([]byte("never stored"))
	require.NoError(t, err)

	_, err = store.Get(context.Background(), Ref{ID: id})
	require.ErrorIs(t, err, kerrors.ErrNotFound)
	assert.True(t, IsMissing(err))
}

func TestPrivateChunksDoNotDeduplicate(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()
	store := testStore(t, mem, testSession(t, "correct-horse"))

	a, err := store.PutPrivate(ctx, []byte("secret"))
	require.NoError(t, err)
	b, err := store.PutPrivate(ctx, []byte("secret"))
	require.NoError(t, err)

	assert.True(t, a.Private)
	assert.NotEqual(t, a.ID, b.ID)

	for _, ref := range []Ref{a, b} {
		got, err := store.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, "secret", string(got))
	}

	blob, err := mem.Get(ctx, a.ID.Key())
	require.NoError(t, err)
	blob[len(blob)/2] ^= 0xff
	mem.Set(a.ID.Key(), blob)

	_, err = store.Get(ctx, a)
	require.ErrorIs(t, err, kerrors.ErrAuthentication)
}

func TestIDTextForm(t *testing.T) {
	store := testStore(t, backend.NewMemory(), testSession(t, "correct-horse"))
	id, err := store.Hash([]byte("hello world"))
	require.NoError(t, err)

	s := id.String()
	assert.Regexp(t, `^bafkr4i[a-z2-7]+$`, s)

	parsed, err := ParseID(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	fromKey, err := IDFromKey(id.Key())
	require.NoError(t, err)
	assert.Equal(t, id, fromKey)

	for _, ref := range []Ref{{ID: id}, {ID: id, Private: true}} {
		text, err := ref.MarshalText()
		require.NoError(t, err)

		var back Ref
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, ref, back)
	}

	_, err = ParseID("not-a-cid")
	assert.Error(t, err)
	_, err = IDFromKey("manifests/x")
	assert.Error(t, err)
}

func TestSplitIsContentDefined(t *testing.T) {
	store := testStore(t, backend.NewMemory(), testSession(t, "correct-horse"))
	original := randomBytes(7, 128*1024)

	edited := append([]byte(nil), original...)
	edited[len(edited)/2] ^= 0xff

	// An insertion shifts every later offset; fixed-size chunking would
	// change every chunk after it.
	inserted := append(append(append([]byte(nil), original[:1000]...), []byte("inserted")...), original[1000:]...)

	before, err := store.Split(original)
	require.NoError(t, err)
	require.Greater(t, len(before), 8)

	for _, changed := range [][]byte{edited, inserted} {
		after, err := store.Split(changed)
		require.NoError(t, err)

		seen := make(map[string]bool)
		for _, c := range before {
			seen[string(c)] = true
		}
		shared := 0
		for _, c := range after {
			if seen[string(c)] {
				shared++
			}
		}
		assert.GreaterOrEqual(t, shared, len(before)-3)
	}

	total := 0
	for _, c := range before {
		assert.LessOrEqual(t, len(c), int(smallChunks.MaxSize))
		total += len(c)
	}
	assert.Equal(t, len(original), total)
}

func TestSplitBoundariesDependOnKey(t *testing.T) {
	data := randomBytes(3, 64*1024)
	a := testStore(t, backend.NewMemory(), testSession(t, "correct-horse"))
	b := testStore(t, backend.NewMemory(), testSession(t, "battery-staple"))

	partsA, err := a.Split(data)
	require.NoError(t, err)
	partsB, err := b.Split(data)
	require.NoError(t, err)

	lens := func(parts [][]byte) []int {
		out := make([]int, len(parts))
		for i, p := range parts {
			out[i] = len(p)
		}
		return out
	}
	assert.NotEqual(t, lens(partsA), lens(partsB))
}

func TestPutFileReadFile(t *testing.T) {
	ctx := context.Background()
	store := testStore(t, backend.NewMemory(), testSession(t, "correct-horse"))
	data := randomBytes(11, 200*1024)

	for _, private := range []bool{false, true} {
		refs, size, err := store.PutFile(ctx, bytes.NewReader(data), private)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), size)
		assert.Greater(t, len(refs), 1)

		var out bytes.Buffer
		n, err := store.ReadFile(ctx, refs, &out)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), n)
		assert.Equal(t, data, out.Bytes())
	}
}

func TestReadFileWritesNothingOnFailure(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()
	store := testStore(t, mem, testSession(t, "correct-horse"))

	refs, _, err := store.PutFile(ctx, bytes.NewReader(randomBytes(5, 64*1024)), false)
	require.NoError(t, err)
	require.NoError(t, mem.Delete(ctx, refs[len(refs)-1].ID.Key()))

	var out bytes.Buffer
	_, err = store.ReadFile(ctx, refs, &out)
	require.ErrorIs(t, err, kerrors.ErrNotFound)
	assert.Zero(t, out.Len())
}

func TestPutRetriesTransientBackendFailures(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()

	failures := 2
	var mu sync.Mutex
	mem.FailNext = func(op, key string) error {
		mu.Lock()
		defer mu.Unlock()
		if op == "put" && failures > 0 {
			failures--
			return kerrors.Transient(errors.New("connection reset"))
		}
		return nil
	}

	retrying := backend.WithRetry(mem, loggerForTest())
	retrying.InitialInterval = time.Millisecond
	store := testStore(t, retrying, testSession(t, "correct-horse"))

	ref, err := store.Put(ctx, []byte("eventually stored"))
	require.NoError(t, err)

	got, err := store.Get(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "eventually stored", string(got))
}
