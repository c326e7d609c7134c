package manifest

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/PolarWolf314/rimu/internal/chunks"
	"github.com/PolarWolf314/rimu/internal/identity"
	"github.com/PolarWolf314/rimu/internal/keys"
	logger "github.com/PolarWolf314/rimu/internal/logging"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func ref(n byte) chunks.Ref {
	return chunks.Ref{ID: chunks.ID{n}}
}

func file(path string, content ...byte) FileState {
	refs := make([]chunks.Ref, len(content))
	for i, c := range content {
		refs[i] = ref(c)
	}
	return FileState{Path: path, Chunks: refs, Size: int64(len(content)) * 100, ModTime: t0}
}

func entry(path string, version uint64, content ...byte) Entry {
	f := file(path, content...)
	e := entryFor(f, version)
	return e
}

func tombstone(path string, version uint64) Entry {
	return Entry{Path: path, Version: version, Deleted: true, ModTime: t0}
}

func manifestOf(device string, at time.Time, entries ...Entry) *Manifest {
	m := &Manifest{Format: FormatVersion, ID: device + at.String(), Device: device, CreatedAt: at, Entries: entries}
	m.sortEntries()
	return m
}

func testSession(t *testing.T) *keys.Session {
	t.Helper()
	salt := bytes.Repeat([]byte{0x5a}, keys.SaltSize)
	root, err := keys.DeriveRoot(context.Background(), []byte("correct-horse"), salt, keys.TestParams, keys.TestParams)
	require.NoError(t, err)
	s := keys.NewSession(root)
	t.Cleanup(s.Close)
	return s
}

type devices struct {
	user   *identity.Identity
	d1, d2 *identity.Identity
	tree   *identity.Tree
}

func testDevices(t *testing.T, session *keys.Session) devices {
	t.Helper()
	m, err := identity.NewManager(session)
	require.NoError(t, err)

	user, err := m.UserIdentity(0)
	require.NoError(t, err)
	t.Cleanup(user.Destroy)

	d := devices{user: user, tree: identity.NewTree()}
	d.tree.AddAnchor(user, "user")
	for i, slot := range []**identity.Identity{&d.d1, &d.d2} {
		dev, err := m.DeriveDeviceIdentity(user, uint32(i+1))
		require.NoError(t, err)
		t.Cleanup(dev.Destroy)

		e, err := identity.Enroll(user, dev, "", t0.Add(-time.Hour))
		require.NoError(t, err)
		require.NoError(t, d.tree.Enroll(e))
		*slot = dev
	}
	return d
}

func loggerForTest() logger.Logger {
	return logger.Logger{Out: io.Discard, Err: io.Discard}
}
