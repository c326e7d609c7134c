package identity

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/PolarWolf314/rimu/internal/backend"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/keys"
	logger "github.com/PolarWolf314/rimu/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T, passphrase string) *Manager {
	t.Helper()
	salt := bytes.Repeat([]byte{0x5a}, keys.SaltSize)
	root, err := keys.DeriveRoot(context.Background(), []byte(passphrase), salt, keys.TestParams, keys.TestParams)
	require.NoError(t, err)

	session := keys.NewSession(root)
	t.Cleanup(session.Close)

	m, err := NewManager(session)
	require.NoError(t, err)
	return m
}

func derive(t *testing.T, m *Manager, path Path) *Identity {
	t.Helper()
	id, err := m.Derive(path)
	require.NoError(t, err)
	t.Cleanup(id.Destroy)
	return id
}

func TestSLIP10TestVector(t *testing.T) {
	// SLIP-0010 ed25519 test vector 1.
	seed, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")

	master := masterNode(seed)
	assert.Equal(t, "2b4be7f19ee27bbf30c667b642d5f4aa69fd169872f8fc3059c08ebae2eb19e7", hex.EncodeToString(master.key()))
	assert.Equal(t, "90046a93de5380a72b5e45010748567d5ea02bbf6522f979e05c0d8d8ca9fffb", hex.EncodeToString(master.chain()))

	child := deriveFrom(master, Path{0})
	assert.Equal(t, "68e0fe46dfb67e368c75379acec591dad19df3cde26e63b93a8e704f1dade7a3", hex.EncodeToString(child.key()))
	assert.Equal(t, "8b59aa11380b624e81507a27fedda59fea6d0b779a778918a2fd3590e16e9c69", hex.EncodeToString(child.chain()))
}

func TestPathText(t *testing.T) {
	p := DevicePath(0, 3)
	assert.Equal(t, "m/7411'/0'/3'", p.String())

	parsed, err := ParsePath(p.String())
	require.NoError(t, err)
	assert.True(t, p.Equal(parsed))

	for _, bad := range []string{"x/1'", "m/1", "m/abc'", "m/2147483648'"} {
		_, err := ParsePath(bad)
		assert.Errorf(t, err, "path %q", bad)
	}

	assert.True(t, UserPath(0).IsStrictPrefixOf(DevicePath(0, 1)))
	assert.False(t, UserPath(1).IsStrictPrefixOf(DevicePath(0, 1)))
	assert.False(t, DevicePath(0, 1).IsStrictPrefixOf(DevicePath(0, 1)))
}

func TestDeviceIdentityIsDeterministic(t *testing.T) {
	m := testManager(t, "correct-horse")
	user := derive(t, m, UserPath(0))

	a, err := m.DeriveDeviceIdentity(user, 1)
	require.NoError(t, err)
	defer a.Destroy()

	// Simulate a lost device: derive again from a fresh session.
	m2 := testManager(t, "correct-horse")
	user2 := derive(t, m2, UserPath(0))
	b, err := m2.DeriveDeviceIdentity(user2, 1)
	require.NoError(t, err)
	defer b.Destroy()

	assert.Equal(t, a.PublicKey(), b.PublicKey())
	assert.Equal(t, DevicePath(0, 1), a.Path())

	other, err := m.DeriveDeviceIdentity(user, 2)
	require.NoError(t, err)
	defer other.Destroy()
	assert.NotEqual(t, a.PublicKey(), other.PublicKey())
	assert.NotEqual(t, user.PublicKey(), a.PublicKey())
}

func TestDeriveDeviceFromPublicUserRoot(t *testing.T) {
	m := testManager(t, "correct-horse")
	user := derive(t, m, UserPath(0))
	pubOnly, err := PublicIdentity(user.PublicKey(), user.Path())
	require.NoError(t, err)

	a, err := m.DeriveDeviceIdentity(user, 4)
	require.NoError(t, err)
	defer a.Destroy()
	b, err := m.DeriveDeviceIdentity(pubOnly, 4)
	require.NoError(t, err)
	defer b.Destroy()
	assert.Equal(t, a.PublicKey(), b.PublicKey())

	stranger := derive(t, testManager(t, "battery-staple"), UserPath(0))
	strangerPub, err := PublicIdentity(stranger.PublicKey(), stranger.Path())
	require.NoError(t, err)
	_, err = m.DeriveDeviceIdentity(strangerPub, 4)
	assert.ErrorIs(t, err, kerrors.ErrTrust)
}

func TestDeriveDeviceRejectsBadInput(t *testing.T) {
	m := testManager(t, "correct-horse")
	user := derive(t, m, UserPath(0))
	device := derive(t, m, DevicePath(0, 1))

	_, err := m.DeriveDeviceIdentity(device, 1)
	assert.ErrorIs(t, err, kerrors.ErrKeyDerivation)

	_, err = m.DeriveDeviceIdentity(user, MaxIndex+1)
	assert.ErrorIs(t, err, kerrors.ErrKeyDerivation)
}

func TestSignVerify(t *testing.T) {
	m := testManager(t, "correct-horse")
	id := derive(t, m, DevicePath(0, 1))

	sig, err := Sign(id, []byte("message"))
	require.NoError(t, err)

	assert.True(t, Verify(id.PublicKey(), []byte("message"), sig))
	assert.False(t, Verify(id.PublicKey(), []byte("massage"), sig))

	other := derive(t, m, DevicePath(0, 2))
	assert.False(t, Verify(other.PublicKey(), []byte("message"), sig))
	assert.False(t, Verify(id.PublicKey(), []byte("message"), sig[:10]))

	id.Destroy()
	_, err = Sign(id, []byte("message"))
	assert.ErrorIs(t, err, kerrors.ErrKeyWiped)
	assert.True(t, Verify(id.PublicKey(), []byte("message"), sig))
}

func TestRevokeRequiresStrictAncestor(t *testing.T) {
	m := testManager(t, "correct-horse")
	user := derive(t, m, UserPath(0))
	d1 := derive(t, m, DevicePath(0, 1))
	d2 := derive(t, m, DevicePath(0, 2))
	now := time.Now()

	_, err := Revoke(d1, d2.PublicKey(), d2.Path(), now, "")
	assert.ErrorIs(t, err, kerrors.ErrNotAncestor)
	assert.ErrorIs(t, err, kerrors.ErrTrust)

	_, err = Revoke(user, user.PublicKey(), user.Path(), now, "")
	assert.ErrorIs(t, err, kerrors.ErrNotAncestor)

	otherUser := derive(t, m, UserPath(1))
	_, err = Revoke(otherUser, d1.PublicKey(), d1.Path(), now, "")
	assert.ErrorIs(t, err, kerrors.ErrNotAncestor)

	// A key that does not derive from the ancestor cannot be revoked by
	// claiming a descendant path.
	stranger := derive(t, testManager(t, "battery-staple"), DevicePath(0, 1))
	_, err = Revoke(user, stranger.PublicKey(), DevicePath(0, 1), now, "")
	assert.ErrorIs(t, err, kerrors.ErrNotAncestor)

	r, err := Revoke(user, d1.PublicKey(), d1.Path(), now, "lost")
	require.NoError(t, err)
	require.NoError(t, r.Verify())

	r.Reason = "stolen"
	assert.ErrorIs(t, r.Verify(), kerrors.ErrIntegrity)
}

type fixture struct {
	user   *Identity
	d1, d2 *Identity
	tree   *Tree
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	m := testManager(t, "correct-horse")
	f := fixture{
		user: derive(t, m, UserPath(0)),
		d1:   derive(t, m, DevicePath(0, 1)),
		d2:   derive(t, m, DevicePath(0, 2)),
		tree: NewTree(),
	}
	f.tree.AddAnchor(f.user, "alice")

	enrolled := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, d := range []*Identity{f.d1, f.d2} {
		e, err := Enroll(f.user, d, []string{"laptop", "phone"}[i], enrolled)
		require.NoError(t, err)
		require.NoError(t, f.tree.Enroll(e))
	}
	return f
}

func TestCheckSignerHonoursRevocationTime(t *testing.T) {
	f := newFixture(t)
	revokedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r, err := Revoke(f.user, f.d1.PublicKey(), f.d1.Path(), revokedAt, "lost")
	require.NoError(t, err)
	require.NoError(t, f.tree.ApplyRevocation(r))

	assert.NoError(t, f.tree.CheckSigner(f.d1.PublicKey(), revokedAt.Add(-time.Nanosecond)))
	assert.ErrorIs(t, f.tree.CheckSigner(f.d1.PublicKey(), revokedAt), kerrors.ErrTrust)
	assert.ErrorIs(t, f.tree.CheckSigner(f.d1.PublicKey(), revokedAt.Add(time.Hour)), kerrors.ErrTrust)

	// Other devices are unaffected.
	assert.NoError(t, f.tree.CheckSigner(f.d2.PublicKey(), revokedAt.Add(time.Hour)))
	assert.NoError(t, f.tree.CheckSigner(f.user.PublicKey(), revokedAt.Add(time.Hour)))
}

func TestRevocationIsMonotone(t *testing.T) {
	f := newFixture(t)
	early := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(24 * time.Hour)

	for _, at := range []time.Time{early, late} {
		r, err := Revoke(f.user, f.d1.PublicKey(), f.d1.Path(), at, "")
		require.NoError(t, err)
		require.NoError(t, f.tree.ApplyRevocation(r))
	}

	n, ok := f.tree.Lookup(f.d1.PublicKey())
	require.True(t, ok)
	require.NotNil(t, n.RevokedAt)
	assert.True(t, n.RevokedAt.Equal(early))
	assert.Len(t, f.tree.Revocations(), 2)
}

func TestUnknownSignerIsUntrusted(t *testing.T) {
	f := newFixture(t)
	m := testManager(t, "correct-horse")
	d3 := derive(t, m, DevicePath(0, 3))

	assert.ErrorIs(t, f.tree.CheckSigner(d3.PublicKey(), time.Now()), kerrors.ErrTrust)
}

func TestEnrollmentRequiresKnownParent(t *testing.T) {
	f := newFixture(t)
	other := testManager(t, "battery-staple")
	strangerRoot := derive(t, other, UserPath(0))
	strangerDevice := derive(t, other, DevicePath(0, 1))

	e, err := Enroll(strangerRoot, strangerDevice, "evil", time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, f.tree.Enroll(e), kerrors.ErrTrust)

	_, err = Enroll(f.d1, f.d2, "sibling", time.Now())
	assert.ErrorIs(t, err, kerrors.ErrNotAncestor)

	good, err := Enroll(f.user, f.d1, "laptop", time.Now())
	require.NoError(t, err)
	good.Name = "renamed"
	assert.ErrorIs(t, f.tree.Enroll(good), kerrors.ErrIntegrity)
}

func TestApplyRevocationRejectsUnrelatedRevoker(t *testing.T) {
	f := newFixture(t)

	// Validly signed by a root the tree does not know about.
	other := testManager(t, "battery-staple")
	strangerRoot := derive(t, other, UserPath(0))
	strangerDevice := derive(t, other, DevicePath(0, 1))
	r, err := Revoke(strangerRoot, strangerDevice.PublicKey(), strangerDevice.Path(), time.Now(), "")
	require.NoError(t, err)
	r.Target = f.d1.PublicKey()
	sig, err := Sign(strangerRoot, r.signedBytes())
	require.NoError(t, err)
	r.Signature = sig

	assert.ErrorIs(t, f.tree.ApplyRevocation(r), kerrors.ErrTrust)
	assert.NoError(t, f.tree.CheckSigner(f.d1.PublicKey(), time.Now()))
}

func TestLoadTreeFromBackend(t *testing.T) {
	ctx := context.Background()
	mem := backend.NewMemory()
	m := testManager(t, "correct-horse")
	user := derive(t, m, UserPath(0))
	d1 := derive(t, m, DevicePath(0, 1))
	revokedAt := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	e, err := Enroll(user, d1, "laptop", revokedAt.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, PublishEnrollment(ctx, mem, e))
	r, err := Revoke(user, d1.PublicKey(), d1.Path(), revokedAt, "lost")
	require.NoError(t, err)
	require.NoError(t, PublishRevocation(ctx, mem, r))
	require.NoError(t, mem.Put(ctx, EnrollmentPrefix+"broken.json", []byte("{")))

	log := logger.Logger{Out: io.Discard, Err: io.Discard}
	tree, problems, err := LoadTree(ctx, mem, []*Identity{user}, log)
	require.NoError(t, err)
	assert.Len(t, problems, 1)

	n, ok := tree.LookupPath(DevicePath(0, 1))
	require.True(t, ok)
	assert.Equal(t, "laptop", n.Name)
	assert.ErrorIs(t, tree.CheckSigner(d1.PublicKey(), revokedAt), kerrors.ErrTrust)
	assert.NoError(t, tree.CheckSigner(d1.PublicKey(), revokedAt.Add(-time.Minute)))
}

func TestEnrollmentJSON(t *testing.T) {
	f := newFixture(t)
	e, err := Enroll(f.user, f.d1, "laptop", time.Now())
	require.NoError(t, err)

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"path":"m/7411'/0'/1'"`)

	var back Enrollment
	require.NoError(t, json.Unmarshal(data, &back))
	assert.NoError(t, back.Verify())
}
