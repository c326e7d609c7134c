package identity

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/keys"

	"github.com/awnumar/memguard"
	"github.com/zeebo/blake3"
)

// Identity is an ed25519 key pair at a derivation path. Identities returned
// by a Manager can sign and must be destroyed after use; identities built
// with PublicIdentity can only be verified against.
type Identity struct {
	path   Path
	public ed25519.PublicKey

	// ext holds the SLIP-10 node: key followed by chain code.
	ext *memguard.LockedBuffer
}

// PublicIdentity wraps a public key known to live at path.
func PublicIdentity(pub ed25519.PublicKey, path Path) (*Identity, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes", ed25519.PublicKeySize)
	}
	return &Identity{path: append(Path(nil), path...), public: append(ed25519.PublicKey(nil), pub...)}, nil
}

func newIdentity(path Path, n *node) *Identity {
	priv := ed25519.NewKeyFromSeed(n.key())
	pub := append(ed25519.PublicKey(nil), priv.Public().(ed25519.PublicKey)...)
	keys.WipeBytes(priv)

	buf := memguard.NewBufferFromBytes(n[:])
	buf.Freeze()

	return &Identity{path: append(Path(nil), path...), public: pub, ext: buf}
}

func (id *Identity) Path() Path {
	return append(Path(nil), id.path...)
}

func (id *Identity) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), id.public...)
}

// Fingerprint is a short, stable name for the identity's public key.
func (id *Identity) Fingerprint() string {
	return Fingerprint(id.public)
}

// Fingerprint returns the first 8 bytes of the BLAKE3 hash of pub in hex.
func Fingerprint(pub ed25519.PublicKey) string {
	sum := blake3.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}

// CanSign reports whether the identity still holds private key material.
func (id *Identity) CanSign() bool {
	return id.ext != nil && id.ext.IsAlive()
}

// Destroy wipes the private key. The public half stays usable.
func (id *Identity) Destroy() {
	if id.ext != nil {
		id.ext.Destroy()
	}
}

func (id *Identity) node() (*node, error) {
	if !id.CanSign() {
		return nil, kerrors.ErrKeyWiped
	}
	var n node
	copy(n[:], id.ext.Bytes())
	return &n, nil
}

// Sign signs message with the identity's private key.
func Sign(id *Identity, message []byte) ([]byte, error) {
	n, err := id.node()
	if err != nil {
		return nil, err
	}
	defer n.wipe()

	priv := ed25519.NewKeyFromSeed(n.key())
	defer keys.WipeBytes(priv)

	return ed25519.Sign(priv, message), nil
}

// Verify reports whether sig is a valid signature of message by pub.
func Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}

// Manager derives identities from the identity seed of a key session.
type Manager struct {
	seed keys.Secret
}

// NewManager returns a Manager for the user owning session.
func NewManager(session *keys.Session) (*Manager, error) {
	seed, err := session.Key(keys.LabelIdentitySeed)
	if err != nil {
		return nil, err
	}
	return &Manager{seed: seed}, nil
}

// Derive returns the identity at path.
func (m *Manager) Derive(path Path) (*Identity, error) {
	if err := path.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", kerrors.ErrKeyDerivation, err)
	}
	if !m.seed.Alive() {
		return nil, kerrors.ErrKeyWiped
	}

	master := masterNode(m.seed.Bytes())
	defer master.wipe()

	n := deriveFrom(master, path)
	defer n.wipe()

	return newIdentity(path, n), nil
}

// UserIdentity returns the user root at m/7411'/user'.
func (m *Manager) UserIdentity(user uint32) (*Identity, error) {
	return m.Derive(UserPath(user))
}

// DeriveDeviceIdentity returns device number index below user. The result is
// deterministic, so a lost device key is recovered by deriving it again.
func (m *Manager) DeriveDeviceIdentity(user *Identity, index uint32) (*Identity, error) {
	if len(user.path) != 2 || user.path[0] != Purpose {
		return nil, fmt.Errorf("%w: %s is not a user root", kerrors.ErrKeyDerivation, user.path)
	}
	if index > MaxIndex {
		return nil, fmt.Errorf("%w: device index %d exceeds %d", kerrors.ErrKeyDerivation, index, MaxIndex)
	}

	if user.CanSign() {
		return deriveChild(user, DevicePath(user.path[1], index))
	}

	// A public-only user root can still be used if this manager holds its seed.
	expected, err := m.UserIdentity(user.path[1])
	if err != nil {
		return nil, err
	}
	defer expected.Destroy()
	if !bytes.Equal(expected.public, user.public) {
		return nil, fmt.Errorf("%w: user root %s was not derived from this key hierarchy", kerrors.ErrTrust, user.Fingerprint())
	}
	return deriveChild(expected, DevicePath(user.path[1], index))
}

// deriveChild derives target below ancestor using the ancestor's chain code.
func deriveChild(ancestor *Identity, target Path) (*Identity, error) {
	if !ancestor.path.IsStrictPrefixOf(target) {
		return nil, fmt.Errorf("%w: %s is not below %s", kerrors.ErrNotAncestor, target, ancestor.path)
	}
	n, err := ancestor.node()
	if err != nil {
		return nil, err
	}
	defer n.wipe()

	child := deriveFrom(n, target[len(ancestor.path):])
	defer child.wipe()

	return newIdentity(target, child), nil
}
