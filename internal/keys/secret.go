package keys

import (
	"github.com/awnumar/memguard"
)

// KeySize is the length of every derived key in bytes.
const KeySize = 32

// Secret is an opaque, wipeable handle to key material.
type Secret interface {
	// Bytes returns the backing key bytes. The slice is only valid until
	// Destroy is called and must not be retained by the caller.
	Bytes() []byte
	Destroy()
	Alive() bool
}

// handle keeps key bytes in a read-only memguard buffer.
type handle struct {
	buf *memguard.LockedBuffer
}

// newHandle moves b into locked memory. The source slice is wiped.
func newHandle(b []byte) handle {
	buf := memguard.NewBufferFromBytes(b)
	buf.Freeze()
	return handle{buf: buf}
}

func (h handle) Bytes() []byte {
	if h.buf == nil || !h.buf.IsAlive() {
		return nil
	}
	return h.buf.Bytes()
}

func (h handle) Destroy() {
	if h.buf != nil {
		h.buf.Destroy()
	}
}

func (h handle) Alive() bool {
	return h.buf != nil && h.buf.IsAlive()
}

// RootSecret is the long-term secret stretched from the passphrase.
// It is never persisted.
type RootSecret struct {
	handle
}

// DerivedKey is key material produced by Derive for a single label.
type DerivedKey struct {
	handle
	label Label
}

// Label returns the label the key was derived under.
func (k *DerivedKey) Label() Label {
	return k.label
}

// Wipe destroys every non-nil secret.
func Wipe(secrets ...Secret) {
	for _, s := range secrets {
		if s != nil {
			s.Destroy()
		}
	}
}

// WipeBytes zeroes a transient buffer that held key material.
func WipeBytes(b []byte) {
	memguard.WipeBytes(b)
}
