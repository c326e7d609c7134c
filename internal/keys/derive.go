package keys

import (
	"crypto/sha512"
	"fmt"
	"io"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"

	"golang.org/x/crypto/hkdf"
)

// hkdfSalt separates this derivation scheme from any future version.
var hkdfSalt = []byte(labelNamespace + "hkdf-sha512")

func info(label Label, context []byte) []byte {
	b := make([]byte, 0, len(label)+1+len(context))
	b = append(b, label...)
	b = append(b, 0)
	return append(b, context...)
}

// Derive produces a KeySize key from parent for label and context.
// The result is deterministic for identical inputs.
func Derive(parent Secret, label Label, context []byte) (*DerivedKey, error) {
	if !label.Valid() {
		return nil, fmt.Errorf("%w: unknown label %q", kerrors.ErrKeyDerivation, label)
	}
	if parent == nil || !parent.Alive() {
		return nil, kerrors.ErrKeyWiped
	}

	out := make([]byte, KeySize)
	r := hkdf.New(sha512.New, parent.Bytes(), hkdfSalt, info(label, context))
	if _, err := io.ReadFull(r, out); err != nil {
		WipeBytes(out)
		return nil, fmt.Errorf("%w: %v", kerrors.ErrKeyDerivation, err)
	}

	return &DerivedKey{handle: newHandle(out), label: label}, nil
}

// Stream returns a deterministic byte stream for label and context, for
// consumers that need more than KeySize bytes. HKDF-SHA512 limits the
// stream to 255*64 bytes.
func Stream(parent Secret, label Label, context []byte) (io.Reader, error) {
	if !label.Valid() {
		return nil, fmt.Errorf("%w: unknown label %q", kerrors.ErrKeyDerivation, label)
	}
	if parent == nil || !parent.Alive() {
		return nil, kerrors.ErrKeyWiped
	}
	return hkdf.New(sha512.New, parent.Bytes(), hkdfSalt, info(label, context)), nil
}
