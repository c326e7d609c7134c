package manifest

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/identity"
)

const signatureDomain = "rimu/v1/manifest\x00"

// Signed is a manifest together with its signer and signature. Payload holds
// the canonical bytes that were signed.
type Signed struct {
	Format     int               `json:"format"`
	Payload    json.RawMessage   `json:"payload"`
	Signer     ed25519.PublicKey `json:"signer"`
	SignerPath identity.Path     `json:"signer_path"`
	Signature  []byte            `json:"signature"`
}

// Sign signs the canonical form of m with id.
func Sign(m *Manifest, id *identity.Identity) (*Signed, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	payload, err := m.Canonical()
	if err != nil {
		return nil, fmt.Errorf("encoding manifest %s: %w", m.ID, err)
	}

	sig, err := identity.Sign(id, signedMessage(payload))
	if err != nil {
		return nil, err
	}

	return &Signed{
		Format:     FormatVersion,
		Payload:    payload,
		Signer:     id.PublicKey(),
		SignerPath: id.Path(),
		Signature:  sig,
	}, nil
}

// Verify checks the signature, decodes the manifest and checks that its
// signer was trusted at the manifest's creation time. The trust tree is
// consulted on every call.
//
// A bad signature or malformed payload matches ErrIntegrity; an unknown or
// revoked signer matches ErrTrust.
func Verify(s *Signed, tree *identity.Tree) (*Manifest, error) {
	if s.Format != FormatVersion {
		return nil, fmt.Errorf("%w: signed manifest format %d", kerrors.ErrUnsupportedFormat, s.Format)
	}
	if !identity.Verify(s.Signer, signedMessage(s.Payload), s.Signature) {
		return nil, fmt.Errorf("%w: signature does not match signer %s", kerrors.ErrIntegrity, identity.Fingerprint(s.Signer))
	}

	var m Manifest
	if err := json.Unmarshal(s.Payload, &m); err != nil {
		return nil, fmt.Errorf("%w: decoding manifest: %v", kerrors.ErrIntegrity, err)
	}
	if err := m.Validate(); err != nil {
		return nil, &kerrors.ManifestError{ID: m.ID, Device: m.Device, Err: err}
	}

	if err := tree.CheckSigner(s.Signer, m.CreatedAt); err != nil {
		return nil, &kerrors.ManifestError{ID: m.ID, Device: m.Device, Err: err}
	}
	return &m, nil
}

func signedMessage(payload []byte) []byte {
	msg := make([]byte, 0, len(signatureDomain)+len(payload))
	msg = append(msg, signatureDomain...)
	return append(msg, payload...)
}
