package identity

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"time"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"
)

const revocationDomain = "rimu/v1/revocation"

// RevocationRecord states that Target is no longer trusted from RevokedAt
// onwards. It is signed by Revoker, which must be a strict ancestor.
type RevocationRecord struct {
	Target      ed25519.PublicKey `json:"target"`
	TargetPath  Path              `json:"target_path"`
	Revoker     ed25519.PublicKey `json:"revoker"`
	RevokerPath Path              `json:"revoker_path"`
	RevokedAt   time.Time         `json:"revoked_at"`
	Reason      string            `json:"reason,omitempty"`
	Signature   []byte            `json:"signature"`
}

// Revoke issues a revocation of the identity at targetPath with public key
// target. The ancestor must be a strict prefix of targetPath, and re-deriving
// targetPath from the ancestor must reproduce target; an unrelated identity
// cannot revoke another.
func Revoke(ancestor *Identity, target ed25519.PublicKey, targetPath Path, at time.Time, reason string) (*RevocationRecord, error) {
	if !ancestor.path.IsStrictPrefixOf(targetPath) {
		return nil, fmt.Errorf("%w: %s cannot revoke %s", kerrors.ErrNotAncestor, ancestor.path, targetPath)
	}

	derived, err := deriveChild(ancestor, targetPath)
	if err != nil {
		return nil, err
	}
	defer derived.Destroy()
	if !bytes.Equal(derived.public, target) {
		return nil, fmt.Errorf("%w: %s does not derive %s at %s", kerrors.ErrNotAncestor, ancestor.Fingerprint(), Fingerprint(target), targetPath)
	}

	r := &RevocationRecord{
		Target:      append(ed25519.PublicKey(nil), target...),
		TargetPath:  append(Path(nil), targetPath...),
		Revoker:     ancestor.PublicKey(),
		RevokerPath: ancestor.Path(),
		RevokedAt:   at.UTC(),
		Reason:      reason,
	}
	sig, err := Sign(ancestor, r.signedBytes())
	if err != nil {
		return nil, err
	}
	r.Signature = sig
	return r, nil
}

// Verify checks the revoker's signature and the path relation. It does not
// check that the revoker is trusted; Tree.ApplyRevocation does.
func (r *RevocationRecord) Verify() error {
	if !r.RevokerPath.IsStrictPrefixOf(r.TargetPath) {
		return fmt.Errorf("%w: %s cannot revoke %s", kerrors.ErrNotAncestor, r.RevokerPath, r.TargetPath)
	}
	if !Verify(r.Revoker, r.signedBytes(), r.Signature) {
		return fmt.Errorf("%w: revocation of %s has an invalid signature", kerrors.ErrIntegrity, Fingerprint(r.Target))
	}
	return nil
}

func (r *RevocationRecord) signedBytes() []byte {
	var b []byte
	b = append(b, revocationDomain...)
	b = append(b, 0)
	b = append(b, r.Revoker...)
	b = append(b, r.RevokerPath.String()...)
	b = append(b, 0)
	b = append(b, r.Target...)
	b = append(b, r.TargetPath.String()...)
	b = append(b, 0)
	b = append(b, r.Reason...)
	b = append(b, 0)
	return binary.BigEndian.AppendUint64(b, uint64(r.RevokedAt.UnixNano()))
}
