package identity

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"time"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"
)

const enrollmentDomain = "rimu/v1/enrollment"

// Enrollment is a certificate in which a parent identity vouches for a
// direct child.
type Enrollment struct {
	Public     ed25519.PublicKey `json:"public_key"`
	Path       Path              `json:"path"`
	Parent     ed25519.PublicKey `json:"parent"`
	Name       string            `json:"name,omitempty"`
	EnrolledAt time.Time         `json:"enrolled_at"`
	Signature  []byte            `json:"signature"`
}

// Enroll issues a certificate for child signed by parent. parent must be the
// direct parent of child in the derivation tree.
func Enroll(parent, child *Identity, name string, at time.Time) (*Enrollment, error) {
	if !parent.path.Equal(child.path.Parent()) {
		return nil, fmt.Errorf("%w: %s is not the parent of %s", kerrors.ErrNotAncestor, parent.path, child.path)
	}

	e := &Enrollment{
		Public:     child.PublicKey(),
		Path:       child.Path(),
		Parent:     parent.PublicKey(),
		Name:       name,
		EnrolledAt: at.UTC(),
	}
	sig, err := Sign(parent, e.signedBytes())
	if err != nil {
		return nil, err
	}
	e.Signature = sig
	return e, nil
}

// Verify checks the parent's signature.
func (e *Enrollment) Verify() error {
	if !Verify(e.Parent, e.signedBytes(), e.Signature) {
		return fmt.Errorf("%w: enrollment of %s has an invalid signature", kerrors.ErrIntegrity, Fingerprint(e.Public))
	}
	return nil
}

func (e *Enrollment) signedBytes() []byte {
	var b []byte
	b = append(b, enrollmentDomain...)
	b = append(b, 0)
	b = append(b, e.Parent...)
	b = append(b, e.Public...)
	b = append(b, e.Path.String()...)
	b = append(b, 0)
	b = append(b, e.Name...)
	b = append(b, 0)
	return binary.BigEndian.AppendUint64(b, uint64(e.EnrolledAt.UnixNano()))
}
