package envelope

import (
	"encoding/binary"
	"fmt"
	"math"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"
)

// Envelope is the persisted unit for one encrypted chunk.
type Envelope struct {
	Format         Format
	Nonce          []byte
	Ciphertext     []byte
	Tag            []byte
	AssociatedData []byte
}

// MarshalBinary encodes e in the wire format.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	if !e.Format.Supported() {
		return nil, fmt.Errorf("%w: envelope format %d", kerrors.ErrUnsupportedFormat, byte(e.Format))
	}
	if len(e.Nonce) != e.Format.NonceSize() || len(e.Tag) != TagSize {
		return nil, fmt.Errorf("%w: malformed envelope", kerrors.ErrAuthentication)
	}
	if len(e.AssociatedData) > math.MaxUint16 {
		return nil, fmt.Errorf("associated data too long: %d bytes", len(e.AssociatedData))
	}

	out := make([]byte, 0, 1+len(e.Nonce)+len(e.Ciphertext)+TagSize+len(e.AssociatedData)+2)
	out = append(out, byte(e.Format))
	out = append(out, e.Nonce...)
	out = append(out, e.Ciphertext...)
	out = append(out, e.Tag...)
	out = append(out, e.AssociatedData...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(e.AssociatedData)))
	return out, nil
}

// Parse decodes an envelope. A truncated or malformed envelope is reported
// as ErrAuthentication since it can never open.
func Parse(data []byte) (*Envelope, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%w: empty envelope", kerrors.ErrAuthentication)
	}

	format := Format(data[0])
	if !format.Supported() {
		return nil, fmt.Errorf("%w: envelope format %d", kerrors.ErrUnsupportedFormat, data[0])
	}

	n := format.NonceSize()
	if len(data) < 1+n+TagSize+2 {
		return nil, fmt.Errorf("%w: envelope too short", kerrors.ErrAuthentication)
	}

	adLen := int(binary.BigEndian.Uint16(data[len(data)-2:]))
	body := data[1 : len(data)-2]
	if len(body) < n+TagSize+adLen {
		return nil, fmt.Errorf("%w: envelope too short", kerrors.ErrAuthentication)
	}

	ad := body[len(body)-adLen:]
	sealed := body[:len(body)-adLen]

	return &Envelope{
		Format:         format,
		Nonce:          append([]byte(nil), sealed[:n]...),
		Ciphertext:     append([]byte(nil), sealed[n:len(sealed)-TagSize]...),
		Tag:            append([]byte(nil), sealed[len(sealed)-TagSize:]...),
		AssociatedData: append([]byte(nil), ad...),
	}, nil
}
