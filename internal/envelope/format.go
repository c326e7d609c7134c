package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// Format selects the AEAD algorithm of an envelope.
type Format byte

const (
	FormatXChaCha20Poly1305 Format = 1
	FormatAES256GCM         Format = 2
)

// DefaultFormat is used for new envelopes unless configured otherwise.
const DefaultFormat = FormatXChaCha20Poly1305

// TagSize is the authentication tag length shared by both formats.
const TagSize = 16

// NonceSize returns the nonce length for f, or 0 if f is unknown.
func (f Format) NonceSize() int {
	switch f {
	case FormatXChaCha20Poly1305:
		return chacha20poly1305.NonceSizeX
	case FormatAES256GCM:
		return 12
	}
	return 0
}

func (f Format) Supported() bool {
	return f.NonceSize() != 0
}

func (f Format) String() string {
	switch f {
	case FormatXChaCha20Poly1305:
		return "xchacha20poly1305"
	case FormatAES256GCM:
		return "aes256gcm"
	}
	return fmt.Sprintf("format(%d)", byte(f))
}

// ParseFormat maps a configuration name to a Format.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "", "xchacha20poly1305":
		return FormatXChaCha20Poly1305, nil
	case "aes256gcm":
		return FormatAES256GCM, nil
	}
	return 0, fmt.Errorf("%w: unknown cipher %q", kerrors.ErrUnsupportedFormat, name)
}

func (f Format) aead(key []byte) (cipher.AEAD, error) {
	switch f {
	case FormatXChaCha20Poly1305:
		return chacha20poly1305.NewX(key)
	case FormatAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	}
	return nil, fmt.Errorf("%w: envelope format %d", kerrors.ErrUnsupportedFormat, byte(f))
}
