package envelope

import (
	"crypto/rand"
	"fmt"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/keys"

	"github.com/zeebo/blake3"
)

// Cipher seals new envelopes in Format and opens envelopes of any supported format.
type Cipher struct {
	Format Format
}

// New returns a Cipher for f, falling back to DefaultFormat when f is zero.
func New(f Format) (Cipher, error) {
	if f == 0 {
		f = DefaultFormat
	}
	if !f.Supported() {
		return Cipher{}, fmt.Errorf("%w: envelope format %d", kerrors.ErrUnsupportedFormat, byte(f))
	}
	return Cipher{Format: f}, nil
}

// NonceFor derives the deterministic nonce for a key label and associated data.
func NonceFor(f Format, label keys.Label, ad []byte) []byte {
	material := make([]byte, 0, 1+len(ad))
	material = append(material, byte(f))
	material = append(material, ad...)

	nonce := make([]byte, f.NonceSize())
	blake3.DeriveKey(string(keys.LabelChunkNonce)+" "+string(label), material, nonce)
	return nonce
}

// Seal encrypts plaintext with a nonce derived from the key label and ad.
// Identical (key, plaintext, ad) always produce identical envelopes.
func (c Cipher) Seal(key *keys.DerivedKey, plaintext, ad []byte) (*Envelope, error) {
	if key == nil || !key.Alive() {
		return nil, kerrors.ErrKeyWiped
	}
	return c.seal(key, NonceFor(c.format(), key.Label(), ad), plaintext, ad)
}

// SealRandom encrypts plaintext under a random nonce. Use it where content
// equality must not be observable.
func (c Cipher) SealRandom(key keys.Secret, plaintext, ad []byte) (*Envelope, error) {
	if key == nil || !key.Alive() {
		return nil, kerrors.ErrKeyWiped
	}
	nonce := make([]byte, c.format().NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return c.seal(key, nonce, plaintext, ad)
}

func (c Cipher) format() Format {
	if c.Format == 0 {
		return DefaultFormat
	}
	return c.Format
}

func (c Cipher) seal(key keys.Secret, nonce, plaintext, ad []byte) (*Envelope, error) {
	f := c.format()
	aead, err := f.aead(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("initializing %s: %w", f, err)
	}

	sealed := aead.Seal(nil, nonce, plaintext, boundData(f, ad))
	split := len(sealed) - TagSize

	return &Envelope{
		Format:         f,
		Nonce:          nonce,
		Ciphertext:     sealed[:split],
		Tag:            sealed[split:],
		AssociatedData: append([]byte(nil), ad...),
	}, nil
}

// Open authenticates and decrypts env. It returns ErrAuthentication and no
// plaintext if the tag does not verify.
func (c Cipher) Open(key keys.Secret, env *Envelope) ([]byte, error) {
	if key == nil || !key.Alive() {
		return nil, kerrors.ErrKeyWiped
	}
	if !env.Format.Supported() {
		return nil, fmt.Errorf("%w: envelope format %d", kerrors.ErrUnsupportedFormat, byte(env.Format))
	}
	if len(env.Nonce) != env.Format.NonceSize() || len(env.Tag) != TagSize {
		return nil, fmt.Errorf("%w: malformed envelope", kerrors.ErrAuthentication)
	}

	aead, err := env.Format.aead(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("initializing %s: %w", env.Format, err)
	}

	sealed := make([]byte, 0, len(env.Ciphertext)+TagSize)
	sealed = append(sealed, env.Ciphertext...)
	sealed = append(sealed, env.Tag...)

	plaintext, err := aead.Open(nil, env.Nonce, sealed, boundData(env.Format, env.AssociatedData))
	if err != nil {
		return nil, kerrors.ErrAuthentication
	}
	return plaintext, nil
}

func boundData(f Format, ad []byte) []byte {
	b := make([]byte, 0, 1+len(ad))
	b = append(b, byte(f))
	return append(b, ad...)
}
