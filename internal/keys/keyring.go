package keys

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/PolarWolf314/rimu/internal/configs"
	kerrors "github.com/PolarWolf314/rimu/internal/errors"

	"github.com/BurntSushi/toml"
	"golang.org/x/crypto/nacl/secretbox"
)

const keyringVersion = 1

var verifierPlaintext = []byte("rimu keyring verifier v1")

// Keyring is the persisted, non-secret half of the key hierarchy: the salt
// and work factor needed to re-derive the root, plus a sealed verifier that
// detects a wrong passphrase.
type Keyring struct {
	Version   int       `toml:"version"`
	Salt      string    `toml:"salt"`
	KDF       Params    `toml:"kdf"`
	Verifier  string    `toml:"verifier"`
	CreatedAt time.Time `toml:"created_at"`
}

// CreateKeyring derives a new root from passphrase with a fresh salt.
// The caller owns the returned RootSecret.
func CreateKeyring(ctx context.Context, passphrase []byte, params, floor Params) (*Keyring, *RootSecret, error) {
	salt, err := NewSalt()
	if err != nil {
		return nil, nil, err
	}

	root, err := DeriveRoot(ctx, passphrase, salt, params, floor)
	if err != nil {
		return nil, nil, err
	}

	verifier, err := sealVerifier(root)
	if err != nil {
		root.Destroy()
		return nil, nil, err
	}

	return &Keyring{
		Version:   keyringVersion,
		Salt:      base64.StdEncoding.EncodeToString(salt),
		KDF:       params,
		Verifier:  base64.StdEncoding.EncodeToString(verifier),
		CreatedAt: time.Now().UTC(),
	}, root, nil
}

// Unlock re-derives the root from passphrase and checks it against the verifier.
// Returns ErrAuthentication for a wrong passphrase.
func (k *Keyring) Unlock(ctx context.Context, passphrase []byte, floor Params) (*RootSecret, error) {
	if k.Version != keyringVersion {
		return nil, fmt.Errorf("%w: keyring version %d", kerrors.ErrUnsupportedFormat, k.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(k.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed salt: %v", kerrors.ErrKeyDerivation, err)
	}
	verifier, err := base64.StdEncoding.DecodeString(k.Verifier)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed verifier", kerrors.ErrAuthentication)
	}

	root, err := DeriveRoot(ctx, passphrase, salt, k.KDF, floor)
	if err != nil {
		return nil, err
	}

	if err := openVerifier(root, verifier); err != nil {
		root.Destroy()
		return nil, err
	}

	return root, nil
}

func sealVerifier(root *RootSecret) ([]byte, error) {
	vk, err := Derive(root, LabelKeyringVerifier, nil)
	if err != nil {
		return nil, err
	}
	defer vk.Destroy()

	var key [KeySize]byte
	copy(key[:], vk.Bytes())
	defer WipeBytes(key[:])

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating verifier nonce: %w", err)
	}

	return secretbox.Seal(nonce[:], verifierPlaintext, &nonce, &key), nil
}

func openVerifier(root *RootSecret, sealed []byte) error {
	if len(sealed) < 24+secretbox.Overhead {
		return fmt.Errorf("%w: verifier too short", kerrors.ErrAuthentication)
	}

	vk, err := Derive(root, LabelKeyringVerifier, nil)
	if err != nil {
		return err
	}
	defer vk.Destroy()

	var key [KeySize]byte
	copy(key[:], vk.Bytes())
	defer WipeBytes(key[:])

	var nonce [24]byte
	copy(nonce[:], sealed[:24])

	if _, ok := secretbox.Open(nil, sealed[24:], &nonce, &key); !ok {
		return fmt.Errorf("%w: wrong passphrase", kerrors.ErrAuthentication)
	}
	return nil
}

// SaveKeyring writes k to path as TOML.
func SaveKeyring(path string, k *Keyring) error {
	if err := configs.SaveTOML(path, k); err != nil {
		return fmt.Errorf("saving keyring: %w", err)
	}
	return nil
}

// LoadKeyring reads a keyring written by SaveKeyring.
func LoadKeyring(path string) (*Keyring, error) {
	k := &Keyring{}
	if _, err := configs.LoadTOML(path, k); err != nil {
		return nil, fmt.Errorf("loading keyring: %w", err)
	}
	return k, nil
}

// MarshalKeyring encodes k as TOML, for sharing through a backend.
func MarshalKeyring(k *Keyring) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(k); err != nil {
		return nil, fmt.Errorf("encoding keyring: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseKeyring decodes a keyring produced by MarshalKeyring.
func ParseKeyring(data []byte) (*Keyring, error) {
	k := &Keyring{}
	if _, err := toml.Decode(string(data), k); err != nil {
		return nil, fmt.Errorf("%w: decoding keyring: %v", kerrors.ErrUnsupportedFormat, err)
	}
	return k, nil
}
