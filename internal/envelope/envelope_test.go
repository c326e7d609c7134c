package envelope

import (
	"bytes"
	"context"
	"testing"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"
	"github.com/PolarWolf314/rimu/internal/keys"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var formats = []Format{FormatXChaCha20Poly1305, FormatAES256GCM}

func chunkKey(t *testing.T, contentID []byte) *keys.DerivedKey {
	t.Helper()
	salt := bytes.Repeat([]byte{7}, keys.SaltSize)
	root, err := keys.DeriveRoot(context.Background(), []byte("correct-horse"), salt, keys.TestParams, keys.TestParams)
	require.NoError(t, err)
	defer root.Destroy()

	master, err := keys.Derive(root, keys.LabelChunkEncryption, nil)
	require.NoError(t, err)
	defer master.Destroy()

	k, err := keys.Derive(master, keys.LabelChunkEncryption, contentID)
	require.NoError(t, err)
	t.Cleanup(k.Destroy)
	return k
}

func TestSealOpenRoundTrip(t *testing.T) {
	id := bytes.Repeat([]byte{1}, 32)
	key := chunkKey(t, id)

	for _, f := range formats {
		t.Run(f.String(), func(t *testing.T) {
			c, err := New(f)
			require.NoError(t, err)

			for _, plaintext := range [][]byte{{}, []byte("hello world"), bytes.Repeat([]byte("x"), 1<<16)} {
				env, err := c.Seal(key, plaintext, id)
				require.NoError(t, err)

				raw, err := env.MarshalBinary()
				require.NoError(t, err)
				parsed, err := Parse(raw)
				require.NoError(t, err)

				got, err := c.Open(key, parsed)
				require.NoError(t, err)
				assert.Equal(t, len(plaintext), len(got))
				assert.True(t, bytes.Equal(plaintext, got))
			}
		})
	}
}

func TestSealDeterministic(t *testing.T) {
	id := bytes.Repeat([]byte{2}, 32)
	key := chunkKey(t, id)

	for _, f := range formats {
		c := Cipher{Format: f}
		a, err := c.Seal(key, []byte("hello world"), id)
		require.NoError(t, err)
		b, err := c.Seal(key, []byte("hello world"), id)
		require.NoError(t, err)

		rawA, _ := a.MarshalBinary()
		rawB, _ := b.MarshalBinary()
		assert.Equal(t, rawA, rawB, "format %s", f)
		assert.Len(t, a.Nonce, f.NonceSize())

		other, err := c.Seal(key, []byte("hello there"), id)
		require.NoError(t, err)
		rawOther, _ := other.MarshalBinary()
		assert.NotEqual(t, rawA, rawOther)
	}
}

func TestSealRandomDiffers(t *testing.T) {
	id := bytes.Repeat([]byte{3}, 32)
	key := chunkKey(t, id)
	c := Cipher{}

	a, err := c.SealRandom(key, []byte("hello world"), id)
	require.NoError(t, err)
	b, err := c.SealRandom(key, []byte("hello world"), id)
	require.NoError(t, err)

	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)

	got, err := c.Open(key, b)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), got)
}

func TestTamperingFailsClosed(t *testing.T) {
	id := bytes.Repeat([]byte{4}, 32)
	key := chunkKey(t, id)

	for _, f := range formats {
		c := Cipher{Format: f}
		env, err := c.Seal(key, []byte("attack at dawn"), id)
		require.NoError(t, err)
		raw, err := env.MarshalBinary()
		require.NoError(t, err)

		// Flip every byte except the format byte and the trailing length.
		for i := 1; i < len(raw)-2; i++ {
			tampered := append([]byte(nil), raw...)
			tampered[i] ^= 0x01

			parsed, err := Parse(tampered)
			if err != nil {
				require.ErrorIs(t, err, kerrors.ErrAuthentication)
				continue
			}
			got, err := c.Open(key, parsed)
			require.ErrorIs(t, err, kerrors.ErrAuthentication, "format %s byte %d", f, i)
			assert.Nil(t, got)
		}
	}
}

func TestFormatByteIsAuthenticated(t *testing.T) {
	id := bytes.Repeat([]byte{5}, 32)
	key := chunkKey(t, id)

	env, err := Cipher{Format: FormatAES256GCM}.Seal(key, []byte("data"), id)
	require.NoError(t, err)

	// Pretend the envelope is XChaCha: nonce length no longer matches.
	env.Format = FormatXChaCha20Poly1305
	_, err = Cipher{}.Open(key, env)
	require.ErrorIs(t, err, kerrors.ErrAuthentication)
}

func TestOpenAnyShippedFormat(t *testing.T) {
	id := bytes.Repeat([]byte{6}, 32)
	key := chunkKey(t, id)

	old, err := Cipher{Format: FormatAES256GCM}.Seal(key, []byte("legacy"), id)
	require.NoError(t, err)

	got, err := Cipher{Format: FormatXChaCha20Poly1305}.Open(key, old)
	require.NoError(t, err)
	assert.Equal(t, []byte("legacy"), got)
}

func TestParseRejectsUnknownFormat(t *testing.T) {
	_, err := Parse([]byte{9, 0, 0, 0})
	require.ErrorIs(t, err, kerrors.ErrUnsupportedFormat)

	_, err = Parse(nil)
	require.ErrorIs(t, err, kerrors.ErrAuthentication)

	_, err = ParseFormat("rot13")
	require.ErrorIs(t, err, kerrors.ErrUnsupportedFormat)
}

func TestWipedKeyRefused(t *testing.T) {
	id := bytes.Repeat([]byte{8}, 32)
	key := chunkKey(t, id)
	key.Destroy()

	_, err := Cipher{}.Seal(key, []byte("x"), id)
	require.ErrorIs(t, err, kerrors.ErrKeyWiped)
}
