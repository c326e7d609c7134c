package chunks

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"testing"

	"github.com/PolarWolf314/rimu/internal/backend"
	"github.com/PolarWolf314/rimu/internal/envelope"
	"github.com/PolarWolf314/rimu/internal/keys"
	logger "github.com/PolarWolf314/rimu/internal/logging"

	"github.com/stretchr/testify/require"
)

var smallChunks = SplitOptions{MinSize: 512, MaxSize: 8 * 1024, AverageBits: 11}

func testSession(t *testing.T, passphrase string) *keys.Session {
	t.Helper()
	salt := bytes.Repeat([]byte{0x5a}, keys.SaltSize)
	root, err := keys.DeriveRoot(context.Background(), []byte(passphrase), salt, keys.TestParams, keys.TestParams)
	require.NoError(t, err)

	s := keys.NewSession(root)
	t.Cleanup(s.Close)
	return s
}

func testStore(t *testing.T, b backend.Backend, s *keys.Session) *Store {
	t.Helper()
	store, err := NewStore(Options{
		Backend: b,
		Session: s,
		Cipher:  envelope.Cipher{Format: envelope.FormatXChaCha20Poly1305},
		Split:   smallChunks,
		Logger:  logger.Logger{Out: io.Discard, Err: io.Discard},
	})
	require.NoError(t, err)
	return store
}

func randomBytes(seed int64, n int) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}

func loggerForTest() logger.Logger {
	return logger.Logger{Out: io.Discard, Err: io.Discard}
}
