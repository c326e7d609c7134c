package keys

import (
	"context"
	"crypto/rand"
	"fmt"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"

	"golang.org/x/crypto/argon2"
)

// SaltSize is the length of salts generated by NewSalt.
const SaltSize = 32

// MinSaltSize is the shortest salt DeriveRoot accepts.
const MinSaltSize = 16

// Params is the Argon2id work factor.
type Params struct {
	Time      uint32 `toml:"time"`
	MemoryKiB uint32 `toml:"memory_kib"`
	Threads   uint8  `toml:"threads"`
}

var (
	// DefaultParams is used for new keyrings: 64 MiB, 3 passes, 4 lanes.
	DefaultParams = Params{Time: 3, MemoryKiB: 64 * 1024, Threads: 4}

	// MinParams is the production safety floor.
	MinParams = Params{Time: 1, MemoryKiB: 19 * 1024, Threads: 1}

	// TestParams is a floor for tests only.
	TestParams = Params{Time: 1, MemoryKiB: 64, Threads: 1}
)

// Validate checks p against floor.
func (p Params) Validate(floor Params) error {
	switch {
	case p.Time < floor.Time:
		return fmt.Errorf("%w: time cost %d below floor %d", kerrors.ErrKeyDerivation, p.Time, floor.Time)
	case p.MemoryKiB < floor.MemoryKiB:
		return fmt.Errorf("%w: memory cost %d KiB below floor %d KiB", kerrors.ErrKeyDerivation, p.MemoryKiB, floor.MemoryKiB)
	case p.Threads < floor.Threads || p.Threads == 0:
		return fmt.Errorf("%w: parallelism %d below floor %d", kerrors.ErrKeyDerivation, p.Threads, floor.Threads)
	}
	return nil
}

// NewSalt returns a fresh random salt. Salts are never shared between users.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// DeriveRoot stretches passphrase into a RootSecret with Argon2id.
//
// The derivation is CPU and memory intensive and runs on its own goroutine.
// If ctx is cancelled first, DeriveRoot returns ctx.Err() and the late result
// is wiped as soon as it arrives.
func DeriveRoot(ctx context.Context, passphrase, salt []byte, params, floor Params) (*RootSecret, error) {
	if err := params.Validate(floor); err != nil {
		return nil, err
	}
	if len(salt) < MinSaltSize {
		return nil, fmt.Errorf("%w: salt must be at least %d bytes, got %d", kerrors.ErrKeyDerivation, MinSaltSize, len(salt))
	}
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("%w: empty passphrase", kerrors.ErrKeyDerivation)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan []byte, 1)
	go func() {
		done <- argon2.IDKey(passphrase, salt, params.Time, params.MemoryKiB, params.Threads, KeySize)
	}()

	select {
	case key := <-done:
		return &RootSecret{handle: newHandle(key)}, nil
	case <-ctx.Done():
		go func() {
			WipeBytes(<-done)
		}()
		return nil, ctx.Err()
	}
}

// RootFromBytes wraps existing root material. The source slice is wiped.
func RootFromBytes(b []byte) (*RootSecret, error) {
	if len(b) != KeySize {
		return nil, fmt.Errorf("%w: root secret must be %d bytes", kerrors.ErrKeyDerivation, KeySize)
	}
	return &RootSecret{handle: newHandle(b)}, nil
}
