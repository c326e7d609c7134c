package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	kerrors "github.com/PolarWolf314/rimu/internal/errors"

	"github.com/google/uuid"
)

// ConfigVersion is the layout version written by SaveConfig.
const ConfigVersion = 1

// MaxDeviceIndex bounds device and user indexes to the hardened range.
const MaxDeviceIndex = 1<<31 - 1

type Config struct {
	Version  int      `toml:"version"`
	Device   Device   `toml:"device"`
	KDF      KDF      `toml:"kdf"`
	Storage  Storage  `toml:"storage"`
	Chunking Chunking `toml:"chunking"`
	Cipher   Cipher   `toml:"cipher"`
	Sync     Sync     `toml:"sync"`
}

type Device struct {
	Name      string    `toml:"name"`
	ID        string    `toml:"id"`
	Index     uint32    `toml:"index"`
	UserIndex uint32    `toml:"user_index"`
	CreatedAt time.Time `toml:"created_at"`
}

// KDF mirrors the Argon2id work factor stored in the keyring.
type KDF struct {
	Time      uint32 `toml:"time"`
	MemoryKiB uint32 `toml:"memory_kib"`
	Threads   uint8  `toml:"threads"`
}

type Storage struct {
	// Backend is "fs" or "sqlite".
	Backend string `toml:"backend"`

	// Path is the store location, relative to the repository root unless absolute.
	Path string `toml:"path"`
}

type Chunking struct {
	MinSize     uint `toml:"min_size"`
	MaxSize     uint `toml:"max_size"`
	AverageBits int  `toml:"average_bits"`
}

type Cipher struct {
	// Format is "xchacha20poly1305" or "aes256gcm".
	Format string `toml:"format"`
}

type Sync struct {
	// Dedup stores chunks deterministically so identical content is stored
	// once. When false, chunks are sealed with random nonces.
	Dedup bool `toml:"dedup"`

	// Retention is how many manifests per device survive gc. Zero keeps all.
	Retention int `toml:"retention"`

	// Parallelism bounds concurrent chunk operations.
	Parallelism int `toml:"parallelism"`
}

// DefaultConfig returns the configuration written by init for a new device.
func DefaultConfig(deviceName string) *Config {
	return &Config{
		Version: ConfigVersion,
		Device: Device{
			Name:      deviceName,
			ID:        GenerateDeviceID(),
			CreatedAt: time.Now().UTC(),
		},
		KDF:      KDF{Time: 3, MemoryKiB: 64 * 1024, Threads: 4},
		Storage:  Storage{Backend: "fs", Path: filepath.Join(".rimu", "store")},
		Chunking: Chunking{MinSize: 256 * 1024, MaxSize: 4 * 1024 * 1024, AverageBits: 20},
		Cipher:   Cipher{Format: "xchacha20poly1305"},
		Sync:     Sync{Dedup: true, Retention: 0, Parallelism: 4},
	}
}

// GenerateDeviceID generates a new UUID for a device.
func GenerateDeviceID() string {
	return uuid.New().String()
}

// Validate checks every field against its documented range.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", kerrors.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	switch {
	case c.Version != ConfigVersion:
		return invalid("unsupported config version %d", c.Version)
	case c.Device.Name == "":
		return invalid("device name is empty")
	case c.Device.ID == "":
		return invalid("device id is empty")
	case c.Device.Index > MaxDeviceIndex || c.Device.UserIndex > MaxDeviceIndex:
		return invalid("device and user index must be below 2^31")
	case c.KDF.Time == 0 || c.KDF.MemoryKiB == 0 || c.KDF.Threads == 0:
		return invalid("kdf parameters must be positive")
	case c.Storage.Backend != "fs" && c.Storage.Backend != "sqlite":
		return invalid("unknown storage backend %q", c.Storage.Backend)
	case c.Storage.Path == "":
		return invalid("storage path is empty")
	case c.Chunking.MinSize == 0 || c.Chunking.MinSize > c.Chunking.MaxSize:
		return invalid("chunk sizes must satisfy 0 < min_size <= max_size")
	case c.Chunking.AverageBits < 10 || c.Chunking.AverageBits > 22:
		return invalid("average_bits %d outside [10, 22]", c.Chunking.AverageBits)
	case c.Cipher.Format != "xchacha20poly1305" && c.Cipher.Format != "aes256gcm":
		return invalid("unknown cipher format %q", c.Cipher.Format)
	case c.Sync.Retention < 0 || c.Sync.Parallelism < 0:
		return invalid("retention and parallelism must not be negative")
	}

	if _, err := uuid.Parse(c.Device.ID); err != nil {
		return invalid("device id %q is not a UUID", c.Device.ID)
	}
	return nil
}

// StoragePath resolves the storage path against root.
func (c *Config) StoragePath(root string) string {
	if filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(root, c.Storage.Path)
}

// LoadConfig loads and validates the configuration of the repository at root.
// Returns ErrNotInitialized if the repository has no config.
func LoadConfig(root string) (*Config, error) {
	configPath := ConfigPath(root)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, kerrors.ErrNotInitialized
	}

	config := &Config{}
	undecoded, err := LoadTOML(configPath, config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown keys in %s: %s", kerrors.ErrInvalidConfig, configPath, strings.Join(undecoded, ", "))
	}

	if config.Version == 0 {
		if err := migrateConfig(root, config); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig validates and saves config for the repository at root.
func SaveConfig(root string, config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if err := SaveTOML(ConfigPath(root), config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
