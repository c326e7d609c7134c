package configs

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// migrateConfig upgrades an unversioned config in place. Sections missing
// from the file take their defaults and the previous file is kept as a backup
// next to it.
func migrateConfig(root string, config *Config) error {
	defaults := DefaultConfig(config.Device.Name)

	if config.Device.ID == "" {
		config.Device.ID = defaults.Device.ID
	}
	if config.Device.CreatedAt.IsZero() {
		config.Device.CreatedAt = defaults.Device.CreatedAt
	}
	if config.KDF == (KDF{}) {
		config.KDF = defaults.KDF
	}
	if config.Storage.Backend == "" {
		config.Storage.Backend = defaults.Storage.Backend
	}
	if config.Storage.Path == "" {
		config.Storage.Path = defaults.Storage.Path
	}
	if config.Chunking == (Chunking{}) {
		config.Chunking = defaults.Chunking
	}
	if config.Cipher.Format == "" {
		config.Cipher.Format = defaults.Cipher.Format
	}
	if config.Sync == (Sync{}) {
		config.Sync = defaults.Sync
	}
	config.Version = ConfigVersion

	if _, err := createBackup(ConfigPath(root)); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	return SaveConfig(root, config)
}

// createBackup copies path to a timestamped sibling and returns its location.
func createBackup(path string) (string, error) {
	backupPath := filepath.Join(filepath.Dir(path),
		filepath.Base(path)+".backup-"+time.Now().Format("20060102-150405"))
	if err := copyFile(path, backupPath); err != nil {
		return "", err
	}
	return backupPath, nil
}

// copyFile copies a single file.
func copyFile(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, data, srcInfo.Mode())
}
