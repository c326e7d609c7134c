package configs

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// SaveTOML encodes data and atomically replaces filePath with it. The file is
// readable only by the owner, and a crash mid-write leaves the old contents.
func SaveTOML(filePath string, data any) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(data); err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(filePath), err)
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(filePath)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filePath)
}

// LoadTOML decodes filePath into data. Keys that data has no field for are
// returned so callers can warn about them.
func LoadTOML(filePath string, data any) (undecoded []string, err error) {
	meta, err := toml.DecodeFile(filePath, data)
	if err != nil {
		return nil, err
	}
	for _, key := range meta.Undecoded() {
		undecoded = append(undecoded, key.String())
	}
	return undecoded, nil
}
