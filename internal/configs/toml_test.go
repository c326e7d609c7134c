package configs

import (
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `toml:"name"`
	Count int    `toml:"count"`
}

func TestSaveAndLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.toml")

	if err := SaveTOML(path, sample{Name: "laptop", Count: 3}); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	var loaded sample
	undecoded, err := LoadTOML(path, &loaded)
	if err != nil {
		t.Fatalf("LoadTOML failed: %v", err)
	}
	if loaded != (sample{Name: "laptop", Count: 3}) {
		t.Errorf("Unexpected value %+v", loaded)
	}
	if len(undecoded) != 0 {
		t.Errorf("Expected no undecoded keys, got %v", undecoded)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600, got %o", info.Mode().Perm())
	}
}

func TestSaveTOMLLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.toml")

	for i := 0; i < 3; i++ {
		if err := SaveTOML(path, sample{Count: i}); err != nil {
			t.Fatalf("SaveTOML failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only sample.toml, found %d entries", len(entries))
	}
}

func TestLoadTOMLReportsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := os.WriteFile(path, []byte("name = \"x\"\ncolour = \"blue\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	var loaded sample
	undecoded, err := LoadTOML(path, &loaded)
	if err != nil {
		t.Fatalf("LoadTOML failed: %v", err)
	}
	if len(undecoded) != 1 || undecoded[0] != "colour" {
		t.Errorf("Expected [colour], got %v", undecoded)
	}
}

func TestLoadTOMLMissingFile(t *testing.T) {
	var loaded sample
	if _, err := LoadTOML(filepath.Join(t.TempDir(), "missing.toml"), &loaded); !os.IsNotExist(err) {
		t.Errorf("Expected a not-exist error, got %v", err)
	}
}
