package configs

import (
	"fmt"
	"path/filepath"

	"github.com/PolarWolf314/rimu/internal/utils"
)

// DirName is the name of the per-repository state directory.
const DirName = ".rimu"

type RepoSettings struct {
	RepoName    string
	RepoPath    string
	RimuPath    string
	ConfigPath  string
	KeyringPath string
	JournalPath string
	StatePath   string
}

var RepoRimuSettings = &RepoSettings{}

// InitRepoSettings locates the nearest repository above the working
// directory. RepoPath is empty if there is none.
func InitRepoSettings() error {
	repoPath, err := utils.FindRepoRoot(DirName)
	if err != nil {
		return fmt.Errorf("error getting repository root: %w", err)
	}
	if repoPath == "" {
		RepoRimuSettings = &RepoSettings{}
		return nil
	}

	RepoRimuSettings = SettingsFor(repoPath)
	return nil
}

// SettingsFor returns the paths of the repository rooted at root.
func SettingsFor(root string) *RepoSettings {
	dir := filepath.Join(root, DirName)
	return &RepoSettings{
		RepoName:    filepath.Base(root),
		RepoPath:    root,
		RimuPath:    dir,
		ConfigPath:  ConfigPath(root),
		KeyringPath: filepath.Join(dir, "keyring.toml"),
		JournalPath: filepath.Join(dir, "journal.jsonl"),
		StatePath:   filepath.Join(dir, "state"),
	}
}

// ConfigPath returns the config file location for the repository at root.
func ConfigPath(root string) string {
	return filepath.Join(root, DirName, "config.toml")
}
