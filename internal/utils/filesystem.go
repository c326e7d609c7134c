package utils

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// FindRepoRoot traverses up from the working directory to find the nearest
// directory containing dirName. Returns an empty string if none is found.
func FindRepoRoot(dirName string) (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return FindRepoRootFrom(currentDir, dirName)
}

// FindRepoRootFrom is FindRepoRoot starting at start. The search stops one
// level above the user's home directory.
func FindRepoRootFrom(start, dirName string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	currentDir := start
	for {
		if currentDir == path.Join(homeDir, "..") {
			return "", nil
		}

		fileInfo, err := os.Stat(filepath.Join(currentDir, dirName))
		if err == nil {
			if fileInfo.IsDir() {
				return currentDir, nil
			}
		} else if !os.IsNotExist(err) {
			return "", fmt.Errorf("error checking for %s directory at %s: %w", dirName, currentDir, err)
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return "", nil
		}
		currentDir = parentDir
	}
}
