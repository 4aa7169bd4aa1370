// Package config provides configuration management for metarelay.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dsifry/metarelay/internal/appinfo"
)

// DataDir returns the directory holding the relay's local state (database
// and instance lock): %LOCALAPPDATA%\metarelay on Windows, the user config
// dir (typically ~/.config/metarelay) elsewhere.
func DataDir() (string, error) {
	base, err := platformBaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appinfo.DirName), nil
}

func platformBaseDir() (string, error) {
	// Windows keeps machine-local app state in LOCALAPPDATA; UserConfigDir
	// would land in the roaming profile.
	if runtime.GOOS == "windows" {
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return localAppData, nil
		}
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return dir, nil
}

// EnsureDataDir creates the data directory if it doesn't exist. Owner-only:
// it will hold the database with dispatch output in it.
func EnsureDataDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create data dir %q: %w", dir, err)
	}

	return dir, nil
}

// DefaultDBPath returns the default SQLite database path, creating the data
// directory if needed.
func DefaultDBPath() (string, error) {
	dir, err := EnsureDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appinfo.DatabaseFileName), nil
}
