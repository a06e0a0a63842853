//go:build !windows

package tasting

import (
	"os"
	"path/filepath"
	"runtime"
)

// getDefaultCacheDir returns the default cache directory for Unix systems.
// Linux uses $XDG_CACHE_HOME/<appName>/ if set, otherwise
// ~/.cache/<appName>/. macOS uses ~/Library/Caches/<appName>/.
func getDefaultCacheDir(appName string) (string, error) {
	if runtime.GOOS == "darwin" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Caches", appName), nil
	}

	if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
		return filepath.Join(xdgCache, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
