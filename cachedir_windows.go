//go:build windows

package tasting

import (
	"fmt"
	"os"
	"path/filepath"
)

// getDefaultCacheDir returns the default cache directory for Windows:
// %LOCALAPPDATA%\<appName>\cache\
func getDefaultCacheDir(appName string) (string, error) {
	localAppData := os.Getenv("LOCALAPPDATA")
	if localAppData == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("LOCALAPPDATA not set and no home directory: %w", err)
		}
		localAppData = filepath.Join(home, "AppData", "Local")
	}
	return filepath.Join(localAppData, appName, "cache"), nil
}
