// Command kiwi-tasting is the CLI harness for the tasting package.
// It resolves artifacts through the local cache and inspects model and
// dataset registries.
//
// Configuration is loaded from environment variables:
//   - KIWI-TASTING_CACHE_DIR: Override for the cache directory (optional)
package main

import (
	"errors"
	"os"

	tasting "github.com/Unbabel/OpenKiwiTasting"
)

// CLI exit codes for standardized error reporting.
const (
	// ExitSuccess indicates the operation completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitInvalidArgs indicates invalid arguments or references.
	ExitInvalidArgs = 2

	// ExitNotFound indicates the referenced artifact does not exist.
	ExitNotFound = 3

	// ExitOffline indicates offline mode with no cached copy.
	ExitOffline = 4

	// ExitConnectionError indicates a network failure with no fallback.
	ExitConnectionError = 5

	// ExitUnsupportedArchive indicates extraction of an unknown format.
	ExitUnsupportedArchive = 6

	// ExitStorageError indicates a filesystem operation failed.
	ExitStorageError = 7

	// ExitConfigError indicates an invalid registry or dataset file.
	ExitConfigError = 8
)

func main() {
	cfg := tasting.Config{
		AppName: "kiwi-tasting",
		// CacheDir can be set via KIWI-TASTING_CACHE_DIR env var
		// (handled by the cache layer)
	}

	cmd := tasting.NewCommand(cfg)
	if err := cmd.Execute(); err != nil {
		os.Exit(exitCodeFromError(err))
	}
}

// exitCodeFromError maps error types to exit codes.
func exitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, tasting.ErrInvalidReference):
		return ExitInvalidArgs
	case errors.Is(err, tasting.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, tasting.ErrOfflineUnavailable):
		return ExitOffline
	case errors.Is(err, tasting.ErrConnectionUnavailable):
		return ExitConnectionError
	case errors.Is(err, tasting.ErrUnsupportedArchive):
		return ExitUnsupportedArchive
	case errors.Is(err, tasting.ErrStorage):
		return ExitStorageError
	case errors.Is(err, tasting.ErrConfig), errors.Is(err, tasting.ErrDataset):
		return ExitConfigError
	default:
		return ExitGeneralError
	}
}
