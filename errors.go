package tasting

import "errors"

// Sentinel errors for artifact resolution and configuration loading.
// Use errors.Is() to check for specific error conditions.
var (
	// ErrInvalidReference indicates a reference that is neither an existing
	// local path nor a parseable http(s) URL.
	ErrInvalidReference = errors.New("tasting: invalid artifact reference")

	// ErrNotFound indicates a local path reference that does not exist, or
	// a remote resource the server reports as missing.
	ErrNotFound = errors.New("tasting: artifact not found")

	// ErrConnectionUnavailable indicates a remote fetch was needed but the
	// server was unreachable and no usable cached copy exists. Check
	// network connectivity and retry.
	ErrConnectionUnavailable = errors.New("tasting: connection error and no cached copy available")

	// ErrOfflineUnavailable indicates offline mode was requested and no
	// cached entry matches. Enable network access or pre-populate the
	// cache.
	ErrOfflineUnavailable = errors.New("tasting: offline mode requested and no cached copy available")

	// ErrUnsupportedArchive indicates extraction was requested on a file
	// whose archive format could not be identified.
	ErrUnsupportedArchive = errors.New("tasting: unsupported archive format")

	// ErrStorage indicates a filesystem operation under the cache root
	// failed.
	ErrStorage = errors.New("tasting: storage error")

	// ErrConfig indicates a registry configuration file is missing,
	// malformed, or contains unrecognized keys.
	ErrConfig = errors.New("tasting: invalid configuration")

	// ErrDataset indicates a dataset could not be loaded or its files are
	// not line-aligned.
	ErrDataset = errors.New("tasting: invalid dataset")
)
