package tasting

import (
	"net/http"
	"time"
)

// Timeout constants for cache operations.
const (
	// DefaultMetadataTimeout bounds the HEAD request used to probe a
	// resource's ETag. A slow or dead server degrades to offline fallback
	// rather than stalling resolution.
	DefaultMetadataTimeout = 10 * time.Second

	// DefaultLockTimeout is the default wait for a per-entry lock. Zero,
	// meaning callers block until the current holder finishes its
	// download or extraction.
	DefaultLockTimeout = 0 * time.Second
)

// Option configures a Cache.
type Option func(*cacheConfig)

// cacheConfig holds configuration for Cache construction.
type cacheConfig struct {
	// httpClient is used for all HTTP requests.
	httpClient HTTPClient

	// logger receives diagnostic log messages.
	logger Logger

	// userAgent is sent with remote requests. May be empty.
	userAgent string

	// lockTimeout is the maximum wait for per-entry locks.
	// Zero or negative waits forever.
	lockTimeout time.Duration

	// metadataTimeout bounds the ETag probe request.
	metadataTimeout time.Duration
}

// newCacheConfig returns a cacheConfig with default values.
func newCacheConfig() *cacheConfig {
	return &cacheConfig{
		httpClient:      http.DefaultClient,
		lockTimeout:     DefaultLockTimeout,
		metadataTimeout: DefaultMetadataTimeout,
	}
}

// WithHTTPClient sets a custom HTTP client for remote requests.
// Useful for testing with mock servers or customizing timeouts.
// If not set, http.DefaultClient is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *cacheConfig) {
		c.httpClient = client
	}
}

// WithLogger sets a logger for diagnostic output.
// If not set, logging is disabled.
func WithLogger(logger Logger) Option {
	return func(c *cacheConfig) {
		c.logger = logger
	}
}

// WithUserAgent sets the User-Agent header for remote requests.
func WithUserAgent(ua string) Option {
	return func(c *cacheConfig) {
		c.userAgent = ua
	}
}

// WithLockTimeout sets the maximum wait for per-entry locks.
// Zero or negative waits forever, which is the default.
func WithLockTimeout(d time.Duration) Option {
	return func(c *cacheConfig) {
		c.lockTimeout = d
	}
}

// ResolveOption configures a single Resolve call.
type ResolveOption func(*resolveConfig)

// resolveConfig holds configuration for a resolve operation.
type resolveConfig struct {
	// forceRefresh bypasses an existing cached copy and re-fetches.
	forceRefresh bool

	// resume continues an interrupted download from its current offset.
	resume bool

	// offlineOnly forbids network access entirely.
	offlineOnly bool

	// extract unpacks a resolved zip/tar archive and returns the
	// extraction directory instead of the raw file.
	extract bool

	// forceReextract re-extracts even into a populated directory.
	forceReextract bool

	// progressFn is called with (received, total) byte counts as the
	// download proceeds. total is -1 when unknown.
	progressFn func(received, total int64)
}

// WithForceRefresh bypasses any existing cached copy and re-fetches the
// resource.
func WithForceRefresh() ResolveOption {
	return func(c *resolveConfig) {
		c.forceRefresh = true
	}
}

// WithResume continues an interrupted download from the bytes already on
// disk instead of restarting.
func WithResume() ResolveOption {
	return func(c *resolveConfig) {
		c.resume = true
	}
}

// WithOfflineOnly forbids network access; only already-cached entries are
// used. Resolve returns ErrOfflineUnavailable when nothing matches.
func WithOfflineOnly() ResolveOption {
	return func(c *resolveConfig) {
		c.offlineOnly = true
	}
}

// WithExtract unpacks the resolved file when it is a zip or tar archive
// and returns the extraction directory. Non-archives are returned
// unchanged.
func WithExtract() ResolveOption {
	return func(c *resolveConfig) {
		c.extract = true
	}
}

// WithForceReextract re-extracts an archive even if a populated
// extraction directory already exists. Implies WithExtract.
func WithForceReextract() ResolveOption {
	return func(c *resolveConfig) {
		c.extract = true
		c.forceReextract = true
	}
}

// WithProgress sets a callback for download progress. The callback is
// invoked as bytes arrive and must be fast; total is -1 when the server
// does not report a length.
func WithProgress(fn func(received, total int64)) ResolveOption {
	return func(c *resolveConfig) {
		c.progressFn = fn
	}
}

// HTTPClient is the interface for HTTP operations.
// *http.Client satisfies this interface.
type HTTPClient interface {
	// Do sends an HTTP request and returns an HTTP response.
	Do(req *http.Request) (*http.Response, error)
}

// Logger is the interface for diagnostic logging.
// Compatible with slog, zap, logrus, and other structured loggers.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}
