package tasting

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config configures a Cache.
type Config struct {
	// AppName determines the cache directory name and the environment
	// variable override.
	// Example: "kiwi-tasting" → ~/.cache/kiwi-tasting/ on Linux
	AppName string

	// CacheDir overrides the default cache directory.
	// If empty, uses the platform-appropriate default.
	// Can also be set via environment variable: <APPNAME>_CACHE_DIR
	CacheDir string
}

// Cache resolves artifact references (local paths or http(s) URLs) to
// local files, downloading and caching remote resources under a single
// root directory. Safe for concurrent use across goroutines and
// processes; see the package documentation for the locking model.
type Cache struct {
	// dir is the cache root directory.
	dir string

	// httpClient is used for all HTTP requests.
	httpClient HTTPClient

	// logger receives diagnostic messages. May be nil.
	logger Logger

	// userAgent is sent with remote requests. May be empty.
	userAgent string

	// lockTimeout is the maximum wait for per-entry locks.
	// Zero or negative waits forever.
	lockTimeout time.Duration

	// metadataTimeout bounds the ETag probe request.
	metadataTimeout time.Duration
}

// entryMetadata is the sidecar record written next to each cache entry.
// It exists for provenance and debugging; cache hits never consult it.
type entryMetadata struct {
	URL  string `json:"url"`
	ETag string `json:"etag"`
}

// envVarName constructs an environment variable name from the app name.
// Converts appName to uppercase and appends "_CACHE_DIR".
// Example: envVarName("kiwi-tasting") returns "KIWI-TASTING_CACHE_DIR".
func envVarName(appName string) string {
	return strings.ToUpper(appName) + "_CACHE_DIR"
}

// NewCache creates a Cache for the given configuration.
// The cache root is chosen with precedence: environment variable,
// Config.CacheDir, platform default. The directory is created if needed.
func NewCache(cfg Config, opts ...Option) (*Cache, error) {
	if cfg.AppName == "" {
		return nil, fmt.Errorf("%w: AppName is required", ErrConfig)
	}

	ccfg := newCacheConfig()
	for _, opt := range opts {
		opt(ccfg)
	}

	var dir string
	if envDir := os.Getenv(envVarName(cfg.AppName)); envDir != "" {
		dir = envDir
	} else if cfg.CacheDir != "" {
		dir = cfg.CacheDir
	} else {
		defaultDir, err := getDefaultCacheDir(cfg.AppName)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to get default cache dir: %v", ErrStorage, err)
		}
		dir = defaultDir
	}

	c := &Cache{
		dir:             dir,
		httpClient:      ccfg.httpClient,
		logger:          ccfg.logger,
		userAgent:       ccfg.userAgent,
		lockTimeout:     ccfg.lockTimeout,
		metadataTimeout: ccfg.metadataTimeout,
	}

	if err := c.ensureDir(dir); err != nil {
		return nil, err
	}

	return c, nil
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Resolve resolves a reference to a local filesystem path.
//
// An existing local path is returned unchanged with no network access. An
// http(s) URL goes through the fetch-and-cache protocol: probe the
// resource's ETag, derive the deterministic cache filename, and download
// under a per-entry lock unless a current copy is already cached. When
// the probe fails or WithOfflineOnly is set, the most recent locally
// cached copy for the URL is returned instead.
//
// With WithExtract, a resolved zip or tar archive is unpacked (once) and
// the extraction directory is returned.
func (c *Cache) Resolve(ctx context.Context, ref string, opts ...ResolveOption) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty reference", ErrInvalidReference)
	}

	rcfg := &resolveConfig{}
	for _, opt := range opts {
		opt(rcfg)
	}

	var path string
	switch {
	case isRemoteURL(ref):
		p, err := c.getFromCache(ctx, ref, rcfg)
		if err != nil {
			return "", err
		}
		path = p
	case pathExists(ref):
		// Local file or directory: verbatim pass-through.
		path = ref
	case !hasURLScheme(ref):
		return "", fmt.Errorf("%w: file %s not found", ErrNotFound, ref)
	default:
		return "", fmt.Errorf("%w: unable to parse %q as a URL or as a local path", ErrInvalidReference, ref)
	}

	if rcfg.extract {
		return c.extractIfArchive(path, rcfg)
	}
	return path, nil
}

// isRemoteURL reports whether ref is a URL with a network scheme.
func isRemoteURL(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// hasURLScheme reports whether ref parses as a URL with any scheme.
func hasURLScheme(ref string) bool {
	u, err := url.Parse(ref)
	return err == nil && u.Scheme != ""
}

// pathExists reports whether a file or directory exists at path.
func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// urlToFilename derives the deterministic cache filename for a
// (URL, etag) pair: the SHA-256 hex of the URL, plus "." and the SHA-256
// hex of the etag when one is known. Entries for the same URL therefore
// share a stem, which the offline fallback scan relies on.
func urlToFilename(rawURL, etag string) string {
	urlHash := sha256.Sum256([]byte(rawURL))
	name := hex.EncodeToString(urlHash[:])
	if etag != "" {
		etagHash := sha256.Sum256([]byte(etag))
		name += "." + hex.EncodeToString(etagHash[:])
	}
	return name
}

// probeResult carries the outcome of the metadata probe.
type probeResult struct {
	// etag is the freshness token, possibly empty.
	etag string

	// downloadURL is the effective URL to fetch, differing from the
	// display URL after a redirect.
	downloadURL string
}

// probe issues a HEAD request to obtain the resource's freshness token
// and effective download URL.
//
// Connection errors and timeouts return (nil, nil): the caller degrades
// to offline fallback. Definitive server answers (404, 5xx) and parent
// context cancellation are returned as hard errors.
func (c *Cache) probe(ctx context.Context, rawURL string) (*probeResult, error) {
	probeCtx, cancel := context.WithTimeout(ctx, c.metadataTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidReference, rawURL, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Cancellation of the caller's context is not a connectivity
		// problem; abort instead of falling back.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if c.logger != nil {
			c.logger.Debug("metadata probe failed, falling back to cache", "url", rawURL, "error", err)
		}
		return nil, nil
	}
	defer resp.Body.Close()

	result := &probeResult{downloadURL: rawURL}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	case resp.StatusCode >= 300 && resp.StatusCode <= 399:
		// Record the redirect target so the download fetches the exact
		// resource the probe saw.
		if loc := resp.Header.Get("Location"); loc != "" {
			result.downloadURL = loc
		}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("tasting: metadata probe for %s: unexpected status %d", rawURL, resp.StatusCode)
	default:
		// A redirect-following client reports the effective URL on the
		// final request.
		if resp.Request != nil && resp.Request.URL != nil {
			if effective := resp.Request.URL.String(); effective != rawURL {
				result.downloadURL = effective
			}
		}
	}

	// A custom header indicating the etag of a linked resource wins over
	// the regular etag header.
	result.etag = resp.Header.Get("X-Linked-Etag")
	if result.etag == "" {
		result.etag = resp.Header.Get("ETag")
	}
	if result.etag == "" && c.logger != nil {
		c.logger.Warn("resource has no ETag, cached copies cannot be reliably validated", "url", rawURL)
	}

	return result, nil
}

// getFromCache implements the fetch-and-cache protocol for a remote URL.
func (c *Cache) getFromCache(ctx context.Context, rawURL string, rcfg *resolveConfig) (string, error) {
	if err := c.ensureDir(c.dir); err != nil {
		return "", err
	}

	downloadURL := rawURL
	var etag string
	etagKnown := false

	if !rcfg.offlineOnly {
		res, err := c.probe(ctx, rawURL)
		if err != nil {
			return "", err
		}
		if res != nil {
			etagKnown = true
			etag = res.etag
			downloadURL = res.downloadURL
		}
	}

	cachePath := filepath.Join(c.dir, urlToFilename(rawURL, etag))

	// Freshness unknown: no connectivity or offline mode. Serve the best
	// local copy or fail.
	if !etagKnown {
		if pathExists(cachePath) {
			return cachePath, nil
		}
		if match := c.newestLocalMatch(rawURL); match != "" {
			return match, nil
		}
		if rcfg.offlineOnly {
			return "", fmt.Errorf("%w: %s", ErrOfflineUnavailable, rawURL)
		}
		return "", fmt.Errorf("%w: %s", ErrConnectionUnavailable, rawURL)
	}

	if pathExists(cachePath) && !rcfg.forceRefresh {
		return cachePath, nil
	}

	// Serialize the download of this entry across threads and processes.
	lock, err := newFileLock(cachePath+".lock", c.lockTimeout)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer lock.Unlock()

	// The download may have completed while the lock was contended.
	if pathExists(cachePath) && !rcfg.forceRefresh {
		return cachePath, nil
	}

	if c.logger != nil {
		c.logger.Info("downloading", "url", rawURL, "to", cachePath)
	}
	if err := c.download(ctx, downloadURL, cachePath, rcfg); err != nil {
		return "", err
	}

	meta, err := json.Marshal(entryMetadata{URL: rawURL, ETag: etag})
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal metadata: %v", ErrStorage, err)
	}
	if err := c.atomicWrite(cachePath+".json", meta); err != nil {
		return "", err
	}

	return cachePath, nil
}

// newestLocalMatch scans the cache root for previously cached entries of
// the given URL (any etag) and returns the most recently modified one, or
// "" when none exist. Sidecar files and extraction directories are
// skipped.
func (c *Cache) newestLocalMatch(rawURL string) string {
	stem := urlToFilename(rawURL, "")

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return ""
	}

	var (
		newest     string
		newestTime time.Time
	)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, stem) {
			continue
		}
		if strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".lock") ||
			strings.HasSuffix(name, ".incomplete") || strings.HasSuffix(name, ".tmp") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(c.dir, name)
			newestTime = info.ModTime()
		}
	}
	return newest
}

// download fetches downloadURL into cachePath. The body is written to a
// sibling temporary file and renamed into place on success, so readers
// never observe a partial entry. With resume enabled the temporary file
// is the durable "<hash>.incomplete" buffer and the request asks only for
// the bytes beyond its current size.
//
// Callers must hold the entry's lock.
func (c *Cache) download(ctx context.Context, downloadURL, cachePath string, rcfg *resolveConfig) (err error) {
	var (
		tmpPath    string
		out        *os.File
		resumeSize int64
	)

	if rcfg.resume {
		tmpPath = cachePath + ".incomplete"
		if info, statErr := os.Stat(tmpPath); statErr == nil {
			resumeSize = info.Size()
		}
		out, err = os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	} else {
		tmpPath = cachePath + ".tmp"
		out, err = os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer func() {
		if out != nil {
			out.Close()
		}
		// A failed resumable download keeps its .incomplete buffer so a
		// later attempt can continue; a plain temp file is useless.
		if err != nil && !rcfg.resume {
			os.Remove(tmpPath)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidReference, downloadURL, err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if resumeSize > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeSize))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: downloading %s: %v", ErrConnectionUnavailable, downloadURL, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if resumeSize > 0 {
			// Server ignored the Range request; start over.
			if err := out.Truncate(0); err != nil {
				return fmt.Errorf("%w: %v", ErrStorage, err)
			}
			if _, err := out.Seek(0, io.SeekStart); err != nil {
				return fmt.Errorf("%w: %v", ErrStorage, err)
			}
			resumeSize = 0
		}
	case http.StatusPartialContent:
		// Appending from resumeSize as requested.
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, downloadURL)
	default:
		return fmt.Errorf("tasting: downloading %s: unexpected status %d", downloadURL, resp.StatusCode)
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = resp.ContentLength + resumeSize
	}
	received := resumeSize
	if rcfg.progressFn != nil {
		rcfg.progressFn(received, total)
	}

	var reader io.Reader = resp.Body
	if rcfg.progressFn != nil {
		reader = &progressReader{reader: resp.Body, onProgress: func(delta int64) {
			received += delta
			rcfg.progressFn(received, total)
		}}
	}

	if _, err := io.Copy(out, reader); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: downloading %s: %v", ErrConnectionUnavailable, downloadURL, err)
	}

	if err := out.Close(); err != nil {
		out = nil
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	out = nil

	if err := os.Rename(tmpPath, cachePath); err != nil {
		return fmt.Errorf("%w: failed to move download into place: %v", ErrStorage, err)
	}
	return nil
}

// atomicWrite writes data to path using write-then-rename for atomicity.
func (c *Cache) atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write temp file: %v", ErrStorage, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // cleanup on failure
		return fmt.Errorf("%w: failed to rename temp file: %v", ErrStorage, err)
	}
	return nil
}

// ensureDir creates a directory and all parents if they don't exist.
func (c *Cache) ensureDir(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("%w: failed to create directory %s: %v", ErrStorage, path, err)
	}
	return nil
}

// progressReader wraps an io.Reader and reports progress as bytes are
// read. The callback receives the delta just read, not a cumulative
// count.
type progressReader struct {
	reader     io.Reader
	onProgress func(delta int64)
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 && pr.onProgress != nil {
		pr.onProgress(int64(n))
	}
	return
}
