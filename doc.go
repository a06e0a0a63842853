// Package tasting provides the plumbing behind the Kiwi Tasting demo: a
// local cache for remote model and dataset artifacts, strict loaders for
// the model/dataset registries, readers for word-level quality estimation
// datasets, and helpers for turning per-token predictions into colored
// annotation spans.
//
// The central piece is the Cache, which resolves a reference that is
// either a local path or an http(s) URL to a local file, downloading and
// caching remote resources exactly once:
//
//	cache, err := tasting.NewCache(tasting.Config{AppName: "kiwi-tasting"})
//	...
//	path, err := cache.Resolve(ctx, "https://example.org/model.zip",
//		tasting.WithResume(), tasting.WithExtract())
//
// # Thread Safety
//
// Cache is safe for concurrent use from multiple goroutines and multiple
// processes. Coordination is purely filesystem based: a per-entry advisory
// lock (flock on Unix, LockFileEx on Windows) serializes download and
// extraction of a given entry, so concurrent callers for the same URL
// converge on a single download. The lock is tied to the holding process
// and is released by the operating system if that process dies; the lock
// file itself is never removed.
//
// # Storage
//
// Cache entries live under a configured root directory:
//   - Linux: $XDG_CACHE_HOME/<app>/ or ~/.cache/<app>/
//   - macOS: ~/Library/Caches/<app>/
//   - Windows: %LOCALAPPDATA%\<app>\cache\
//
// The location can be overridden via Config.CacheDir or the
// <APPNAME>_CACHE_DIR environment variable. Entries are never evicted by
// this package.
package tasting
