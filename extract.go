package tasting

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// archiveKind identifies the archive format of a cached file.
type archiveKind int

const (
	archiveNone archiveKind = iota
	archiveZip
	archiveTar
	archiveTarGz
)

// sniffArchive detects the archive format of the file at path by magic
// bytes: zip local/empty headers, the gzip header (assumed to wrap a
// tar), or a ustar magic at offset 257.
func sniffArchive(path string) (archiveKind, error) {
	f, err := os.Open(path)
	if err != nil {
		return archiveNone, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer f.Close()

	header := make([]byte, 265)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		return archiveNone, nil
	}
	header = header[:n]

	switch {
	case len(header) >= 4 && header[0] == 'P' && header[1] == 'K' &&
		(header[2] == 3 || header[2] == 5 || header[2] == 7):
		return archiveZip, nil
	case len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		return archiveTarGz, nil
	case len(header) >= 262 && string(header[257:262]) == "ustar":
		return archiveTar, nil
	}
	return archiveNone, nil
}

// extractIfArchive unpacks path when it is a recognized archive and
// returns the extraction directory; non-archives are returned unchanged.
//
// The extraction directory is derived from the archive filename with
// dots replaced by dashes and an "-extracted" suffix, created next to
// the archive. Extraction is idempotent: a populated directory is
// returned as-is unless forceReextract is set. The archive's per-entry
// lock serializes extraction across callers.
func (c *Cache) extractIfArchive(path string, rcfg *resolveConfig) (string, error) {
	kind, err := sniffArchive(path)
	if err != nil {
		return "", err
	}
	if kind == archiveNone {
		return path, nil
	}

	dir, file := filepath.Split(path)
	extractPath := filepath.Join(dir, strings.ReplaceAll(file, ".", "-")+"-extracted")

	if isNonEmptyDir(extractPath) && !rcfg.forceReextract {
		return extractPath, nil
	}

	// Prevent parallel extractions of the same archive.
	lock, err := newFileLock(path+".lock", c.lockTimeout)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer lock.Unlock()

	// Another caller may have finished while the lock was contended.
	if isNonEmptyDir(extractPath) && !rcfg.forceReextract {
		return extractPath, nil
	}

	// Clear any stale or partial extraction before unpacking.
	if err := os.RemoveAll(extractPath); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := os.MkdirAll(extractPath, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if c.logger != nil {
		c.logger.Info("extracting archive", "archive", path, "to", extractPath)
	}

	switch kind {
	case archiveZip:
		err = extractZip(path, extractPath)
	case archiveTar, archiveTarGz:
		err = extractTar(path, extractPath, kind == archiveTarGz)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedArchive, path)
	}
	if err != nil {
		return "", err
	}

	return extractPath, nil
}

// isNonEmptyDir reports whether path is a directory with at least one
// entry.
func isNonEmptyDir(path string) bool {
	entries, err := os.ReadDir(path)
	return err == nil && len(entries) > 0
}

// sanitizeExtractPath joins name onto destDir, rejecting entries that
// would escape the destination.
func sanitizeExtractPath(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if target != destDir && !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: illegal entry path %q", ErrUnsupportedArchive, name)
	}
	return target, nil
}

// extractZip unpacks a zip archive into destDir.
func extractZip(archivePath, destDir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUnsupportedArchive, archivePath, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		target, err := sanitizeExtractPath(destDir, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("%w: %v", ErrStorage, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}

		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnsupportedArchive, archivePath, err)
		}
		err = writeExtractedFile(target, rc, f.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// extractTar unpacks a tar (optionally gzip-compressed) archive into
// destDir.
func extractTar(archivePath, destDir string, compressed bool) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer f.Close()

	var reader io.Reader = f
	if compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnsupportedArchive, archivePath, err)
		}
		defer gz.Close()
		reader = gz
	}

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrUnsupportedArchive, archivePath, err)
		}

		target, err := sanitizeExtractPath(destDir, hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("%w: %v", ErrStorage, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("%w: %v", ErrStorage, err)
			}
			if err := writeExtractedFile(target, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		default:
			// Symlinks, devices and other special entries are skipped;
			// model archives contain only plain files and directories.
		}
	}
}

// writeExtractedFile writes the contents of r to target with the given
// mode.
func writeExtractedFile(target string, r io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}
