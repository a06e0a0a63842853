package tasting

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// writeZipArchive creates a zip file at path containing the given
// name → content entries.
func writeZipArchive(t *testing.T, path string, files map[string]string) {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

// writeTarArchive creates a tar (optionally gzipped) file at path.
func writeTarArchive(t *testing.T, path string, files map[string]string, compress bool) {
	t.Helper()

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		hdr := &tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	data := buf.Bytes()
	if compress {
		var gzBuf bytes.Buffer
		gw := gzip.NewWriter(&gzBuf)
		if _, err := gw.Write(data); err != nil {
			t.Fatal(err)
		}
		if err := gw.Close(); err != nil {
			t.Fatal(err)
		}
		data = gzBuf.Bytes()
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveExtractsArchives(t *testing.T) {
	cache := newTestCache(t, &erroringClient{})
	files := map[string]string{
		"weights.bin":      "weights",
		"config/model.cfg": "config",
	}

	tests := []struct {
		name    string
		file    string
		write   func(t *testing.T, path string)
		wantDir string
	}{
		{
			name:    "zip",
			file:    "model.zip",
			write:   func(t *testing.T, p string) { writeZipArchive(t, p, files) },
			wantDir: "model-zip-extracted",
		},
		{
			name:    "tar",
			file:    "model.tar",
			write:   func(t *testing.T, p string) { writeTarArchive(t, p, files, false) },
			wantDir: "model-tar-extracted",
		},
		{
			name:    "tar.gz",
			file:    "model.tar.gz",
			write:   func(t *testing.T, p string) { writeTarArchive(t, p, files, true) },
			wantDir: "model-tar-gz-extracted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			archivePath := filepath.Join(dir, tt.file)
			tt.write(t, archivePath)

			got, err := cache.Resolve(context.Background(), archivePath, WithExtract())
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != filepath.Join(dir, tt.wantDir) {
				t.Errorf("Resolve() = %q, want %q", got, filepath.Join(dir, tt.wantDir))
			}

			for name, content := range files {
				data, err := os.ReadFile(filepath.Join(got, filepath.FromSlash(name)))
				if err != nil {
					t.Fatalf("reading extracted %s: %v", name, err)
				}
				if string(data) != content {
					t.Errorf("extracted %s = %q, want %q", name, data, content)
				}
			}
		})
	}
}

func TestResolveExtractNonArchive(t *testing.T) {
	cache := newTestCache(t, &erroringClient{})

	path := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(path, []byte("just text"), 0644); err != nil {
		t.Fatal(err)
	}

	// Extraction of a non-archive is a no-op, not an error.
	got, err := cache.Resolve(context.Background(), path, WithExtract())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != path {
		t.Errorf("Resolve() = %q, want %q", got, path)
	}
}

func TestExtractionIdempotence(t *testing.T) {
	cache := newTestCache(t, &erroringClient{})

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "model.zip")
	writeZipArchive(t, archivePath, map[string]string{"weights.bin": "weights"})

	extracted, err := cache.Resolve(context.Background(), archivePath, WithExtract())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// A marker file survives re-resolution without force.
	marker := filepath.Join(extracted, "marker")
	if err := os.WriteFile(marker, []byte("m"), 0644); err != nil {
		t.Fatal(err)
	}

	again, err := cache.Resolve(context.Background(), archivePath, WithExtract())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if again != extracted {
		t.Errorf("Resolve() = %q, want %q", again, extracted)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Error("extraction re-ran without force-reextract")
	}

	// Force re-extraction clears the directory first.
	forced, err := cache.Resolve(context.Background(), archivePath, WithForceReextract())
	if err != nil {
		t.Fatalf("Resolve(force) error = %v", err)
	}
	if forced != extracted {
		t.Errorf("Resolve(force) = %q, want %q", forced, extracted)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("force-reextract should have cleared the stale directory")
	}
}

func TestResolveRemoteArchiveExtraction(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("weights.bin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("weights")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	server := newArtifactServer(t, buf.Bytes(), `"z1"`)
	cache := newTestCache(t, server.Client())
	url := server.URL + "/model.zip"

	extracted, err := cache.Resolve(context.Background(), url, WithExtract())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !strings.HasSuffix(extracted, "-extracted") {
		t.Errorf("Resolve() = %q, want an extraction directory", extracted)
	}
	data, err := os.ReadFile(filepath.Join(extracted, "weights.bin"))
	if err != nil {
		t.Fatalf("reading extracted file: %v", err)
	}
	if string(data) != "weights" {
		t.Errorf("extracted content = %q, want %q", data, "weights")
	}

	// Resolving again reuses both the cached archive and the extraction.
	again, err := cache.Resolve(context.Background(), url, WithExtract())
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if again != extracted {
		t.Errorf("second Resolve() = %q, want %q", again, extracted)
	}
	if n := server.getCount.Load(); n != 1 {
		t.Errorf("archive downloaded %d times, want 1", n)
	}
}

func TestExtractRejectsTraversal(t *testing.T) {
	cache := newTestCache(t, &erroringClient{})

	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.zip")
	writeZipArchive(t, archivePath, map[string]string{"../escape.txt": "evil"})

	_, err := cache.Resolve(context.Background(), archivePath, WithExtract())
	if !errors.Is(err, ErrUnsupportedArchive) {
		t.Errorf("Resolve() error = %v, want ErrUnsupportedArchive", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "..", "escape.txt")); !os.IsNotExist(statErr) {
		t.Error("traversal entry escaped the extraction directory")
	}
}

func TestSniffArchive(t *testing.T) {
	dir := t.TempDir()

	zipPath := filepath.Join(dir, "a.zip")
	writeZipArchive(t, zipPath, map[string]string{"f": "x"})
	tarPath := filepath.Join(dir, "a.tar")
	writeTarArchive(t, tarPath, map[string]string{"f": "x"}, false)
	tgzPath := filepath.Join(dir, "a.tgz")
	writeTarArchive(t, tgzPath, map[string]string{"f": "x"}, true)
	plainPath := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(plainPath, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
		want archiveKind
	}{
		{"zip", zipPath, archiveZip},
		{"tar", tarPath, archiveTar},
		{"tar.gz", tgzPath, archiveTarGz},
		{"plain", plainPath, archiveNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sniffArchive(tt.path)
			if err != nil {
				t.Fatalf("sniffArchive() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("sniffArchive() = %v, want %v", got, tt.want)
			}
		})
	}
}
