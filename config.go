package tasting

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ModelEntry describes a pretrained model in the model registry.
type ModelEntry struct {
	// LP is the language pair the model was trained for, e.g. "en-de".
	LP string `yaml:"LP"`

	// URL is the artifact reference for the model: a local path or an
	// http(s) URL suitable for Cache.Resolve.
	URL string `yaml:"URL"`
}

// DatasetEntry describes a parallel quality estimation dataset in the
// dataset registry. All paths are absolute after loading.
type DatasetEntry struct {
	// Directory optionally anchors the relative file paths below.
	Directory string `yaml:"directory"`

	// Source is the file of source-language sentences, one per line.
	Source string `yaml:"source"`

	// Target is the file of target-language sentences, one per line.
	Target string `yaml:"target"`

	// SentenceScores is the file of per-sentence HTER scores.
	SentenceScores string `yaml:"sentence_scores"`

	// TargetTags is the file of per-token OK/BAD tags for the target
	// side, possibly in the interleaved gap-tag format.
	TargetTags string `yaml:"target_tags"`

	// SourceTags is the optional file of per-token tags for the source
	// side.
	SourceTags string `yaml:"source_tags"`
}

// modelsFile is the on-disk shape of the model registry.
type modelsFile struct {
	Models map[string]ModelEntry `yaml:"models"`
}

// datasetsFile is the on-disk shape of the dataset registry.
type datasetsFile struct {
	Data map[string]DatasetEntry `yaml:"data"`
}

// LoadModelRegistry loads a model registry from a YAML file mapping
// friendly names to model entries:
//
//	models:
//	  demo:
//	    LP: en-de
//	    URL: https://example.org/model.zip
//
// Parsing is strict: unrecognized keys are rejected.
func LoadModelRegistry(path string) (map[string]ModelEntry, error) {
	var file modelsFile
	if err := decodeStrictYAML(path, &file); err != nil {
		return nil, err
	}

	for name, entry := range file.Models {
		if entry.LP == "" {
			return nil, fmt.Errorf("%w: model %q: LP is required", ErrConfig, name)
		}
		if entry.URL == "" {
			return nil, fmt.Errorf("%w: model %q: URL is required", ErrConfig, name)
		}
	}
	return file.Models, nil
}

// LoadDatasetRegistry loads a dataset registry from a YAML file mapping
// friendly names to dataset entries. Relative paths are anchored to the
// entry's directory field (itself anchored to the working directory),
// and every referenced file must exist. Parsing is strict: unrecognized
// keys are rejected.
func LoadDatasetRegistry(path string) (map[string]DatasetEntry, error) {
	var file datasetsFile
	if err := decodeStrictYAML(path, &file); err != nil {
		return nil, err
	}

	for name, entry := range file.Data {
		anchored, err := entry.anchor()
		if err != nil {
			return nil, fmt.Errorf("%w: dataset %q: %v", ErrConfig, name, err)
		}
		file.Data[name] = anchored
	}
	return file.Data, nil
}

// decodeStrictYAML decodes the YAML file at path into out, rejecting
// unknown keys.
func decodeStrictYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
	}
	return nil
}

// anchor resolves the entry's paths to absolute paths and verifies that
// each referenced file exists.
func (e DatasetEntry) anchor() (DatasetEntry, error) {
	if e.Directory != "" && !filepath.IsAbs(e.Directory) {
		cwd, err := os.Getwd()
		if err != nil {
			return e, err
		}
		e.Directory = filepath.Join(cwd, e.Directory)
	}

	required := []*string{&e.Source, &e.Target, &e.SentenceScores, &e.TargetTags}
	names := []string{"source", "target", "sentence_scores", "target_tags"}
	for i, field := range required {
		if *field == "" {
			return e, fmt.Errorf("%s is required", names[i])
		}
	}

	all := append(required, &e.SourceTags)
	for _, field := range all {
		if *field == "" {
			continue
		}
		if e.Directory != "" && !filepath.IsAbs(*field) {
			*field = filepath.Join(e.Directory, *field)
		}
		if _, err := os.Stat(*field); err != nil {
			return e, fmt.Errorf("file %s not found", *field)
		}
	}

	return e, nil
}
