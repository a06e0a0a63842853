package tasting

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Dataset holds a parallel quality estimation dataset in memory: one
// entry per line across all files.
type Dataset struct {
	// SourceSentences are the source-language sentences.
	SourceSentences []string

	// TargetSentences are the machine-translated target sentences.
	TargetSentences []string

	// SentenceScores are the per-sentence HTER scores, unparsed.
	SentenceScores []string

	// TargetTags are the per-token OK/BAD tag lines for the target side.
	TargetTags []string

	// SourceTags are the per-token tag lines for the source side.
	// Nil when the dataset has no source tags.
	SourceTags []string
}

// LoadDataset reads all files of a dataset entry into memory. All files
// must have the same number of lines.
func LoadDataset(entry DatasetEntry) (*Dataset, error) {
	d := &Dataset{}

	var err error
	if d.SourceSentences, err = readLines(entry.Source); err != nil {
		return nil, err
	}
	if d.TargetSentences, err = readLines(entry.Target); err != nil {
		return nil, err
	}
	if d.SentenceScores, err = readLines(entry.SentenceScores); err != nil {
		return nil, err
	}
	if d.TargetTags, err = readLines(entry.TargetTags); err != nil {
		return nil, err
	}
	if entry.SourceTags != "" {
		if d.SourceTags, err = readLines(entry.SourceTags); err != nil {
			return nil, err
		}
	}

	n := len(d.SourceSentences)
	for name, lines := range map[string][]string{
		"target":          d.TargetSentences,
		"sentence_scores": d.SentenceScores,
		"target_tags":     d.TargetTags,
	} {
		if len(lines) != n {
			return nil, fmt.Errorf("%w: %s has %d lines, source has %d", ErrDataset, name, len(lines), n)
		}
	}
	if d.SourceTags != nil && len(d.SourceTags) != n {
		return nil, fmt.Errorf("%w: source_tags has %d lines, source has %d", ErrDataset, len(d.SourceTags), n)
	}

	return d, nil
}

// Len returns the number of sentence pairs in the dataset.
func (d *Dataset) Len() int {
	return len(d.SourceSentences)
}

// HTER parses the sentence-level HTER score of pair i.
func (d *Dataset) HTER(i int) (float64, error) {
	score, err := strconv.ParseFloat(strings.TrimSpace(d.SentenceScores[i]), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: sentence score %d: %v", ErrDataset, i, err)
	}
	return score, nil
}

// readLines reads a file into a slice of lines.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDataset, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDataset, path, err)
	}
	return lines, nil
}

// SplitTokens splits a sentence into whitespace-separated tokens.
func SplitTokens(sentence string) []string {
	return strings.Fields(sentence)
}

// AlignTags recovers per-token tags from a tag field sequence. Tag files
// either carry one tag per token, or the interleaved WMT gap-tag format
// "gap tag gap tag ... gap" of length 2N+1 for N tokens, in which case
// every second field starting at index 1 is the token tag.
func AlignTags(fields []string, tokenCount int) []string {
	if len(fields) != 2*tokenCount+1 {
		return fields
	}
	tags := make([]string, 0, tokenCount)
	for i := 1; i < len(fields); i += 2 {
		tags = append(tags, fields[i])
	}
	return tags
}

// TargetTokenTags returns the target tokens of pair i and their aligned
// per-token tags.
func (d *Dataset) TargetTokenTags(i int) (tokens, tags []string) {
	tokens = SplitTokens(d.TargetSentences[i])
	tags = AlignTags(SplitTokens(d.TargetTags[i]), len(tokens))
	return tokens, tags
}

// SourceTokenTags returns the source tokens of pair i and their aligned
// per-token tags. tags is nil when the dataset has no source tags.
func (d *Dataset) SourceTokenTags(i int) (tokens, tags []string) {
	tokens = SplitTokens(d.SourceSentences[i])
	if d.SourceTags == nil {
		return tokens, nil
	}
	tags = AlignTags(SplitTokens(d.SourceTags[i]), len(tokens))
	return tokens, tags
}
