// Package export writes a dataset snapshot into the YOLO directory layout the
// training tool consumes: one file list per split plus a dataset.yaml.
package export

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
)

type Options struct {
	Dir     string
	Classes []string
	// Splits selects samples by tag, one list file per split. Empty means the
	// whole dataset is exported as the val split.
	Splits []string
}

type Manifest struct {
	Dir      string         `json:"dir"`
	DataYAML string         `json:"data_yaml"`
	Counts   map[string]int `json:"counts"`
	Hash     string         `json:"hash"`
}

func Export(samples []domain.Sample, opts Options) (Manifest, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return Manifest{}, domain.InvalidArgument("export dir is required")
	}
	if len(opts.Classes) == 0 {
		return Manifest{}, domain.InvalidArgument("at least one class is required")
	}
	splits := opts.Splits
	if len(splits) == 0 {
		splits = []string{domain.TagVal}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Manifest{}, domain.Internal("failed to create export dir", err)
	}

	manifest := Manifest{
		Dir:    dir,
		Counts: map[string]int{},
	}
	digest := sha256.New()

	for _, split := range splits {
		matched := matchSplit(samples, split, len(opts.Splits) == 0)
		listPath := filepath.Join(dir, split+".txt")
		var lines strings.Builder
		for _, sample := range matched {
			lines.WriteString(sample.Filepath)
			lines.WriteString("\n")
		}
		if err := os.WriteFile(listPath, []byte(lines.String()), 0o644); err != nil {
			return Manifest{}, domain.Internal("failed to write split list", err)
		}
		manifest.Counts[split] = len(matched)
		digest.Write([]byte(split))
		digest.Write([]byte(lines.String()))
	}

	yamlBody := renderDataYAML(dir, splits, opts.Classes)
	yamlPath := filepath.Join(dir, "dataset.yaml")
	if err := os.WriteFile(yamlPath, []byte(yamlBody), 0o644); err != nil {
		return Manifest{}, domain.Internal("failed to write dataset.yaml", err)
	}
	digest.Write([]byte(yamlBody))

	manifest.DataYAML = yamlPath
	manifest.Hash = hex.EncodeToString(digest.Sum(nil))
	return manifest, nil
}

// matchSplit mirrors the tag-match semantics of the dataset view: a sample
// belongs to a split when it carries the split tag. With no explicit splits
// everything goes to the fallback split.
func matchSplit(samples []domain.Sample, split string, everything bool) []domain.Sample {
	out := make([]domain.Sample, 0, len(samples))
	for _, sample := range samples {
		if everything || slices.Contains(sample.Tags, split) {
			out = append(out, sample)
		}
	}
	return out
}

func renderDataYAML(dir string, splits, classes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "path: %s\n", dir)
	for _, split := range splits {
		fmt.Fprintf(&b, "%s: %s.txt\n", split, split)
	}
	b.WriteString("names:\n")
	for i, class := range classes {
		fmt.Fprintf(&b, "  %d: %s\n", i, class)
	}
	return b.String()
}
