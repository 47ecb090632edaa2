// Package workdir owns the scratch directory layout used by the training
// pipelines.
package workdir

import (
	"os"
	"path/filepath"
)

const defaultRoot = "/tmp/yolo"

// Layout groups the working directories for one server instance.
type Layout struct {
	Root     string
	Models   string
	Data     string
	Projects string
}

func New(root string) Layout {
	if root == "" {
		root = defaultRoot
	}
	return Layout{
		Root:     root,
		Models:   filepath.Join(root, "models"),
		Data:     filepath.Join(root, "data"),
		Projects: filepath.Join(root, "projects"),
	}
}

// Ensure creates the directory tree if missing.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.Models, l.Data, l.Projects} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// ExportDir is the per-dataset, per-run export destination.
func (l Layout) ExportDir(dataset, stamp string) string {
	return filepath.Join(l.Data, dataset, stamp)
}

// ModelPath is where remote weights land locally before a run.
func (l Layout) ModelPath(name string) string {
	return filepath.Join(l.Models, filepath.Base(name))
}
