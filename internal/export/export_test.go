package export

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
)

func sampleFixture() []domain.Sample {
	return []domain.Sample{
		{ID: "s1", Filepath: "/data/img1.jpg", Tags: []string{"train"}},
		{ID: "s2", Filepath: "/data/img2.jpg", Tags: []string{"val"}},
		{ID: "s3", Filepath: "/data/img3.jpg", Tags: []string{"train", "val"}},
		{ID: "s4", Filepath: "/data/img4.jpg", Tags: nil},
	}
}

func TestExportWritesSplitListsAndYAML(t *testing.T) {
	dir := t.TempDir()
	manifest, err := Export(sampleFixture(), Options{
		Dir:     dir,
		Classes: []string{"person", "car"},
		Splits:  []string{"train", "val"},
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	if manifest.Counts["train"] != 2 || manifest.Counts["val"] != 2 {
		t.Fatalf("unexpected split counts %v", manifest.Counts)
	}

	trainList, err := os.ReadFile(filepath.Join(dir, "train.txt"))
	if err != nil {
		t.Fatalf("read train list: %v", err)
	}
	if !strings.Contains(string(trainList), "/data/img1.jpg") || !strings.Contains(string(trainList), "/data/img3.jpg") {
		t.Fatalf("train list missing samples: %q", trainList)
	}
	if strings.Contains(string(trainList), "/data/img4.jpg") {
		t.Fatalf("untagged sample leaked into train split")
	}

	yaml, err := os.ReadFile(manifest.DataYAML)
	if err != nil {
		t.Fatalf("read dataset.yaml: %v", err)
	}
	for _, want := range []string{"train: train.txt", "val: val.txt", "0: person", "1: car"} {
		if !strings.Contains(string(yaml), want) {
			t.Fatalf("dataset.yaml missing %q:\n%s", want, yaml)
		}
	}
}

func TestExportDefaultsToValSplit(t *testing.T) {
	dir := t.TempDir()
	manifest, err := Export(sampleFixture(), Options{
		Dir:     dir,
		Classes: []string{"person"},
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if manifest.Counts["val"] != 4 {
		t.Fatalf("default export must include every sample, got %v", manifest.Counts)
	}
}

func TestExportDeterministicHash(t *testing.T) {
	first, err := Export(sampleFixture(), Options{Dir: t.TempDir(), Classes: []string{"person"}, Splits: []string{"train"}})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	second, err := Export(sampleFixture(), Options{Dir: first.Dir, Classes: []string{"person"}, Splits: []string{"train"}})
	if err != nil {
		t.Fatalf("re-export: %v", err)
	}
	if first.Hash != second.Hash {
		t.Fatalf("hash must be stable for identical content")
	}
}

func TestExportValidation(t *testing.T) {
	if _, err := Export(nil, Options{Classes: []string{"person"}}); err == nil {
		t.Fatalf("missing dir must fail")
	}
	if _, err := Export(nil, Options{Dir: t.TempDir()}); err == nil {
		t.Fatalf("missing classes must fail")
	}
}
