package service

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
	"github.com/prernadh/yolo-model-tuner-runner/internal/store"
	"github.com/prernadh/yolo-model-tuner-runner/internal/training"
	"github.com/prernadh/yolo-model-tuner-runner/internal/workdir"
)

func newTestService(t *testing.T, orchestrators []string) (*HubService, *store.FileStore) {
	t.Helper()
	fileStore := store.NewFileStore(filepath.Join(t.TempDir(), "tuner.json"))
	if err := fileStore.Load(); err != nil {
		t.Fatalf("load store: %v", err)
	}
	pipeline := &training.Pipeline{
		Store:  fileStore,
		Layout: workdir.New(t.TempDir()),
		Tool:   fakeTool(t),
	}
	queue := training.NewQueue(fileStore, pipeline, 4)
	queue.Start()
	t.Cleanup(queue.Stop)
	return NewHubService(fileStore, queue, pipeline, orchestrators, "file"), fileStore
}

func fakeTool(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool script requires a POSIX shell")
	}
	script := `#!/bin/sh
project=""
name=""
for arg in "$@"; do
  case "$arg" in
    project=*) project="${arg#project=}" ;;
    name=*) name="${arg#name=}" ;;
  esac
done
if [ -n "$project" ] && [ -n "$name" ]; then
  mkdir -p "$project/$name/weights"
  echo fake-weights > "$project/$name/weights/best.pt"
fi
exit 0
`
	path := filepath.Join(t.TempDir(), "yolo-fake")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	return path
}

func TestListTargets(t *testing.T) {
	service, _ := newTestService(t, []string{"gpu-cluster", " ", "local"})
	targets := service.ListTargets()
	if len(targets) != 2 {
		t.Fatalf("unexpected targets: %v", targets)
	}
	if targets[0].Name != LocalTarget || targets[0].Delegated {
		t.Fatalf("expected local immediate target first, got %v", targets[0])
	}
	if targets[1].Name != "gpu-cluster" || !targets[1].Delegated {
		t.Fatalf("expected delegated orchestrator, got %v", targets[1])
	}
}

func TestSubmitJobValidation(t *testing.T) {
	service, _ := newTestService(t, nil)

	_, err := service.SubmitJob(context.Background(), SubmitJobRequest{})
	assertCode(t, err, domain.CodeInvalidArgument)

	_, err = service.SubmitJob(context.Background(), SubmitJobRequest{Operator: "unknown_op"})
	assertCode(t, err, domain.CodeInvalidArgument)

	_, err = service.SubmitJob(context.Background(), SubmitJobRequest{
		Operator: domain.OperatorFineTune,
		Target:   "missing-cluster",
		Params:   map[string]any{"det_field": "gt"},
	})
	assertCode(t, err, domain.CodeInvalidArgument)

	// Bad params must fail at submit time, not as a failed job.
	_, err = service.SubmitJob(context.Background(), SubmitJobRequest{
		Operator: domain.OperatorFineTune,
		Params:   map[string]any{},
	})
	assertCode(t, err, domain.CodeInvalidArgument)
}

func TestSubmitJobDelegated(t *testing.T) {
	service, fileStore := newTestService(t, []string{"gpu-cluster"})
	seedSamples(t, service)

	response, err := service.SubmitJob(context.Background(), SubmitJobRequest{
		Operator: domain.OperatorFineTune,
		Target:   "gpu-cluster",
		Params:   map[string]any{"det_field": "ground_truth", "epochs": float64(1)},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if response.JobID == "" || response.Result != nil {
		t.Fatalf("expected delegated job ref, got %+v", response)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok, err := fileStore.GetJob(response.JobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if ok && job.Status == domain.JobSucceeded {
			events, err := service.ListJobEvents(response.JobID)
			if err != nil {
				t.Fatalf("list events: %v", err)
			}
			if len(events) == 0 {
				t.Fatalf("expected job events")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _ := service.GetJob(response.JobID)
	t.Fatalf("delegated job never succeeded: %+v", job)
}

func TestSubmitJobLocalRunsInline(t *testing.T) {
	service, fileStore := newTestService(t, nil)
	seedSamples(t, service)

	response, err := service.SubmitJob(context.Background(), SubmitJobRequest{
		Operator: domain.OperatorFineTune,
		Params:   map[string]any{"det_field": "ground_truth", "epochs": float64(1)},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if response.JobID != "" {
		t.Fatalf("local submit must not enqueue, got job %q", response.JobID)
	}
	if response.Result["det_field"] != "ground_truth" {
		t.Fatalf("unexpected inline result: %v", response.Result)
	}

	jobs, err := fileStore.ListJobs()
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("local submit must not persist a job, got %d", len(jobs))
	}
}

func TestAddAndTagSamples(t *testing.T) {
	service, _ := newTestService(t, nil)

	if _, err := service.AddSamples(AddSamplesRequest{}); err == nil {
		t.Fatalf("expected validation error for empty samples")
	}

	added, err := service.AddSamples(AddSamplesRequest{Samples: []SampleInput{
		{Filepath: "/data/a.jpg", Tags: []string{"Train", "train", ""}},
		{Filepath: "/data/b.jpg"},
	}})
	if err != nil {
		t.Fatalf("add samples: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(added))
	}
	if len(added[0].Tags) != 1 || added[0].Tags[0] != domain.TagTrain {
		t.Fatalf("expected normalized tags, got %v", added[0].Tags)
	}

	updated, err := service.TagSamples(TagSamplesRequest{
		SampleIDs: []string{added[1].ID},
		Tags:      []string{"VAL"},
	})
	if err != nil {
		t.Fatalf("tag samples: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 updated sample, got %d", updated)
	}

	counts, err := service.GetTagCounts()
	if err != nil {
		t.Fatalf("tag counts: %v", err)
	}
	if counts[domain.TagTrain] != 1 || counts[domain.TagVal] != 1 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	total, err := service.CountSamples()
	if err != nil {
		t.Fatalf("count samples: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 samples, got %d", total)
	}
}

func TestGetJobNotFound(t *testing.T) {
	service, _ := newTestService(t, nil)
	_, err := service.GetJob("job_missing")
	assertCode(t, err, domain.CodeNotFound)
	_, err = service.ListJobEvents("job_missing")
	assertCode(t, err, domain.CodeNotFound)
}

func seedSamples(t *testing.T, service *HubService) {
	t.Helper()
	_, err := service.AddSamples(AddSamplesRequest{Samples: []SampleInput{
		{Filepath: "/data/a.jpg", Tags: []string{domain.TagTrain}},
		{Filepath: "/data/b.jpg", Tags: []string{domain.TagVal}},
	}})
	if err != nil {
		t.Fatalf("seed samples: %v", err)
	}
}

func assertCode(t *testing.T, err error, want domain.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	appErr, ok := domain.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Code != want {
		t.Fatalf("expected code %s, got %s", want, appErr.Code)
	}
}
