package training

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
	"github.com/prernadh/yolo-model-tuner-runner/internal/store"
	"github.com/prernadh/yolo-model-tuner-runner/internal/workdir"
)

// fakeTool writes a shell script that mimics the training tool: it parses the
// project= and name= args and drops a best.pt where the pipeline expects it.
func fakeTool(t *testing.T, exitCode int) string {
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
echo "tool ran with $# args"
exit ` + strconv.Itoa(exitCode) + `
`
	path := filepath.Join(t.TempDir(), "yolo-fake")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake tool: %v", err)
	}
	return path
}

func newTestStore(t *testing.T, samples []domain.Sample) *store.FileStore {
	t.Helper()
	fileStore := store.NewFileStore(filepath.Join(t.TempDir(), "tuner.json"))
	if err := fileStore.Load(); err != nil {
		t.Fatalf("load store: %v", err)
	}
	if len(samples) > 0 {
		if err := fileStore.AddSamples(samples); err != nil {
			t.Fatalf("seed samples: %v", err)
		}
	}
	return fileStore
}

func waitForStatus(t *testing.T, fileStore *store.FileStore, jobID string, want string) domain.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, ok, err := fileStore.GetJob(jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if ok && job.Status == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	job, _, _ := fileStore.GetJob(jobID)
	t.Fatalf("job %s never reached %q, last status %q (%s)", jobID, want, job.Status, job.LastError)
	return domain.Job{}
}

func TestDecodeFineTuneParams(t *testing.T) {
	params, err := DecodeFineTuneParams(map[string]any{
		"det_field":           "ground_truth",
		"epochs":              float64(25),
		"target_device_index": float64(1),
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if params.Epochs != 25 || params.DeviceIndex != 1 {
		t.Fatalf("unexpected params: %+v", params)
	}
	if params.Dataset != "dataset" || len(params.Classes) != 1 {
		t.Fatalf("expected defaults, got %+v", params)
	}

	if _, err := DecodeFineTuneParams(map[string]any{}); err == nil {
		t.Fatalf("expected det_field validation error")
	}
	if _, err := DecodeFineTuneParams(map[string]any{"det_field": "gt", "epochs": float64(0)}); err == nil {
		t.Fatalf("expected epochs validation error")
	}
}

func TestDecodeApplyParams(t *testing.T) {
	if _, err := DecodeApplyParams(map[string]any{"det_field": "predictions"}); err == nil {
		t.Fatalf("expected weights_path validation error")
	}
	params, err := DecodeApplyParams(map[string]any{
		"det_field":    "predictions",
		"weights_path": "/models/best.pt",
		"confidence":   0.5,
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if params.Confidence != 0.5 {
		t.Fatalf("unexpected confidence: %v", params.Confidence)
	}
}

func TestQueueRunsFineTuneJob(t *testing.T) {
	fileStore := newTestStore(t, []domain.Sample{
		{ID: "smp_1", Filepath: "/data/a.jpg", Tags: []string{domain.TagTrain}},
		{ID: "smp_2", Filepath: "/data/b.jpg", Tags: []string{domain.TagVal}},
	})
	layout := workdir.New(t.TempDir())
	queue := NewQueue(fileStore, &Pipeline{
		Store:  fileStore,
		Layout: layout,
		Tool:   fakeTool(t, 0),
	}, 4)
	queue.Start()
	defer queue.Stop()

	job := domain.Job{
		ID:       "job_ft",
		Operator: domain.OperatorFineTune,
		Target:   "local",
		Params: map[string]any{
			"det_field": "ground_truth",
			"epochs":    float64(2),
		},
		Status:    domain.JobQueued,
		CreatedAt: timeNow(),
		UpdatedAt: timeNow(),
	}
	if err := fileStore.InsertJob(job); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	if err := queue.Enqueue(job.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	done := waitForStatus(t, fileStore, job.ID, domain.JobSucceeded)
	weights, _ := done.Result["weights"].(string)
	if !strings.HasSuffix(weights, filepath.Join("weights", "best.pt")) {
		t.Fatalf("unexpected weights result: %v", done.Result)
	}
	if done.Result["train_count"] != float64(1) {
		t.Fatalf("unexpected train count: %v", done.Result["train_count"])
	}

	events, err := fileStore.ListJobEvents(job.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	types := map[string]bool{}
	for _, event := range events {
		types[event.Type] = true
	}
	for _, want := range []string{"job_started", "dataset_exported", "training_started", "job_succeeded"} {
		if !types[want] {
			t.Fatalf("missing %q event, got %v", want, types)
		}
	}
}

func TestQueueMarksToolFailure(t *testing.T) {
	fileStore := newTestStore(t, []domain.Sample{
		{ID: "smp_1", Filepath: "/data/a.jpg", Tags: []string{domain.TagTrain}},
	})
	queue := NewQueue(fileStore, &Pipeline{
		Store:  fileStore,
		Layout: workdir.New(t.TempDir()),
		Tool:   fakeTool(t, 3),
	}, 4)
	queue.Start()
	defer queue.Stop()

	job := domain.Job{
		ID:        "job_fail",
		Operator:  domain.OperatorFineTune,
		Params:    map[string]any{"det_field": "gt"},
		Status:    domain.JobQueued,
		CreatedAt: timeNow(),
		UpdatedAt: timeNow(),
	}
	if err := fileStore.InsertJob(job); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	if err := queue.Enqueue(job.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	failed := waitForStatus(t, fileStore, job.ID, domain.JobFailed)
	if !strings.Contains(failed.LastError, "status 3") {
		t.Fatalf("expected exit status in error, got %q", failed.LastError)
	}
}

func TestQueueFailsFineTuneWithoutTrainTags(t *testing.T) {
	fileStore := newTestStore(t, []domain.Sample{
		{ID: "smp_1", Filepath: "/data/a.jpg", Tags: []string{domain.TagVal}},
	})
	queue := NewQueue(fileStore, &Pipeline{
		Store:  fileStore,
		Layout: workdir.New(t.TempDir()),
		Tool:   fakeTool(t, 0),
	}, 4)
	queue.Start()
	defer queue.Stop()

	job := domain.Job{
		ID:        "job_notags",
		Operator:  domain.OperatorFineTune,
		Params:    map[string]any{"det_field": "gt"},
		Status:    domain.JobQueued,
		CreatedAt: timeNow(),
		UpdatedAt: timeNow(),
	}
	if err := fileStore.InsertJob(job); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	if err := queue.Enqueue(job.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	failed := waitForStatus(t, fileStore, job.ID, domain.JobFailed)
	if !strings.Contains(failed.LastError, "tagged train") {
		t.Fatalf("expected precondition error, got %q", failed.LastError)
	}
}

func TestQueueRunsApplyJob(t *testing.T) {
	weightsPath := filepath.Join(t.TempDir(), "custom.pt")
	if err := os.WriteFile(weightsPath, []byte("weights"), 0o644); err != nil {
		t.Fatalf("write weights: %v", err)
	}

	fileStore := newTestStore(t, []domain.Sample{
		{ID: "smp_1", Filepath: "/data/a.jpg"},
		{ID: "smp_2", Filepath: "/data/b.jpg"},
	})
	queue := NewQueue(fileStore, &Pipeline{
		Store:  fileStore,
		Layout: workdir.New(t.TempDir()),
		Tool:   fakeTool(t, 0),
	}, 4)
	queue.Start()
	defer queue.Stop()

	job := domain.Job{
		ID:       "job_apply",
		Operator: domain.OperatorApplyModel,
		Params: map[string]any{
			"det_field":    "predictions",
			"weights_path": weightsPath,
		},
		Status:    domain.JobQueued,
		CreatedAt: timeNow(),
		UpdatedAt: timeNow(),
	}
	if err := fileStore.InsertJob(job); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	if err := queue.Enqueue(job.ID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	done := waitForStatus(t, fileStore, job.ID, domain.JobSucceeded)
	if done.Result["sample_count"] != float64(2) {
		t.Fatalf("unexpected sample count: %v", done.Result["sample_count"])
	}
}

func TestQueueEnqueueLifecycleGuard(t *testing.T) {
	fileStore := newTestStore(t, nil)
	queue := NewQueue(fileStore, &Pipeline{
		Store:  fileStore,
		Layout: workdir.New(t.TempDir()),
		Tool:   fakeTool(t, 0),
	}, 4)

	assertNotRunning := func(err error) {
		t.Helper()
		appErr, ok := domain.AsAppError(err)
		if !ok || appErr.Code != domain.CodeFailedPrecondition {
			t.Fatalf("Enqueue = %v, want failed_precondition", err)
		}
	}

	assertNotRunning(queue.Enqueue("job_early"))

	queue.Start()
	queue.Stop()
	assertNotRunning(queue.Enqueue("job_late"))
}
