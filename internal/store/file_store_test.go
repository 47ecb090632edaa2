package store

import (
	"path/filepath"
	"testing"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
)

func TestFileStoreSamplesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuner.json")
	fileStore := NewFileStore(path)
	if err := fileStore.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	err := fileStore.AddSamples([]domain.Sample{
		{ID: "smp_1", Filepath: "/data/images/a.jpg", Tags: []string{domain.TagTrain}},
		{ID: "smp_2", Filepath: "/data/images/b.jpg", Tags: []string{domain.TagTrain, domain.TagVal}},
		{ID: "smp_3", Filepath: "/data/images/c.jpg"},
	})
	if err != nil {
		t.Fatalf("add samples: %v", err)
	}

	total, err := fileStore.CountSamples()
	if err != nil {
		t.Fatalf("count samples: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 samples, got %d", total)
	}

	counts, err := fileStore.CountSampleTags()
	if err != nil {
		t.Fatalf("count tags: %v", err)
	}
	if counts[domain.TagTrain] != 2 || counts[domain.TagVal] != 1 {
		t.Fatalf("unexpected tag counts: %v", counts)
	}

	reopened := NewFileStore(path)
	if err := reopened.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	samples, err := reopened.ListSamples()
	if err != nil {
		t.Fatalf("list samples: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected persisted samples, got %d", len(samples))
	}
}

func TestFileStoreTagSamples(t *testing.T) {
	fileStore := NewFileStore(filepath.Join(t.TempDir(), "tuner.json"))
	if err := fileStore.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	err := fileStore.AddSamples([]domain.Sample{
		{ID: "smp_1", Filepath: "/data/a.jpg", Tags: []string{domain.TagTrain}},
		{ID: "smp_2", Filepath: "/data/b.jpg"},
	})
	if err != nil {
		t.Fatalf("add samples: %v", err)
	}

	updated, err := fileStore.TagSamples([]string{"smp_1", "smp_2", "smp_missing"}, []string{domain.TagTrain})
	if err != nil {
		t.Fatalf("tag samples: %v", err)
	}
	if updated != 2 {
		t.Fatalf("expected 2 updated samples, got %d", updated)
	}

	counts, err := fileStore.CountSampleTags()
	if err != nil {
		t.Fatalf("count tags: %v", err)
	}
	if counts[domain.TagTrain] != 2 {
		t.Fatalf("expected deduped train tags, got %v", counts)
	}
}

func TestFileStoreJobLifecycle(t *testing.T) {
	fileStore := NewFileStore(filepath.Join(t.TempDir(), "tuner.json"))
	if err := fileStore.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	job := domain.Job{
		ID:        "job_1",
		Operator:  domain.OperatorFineTune,
		Target:    "local-gpu",
		Params:    map[string]any{"epochs": float64(10)},
		Status:    domain.JobQueued,
		CreatedAt: "2026-08-30T10:00:00Z",
		UpdatedAt: "2026-08-30T10:00:00Z",
	}
	if err := fileStore.InsertJob(job); err != nil {
		t.Fatalf("insert job: %v", err)
	}

	job.Status = domain.JobSucceeded
	job.Result = map[string]any{"weights": "/tmp/yolo/models/best.pt"}
	job.UpdatedAt = "2026-08-30T10:05:00Z"
	if err := fileStore.UpdateJob(job); err != nil {
		t.Fatalf("update job: %v", err)
	}

	loaded, ok, err := fileStore.GetJob("job_1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if !ok {
		t.Fatalf("expected job to exist")
	}
	if loaded.Status != domain.JobSucceeded {
		t.Fatalf("expected succeeded status, got %q", loaded.Status)
	}
	if loaded.Result["weights"] != "/tmp/yolo/models/best.pt" {
		t.Fatalf("unexpected result: %v", loaded.Result)
	}

	if err := fileStore.UpdateJob(domain.Job{ID: "job_missing", Status: domain.JobFailed}); err == nil {
		t.Fatalf("expected not found error for unknown job")
	}

	event := domain.JobEvent{
		ID:        "evt_1",
		JobID:     "job_1",
		Type:      "job_succeeded",
		Message:   "training finished",
		CreatedAt: "2026-08-30T10:05:00Z",
	}
	if err := fileStore.InsertJobEvent(event); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	events, err := fileStore.ListJobEvents("job_1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].Type != "job_succeeded" {
		t.Fatalf("unexpected events: %v", events)
	}
}
