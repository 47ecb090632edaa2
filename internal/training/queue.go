package training

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"sync"
	"time"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
	"github.com/prernadh/yolo-model-tuner-runner/internal/store"
)

const defaultQueueDepth = 32

// Queue runs delegated jobs one at a time on a background worker. Training
// jobs saturate the GPU, so there is deliberately no parallelism.
type Queue struct {
	store    store.DatasetStore
	pipeline *Pipeline

	jobs   chan string
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

func NewQueue(datasetStore store.DatasetStore, pipeline *Pipeline, depth int) *Queue {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	return &Queue{
		store:    datasetStore,
		pipeline: pipeline,
		jobs:     make(chan string, depth),
	}
}

func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.wg.Add(1)
	go q.worker(ctx)
}

// Stop cancels the in-flight job and waits for the worker to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	close(q.jobs)
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
}

// Enqueue accepts a job that is already persisted with status queued. The
// lock orders Enqueue against Stop's channel close, so a late submission gets
// an error instead of a panic.
func (q *Queue) Enqueue(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.started {
		return domain.FailedPrecondition("job queue is not running")
	}
	select {
	case q.jobs <- jobID:
		return nil
	default:
		return domain.ResourceExhausted("job queue is full; retry after running jobs finish")
	}
}

func (q *Queue) Depth() int {
	return len(q.jobs)
}

func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for jobID := range q.jobs {
		if ctx.Err() != nil {
			q.failJob(jobID, "server shutting down before job started")
			continue
		}
		q.process(ctx, jobID)
	}
}

func (q *Queue) process(ctx context.Context, jobID string) {
	job, ok, err := q.store.GetJob(jobID)
	if err != nil {
		log.Printf("job %s: load failed: %v", jobID, err)
		return
	}
	if !ok {
		log.Printf("job %s: missing from store, dropping", jobID)
		return
	}
	if job.Status != domain.JobQueued {
		log.Printf("job %s: unexpected status %q, dropping", jobID, job.Status)
		return
	}

	job.Status = domain.JobRunning
	job.UpdatedAt = timeNow()
	if err := q.store.UpdateJob(job); err != nil {
		log.Printf("job %s: mark running failed: %v", jobID, err)
		return
	}
	q.recordEvent(jobID, "job_started", "worker picked up job", map[string]any{
		"operator": job.Operator,
		"target":   job.Target,
	})

	pipeline := *q.pipeline
	pipeline.OnStep = func(eventType, message string, data map[string]any) {
		q.recordEvent(jobID, eventType, message, data)
	}

	result, runErr := pipeline.Run(ctx, job)

	job.UpdatedAt = timeNow()
	if runErr != nil {
		job.Status = domain.JobFailed
		job.LastError = runErr.Error()
		log.Printf("job %s: failed: %v", jobID, runErr)
		q.recordEvent(jobID, "job_failed", job.LastError, nil)
	} else {
		job.Status = domain.JobSucceeded
		job.Result = result
		job.LastError = ""
		q.recordEvent(jobID, "job_succeeded", "job finished", result)
	}
	if err := q.store.UpdateJob(job); err != nil {
		log.Printf("job %s: final update failed: %v", jobID, err)
	}
}

func (q *Queue) failJob(jobID, reason string) {
	job, ok, err := q.store.GetJob(jobID)
	if err != nil || !ok {
		return
	}
	job.Status = domain.JobFailed
	job.LastError = reason
	job.UpdatedAt = timeNow()
	if err := q.store.UpdateJob(job); err != nil {
		log.Printf("job %s: mark failed failed: %v", jobID, err)
	}
}

func (q *Queue) recordEvent(jobID, eventType, message string, data map[string]any) {
	event := domain.JobEvent{
		ID:        newID("evt"),
		JobID:     jobID,
		Type:      eventType,
		Message:   message,
		Data:      data,
		CreatedAt: timeNow(),
	}
	if err := q.store.InsertJobEvent(event); err != nil {
		log.Printf("job %s: record event %s failed: %v", jobID, eventType, err)
	}
}

func timeNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func newID(prefix string) string {
	var raw [8]byte
	_, _ = rand.Read(raw[:])
	return prefix + "_" + time.Now().UTC().Format("20060102T150405.000000000") + "_" + hex.EncodeToString(raw[:])
}
