package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
	"github.com/prernadh/yolo-model-tuner-runner/internal/store"
	"github.com/prernadh/yolo-model-tuner-runner/internal/training"
)

// LocalTarget runs the pipeline inline within the SubmitJob call. Every other
// configured target is a delegated orchestrator backed by the job queue.
const LocalTarget = "local"

var validOperators = map[string]struct{}{
	domain.OperatorFineTune:   {},
	domain.OperatorApplyModel: {},
}

type Target struct {
	Name      string `json:"name"`
	Delegated bool   `json:"delegated"`
}

type HubService struct {
	store         store.DatasetStore
	queue         *training.Queue
	pipeline      *training.Pipeline
	orchestrators []string
	storeDesc     string
}

func NewHubService(datasetStore store.DatasetStore, queue *training.Queue, pipeline *training.Pipeline, orchestrators []string, storeDesc string) *HubService {
	return &HubService{
		store:         datasetStore,
		queue:         queue,
		pipeline:      pipeline,
		orchestrators: orchestrators,
		storeDesc:     storeDesc,
	}
}

type SubmitJobRequest struct {
	Operator string         `json:"operator"`
	Target   string         `json:"target"`
	Params   map[string]any `json:"params"`
}

// SubmitJobResponse carries either an inline result (local target) or the id
// of the queued delegated job, never both.
type SubmitJobResponse struct {
	JobID  string         `json:"job_id,omitempty"`
	Result map[string]any `json:"result,omitempty"`
}

type AddSamplesRequest struct {
	Samples []SampleInput `json:"samples"`
}

type SampleInput struct {
	Filepath string   `json:"filepath"`
	Tags     []string `json:"tags"`
}

type TagSamplesRequest struct {
	SampleIDs []string `json:"sample_ids"`
	Tags      []string `json:"tags"`
}

func (h *HubService) Health() map[string]any {
	return map[string]any{
		"status":      "ok",
		"store":       h.storeDesc,
		"queue_depth": h.queue.Depth(),
		"time_utc":    timeNow(),
	}
}

func (h *HubService) GetTagCounts() (map[string]int, error) {
	return h.store.CountSampleTags()
}

func (h *HubService) CountSamples() (int, error) {
	return h.store.CountSamples()
}

func (h *HubService) ListTargets() []Target {
	targets := []Target{{Name: LocalTarget, Delegated: false}}
	for _, name := range h.orchestrators {
		name = strings.TrimSpace(name)
		if name == "" || name == LocalTarget {
			continue
		}
		targets = append(targets, Target{Name: name, Delegated: true})
	}
	return targets
}

func (h *HubService) SubmitJob(ctx context.Context, request SubmitJobRequest) (SubmitJobResponse, error) {
	operator := strings.TrimSpace(request.Operator)
	if operator == "" {
		return SubmitJobResponse{}, domain.InvalidArgument("operator is required")
	}
	if _, ok := validOperators[operator]; !ok {
		return SubmitJobResponse{}, domain.InvalidArgument("operator must be one of: model_fine_tuner, apply_remote_model")
	}

	targetName := strings.TrimSpace(request.Target)
	if targetName == "" {
		targetName = LocalTarget
	}
	target, ok := h.findTarget(targetName)
	if !ok {
		return SubmitJobResponse{}, domain.InvalidArgument("unknown target " + targetName)
	}

	// Param validation happens up front so a bad request fails fast instead
	// of surfacing later as a failed job.
	switch operator {
	case domain.OperatorFineTune:
		if _, err := training.DecodeFineTuneParams(request.Params); err != nil {
			return SubmitJobResponse{}, err
		}
	case domain.OperatorApplyModel:
		if _, err := training.DecodeApplyParams(request.Params); err != nil {
			return SubmitJobResponse{}, err
		}
	}

	job := domain.Job{
		ID:        newID("job"),
		Operator:  operator,
		Target:    target.Name,
		Params:    request.Params,
		Status:    domain.JobQueued,
		CreatedAt: timeNow(),
		UpdatedAt: timeNow(),
	}

	if !target.Delegated {
		result, err := h.pipeline.Run(ctx, job)
		if err != nil {
			return SubmitJobResponse{}, err
		}
		return SubmitJobResponse{Result: result}, nil
	}

	if err := h.store.InsertJob(job); err != nil {
		return SubmitJobResponse{}, err
	}
	if err := h.queue.Enqueue(job.ID); err != nil {
		failed := job
		failed.Status = domain.JobFailed
		failed.LastError = err.Error()
		failed.UpdatedAt = timeNow()
		_ = h.store.UpdateJob(failed)
		return SubmitJobResponse{}, err
	}
	return SubmitJobResponse{JobID: job.ID}, nil
}

func (h *HubService) GetJob(id string) (domain.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Job{}, domain.InvalidArgument("job id is required")
	}
	job, ok, err := h.store.GetJob(id)
	if err != nil {
		return domain.Job{}, err
	}
	if !ok {
		return domain.Job{}, domain.NotFound("job not found")
	}
	return job, nil
}

func (h *HubService) ListJobs() ([]domain.Job, error) {
	return h.store.ListJobs()
}

func (h *HubService) ListJobEvents(jobID string) ([]domain.JobEvent, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, domain.InvalidArgument("job id is required")
	}
	if _, err := h.GetJob(jobID); err != nil {
		return nil, err
	}
	return h.store.ListJobEvents(jobID)
}

func (h *HubService) AddSamples(request AddSamplesRequest) ([]domain.Sample, error) {
	if len(request.Samples) == 0 {
		return nil, domain.InvalidArgument("at least one sample is required")
	}

	samples := make([]domain.Sample, 0, len(request.Samples))
	for _, input := range request.Samples {
		filepath := strings.TrimSpace(input.Filepath)
		if filepath == "" {
			return nil, domain.InvalidArgument("sample filepath is required")
		}
		samples = append(samples, domain.Sample{
			ID:        newID("smp"),
			Filepath:  filepath,
			Tags:      normalizeTags(input.Tags),
			CreatedAt: timeNow(),
		})
	}

	if err := h.store.AddSamples(samples); err != nil {
		return nil, err
	}
	return samples, nil
}

func (h *HubService) TagSamples(request TagSamplesRequest) (int, error) {
	if len(request.SampleIDs) == 0 {
		return 0, domain.InvalidArgument("at least one sample id is required")
	}
	tags := normalizeTags(request.Tags)
	if len(tags) == 0 {
		return 0, domain.InvalidArgument("at least one tag is required")
	}
	return h.store.TagSamples(request.SampleIDs, tags)
}

func (h *HubService) findTarget(name string) (Target, bool) {
	for _, target := range h.ListTargets() {
		if target.Name == name {
			return target, true
		}
	}
	return Target{}, false
}

func normalizeTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}

	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, tag := range tags {
		clean := strings.ToLower(strings.TrimSpace(tag))
		if clean == "" {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}

func timeNow() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func newID(prefix string) string {
	var raw [8]byte
	_, _ = rand.Read(raw[:])
	return prefix + "_" + time.Now().UTC().Format("20060102T150405.000000000") + "_" + hex.EncodeToString(raw[:])
}
