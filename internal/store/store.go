package store

import "github.com/prernadh/yolo-model-tuner-runner/internal/domain"

// DatasetStore is the persistence contract used by the service layer. The
// aggregate count queries are dataset-wide and ignore any active view filter
// on the client side.
type DatasetStore interface {
	Load() error
	Close() error

	CountSampleTags() (map[string]int, error)
	CountSamples() (int, error)
	ListSamples() ([]domain.Sample, error)
	AddSamples([]domain.Sample) error
	TagSamples(ids []string, tags []string) (int, error)

	GetJob(id string) (domain.Job, bool, error)
	ListJobs() ([]domain.Job, error)
	InsertJob(domain.Job) error
	UpdateJob(domain.Job) error

	ListJobEvents(jobID string) ([]domain.JobEvent, error)
	InsertJobEvent(domain.JobEvent) error
}
