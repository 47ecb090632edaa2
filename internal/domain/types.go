package domain

// Sample tags with special meaning to the tuner panel. Tags are free-form
// strings on the dataset side; these two drive the split histogram and the
// exported train/val splits.
const (
	TagTrain = "train"
	TagVal   = "val"
)

// Operator identifiers accepted by SubmitJob.
const (
	OperatorFineTune   = "model_fine_tuner"
	OperatorApplyModel = "apply_remote_model"
)

// Job lifecycle statuses.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

type Sample struct {
	ID        string   `json:"id"`
	Filepath  string   `json:"filepath"`
	Tags      []string `json:"tags"`
	CreatedAt string   `json:"created_at"`
}

type Job struct {
	ID        string         `json:"id"`
	Operator  string         `json:"operator"`
	Target    string         `json:"target"`
	Params    map[string]any `json:"params"`
	Status    string         `json:"status"`
	Result    map[string]any `json:"result,omitempty"`
	LastError string         `json:"last_error,omitempty"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

type JobEvent struct {
	ID        string         `json:"id"`
	JobID     string         `json:"job_id"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt string         `json:"created_at"`
}

type State struct {
	Samples   []Sample   `json:"samples"`
	Jobs      []Job      `json:"jobs"`
	JobEvents []JobEvent `json:"job_events"`
}

func EmptyState() State {
	return State{
		Samples:   []Sample{},
		Jobs:      []Job{},
		JobEvents: []JobEvent{},
	}
}

// TagCountSnapshot is one refresh of the dataset-wide aggregate counts. The
// sequence number lets consumers drop results that land after a newer refresh.
type TagCountSnapshot struct {
	Counts map[string]int
	Total  int
	Seq    uint64
}

func (s TagCountSnapshot) Count(tag string) int {
	return s.Counts[tag]
}
