package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/prernadh/yolo-model-tuner-runner/internal/domain"
)

type FileStore struct {
	path  string
	mu    sync.RWMutex
	state domain.State
}

func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:  path,
		state: domain.EmptyState(),
	}
}

func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return domain.Internal("failed to create data directory", err)
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.state = domain.EmptyState()
			return s.persistLocked()
		}
		return domain.Internal("failed to read data file", err)
	}

	var parsed domain.State
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.Internal("failed to parse data file", err)
	}

	s.state = withDefaults(parsed)
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) snapshot() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneState(s.state)
}

func (s *FileStore) mutate(mutate func(*domain.State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneState(s.state)
	if err := mutate(&next); err != nil {
		return err
	}

	s.state = withDefaults(next)
	return s.persistLocked()
}

func (s *FileStore) persistLocked() error {
	serialized, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return domain.Internal("failed to serialize state", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, append(serialized, '\n'), 0o600); err != nil {
		return domain.Internal("failed to write temporary state file", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		return domain.Internal("failed to atomically persist state file", err)
	}
	return nil
}

func withDefaults(state domain.State) domain.State {
	if state.Samples == nil {
		state.Samples = []domain.Sample{}
	}
	if state.Jobs == nil {
		state.Jobs = []domain.Job{}
	}
	if state.JobEvents == nil {
		state.JobEvents = []domain.JobEvent{}
	}
	return state
}

func cloneState(in domain.State) domain.State {
	raw, _ := json.Marshal(in)
	var out domain.State
	_ = json.Unmarshal(raw, &out)
	return withDefaults(out)
}

func (s *FileStore) CountSampleTags() (map[string]int, error) {
	counts := map[string]int{}
	for _, sample := range s.snapshot().Samples {
		for _, tag := range sample.Tags {
			counts[tag]++
		}
	}
	return counts, nil
}

func (s *FileStore) CountSamples() (int, error) {
	return len(s.snapshot().Samples), nil
}

func (s *FileStore) ListSamples() ([]domain.Sample, error) {
	return s.snapshot().Samples, nil
}

func (s *FileStore) AddSamples(samples []domain.Sample) error {
	return s.mutate(func(state *domain.State) error {
		for _, sample := range samples {
			exists := false
			for i := range state.Samples {
				if state.Samples[i].ID == sample.ID {
					state.Samples[i] = sample
					exists = true
					break
				}
			}
			if !exists {
				state.Samples = append(state.Samples, sample)
			}
		}
		return nil
	})
}

func (s *FileStore) TagSamples(ids []string, tags []string) (int, error) {
	tagged := 0
	err := s.mutate(func(state *domain.State) error {
		for i := range state.Samples {
			if !slices.Contains(ids, state.Samples[i].ID) {
				continue
			}
			for _, tag := range tags {
				if !slices.Contains(state.Samples[i].Tags, tag) {
					state.Samples[i].Tags = append(state.Samples[i].Tags, tag)
				}
			}
			tagged++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return tagged, nil
}

func (s *FileStore) GetJob(id string) (domain.Job, bool, error) {
	for _, job := range s.snapshot().Jobs {
		if job.ID == id {
			return job, true, nil
		}
	}
	return domain.Job{}, false, nil
}

func (s *FileStore) ListJobs() ([]domain.Job, error) {
	return s.snapshot().Jobs, nil
}

func (s *FileStore) InsertJob(job domain.Job) error {
	return s.mutate(func(state *domain.State) error {
		state.Jobs = append(state.Jobs, job)
		return nil
	})
}

func (s *FileStore) UpdateJob(job domain.Job) error {
	return s.mutate(func(state *domain.State) error {
		for i := range state.Jobs {
			if state.Jobs[i].ID == job.ID {
				state.Jobs[i] = job
				return nil
			}
		}
		return domain.NotFound("job not found")
	})
}

func (s *FileStore) ListJobEvents(jobID string) ([]domain.JobEvent, error) {
	events := []domain.JobEvent{}
	for _, event := range s.snapshot().JobEvents {
		if event.JobID == jobID {
			events = append(events, event)
		}
	}
	return events, nil
}

func (s *FileStore) InsertJobEvent(event domain.JobEvent) error {
	return s.mutate(func(state *domain.State) error {
		state.JobEvents = append(state.JobEvents, event)
		return nil
	})
}
