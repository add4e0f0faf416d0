// Package jobs holds the thumbnail job model, its in-memory store, and the
// worker pool that executes queued jobs.
package jobs

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a job.
type Status string

// Job lifecycle states.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is one thumbnail generation request as exposed over the API.
// Timestamps are unix seconds to keep the JSON shape poll-friendly.
type Job struct {
	ID            string            `json:"id"`
	Status        Status            `json:"status"`
	URL           string            `json:"url"`
	CreatedAt     float64           `json:"created_at"`
	UpdatedAt     float64           `json:"updated_at"`
	Progress      int               `json:"progress"`
	ResultDataURL string            `json:"result_data_url,omitempty"`
	Error         string            `json:"error,omitempty"`
	Meta          map[string]string `json:"meta,omitempty"`
	ImageURL      string            `json:"image_url,omitempty"`
}

// ErrNotFound is returned for unknown job ids.
var ErrNotFound = errors.New("job not found")

// Store is an in-memory job store safe for concurrent use. Jobs live for the
// process lifetime; results are served inline so there is nothing to persist.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewStore constructs a Store.
func NewStore() *Store {
	return &Store{jobs: make(map[string]Job)}
}

// Create stores a new pending job and returns it.
func (s *Store) Create(url, imageURL string) Job {
	now := unixNow()
	source := "naver_shopping_link"
	if imageURL != "" {
		source = "image_url"
	}
	job := Job{
		ID:        uuid.NewString(),
		Status:    StatusPending,
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
		Meta:      map[string]string{"source": source},
		ImageURL:  imageURL,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job
}

// Get fetches a job by id.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// SetStatus transitions a job's lifecycle state.
func (s *Store) SetStatus(id string, status Status) error {
	return s.update(id, func(job *Job) {
		job.Status = status
	})
}

// SetProgress records coarse progress for pollers.
func (s *Store) SetProgress(id string, progress int) error {
	return s.update(id, func(job *Job) {
		job.Progress = progress
	})
}

// Complete marks the job done with its result data URL.
func (s *Store) Complete(id, dataURL string, meta map[string]string) error {
	return s.update(id, func(job *Job) {
		job.Status = StatusCompleted
		job.Progress = 100
		job.ResultDataURL = dataURL
		for k, v := range meta {
			if job.Meta == nil {
				job.Meta = map[string]string{}
			}
			job.Meta[k] = v
		}
	})
}

// Fail marks the job failed with a user-facing message.
func (s *Store) Fail(id, message string) error {
	return s.update(id, func(job *Job) {
		job.Status = StatusFailed
		job.Error = message
	})
}

func (s *Store) update(id string, mutate func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	mutate(&job)
	job.UpdatedAt = unixNow()
	s.jobs[id] = job
	return nil
}

func unixNow() float64 {
	return float64(time.Now().UnixMilli()) / 1000
}
