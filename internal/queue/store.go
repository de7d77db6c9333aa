package queue

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fusionn-srt/internal/fileops"
	"github.com/fusionn-srt/pkg/logger"
)

// Store is the in-memory job registry. Readers always receive copies, so a
// returned Job never changes under the caller.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// Create registers a new queued job.
func (s *Store) Create(job Job) (Job, error) {
	if job.ID == "" {
		return Job{}, fmt.Errorf("job id required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return Job{}, ErrDuplicateID
	}

	now := s.now()
	job.Status = StatusQueued
	job.Error = ""
	job.ResultPath = ""
	job.CreatedAt = now
	job.UpdatedAt = now

	stored := job
	s.jobs[job.ID] = &stored
	return job, nil
}

// Get returns a snapshot of the job.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *job, nil
}

// Update applies mutate to a copy of the job and stores it if the resulting
// state is a legal successor. Terminal jobs cannot be updated.
func (s *Store) Update(id string, mutate func(*Job) error) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	if cur.Status.Terminal() {
		return Job{}, fmt.Errorf("%w: job %s is already %s", ErrInvalidTransition, id, cur.Status)
	}

	next := *cur
	if err := mutate(&next); err != nil {
		return Job{}, err
	}

	next.ID = cur.ID
	next.CreatedAt = cur.CreatedAt
	if next.Status != cur.Status && !canTransition(cur.Status, next.Status) {
		return Job{}, fmt.Errorf("%w: %s → %s", ErrInvalidTransition, cur.Status, next.Status)
	}
	if err := next.validate(); err != nil {
		return Job{}, err
	}

	next.UpdatedAt = s.now()
	s.jobs[id] = &next
	return next, nil
}

// Delete removes the job and then its files. Readers see either the whole job
// or ErrNotFound.
func (s *Store) Delete(id string) (Job, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if ok {
		delete(s.jobs, id)
	}
	s.mu.Unlock()

	if !ok {
		return Job{}, ErrNotFound
	}

	removeFiles(job)
	return *job, nil
}

// Sweep deletes terminal jobs last updated before cutoff. When ids are given
// only those jobs are considered.
func (s *Store) Sweep(cutoff time.Time, ids ...string) []Job {
	var removed []*Job

	s.mu.Lock()
	expired := func(job *Job) bool {
		return job.Status.Terminal() && job.UpdatedAt.Before(cutoff)
	}
	if len(ids) > 0 {
		for _, id := range ids {
			if job, ok := s.jobs[id]; ok && expired(job) {
				removed = append(removed, job)
				delete(s.jobs, id)
			}
		}
	} else {
		for id, job := range s.jobs {
			if expired(job) {
				removed = append(removed, job)
				delete(s.jobs, id)
			}
		}
	}
	s.mu.Unlock()

	out := make([]Job, 0, len(removed))
	for _, job := range removed {
		removeFiles(job)
		out = append(out, *job)
	}
	return out
}

// Open opens the artifact of a completed job. The file is opened under the
// read lock, so a concurrent Delete cannot remove it first.
func (s *Store) Open(id string) (*os.File, Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, Job{}, ErrNotFound
	}

	switch job.Status {
	case StatusCompleted:
		f, err := os.Open(job.ResultPath)
		if err != nil {
			return nil, *job, fmt.Errorf("open result: %w", err)
		}
		return f, *job, nil
	case StatusFailed:
		return nil, *job, &JobFailedError{ID: job.ID, Message: job.Error}
	default:
		return nil, *job, ErrNotReady
	}
}

// List returns all jobs, newest first.
func (s *Store) List() []Job {
	s.mu.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	s.mu.RUnlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// Stats counts jobs per status.
func (s *Store) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]int{
		"total":                  len(s.jobs),
		string(StatusQueued):     0,
		string(StatusProcessing): 0,
		string(StatusCompleted):  0,
		string(StatusFailed):     0,
	}
	for _, job := range s.jobs {
		stats[string(job.Status)]++
	}
	return stats
}

func removeFiles(job *Job) {
	for _, path := range []string{job.ResultPath, job.SourcePath} {
		if err := fileops.Remove(path); err != nil {
			logger.Warnf("⚠️ Failed to remove %s: %v", path, err)
		}
	}
	if err := fileops.RemoveAll(job.WorkDir); err != nil {
		logger.Warnf("⚠️ Failed to remove job dir %s: %v", job.WorkDir, err)
	}
}
