package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/expense-bot/internal/jobs"
)

// DefaultMaxJobs bounds how many jobs a Store remembers.
const DefaultMaxJobs = 500

// Store is an in-memory implementation of JobStore.
// Once more than maxJobs are held, the oldest finished jobs are dropped.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*jobs.MessageJob
	maxJobs int
}

// NewStore creates a new in-memory job store.
func NewStore(maxJobs int) *Store {
	if maxJobs <= 0 {
		maxJobs = DefaultMaxJobs
	}
	return &Store{
		jobs:    make(map[string]*jobs.MessageJob),
		maxJobs: maxJobs,
	}
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.MessageJob) error {
	if job.JobID == "" {
		return fmt.Errorf("SaveJob: job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobCopy := *job
	s.jobs[job.JobID] = &jobCopy
	s.prune()
	return nil
}

// prune drops the oldest finished jobs above the limit. Caller holds mu.
func (s *Store) prune() {
	excess := len(s.jobs) - s.maxJobs
	if excess <= 0 {
		return
	}
	var finished []*jobs.MessageJob
	for _, job := range s.jobs {
		if job.Status == jobs.JobStatusCompleted || job.Status == jobs.JobStatusFailed {
			finished = append(finished, job)
		}
	}
	sortOldestFirst(finished)
	for i := 0; i < excess && i < len(finished); i++ {
		delete(s.jobs, finished[i].JobID)
	}
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.MessageJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("GetJob: %s: %w", jobID, jobs.ErrJobNotFound)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// ListJobs implements the JobStore interface. Jobs are returned newest first.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.MessageJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*jobs.MessageJob{}
	for _, job := range s.jobs {
		if filter.ChatID != 0 && job.ChatID != filter.ChatID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		jobCopy := *job
		result = append(result, &jobCopy)
	}

	sortOldestFirst(result)
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.MessageJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

func sortOldestFirst(list []*jobs.MessageJob) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].JobID < list[j].JobID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}

var _ jobs.JobStore = (*Store)(nil)
