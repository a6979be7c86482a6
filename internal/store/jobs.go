package store

import (
	"sync"
	"time"

	"github.com/yungbote/manimstudio-backend/internal/types"
)

// JobStore is the process-local job table: single writer per job (its own
// pipeline goroutine), many concurrent readers (status polls). Get returns a
// copy so readers never observe a half-applied update.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*types.Job
}

func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]*types.Job)}
}

func (s *JobStore) Put(job *types.Job) {
	if job == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
}

func (s *JobStore) Get(id string) (*types.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false
	}
	cp := *job
	return &cp, true
}

// Update applies fn to the stored record under the write lock. Updating an
// unknown id is a dropped no-op: a pipeline racing a caller's delete must not
// resurrect the record or fail.
func (s *JobStore) Update(id string, fn func(*types.Job)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false
	}
	fn(job)
	job.UpdatedAt = time.Now()
	return true
}

func (s *JobStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	return true
}

func (s *JobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

// DeleteTerminalOlderThan removes completed/failed records whose last update
// predates the retention window, returning how many were dropped.
func (s *JobStore) DeleteTerminalOlderThan(age time.Duration) int {
	cutoff := time.Now().Add(-age)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		if job.Status.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed
}
