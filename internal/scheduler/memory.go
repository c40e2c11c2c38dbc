package scheduler

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/flemzord/cronsync/internal/job"
)

// MemoryStore keeps jobs in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	jobs     map[job.Identity]JobDetail
	triggers map[job.Identity]Trigger
	now      func() time.Time
}

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[job.Identity]JobDetail),
		triggers: make(map[job.Identity]Trigger),
		now:      time.Now,
	}
}

// ListJobs implements Store.
func (s *MemoryStore) ListJobs(_ context.Context) ([]JobDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobDetail, 0, len(s.jobs))
	for _, d := range s.jobs {
		out = append(out, cloneDetail(d))
	}
	slices.SortFunc(out, func(a, b JobDetail) int {
		switch {
		case a.Identity.Less(b.Identity):
			return -1
		case b.Identity.Less(a.Identity):
			return 1
		}
		return 0
	})
	return out, nil
}

// GetJob implements Store.
func (s *MemoryStore) GetJob(_ context.Context, id job.Identity) (JobDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.jobs[id]
	if !ok {
		return JobDetail{}, ErrJobNotFound
	}
	return cloneDetail(d), nil
}

// CreateJob implements Store.
func (s *MemoryStore) CreateJob(_ context.Context, detail JobDetail, trigger Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[detail.Identity]; ok {
		return ErrJobExists
	}
	now := s.now()
	detail.CreatedAt = now
	detail.UpdatedAt = now
	trigger.Identity = detail.Identity
	s.jobs[detail.Identity] = cloneDetail(detail)
	s.triggers[detail.Identity] = trigger
	return nil
}

// SaveTrigger implements Store.
func (s *MemoryStore) SaveTrigger(_ context.Context, trigger Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.jobs[trigger.Identity]
	if !ok {
		return ErrJobNotFound
	}
	d.UpdatedAt = s.now()
	s.jobs[trigger.Identity] = d
	s.triggers[trigger.Identity] = trigger
	return nil
}

// GetTrigger implements Store.
func (s *MemoryStore) GetTrigger(_ context.Context, id job.Identity) (Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.triggers[id]
	if !ok {
		return Trigger{}, ErrTriggerNotFound
	}
	return t, nil
}

// DeleteJob implements Store.
func (s *MemoryStore) DeleteJob(_ context.Context, id job.Identity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.jobs[id]
	delete(s.jobs, id)
	delete(s.triggers, id)
	return ok, nil
}

// SaveExecutionRecord implements Store.
func (s *MemoryStore) SaveExecutionRecord(_ context.Context, id job.Identity, rec job.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	d.Record = &rec
	d.UpdatedAt = s.now()
	s.jobs[id] = d
	return nil
}

func cloneDetail(d JobDetail) JobDetail {
	if d.Record != nil {
		rec := *d.Record
		d.Record = &rec
	}
	return d
}
