// internal/infrastructure/persistence/in_memory_storage/job_store.go
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"trading-session-guard/internal/core/domain/jobs"
)

// InMemoryJobStore очередь задач в памяти с той же семантикой аренды, что и SQL версия
type InMemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*jobs.Job
}

// NewInMemoryJobStore создает пустую очередь
func NewInMemoryJobStore() *InMemoryJobStore {
	return &InMemoryJobStore{jobs: make(map[string]*jobs.Job)}
}

// Insert добавляет задачу, если ключ свободен
func (s *InMemoryJobStore) Insert(ctx context.Context, job *jobs.Job) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return false, nil
	}
	s.jobs[job.ID] = job.Clone()
	return true, nil
}

// Claim захватывает готовые задачи
func (s *InMemoryJobStore) Claim(ctx context.Context, owner string, now time.Time, leaseTTL time.Duration, limit int) ([]*jobs.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	due := make([]*jobs.Job, 0)
	for _, job := range s.jobs {
		if claimable(job, now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].RunAt.Equal(due[j].RunAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].RunAt.Before(due[j].RunAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*jobs.Job, 0, len(due))
	for _, job := range due {
		job.State = jobs.StateActive
		job.LeaseOwner = owner
		job.LeaseUntil = now.Add(leaseTTL)
		job.Attempts++
		job.UpdatedAt = now
		claimed = append(claimed, job.Clone())
	}
	return claimed, nil
}

// Complete завершает разовую задачу
func (s *InMemoryJobStore) Complete(ctx context.Context, id, owner string, now time.Time) (bool, error) {
	return s.withLease(id, owner, func(job *jobs.Job) {
		job.State = jobs.StateCompleted
		job.LeaseOwner = ""
		job.LastError = ""
		job.UpdatedAt = now
	})
}

// Reschedule возвращает задачу в очередь
func (s *InMemoryJobStore) Reschedule(ctx context.Context, id, owner string, runAt time.Time, attempts int, lastErr string, now time.Time) (bool, error) {
	return s.withLease(id, owner, func(job *jobs.Job) {
		job.State = jobs.StatePending
		job.RunAt = runAt
		job.Attempts = attempts
		job.LastError = lastErr
		job.LeaseOwner = ""
		job.LeaseUntil = time.Time{}
		job.UpdatedAt = now
	})
}

// Fail переводит задачу в dead-letter
func (s *InMemoryJobStore) Fail(ctx context.Context, id, owner, lastErr string, now time.Time) (bool, error) {
	return s.withLease(id, owner, func(job *jobs.Job) {
		job.State = jobs.StateFailed
		job.LastError = lastErr
		job.LeaseOwner = ""
		job.UpdatedAt = now
	})
}

// Delete удаляет незавершённую задачу
func (s *InMemoryJobStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || finished(job) {
		return false, nil
	}
	delete(s.jobs, id)
	return true, nil
}

// DeleteBySession удаляет незавершённые задачи сессии указанных типов
func (s *InMemoryJobStore) DeleteBySession(ctx context.Context, sessionID string, types []jobs.Type) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[jobs.Type]bool, len(types))
	for _, t := range types {
		wanted[t] = true
	}

	var deleted int64
	for id, job := range s.jobs {
		if job.SessionID != sessionID || finished(job) {
			continue
		}
		if len(wanted) > 0 && !wanted[job.Type] {
			continue
		}
		delete(s.jobs, id)
		deleted++
	}
	return deleted, nil
}

// Get возвращает копию задачи
func (s *InMemoryJobStore) Get(ctx context.Context, id string) (*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, jobs.ErrJobNotFound
	}
	return job.Clone(), nil
}

// ListByState задачи в состоянии state
func (s *InMemoryJobStore) ListByState(ctx context.Context, state jobs.State, limit int) ([]*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*jobs.Job, 0)
	for _, job := range s.jobs {
		if job.State == state {
			result = append(result, job.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.Before(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountByState количество задач в состоянии state
func (s *InMemoryJobStore) CountByState(ctx context.Context, state jobs.State) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, job := range s.jobs {
		if job.State == state {
			n++
		}
	}
	return n, nil
}

// Requeue возвращает dead-letter задачу в pending
func (s *InMemoryJobStore) Requeue(ctx context.Context, id string, runAt, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.State != jobs.StateFailed {
		return false, nil
	}
	job.State = jobs.StatePending
	job.Attempts = 0
	job.RunAt = runAt
	job.LastError = ""
	job.UpdatedAt = now
	return true, nil
}

// PruneFinished удаляет старые завершённые задачи
func (s *InMemoryJobStore) PruneFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for id, job := range s.jobs {
		if finished(job) && job.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			pruned++
		}
	}
	return pruned, nil
}

func (s *InMemoryJobStore) withLease(id, owner string, apply func(*jobs.Job)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.State != jobs.StateActive || job.LeaseOwner != owner {
		return false, nil
	}
	apply(job)
	return true, nil
}

func claimable(job *jobs.Job, now time.Time) bool {
	switch job.State {
	case jobs.StatePending:
		return !job.RunAt.After(now)
	case jobs.StateActive:
		return job.LeaseUntil.Before(now)
	}
	return false
}

func finished(job *jobs.Job) bool {
	return job.State == jobs.StateCompleted || job.State == jobs.StateFailed
}
