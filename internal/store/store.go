// Package store implements the Job Store (C2): durable persistence plus an
// in-memory mirror for the hot status-poll path. When no database is
// configured, it degrades to memory-only (dev mode per §6.2).
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bobarin/podclip/internal/db"
	"github.com/bobarin/podclip/internal/models"
	"github.com/google/uuid"
)

// Store is the single writer of job state. The scheduler and the worker
// that owns a job are the only callers that mutate through it; status reads
// go through the mirror without touching the database.
type Store struct {
	db *db.DB // nil in memory-only mode

	mu    sync.RWMutex
	byID  map[uuid.UUID]*models.Job
}

func New(database *db.DB) *Store {
	return &Store{
		db:   database,
		byID: make(map[uuid.UUID]*models.Job),
	}
}

// Durable reports whether writes are backed by Postgres. Memory-only mode is
// explicitly acceptable only in dev, per §6.2.
func (s *Store) Durable() bool { return s.db != nil }

// Create persists a new job. The durable write must succeed before the
// caller acknowledges admission — mirrored into memory only after that.
func (s *Store) Create(ctx context.Context, job *models.Job) error {
	if s.db != nil {
		if err := s.db.CreateJob(ctx, job); err != nil {
			return fmt.Errorf("failed to persist job: %w", err)
		}
	} else if job.CreatedAt.IsZero() {
		// No durable store to stamp createdAt via RETURNING — the mirror is
		// the only copy, so it must assign a real timestamp itself to keep
		// FIFO admission order (§5, §8) meaningful in memory-only mode. Tests
		// that pre-set CreatedAt to exercise ordering explicitly keep it.
		job.CreatedAt = time.Now()
	}
	s.mu.Lock()
	s.byID[job.ID] = job.Clone()
	s.mu.Unlock()
	return nil
}

// Get returns a defensive copy of the job so callers can never mutate store
// state by holding onto the pointer.
func (s *Store) Get(jobID uuid.UUID) (*models.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.byID[jobID]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// GetByStatus returns copies of every job in the given status, oldest first.
func (s *Store) GetByStatus(status models.Status) []*models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Job
	for _, job := range s.byID {
		if job.Status == status {
			out = append(out, job.Clone())
		}
	}
	sortByCreatedAt(out)
	return out
}

// CountProcessing returns the number of jobs currently holding a worker slot.
func (s *Store) CountProcessing() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, job := range s.byID {
		if job.Status == models.StatusProcessing {
			n++
		}
	}
	return n
}

// QueuePosition returns the number of queued jobs with strictly earlier
// createdAt than jobID — §8's quantified queuePosition invariant.
func (s *Store) QueuePosition(jobID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.byID[jobID]
	if !ok || target.Status != models.StatusQueued {
		return 0
	}
	pos := 0
	for _, job := range s.byID {
		if job.Status == models.StatusQueued && job.CreatedAt.Before(target.CreatedAt) {
			pos++
		}
	}
	return pos
}

// SetProcessing transitions a job to processing and stamps startedAt.
func (s *Store) SetProcessing(ctx context.Context, jobID uuid.UUID) error {
	return s.mutate(ctx, jobID, func(job *models.Job) error {
		if s.db != nil {
			if err := s.db.UpdateStatus(ctx, jobID, models.StatusProcessing); err != nil {
				return err
			}
		}
		job.Status = models.StatusProcessing
		now := time.Now()
		job.StartedAt = &now
		return nil
	})
}

// Requeue demotes a job back to queued and increments its retry counter.
func (s *Store) Requeue(ctx context.Context, jobID uuid.UUID) error {
	return s.mutate(ctx, jobID, func(job *models.Job) error {
		if s.db != nil {
			if err := s.db.IncrementRetry(ctx, jobID); err != nil {
				return err
			}
		}
		job.Status = models.StatusQueued
		job.Retries++
		return nil
	})
}

// Complete marks a job completed and attaches its result.
func (s *Store) Complete(ctx context.Context, jobID uuid.UUID, result models.Result) error {
	return s.mutate(ctx, jobID, func(job *models.Job) error {
		if s.db != nil {
			if err := s.db.CompleteJob(ctx, jobID, result); err != nil {
				return err
			}
		}
		job.Status = models.StatusCompleted
		job.Result = &result
		now := time.Now()
		job.CompletedAt = &now
		return nil
	})
}

// Fail marks a job failed with a human-readable error message.
func (s *Store) Fail(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	return s.mutate(ctx, jobID, func(job *models.Job) error {
		if s.db != nil {
			if err := s.db.FailJob(ctx, jobID, errMsg); err != nil {
				return err
			}
		}
		job.Status = models.StatusFailed
		job.Error = errMsg
		now := time.Now()
		job.FailedAt = &now
		return nil
	})
}

func (s *Store) mutate(ctx context.Context, jobID uuid.UUID, fn func(*models.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.byID[jobID]
	if !ok {
		return fmt.Errorf("job not found: %s", jobID)
	}
	cp := job.Clone()
	if err := fn(cp); err != nil {
		return err
	}
	s.byID[jobID] = cp
	return nil
}

// Rehydrate loads every non-terminal job from durable storage into the
// in-memory mirror — the startup half of crash recovery (§4.1). It does NOT
// demote processing jobs; that policy decision belongs to the scheduler.
func (s *Store) Rehydrate(ctx context.Context) ([]*models.Job, error) {
	if s.db == nil {
		return nil, nil
	}
	jobs, err := s.db.GetNonTerminal(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to rehydrate jobs: %w", err)
	}
	s.mu.Lock()
	for _, job := range jobs {
		s.byID[job.ID] = job.Clone()
	}
	s.mu.Unlock()
	return jobs, nil
}

func sortByCreatedAt(jobs []*models.Job) {
	// Insertion sort: job counts per status are small (bounded by
	// MaxQueueSize), so O(n^2) is fine and avoids importing sort for one call site.
	for i := 1; i < len(jobs); i++ {
		for j := i; j > 0 && jobs[j].CreatedAt.Before(jobs[j-1].CreatedAt); j-- {
			jobs[j], jobs[j-1] = jobs[j-1], jobs[j]
		}
	}
}
