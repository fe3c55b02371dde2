package store

import (
	"context"
	"testing"
	"time"

	"github.com/bobarin/podclip/internal/models"
	"github.com/google/uuid"
)

func newTestJob(createdAt time.Time) *models.Job {
	return &models.Job{
		ID:         uuid.New(),
		Status:     models.StatusQueued,
		CreatedAt:  createdAt,
		MaxRetries: 2,
	}
}

func TestCreateAndGetMemoryOnly(t *testing.T) {
	s := New(nil)
	if s.Durable() {
		t.Fatal("expected memory-only store to report not durable")
	}

	job := newTestJob(time.Now())
	if err := s.Create(context.Background(), job); err != nil {
		t.Fatalf("unexpected error creating job: %v", err)
	}

	got, ok := s.Get(job.ID)
	if !ok {
		t.Fatal("expected job to be found")
	}
	if got.ID != job.ID {
		t.Errorf("expected id %v, got %v", job.ID, got.ID)
	}

	got.Status = models.StatusFailed
	reread, _ := s.Get(job.ID)
	if reread.Status != models.StatusQueued {
		t.Error("mutating a returned copy must not affect the mirror")
	}
}

func TestQueuePositionOrdersByCreatedAt(t *testing.T) {
	s := New(nil)
	base := time.Now()

	first := newTestJob(base)
	second := newTestJob(base.Add(time.Second))
	third := newTestJob(base.Add(2 * time.Second))

	for _, j := range []*models.Job{third, first, second} {
		if err := s.Create(context.Background(), j); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	if pos := s.QueuePosition(first.ID); pos != 0 {
		t.Errorf("expected first job to have queuePosition 0, got %d", pos)
	}
	if pos := s.QueuePosition(third.ID); pos != 2 {
		t.Errorf("expected third job to have queuePosition 2, got %d", pos)
	}
}

func TestCompleteTransitionsStatus(t *testing.T) {
	s := New(nil)
	job := newTestJob(time.Now())
	s.Create(context.Background(), job)

	result := models.Result{VideoURL: "https://example.com/v.mp4", DurationSec: 12.5}
	if err := s.Complete(context.Background(), job.ID, result); err != nil {
		t.Fatalf("unexpected error completing job: %v", err)
	}

	got, _ := s.Get(job.ID)
	if got.Status != models.StatusCompleted {
		t.Errorf("expected status completed, got %v", got.Status)
	}
	if got.Result == nil || got.Result.VideoURL != result.VideoURL {
		t.Error("expected result to be attached")
	}
}

func TestRequeueIncrementsRetries(t *testing.T) {
	s := New(nil)
	job := newTestJob(time.Now())
	s.Create(context.Background(), job)
	s.SetProcessing(context.Background(), job.ID)

	if err := s.Requeue(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error requeueing job: %v", err)
	}

	got, _ := s.Get(job.ID)
	if got.Status != models.StatusQueued {
		t.Errorf("expected status queued after requeue, got %v", got.Status)
	}
	if got.Retries != 1 {
		t.Errorf("expected retries=1, got %d", got.Retries)
	}
}

func TestMutateUnknownJobErrors(t *testing.T) {
	s := New(nil)
	if err := s.SetProcessing(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error mutating a job that was never created")
	}
}
