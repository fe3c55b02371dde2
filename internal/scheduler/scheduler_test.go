package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bobarin/podclip/internal/budget"
	"github.com/bobarin/podclip/internal/jobkind"
	"github.com/bobarin/podclip/internal/models"
	"github.com/bobarin/podclip/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	mu    sync.Mutex
	calls int
	fn    func(calls int, job *models.Job) (models.Result, error)
}

func (f *fakePipeline) Run(ctx context.Context, job *models.Job) (models.Result, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(n, job)
	}
	return models.Result{DurationSec: 10}, nil
}

func validRequest() models.Request {
	return models.Request{
		AudioURL:    "https://example.com/a.mp3",
		ClipStartMs: 0,
		ClipEndMs:   30_000,
	}
}

func newTestScheduler(t *testing.T, pipeline Pipeline, cfg Config) *Scheduler {
	t.Helper()
	s := store.New(nil)
	b := budget.New(100.0)
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.MaxQueueSize == 0 {
		cfg.MaxQueueSize = 10
	}
	cfg.Enabled = true
	return New(s, b, nil, pipeline, cfg, nil, nil)
}

func TestSubmitRejectsInvalidClipDuration(t *testing.T) {
	s := newTestScheduler(t, &fakePipeline{}, Config{})
	req := validRequest()
	req.ClipEndMs = req.ClipStartMs // zero-length clip

	_, err := s.Submit(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, jobkind.InvalidRequest, jobkind.KindOf(err))
}

func TestSubmitRejectsWhenDisabled(t *testing.T) {
	s := newTestScheduler(t, &fakePipeline{}, Config{})
	s.enabled = false

	_, err := s.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, jobkind.FeatureDisabled, jobkind.KindOf(err))
}

func TestSubmitRejectsOverBudget(t *testing.T) {
	s := store.New(nil)
	b := budget.New(0.0001) // effectively no room
	sched := New(s, b, nil, &fakePipeline{}, Config{MaxConcurrent: 2, MaxQueueSize: 10, Enabled: true}, nil, nil)

	_, err := sched.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, jobkind.BudgetExceeded, jobkind.KindOf(err))
}

func TestSubmitRejectsWhenQueueFull(t *testing.T) {
	pipeline := &fakePipeline{fn: func(calls int, job *models.Job) (models.Result, error) {
		time.Sleep(50 * time.Millisecond)
		return models.Result{DurationSec: 1}, nil
	}}
	s := newTestScheduler(t, pipeline, Config{MaxConcurrent: 1, MaxQueueSize: 1})

	// First job takes the single worker slot; second sits queued.
	_, err := s.Submit(context.Background(), validRequest())
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	// Queue is now at MaxQueueSize=1; a third submission must be rejected.
	_, err = s.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, jobkind.QueueFull, jobkind.KindOf(err))
}

func TestJobCompletesSuccessfully(t *testing.T) {
	s := newTestScheduler(t, &fakePipeline{}, Config{})

	res, err := s.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, ok := s.GetStatus(res.JobID)
		return ok && status.Job.Status == models.StatusCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestRetriableFailureRequeuesThenFails(t *testing.T) {
	pipeline := &fakePipeline{fn: func(calls int, job *models.Job) (models.Result, error) {
		return models.Result{}, jobkind.New(jobkind.MediaProcessingTransient, fmt.Errorf("ffmpeg hiccup"))
	}}
	s := newTestScheduler(t, pipeline, Config{})

	res, err := s.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, ok := s.GetStatus(res.JobID)
		return ok && status.Job.Status == models.StatusFailed
	}, 2*time.Second, 5*time.Millisecond)

	status, _ := s.GetStatus(res.JobID)
	assert.Equal(t, status.Job.MaxRetries, status.Job.Retries)
}

func TestNonRetriableFailureFailsImmediately(t *testing.T) {
	pipeline := &fakePipeline{fn: func(calls int, job *models.Job) (models.Result, error) {
		return models.Result{}, jobkind.New(jobkind.SourceUnavailable4xx, fmt.Errorf("404"))
	}}
	s := newTestScheduler(t, pipeline, Config{})

	res, err := s.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, ok := s.GetStatus(res.JobID)
		return ok && status.Job.Status == models.StatusFailed
	}, time.Second, 5*time.Millisecond)

	status, _ := s.GetStatus(res.JobID)
	assert.Equal(t, 0, status.Job.Retries)
}

func TestStartMemoryOnlyRecoveryIsNoop(t *testing.T) {
	// A nil *db.DB store has nothing to rehydrate from — this exercises the
	// no-op recovery path and confirms Start doesn't error when running
	// memory-only: it only returns once its context is cancelled.
	s := newTestScheduler(t, &fakePipeline{}, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}
