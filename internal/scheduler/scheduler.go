// Package scheduler implements the Job Scheduler (C3): admission control,
// a bounded worker pool, retry policy, and crash recovery. It is the only
// component that transitions a job between statuses once it leaves the
// queued state.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bobarin/podclip/internal/budget"
	"github.com/bobarin/podclip/internal/cost"
	"github.com/bobarin/podclip/internal/jobkind"
	"github.com/bobarin/podclip/internal/metrics"
	"github.com/bobarin/podclip/internal/models"
	"github.com/bobarin/podclip/internal/queue"
	"github.com/bobarin/podclip/internal/store"
	"github.com/google/uuid"
)

const (
	minClipDurationMs = 1_000
	maxClipDurationMs = 240_000

	fallbackPumpInterval = 5 * time.Second
)

// Pipeline runs every stage of a job — clip, caption, render, mux, notify —
// and returns the realized Result or a classified *jobkind.Error. The
// scheduler never inspects pipeline internals; it only reacts to Retriable.
type Pipeline interface {
	Run(ctx context.Context, job *models.Job) (models.Result, error)
}

// Notifier sends the operator chat summaries and the end-user push on
// completion (§4.7). The scheduler only knows these four transition points;
// it has no idea how or whether a message actually gets delivered.
type Notifier interface {
	PushCompleted(ctx context.Context, jobID uuid.UUID, deviceToken, podcastName, episodeTitle string)
	ChatStarted(ctx context.Context, jobID uuid.UUID)
	ChatCompleted(ctx context.Context, jobID uuid.UUID, estimatedUSD, realizedUSD float64, processingTimeMs int64)
	ChatFailed(ctx context.Context, jobID uuid.UUID, reason string)
}

// Scheduler owns admission, the worker pool, and retry/crash-recovery
// policy. It holds no job data of its own — everything mutable lives in
// store.Store, which is safe for concurrent use from many workers.
type Scheduler struct {
	store    *store.Store
	budget   *budget.Tracker
	wakeup   *queue.Wakeup
	pipeline Pipeline
	notifier Notifier
	log      *slog.Logger

	maxConcurrent int
	maxQueueSize  int
	maxRetries    int
	enabled       bool

	slots chan struct{} // worker-pool semaphore, buffered to maxConcurrent

	mu      sync.Mutex // serializes pumpQueue so only one goroutine drains the queue at a time
	pumping bool
}

type Config struct {
	MaxConcurrent int
	MaxQueueSize  int
	MaxRetries    int // per-job retry cap (§3 maxRetries, default 2)
	Enabled       bool // master feature flag (ENABLE_SERVER_VIDEO)
}

func New(s *store.Store, b *budget.Tracker, w *queue.Wakeup, pipeline Pipeline, cfg Config, log *slog.Logger, notifier Notifier) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	return &Scheduler{
		store:         s,
		budget:        b,
		wakeup:        w,
		pipeline:      pipeline,
		notifier:      notifier,
		log:           log,
		maxConcurrent: cfg.MaxConcurrent,
		maxQueueSize:  cfg.MaxQueueSize,
		maxRetries:    maxRetries,
		enabled:       cfg.Enabled,
		slots:         make(chan struct{}, cfg.MaxConcurrent),
	}
}

// SubmitResult is the admission response (§3).
type SubmitResult struct {
	JobID            uuid.UUID
	EstimatedTimeSec int
	QueuePosition    int
}

// Submit runs admission control and, on success, persists the job as queued
// and immediately returns — it never blocks on the job actually running.
func (s *Scheduler) Submit(ctx context.Context, req models.Request) (SubmitResult, error) {
	if !s.enabled {
		return SubmitResult{}, jobkind.New(jobkind.FeatureDisabled, fmt.Errorf("server-side video rendering is disabled"))
	}

	clipDuration := req.ClipEndMs - req.ClipStartMs
	if clipDuration < minClipDurationMs || clipDuration > maxClipDurationMs {
		return SubmitResult{}, jobkind.New(jobkind.InvalidRequest, fmt.Errorf("clip duration %dms out of range [%d, %d]", clipDuration, minClipDurationMs, maxClipDurationMs))
	}
	if req.AudioURL == "" {
		return SubmitResult{}, jobkind.New(jobkind.InvalidRequest, fmt.Errorf("audioUrl is required"))
	}

	queued := len(s.store.GetByStatus(models.StatusQueued))
	if queued >= s.maxQueueSize {
		return SubmitResult{}, jobkind.New(jobkind.QueueFull, fmt.Errorf("queue is full (%d/%d)", queued, s.maxQueueSize))
	}

	estimate := cost.Estimate(req)
	if !s.budget.Reserve(estimate.TotalUSD) {
		return SubmitResult{}, jobkind.New(jobkind.BudgetExceeded, fmt.Errorf("daily spending cap would be exceeded"))
	}

	job := &models.Job{
		ID:               uuid.New(),
		Status:           models.StatusQueued,
		Request:          req,
		EstimatedCost:    estimate.TotalUSD,
		EstimatedTimeSec: cost.EstimateTimeSec(req),
		MaxRetries:       s.maxRetries,
	}

	if err := s.store.Create(ctx, job); err != nil {
		s.budget.Release(estimate.TotalUSD)
		return SubmitResult{}, fmt.Errorf("failed to admit job: %w", err)
	}

	s.log.Info("job admitted", "jobId", job.ID, "estimatedCost", estimate.TotalUSD, "estimatedTimeSec", job.EstimatedTimeSec)
	metrics.JobsSubmitted.Inc()

	s.pumpQueue(ctx)
	if s.wakeup != nil {
		s.wakeup.Signal(ctx)
	}

	return SubmitResult{
		JobID:            job.ID,
		EstimatedTimeSec: job.EstimatedTimeSec,
		QueuePosition:    s.store.QueuePosition(job.ID),
	}, nil
}

// Status is the GetStatus response — the job record plus live pool state.
type Status struct {
	Job           *models.Job
	QueuePosition int
	ActiveJobs    int
}

// GetStatus returns the full job record plus live queuePosition and
// activeJobs — the scheduler is the only place these two numbers can be
// read consistently with each other.
func (s *Scheduler) GetStatus(jobID uuid.UUID) (Status, bool) {
	job, ok := s.store.Get(jobID)
	if !ok {
		return Status{}, false
	}
	return Status{
		Job:           job,
		QueuePosition: s.store.QueuePosition(jobID),
		ActiveJobs:    s.store.CountProcessing(),
	}, true
}

// Start runs crash recovery then begins the background pump loop. It
// blocks until ctx is cancelled, so callers run it in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.recover(ctx); err != nil {
		return fmt.Errorf("crash recovery failed: %w", err)
	}
	s.pumpQueue(ctx)

	for {
		if s.wakeup != nil {
			s.wakeup.Wait(ctx, fallbackPumpInterval)
		} else {
			select {
			case <-time.After(fallbackPumpInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.pumpQueue(ctx)
	}
}

// recover demotes every processing job back to queued — a worker was
// killed mid-run, and all pipeline outputs are content-derived so the work
// is cheap to redo (§4.1).
func (s *Scheduler) recover(ctx context.Context) error {
	jobs, err := s.store.Rehydrate(ctx)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if job.Status != models.StatusProcessing {
			continue
		}
		s.log.Warn("demoting orphaned processing job on startup", "jobId", job.ID)
		if err := s.store.Requeue(ctx, job.ID); err != nil {
			s.log.Error("failed to demote orphaned job", "jobId", job.ID, "error", err)
		}
	}
	return nil
}

// pumpQueue is the scheduler's single critical section: while free worker
// slots exist, it selects the oldest queued job and hands it to a worker.
// Called after every submit, after every worker completion, and once on
// startup (§4.1).
func (s *Scheduler) pumpQueue(ctx context.Context) {
	s.mu.Lock()
	if s.pumping {
		s.mu.Unlock()
		return
	}
	s.pumping = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.pumping = false
		s.mu.Unlock()
	}()

	for {
		select {
		case s.slots <- struct{}{}:
		default:
			return // pool is saturated
		}

		queued := s.store.GetByStatus(models.StatusQueued)
		if len(queued) == 0 {
			<-s.slots
			return
		}
		job := queued[0]

		if err := s.store.SetProcessing(ctx, job.ID); err != nil {
			s.log.Error("failed to mark job processing", "jobId", job.ID, "error", err)
			<-s.slots
			continue
		}
		if s.notifier != nil {
			s.notifier.ChatStarted(ctx, job.ID)
		}

		go s.runWorker(ctx, job.ID)
	}
}

// runWorker executes one job end to end and applies the retry/terminal
// policy to whatever the pipeline returns.
func (s *Scheduler) runWorker(ctx context.Context, jobID uuid.UUID) {
	metrics.JobsInFlight.Inc()
	defer func() { metrics.JobsInFlight.Dec(); <-s.slots; s.pumpQueue(ctx) }()

	job, ok := s.store.Get(jobID)
	if !ok {
		s.log.Error("worker picked up unknown job", "jobId", jobID)
		return
	}

	start := time.Now()
	result, err := s.pipeline.Run(ctx, job)
	if err != nil {
		s.handleFailure(ctx, job, err)
		return
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()
	metrics.ProcessingDurationSec.Observe(time.Since(start).Seconds())
	metrics.JobsCompleted.Inc()
	realized := cost.Realize(job.Request, result.DurationSec)
	result.CostBreakdown = realized
	s.budget.Release(job.EstimatedCost - realized.TotalUSD)

	if err := s.store.Complete(ctx, jobID, result); err != nil {
		s.log.Error("failed to persist job completion", "jobId", jobID, "error", err)
		return
	}
	s.log.Info("job completed", "jobId", jobID, "processingTimeMs", result.ProcessingTimeMs, "realizedCost", realized.TotalUSD)

	if s.notifier != nil {
		s.notifier.ChatCompleted(ctx, jobID, job.EstimatedCost, realized.TotalUSD, result.ProcessingTimeMs)
		s.notifier.PushCompleted(ctx, jobID, job.Request.DeviceToken, job.Request.Podcast.PodcastName, job.Request.Podcast.Title)
	}
}

func (s *Scheduler) handleFailure(ctx context.Context, job *models.Job, err error) {
	kind := jobkind.KindOf(err)
	s.log.Warn("job failed", "jobId", job.ID, "kind", kind, "retries", job.Retries, "maxRetries", job.MaxRetries, "error", err)
	metrics.JobsFailed.WithLabelValues(string(kind)).Inc()

	if kind.Retriable() && job.Retries < job.MaxRetries {
		if rqErr := s.store.Requeue(ctx, job.ID); rqErr != nil {
			s.log.Error("failed to requeue job after retriable failure", "jobId", job.ID, "error", rqErr)
		}
		return
	}

	s.budget.Release(job.EstimatedCost)
	if failErr := s.store.Fail(ctx, job.ID, err.Error()); failErr != nil {
		s.log.Error("failed to persist job failure", "jobId", job.ID, "error", failErr)
	}
	if s.notifier != nil {
		s.notifier.ChatFailed(ctx, job.ID, err.Error())
	}
}
