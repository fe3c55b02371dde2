package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/bobarin/podclip/internal/models"
	"github.com/google/uuid"
)

// CreateJob persists a new job row. Called once at admission, before the
// submit call returns a jobId to the caller — the spec requires the durable
// write to succeed before the scheduler acknowledges admission.
func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	reqJSON, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	query := `
		INSERT INTO jobs (id, status, request, estimated_cost, estimated_time_sec, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	return db.QueryRowContext(ctx, query,
		job.ID, job.Status, reqJSON, job.EstimatedCost, job.EstimatedTimeSec, job.MaxRetries,
	).Scan(&job.CreatedAt)
}

// GetJob fetches a single job by id.
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	query := `
		SELECT id, status, request, estimated_cost, estimated_time_sec,
		       created_at, started_at, completed_at, failed_at,
		       retries, max_retries, result, error_message
		FROM jobs WHERE id = $1
	`
	row := db.QueryRowContext(ctx, query, id)
	job, err := scanJobRows(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// GetByStatus returns all jobs in the given status, oldest createdAt first —
// this is the FIFO admission order the scheduler's pumpQueue relies on.
func (db *DB) GetByStatus(ctx context.Context, status models.Status) ([]*models.Job, error) {
	return db.queryJobs(ctx, `
		SELECT id, status, request, estimated_cost, estimated_time_sec,
		       created_at, started_at, completed_at, failed_at,
		       retries, max_retries, result, error_message
		FROM jobs WHERE status = $1 ORDER BY created_at ASC
	`, status)
}

// GetNonTerminal returns every queued or processing job — used once at
// startup for crash recovery (§4.1).
func (db *DB) GetNonTerminal(ctx context.Context) ([]*models.Job, error) {
	query := `
		SELECT id, status, request, estimated_cost, estimated_time_sec,
		       created_at, started_at, completed_at, failed_at,
		       retries, max_retries, result, error_message
		FROM jobs WHERE status IN ($1, $2) ORDER BY created_at ASC
	`
	rows, err := db.QueryContext(ctx, query, models.StatusQueued, models.StatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("failed to query non-terminal jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (db *DB) queryJobs(ctx context.Context, query string, args ...interface{}) ([]*models.Job, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows *sql.Rows) ([]*models.Job, error) {
	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJobRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateStatus transitions a job's status, stamping the relevant timestamp.
func (db *DB) UpdateStatus(ctx context.Context, id uuid.UUID, status models.Status) error {
	query := `UPDATE jobs SET status = $1 WHERE id = $2`
	if status == models.StatusProcessing {
		query = `UPDATE jobs SET status = $1, started_at = NOW() WHERE id = $2`
	}
	_, err := db.ExecContext(ctx, query, status, id)
	return err
}

// IncrementRetry bumps retries and sets status back to queued — the
// retriable-failure path of §4.1.
func (db *DB) IncrementRetry(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE jobs SET status = $1, retries = retries + 1 WHERE id = $2`
	_, err := db.ExecContext(ctx, query, models.StatusQueued, id)
	return err
}

// CompleteJob attaches the success result and marks the job completed.
func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID, result models.Result) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	query := `UPDATE jobs SET status = $1, completed_at = NOW(), result = $2 WHERE id = $3`
	_, err = db.ExecContext(ctx, query, models.StatusCompleted, resultJSON, id)
	return err
}

// FailJob attaches the terminal error message and marks the job failed.
func (db *DB) FailJob(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `UPDATE jobs SET status = $1, failed_at = NOW(), error_message = $2 WHERE id = $3`
	_, err := db.ExecContext(ctx, query, models.StatusFailed, errMsg, id)
	return err
}

// SumEstimatedCostToday returns the sum of estimatedCost for all jobs
// created since UTC midnight today — used to reconcile the in-memory
// budget counter against the durable record on restart.
func (db *DB) SumEstimatedCostToday(ctx context.Context) (float64, error) {
	query := `
		SELECT COALESCE(SUM(estimated_cost), 0)
		FROM jobs
		WHERE created_at >= date_trunc('day', NOW() AT TIME ZONE 'UTC') AT TIME ZONE 'UTC'
	`
	var sum float64
	err := db.QueryRowContext(ctx, query).Scan(&sum)
	return sum, err
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanJobRows(row scannable) (*models.Job, error) {
	job := &models.Job{}
	var reqJSON, resultJSON []byte
	var errMsg sql.NullString
	var startedAt, completedAt, failedAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.Status, &reqJSON, &job.EstimatedCost, &job.EstimatedTimeSec,
		&job.CreatedAt, &startedAt, &completedAt, &failedAt,
		&job.Retries, &job.MaxRetries, &resultJSON, &errMsg,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(reqJSON, &job.Request); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	if len(resultJSON) > 0 {
		var result models.Result
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		job.Result = &result
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	if failedAt.Valid {
		t := failedAt.Time
		job.FailedAt = &t
	}

	return job, nil
}
