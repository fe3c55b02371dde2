package db

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bobarin/podclip/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return &DB{DB: sqlDB}, mock
}

func TestCreateJobScansReturnedCreatedAt(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	job := &models.Job{
		ID:               uuid.New(),
		Status:           models.StatusQueued,
		Request:          models.Request{AudioURL: "https://example.test/ep.mp3", ClipStartMs: 30000, ClipEndMs: 60000},
		EstimatedCost:    0.02,
		EstimatedTimeSec: 35,
		MaxRetries:       2,
	}

	mock.ExpectQuery(`INSERT INTO jobs \(id, status, request, estimated_cost, estimated_time_sec, max_retries\)`).
		WithArgs(job.ID, job.Status, sqlmock.AnyArg(), job.EstimatedCost, job.EstimatedTimeSec, job.MaxRetries).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	require.NoError(t, db.CreateJob(context.Background(), job))
	require.WithinDuration(t, now, job.CreatedAt, time.Second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByStatusScansFullRow(t *testing.T) {
	db, mock := newMockDB(t)

	jobID := uuid.New()
	createdAt := time.Now().Add(-time.Minute)
	reqJSON, err := json.Marshal(models.Request{AudioURL: "https://example.test/ep.mp3", ClipStartMs: 0, ClipEndMs: 30000})
	require.NoError(t, err)

	columns := []string{
		"id", "status", "request", "estimated_cost", "estimated_time_sec",
		"created_at", "started_at", "completed_at", "failed_at",
		"retries", "max_retries", "result", "error_message",
	}
	mock.ExpectQuery(`SELECT id, status, request, estimated_cost, estimated_time_sec,\s*created_at, started_at, completed_at, failed_at,\s*retries, max_retries, result, error_message\s*FROM jobs WHERE status = \$1 ORDER BY created_at ASC`).
		WithArgs(models.StatusQueued).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(jobID, models.StatusQueued, reqJSON, 0.02, 35, createdAt, nil, nil, nil, 0, 2, nil, nil))

	jobs, err := db.GetByStatus(context.Background(), models.StatusQueued)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, jobID, jobs[0].ID)
	require.Equal(t, models.StatusQueued, jobs[0].Status)
	require.Equal(t, "https://example.test/ep.mp3", jobs[0].Request.AudioURL)
	require.Nil(t, jobs[0].StartedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteJobMarshalsResultAndUpdatesStatus(t *testing.T) {
	db, mock := newMockDB(t)
	jobID := uuid.New()
	result := models.Result{VideoURL: "https://cdn.test/v.mp4", DurationSec: 30.1}

	mock.ExpectExec(`UPDATE jobs SET status = \$1, completed_at = NOW\(\), result = \$2 WHERE id = \$3`).
		WithArgs(models.StatusCompleted, sqlmock.AnyArg(), jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, db.CompleteJob(context.Background(), jobID, result))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementRetryRequeuesJob(t *testing.T) {
	db, mock := newMockDB(t)
	jobID := uuid.New()

	mock.ExpectExec(`UPDATE jobs SET status = \$1, retries = retries \+ 1 WHERE id = \$2`).
		WithArgs(models.StatusQueued, jobID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, db.IncrementRetry(context.Background(), jobID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSumEstimatedCostTodayReturnsCoalescedSum(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(estimated_cost\), 0\)\s*FROM jobs\s*WHERE created_at >= date_trunc\('day', NOW\(\) AT TIME ZONE 'UTC'\) AT TIME ZONE 'UTC'`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1.25))

	sum, err := db.SumEstimatedCostToday(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1.25, sum)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSumEstimatedCostTodayZeroWhenNoRows(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(estimated_cost\), 0\)`).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0.0))

	sum, err := db.SumEstimatedCostToday(context.Background())
	require.NoError(t, err)
	require.Zero(t, sum)
	require.NoError(t, mock.ExpectationsWereMet())
}
