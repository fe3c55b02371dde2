// Package db is the durable half of the Job Store (C2): raw-SQL
// persistence over Postgres via lib/pq, following the teacher's
// query-per-method idiom rather than an ORM.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB wraps *sql.DB so query methods can be added as receivers, exactly as
// the teacher's internal/db package does.
type DB struct {
	*sql.DB
}

// New opens the connection pool and waits for it to become reachable with a
// few bounded retries — the teacher dials once and fails fast; a server
// process that starts before its database is ready is common enough in
// container orchestration that a short retry loop is worth the extra lines.
func New(databaseURL string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	var pingErr error
	for attempt := 0; attempt < 5; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr = sqlDB.PingContext(ctx)
		cancel()
		if pingErr == nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * time.Second)
	}
	if pingErr != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to reach database after retries: %w", pingErr)
	}

	d := &DB{DB: sqlDB}
	if err := d.migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return d, nil
}

// migrate creates the jobs table if it doesn't already exist. No migration
// framework — the schema is small and append-only, matching the spec's
// "Job records are the only durable state" contract.
func (db *DB) migrate(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id                  UUID PRIMARY KEY,
			status              TEXT NOT NULL,
			request             JSONB NOT NULL,
			estimated_cost      DOUBLE PRECISION NOT NULL,
			estimated_time_sec  INTEGER NOT NULL,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			started_at          TIMESTAMPTZ,
			completed_at        TIMESTAMPTZ,
			failed_at           TIMESTAMPTZ,
			retries             INTEGER NOT NULL DEFAULT 0,
			max_retries         INTEGER NOT NULL DEFAULT 2,
			result              JSONB,
			error_message       TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_status_created_at ON jobs (status, created_at);
	`)
	return err
}
