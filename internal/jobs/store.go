package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	payload      TEXT NOT NULL,
	result       TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	started_at   TEXT,
	completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs (status, created_at);

CREATE TABLE IF NOT EXISTS sandbox_jobs (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	project_path TEXT NOT NULL,
	result_json  TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	started_at   TEXT,
	completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_sandbox_jobs_status_created ON sandbox_jobs (status, created_at);
`

// Store handles all database operations for generation and sandbox jobs.
// Queries are written with ? placeholders and rebound per driver, so the
// same store runs on sqlite and postgres.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Init creates the job tables if they do not exist.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize job tables: %w", err)
	}
	return nil
}

// jobRow is the scan target for the jobs table. Timestamps are stored as
// RFC3339Nano text for cross-driver portability and parsed on read.
type jobRow struct {
	ID          string         `db:"id"`
	SessionID   string         `db:"session_id"`
	Status      string         `db:"status"`
	Payload     string         `db:"payload"`
	Result      string         `db:"result"`
	Error       string         `db:"error"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
	StartedAt   sql.NullString `db:"started_at"`
	CompletedAt sql.NullString `db:"completed_at"`
}

func (r *jobRow) toJob() (*Job, error) {
	job := &Job{
		ID:        r.ID,
		SessionID: r.SessionID,
		Status:    r.Status,
		Payload:   r.Payload,
		Result:    r.Result,
		Error:     r.Error,
	}

	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("job %s: invalid created_at: %w", r.ID, err)
	}
	job.CreatedAt = createdAt

	updatedAt, err := parseTime(r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("job %s: invalid updated_at: %w", r.ID, err)
	}
	job.UpdatedAt = updatedAt

	if job.StartedAt, err = parseNullTime(r.StartedAt); err != nil {
		return nil, fmt.Errorf("job %s: invalid started_at: %w", r.ID, err)
	}
	if job.CompletedAt, err = parseNullTime(r.CompletedAt); err != nil {
		return nil, fmt.Errorf("job %s: invalid completed_at: %w", r.ID, err)
	}

	return job, nil
}

// timeLayout pads the fractional second to a fixed width so stored
// timestamps sort lexicographically in chronological order. RFC3339Nano
// drops trailing zeros, which breaks that within a second.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Create persists a new pending job. Inserting an existing ID is a no-op, so
// enqueueing the same job twice cannot duplicate work.
func (s *Store) Create(ctx context.Context, job *Job) error {
	query := s.db.Rebind(`
		INSERT INTO jobs (id, session_id, status, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.Status = StatusPending

	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.SessionID, job.Status, job.Payload,
		formatTime(job.CreatedAt), formatTime(job.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("session_id", job.SessionID),
	)

	return nil
}

// Get retrieves a job by its ID.
func (s *Store) Get(ctx context.Context, jobID string) (*Job, error) {
	query := s.db.Rebind(`
		SELECT id, session_id, status, payload, result, error,
		       created_at, updated_at, started_at, completed_at
		FROM jobs
		WHERE id = ?
	`)

	var row jobRow
	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return row.toJob()
}

// List returns the most recent jobs, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}

	query := s.db.Rebind(`
		SELECT id, session_id, status, payload, result, error,
		       created_at, updated_at, started_at, completed_at
		FROM jobs
		ORDER BY created_at DESC
		LIMIT ?
	`)

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := make([]*Job, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toJob()
		if err != nil {
			return nil, err
		}
		result = append(result, job)
	}
	return result, nil
}

// ClaimNextPending claims the oldest pending job using optimistic locking
// and returns it in running state. Returns ErrNoPendingJobs when the table
// has no pending work or another worker won the race.
func (s *Store) ClaimNextPending(ctx context.Context) (*Job, error) {
	selectQuery := s.db.Rebind(`
		SELECT id FROM jobs
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT 1
	`)

	var jobID string
	if err := s.db.GetContext(ctx, &jobID, selectQuery, StatusPending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoPendingJobs
		}
		return nil, fmt.Errorf("failed to find pending job: %w", err)
	}

	return s.Claim(ctx, jobID)
}

// Claim transitions one pending job to running. The status guard in the
// WHERE clause makes the claim atomic across competing workers.
func (s *Store) Claim(ctx context.Context, jobID string) (*Job, error) {
	now := formatTime(time.Now())
	updateQuery := s.db.Rebind(`
		UPDATE jobs
		SET status = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`)

	res, err := s.db.ExecContext(ctx, updateQuery,
		StatusRunning, now, now, jobID, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrNoPendingJobs
	}

	s.logger.Info("Job claimed",
		slog.String("job_id", jobID),
	)

	return s.Get(ctx, jobID)
}

// MarkCompleted records a successful terminal status with the serialized
// pipeline result.
func (s *Store) MarkCompleted(ctx context.Context, jobID, resultJSON string) error {
	return s.finish(ctx, jobID, StatusCompleted, resultJSON, "")
}

// MarkFailed records a failed terminal status with the terminal error text.
func (s *Store) MarkFailed(ctx context.Context, jobID, errorMsg string) error {
	return s.finish(ctx, jobID, StatusFailed, "", errorMsg)
}

func (s *Store) finish(ctx context.Context, jobID, status, resultJSON, errorMsg string) error {
	now := formatTime(time.Now())
	query := s.db.Rebind(`
		UPDATE jobs
		SET status = ?, result = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`)

	res, err := s.db.ExecContext(ctx, query,
		status, resultJSON, errorMsg, now, now, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}

	s.logger.Info("Job finished",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)

	return nil
}
