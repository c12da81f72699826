package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SandboxJob is a persisted test-execution job for a generated project
// directory. ResultJSON is populated only on success.
type SandboxJob struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Status      string     `json:"status"`
	ProjectPath string     `json:"project_path"`
	ResultJSON  string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type sandboxRow struct {
	ID          string         `db:"id"`
	SessionID   string         `db:"session_id"`
	Status      string         `db:"status"`
	ProjectPath string         `db:"project_path"`
	ResultJSON  string         `db:"result_json"`
	Error       string         `db:"error"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
	StartedAt   sql.NullString `db:"started_at"`
	CompletedAt sql.NullString `db:"completed_at"`
}

func (r *sandboxRow) toJob() (*SandboxJob, error) {
	job := &SandboxJob{
		ID:          r.ID,
		SessionID:   r.SessionID,
		Status:      r.Status,
		ProjectPath: r.ProjectPath,
		ResultJSON:  r.ResultJSON,
		Error:       r.Error,
	}

	createdAt, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("sandbox job %s: invalid created_at: %w", r.ID, err)
	}
	job.CreatedAt = createdAt

	updatedAt, err := parseTime(r.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("sandbox job %s: invalid updated_at: %w", r.ID, err)
	}
	job.UpdatedAt = updatedAt

	if job.StartedAt, err = parseNullTime(r.StartedAt); err != nil {
		return nil, fmt.Errorf("sandbox job %s: invalid started_at: %w", r.ID, err)
	}
	if job.CompletedAt, err = parseNullTime(r.CompletedAt); err != nil {
		return nil, fmt.Errorf("sandbox job %s: invalid completed_at: %w", r.ID, err)
	}

	return job, nil
}

// CreateSandbox persists a new pending sandbox job. Idempotent on ID like
// Create.
func (s *Store) CreateSandbox(ctx context.Context, job *SandboxJob) error {
	query := s.db.Rebind(`
		INSERT INTO sandbox_jobs (id, session_id, status, project_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`)

	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.Status = StatusPending

	_, err := s.db.ExecContext(ctx, query,
		job.ID, job.SessionID, job.Status, job.ProjectPath,
		formatTime(job.CreatedAt), formatTime(job.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create sandbox job: %w", err)
	}

	s.logger.Info("Sandbox job created",
		slog.String("job_id", job.ID),
		slog.String("project_path", job.ProjectPath),
	)

	return nil
}

// GetSandbox retrieves a sandbox job by its ID.
func (s *Store) GetSandbox(ctx context.Context, jobID string) (*SandboxJob, error) {
	query := s.db.Rebind(`
		SELECT id, session_id, status, project_path, result_json, error,
		       created_at, updated_at, started_at, completed_at
		FROM sandbox_jobs
		WHERE id = ?
	`)

	var row sandboxRow
	if err := s.db.GetContext(ctx, &row, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get sandbox job: %w", err)
	}

	return row.toJob()
}

// ClaimNextSandbox claims the oldest pending sandbox job, mirroring
// ClaimNextPending.
func (s *Store) ClaimNextSandbox(ctx context.Context) (*SandboxJob, error) {
	selectQuery := s.db.Rebind(`
		SELECT id FROM sandbox_jobs
		WHERE status = ?
		ORDER BY created_at ASC
		LIMIT 1
	`)

	var jobID string
	if err := s.db.GetContext(ctx, &jobID, selectQuery, StatusPending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoPendingJobs
		}
		return nil, fmt.Errorf("failed to find pending sandbox job: %w", err)
	}

	now := formatTime(time.Now())
	updateQuery := s.db.Rebind(`
		UPDATE sandbox_jobs
		SET status = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`)

	res, err := s.db.ExecContext(ctx, updateQuery,
		StatusRunning, now, now, jobID, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to claim sandbox job: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return nil, ErrNoPendingJobs
	}

	s.logger.Info("Sandbox job claimed",
		slog.String("job_id", jobID),
	)

	return s.GetSandbox(ctx, jobID)
}

// MarkSandboxCompleted records a successful run with its result payload.
func (s *Store) MarkSandboxCompleted(ctx context.Context, jobID, resultJSON string) error {
	return s.finishSandbox(ctx, jobID, StatusCompleted, resultJSON, "")
}

// MarkSandboxFailed records a failed run. The result payload stays empty.
func (s *Store) MarkSandboxFailed(ctx context.Context, jobID, errorMsg string) error {
	return s.finishSandbox(ctx, jobID, StatusFailed, "", errorMsg)
}

func (s *Store) finishSandbox(ctx context.Context, jobID, status, resultJSON, errorMsg string) error {
	now := formatTime(time.Now())
	query := s.db.Rebind(`
		UPDATE sandbox_jobs
		SET status = ?, result_json = ?, error = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`)

	res, err := s.db.ExecContext(ctx, query,
		status, resultJSON, errorMsg, now, now, jobID)
	if err != nil {
		return fmt.Errorf("failed to update sandbox job status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return ErrJobNotFound
	}

	s.logger.Info("Sandbox job finished",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)

	return nil
}
