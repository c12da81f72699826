package jobs

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Job status constants
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrNoPendingJobs is returned when a claim attempt finds no pending work
	ErrNoPendingJobs = errors.New("no pending jobs")
)

// Job is a persisted generation job. Payload holds the JSON-encoded
// GenerationRequest; Result holds the JSON-encoded pipeline result once the
// job reaches a terminal status.
type Job struct {
	ID          string     `db:"id" json:"id"`
	SessionID   string     `db:"session_id" json:"session_id"`
	Status      string     `db:"status" json:"status"`
	Payload     string     `db:"payload" json:"-"`
	Result      string     `db:"result" json:"result,omitempty"`
	Error       string     `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time  `db:"-" json:"created_at"`
	UpdatedAt   time.Time  `db:"-" json:"updated_at"`
	StartedAt   *time.Time `db:"-" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"-" json:"completed_at,omitempty"`
}

// Terminal reports whether the job has reached a final status.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// GenerationRequest is the job payload describing one app-generation run.
type GenerationRequest struct {
	Request     string   `json:"request"`
	TechStack   []string `json:"tech_stack,omitempty"`
	ProjectName string   `json:"project_name,omitempty"`
	SkipStages  []string `json:"skip_stages,omitempty"`
}

// Message is the queue payload for the distributed backend. The row in the
// jobs table carries the request; the message only names it.
type Message struct {
	JobID     string `json:"job_id"`
	SessionID string `json:"session_id"`
}

// NewJobID returns a fresh generation job identifier.
func NewJobID() string {
	return newID("job_ship")
}

// NewSandboxJobID returns a fresh sandbox job identifier.
func NewSandboxJobID() string {
	return newID("job_test")
}

func newID(prefix string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().Unix(), suffix)
}

// IsSandboxID reports whether an identifier names a sandbox job.
func IsSandboxID(id string) bool {
	return strings.HasPrefix(id, "job_test_")
}
