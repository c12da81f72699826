package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// SandboxRunner executes the test suite of one generated project and returns
// a JSON result document.
type SandboxRunner interface {
	Run(ctx context.Context, projectPath string) (resultJSON string, err error)
}

// CommandSandboxRunner runs a shell command in the project directory and
// treats its trimmed stdout as the result document.
type CommandSandboxRunner struct {
	Command string
	Timeout time.Duration
	Logger  *slog.Logger
}

// Run executes the configured command with the project directory as working
// directory.
func (r *CommandSandboxRunner) Run(ctx context.Context, projectPath string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", r.Command)
	cmd.Dir = projectPath

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.Logger.Info("Running sandbox command",
		slog.String("command", r.Command),
		slog.String("project_path", projectPath),
	)

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail != "" {
			return "", fmt.Errorf("sandbox command failed: %w: %s", err, detail)
		}
		return "", fmt.Errorf("sandbox command failed: %w", err)
	}

	return strings.TrimSpace(stdout.String()), nil
}

// SandboxQueue schedules sandbox test jobs with the same poll-loop pattern as
// EmbeddedQueue, over its own table and runner.
type SandboxQueue struct {
	store        *Store
	runner       SandboxRunner
	logger       *slog.Logger
	pollInterval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewSandboxQueue creates a sandbox queue over the given store and runner.
// runner may be nil for an enqueue-only queue; Start requires it.
func NewSandboxQueue(store *Store, runner SandboxRunner, logger *slog.Logger) *SandboxQueue {
	return &SandboxQueue{
		store:        store,
		runner:       runner,
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
}

// SetPollInterval overrides the poll interval (for testing).
func (q *SandboxQueue) SetPollInterval(d time.Duration) {
	q.pollInterval = d
}

// Enqueue persists the sandbox job as pending.
func (q *SandboxQueue) Enqueue(ctx context.Context, job *SandboxJob) error {
	return q.store.CreateSandbox(ctx, job)
}

// Start launches the poll loop.
func (q *SandboxQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return errors.New("sandbox queue already started")
	}
	if q.runner == nil {
		return errors.New("sandbox queue has no runner")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.done = make(chan struct{})
	q.started = true

	q.logger.Info("Sandbox queue started",
		slog.Duration("poll_interval", q.pollInterval),
	)

	go q.loop(loopCtx)
	return nil
}

// Stop prevents new claims and waits for the in-flight job to finish.
func (q *SandboxQueue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	cancel, done := q.cancel, q.done
	q.mu.Unlock()

	cancel()
	<-done

	q.logger.Info("Sandbox queue stopped")
}

func (q *SandboxQueue) loop(ctx context.Context) {
	defer close(q.done)

	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.pollOnce(ctx)
		}
	}
}

func (q *SandboxQueue) pollOnce(ctx context.Context) {
	job, err := q.store.ClaimNextSandbox(ctx)
	if err != nil {
		if errors.Is(err, ErrNoPendingJobs) || errors.Is(err, context.Canceled) {
			return
		}
		q.logger.Error("Failed to claim pending sandbox job",
			slog.Any("error", err),
		)
		return
	}

	runCtx := context.WithoutCancel(ctx)
	resultJSON, runErr := q.runner.Run(runCtx, job.ProjectPath)
	if runErr != nil {
		q.logger.Warn("Sandbox job failed",
			slog.String("job_id", job.ID),
			slog.Any("error", runErr),
		)
		if err := q.store.MarkSandboxFailed(runCtx, job.ID, runErr.Error()); err != nil {
			q.logger.Error("Failed to record sandbox job failure",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
		}
		return
	}

	if err := q.store.MarkSandboxCompleted(runCtx, job.ID, resultJSON); err != nil {
		q.logger.Error("Failed to record sandbox job result",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}
}
