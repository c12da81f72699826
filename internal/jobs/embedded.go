package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const defaultPollInterval = 2 * time.Second

// EmbeddedQueue schedules jobs by polling the jobs table. It needs no
// external services: Enqueue inserts a pending row and the poll loop claims
// one job at a time.
type EmbeddedQueue struct {
	store        *Store
	worker       *Worker
	logger       *slog.Logger
	pollInterval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewEmbeddedQueue creates an embedded queue over the given store and worker.
// worker may be nil for an enqueue-only queue; Start requires it.
func NewEmbeddedQueue(store *Store, worker *Worker, logger *slog.Logger) *EmbeddedQueue {
	return &EmbeddedQueue{
		store:        store,
		worker:       worker,
		logger:       logger,
		pollInterval: defaultPollInterval,
	}
}

// SetPollInterval overrides the poll interval (for testing).
func (q *EmbeddedQueue) SetPollInterval(d time.Duration) {
	q.pollInterval = d
}

// Enqueue persists the job as pending. The poll loop picks it up on its next
// tick.
func (q *EmbeddedQueue) Enqueue(ctx context.Context, job *Job) error {
	return q.store.Create(ctx, job)
}

// Start launches the poll loop. It returns immediately; polling runs until
// Stop or context cancellation.
func (q *EmbeddedQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return errors.New("embedded queue already started")
	}
	if q.worker == nil {
		return errors.New("embedded queue has no worker")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.done = make(chan struct{})
	q.started = true

	q.logger.Info("Embedded queue started",
		slog.Duration("poll_interval", q.pollInterval),
	)

	go q.loop(loopCtx)
	return nil
}

// Stop prevents new jobs from being claimed and waits for the in-flight job
// to finish.
func (q *EmbeddedQueue) Stop() {
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

	q.logger.Info("Embedded queue stopped")
}

func (q *EmbeddedQueue) loop(ctx context.Context) {
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

// pollOnce claims and processes at most one job. Single-flight: the next
// tick fires only after the current job finished.
func (q *EmbeddedQueue) pollOnce(ctx context.Context) {
	job, err := q.store.ClaimNextPending(ctx)
	if err != nil {
		if errors.Is(err, ErrNoPendingJobs) || errors.Is(err, context.Canceled) {
			return
		}
		q.logger.Error("Failed to claim pending job",
			slog.Any("error", err),
		)
		return
	}

	// A claimed job runs to completion even if Stop cancels the loop; Stop
	// only prevents new claims.
	if err := q.worker.Process(context.WithoutCancel(ctx), job); err != nil {
		q.logger.Error("Failed to record job outcome",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}
}
