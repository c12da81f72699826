package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/grump-ai/grump-engine/internal/pipeline"
)

// PipelineRunner executes one generation run. Implemented by
// pipeline.Orchestrator.
type PipelineRunner interface {
	Execute(ctx context.Context, request string, opts pipeline.Options) *pipeline.Result
}

// Worker executes claimed generation jobs through the pipeline and records
// their terminal status. Both queue backends share one Worker.
type Worker struct {
	store      *Store
	runner     PipelineRunner
	logger     *slog.Logger
	jobTimeout time.Duration
}

// NewWorker creates a new worker instance
func NewWorker(store *Store, runner PipelineRunner, logger *slog.Logger, jobTimeout time.Duration) *Worker {
	return &Worker{
		store:      store,
		runner:     runner,
		logger:     logger,
		jobTimeout: jobTimeout,
	}
}

// Process runs one claimed job to a terminal status. The returned error
// reports store failures only; pipeline failures are recorded on the job.
// A panic anywhere in the run is recovered and recorded, so one job cannot
// kill the queue loop.
func (w *Worker) Process(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Job processing panicked",
				slog.String("job_id", job.ID),
				slog.Any("panic", r),
			)
			err = w.store.MarkFailed(ctx, job.ID, fmt.Sprintf("job processing panicked: %v", r))
		}
	}()

	w.logger.Info("Processing job",
		slog.String("job_id", job.ID),
		slog.String("session_id", job.SessionID),
	)

	var req GenerationRequest
	if err := json.Unmarshal([]byte(job.Payload), &req); err != nil {
		w.logger.Error("Invalid job payload",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
		return w.store.MarkFailed(ctx, job.ID, fmt.Sprintf("invalid job payload: %v", err))
	}

	runCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	result := w.runner.Execute(runCtx, req.Request, pipeline.Options{
		TechStack:   req.TechStack,
		ProjectName: req.ProjectName,
		SkipStages:  req.SkipStages,
	})

	if !result.Success {
		w.logger.Warn("Job failed",
			slog.String("job_id", job.ID),
			slog.String("error", result.ErrorText()),
		)
		return w.store.MarkFailed(ctx, job.ID, result.ErrorText())
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return w.store.MarkFailed(ctx, job.ID, fmt.Sprintf("failed to serialize result: %v", err))
	}

	w.logger.Info("Job completed",
		slog.String("job_id", job.ID),
		slog.Int("files", len(result.Files)),
		slog.Duration("duration", result.Duration),
	)

	return w.store.MarkCompleted(ctx, job.ID, string(resultJSON))
}
