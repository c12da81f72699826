package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// defaultBackoffBase is the linear backoff unit between retries: the wait
// before retry N is N * backoffBase.
const defaultBackoffBase = 1 * time.Second

// runStage executes one stage's unit of work under its retry policy.
//
// The ledger receives exactly one entry per invocation regardless of retry
// count: a success entry with the retries consumed, a degraded entry when the
// fallback mode completed the stage, or a failure entry with the final error.
// On exhaustion a *StageError is returned for the orchestrator to raise
// (fail-fast) or accumulate.
//
// Degradation runs strictly after the primary mode's retries are exhausted,
// and only when the effective policy allows it; the primary's retry budget is
// never bypassed.
func (o *Orchestrator) runStage(ctx context.Context, pc *Context, name string, cfg StageConfig, work, degrade func(context.Context, *Context) error) *StageError {
	start := time.Now()

	var lastErr error
	retries := 0

loop:
	for attempt := 0; ; attempt++ {
		err := o.runAttempt(ctx, pc, cfg, work)
		if err == nil {
			pc.History = append(pc.History, StageExecution{
				Stage:    name,
				Status:   StageSuccess,
				Duration: time.Since(start),
				Retries:  attempt,
			})
			o.logger.Info("stage succeeded",
				slog.String("stage", name),
				slog.Int("retries", attempt),
				slog.Duration("duration", time.Since(start)),
			)
			return nil
		}

		lastErr = err
		retries = attempt

		// Missing upstream output cannot be fixed by retrying.
		var depErr *DependencyError
		if errors.As(err, &depErr) {
			retries = 0
			break
		}

		if attempt >= cfg.MaxRetries {
			break
		}

		wait := time.Duration(attempt+1) * o.backoffBase
		o.logger.Warn("stage attempt failed, retrying",
			slog.String("stage", name),
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", cfg.MaxRetries),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			lastErr = ctx.Err()
			break loop
		}
	}

	if cfg.AllowDegrade && degrade != nil && ctx.Err() == nil {
		degradeErr := o.runAttempt(ctx, pc, cfg, degrade)
		if degradeErr == nil {
			pc.History = append(pc.History, StageExecution{
				Stage:    name,
				Status:   StageDegraded,
				Duration: time.Since(start),
				Retries:  retries,
			})
			o.logger.Warn("stage degraded after retry exhaustion",
				slog.String("stage", name),
				slog.Int("retries", retries),
				slog.String("error", lastErr.Error()),
			)
			return nil
		}
		o.logger.Error("degraded execution failed",
			slog.String("stage", name),
			slog.String("error", degradeErr.Error()),
		)
	}

	pc.History = append(pc.History, StageExecution{
		Stage:    name,
		Status:   StageFailure,
		Duration: time.Since(start),
		Retries:  retries,
		Error:    lastErr.Error(),
	})
	o.logger.Error("stage failed",
		slog.String("stage", name),
		slog.Int("retries", retries),
		slog.Duration("duration", time.Since(start)),
		slog.String("error", lastErr.Error()),
	)
	return &StageError{Stage: name, Err: lastErr, Recoverable: false}
}

// runAttempt runs the unit of work once, bounded by the stage timeout.
func (o *Orchestrator) runAttempt(ctx context.Context, pc *Context, cfg StageConfig, work func(context.Context, *Context) error) error {
	if cfg.Timeout > 0 {
		attemptCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		return work(attemptCtx, pc)
	}
	return work(ctx, pc)
}
