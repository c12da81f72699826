package pipeline

import (
	"context"
	"time"
)

// StageConfig is the per-stage execution policy. Supplied at orchestrator
// construction and optionally overridden per invocation.
type StageConfig struct {
	// Enabled gates the stage; a disabled stage leaves no ledger entry.
	Enabled bool
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// AllowDegrade permits the stage to fall back to a simpler execution mode
	// once retries are exhausted. Only consulted for stages that define a
	// degraded unit of work.
	AllowDegrade bool
	// Timeout bounds one attempt of the unit of work. Zero means no bound.
	Timeout time.Duration
	// SkipIf, when set, is evaluated against the current context before the
	// stage runs; true skips the stage.
	SkipIf func(*Context) bool
}

// stageDef binds a stage name to its unit of work. The orchestrator loop is
// driven by an ordered list of these rather than a switch over names.
// degrade, when non-nil, is the stage's simpler execution mode, run only
// after retry exhaustion and only when the effective policy allows it.
type stageDef struct {
	name    string
	run     func(ctx context.Context, pc *Context) error
	degrade func(ctx context.Context, pc *Context) error
}

// DefaultStageConfigs returns the engine's default per-stage policies.
func DefaultStageConfigs() map[string]StageConfig {
	return map[string]StageConfig{
		StageIntent:         {Enabled: true, MaxRetries: 2, AllowDegrade: true, Timeout: 30 * time.Second},
		StageArchitecture:   {Enabled: true, MaxRetries: 2, Timeout: 60 * time.Second},
		StagePRD:            {Enabled: true, MaxRetries: 1, Timeout: 60 * time.Second},
		StageSkeleton:       {Enabled: true, MaxRetries: 0, Timeout: 10 * time.Second},
		StageImplementation: {Enabled: true, MaxRetries: 2, Timeout: 120 * time.Second},
		StageValidation:     {Enabled: true, MaxRetries: 0, Timeout: 30 * time.Second},
		StageFinal:          {Enabled: true, MaxRetries: 0, Timeout: 10 * time.Second},
	}
}
