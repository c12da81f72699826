package pipeline

import (
	"time"

	"github.com/grump-ai/grump-engine/internal/intent"
)

// Stage names in execution order.
const (
	StageIntent         = "intent"
	StageArchitecture   = "architecture"
	StagePRD            = "prd"
	StageSkeleton       = "skeleton"
	StageImplementation = "implementation"
	StageValidation     = "validation"
	StageFinal          = "final"
)

// StageOrder is the fixed order the orchestrator runs stages in.
var StageOrder = []string{
	StageIntent,
	StageArchitecture,
	StagePRD,
	StageSkeleton,
	StageImplementation,
	StageValidation,
	StageFinal,
}

// GeneratedFile is a single artifact produced by a stage.
type GeneratedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// FileValidation holds the static-validation outcome for one generated file.
// Validation findings are data, not pipeline errors.
type FileValidation struct {
	Path     string   `json:"path"`
	Valid    bool     `json:"valid"`
	Findings []string `json:"findings,omitempty"`
}

// Component is one element of a generated system architecture.
type Component struct {
	Name           string `json:"name"`
	Kind           string `json:"kind"` // "frontend", "backend", "service"
	Responsibility string `json:"responsibility,omitempty"`
}

// Architecture describes the system a pipeline run is generating.
type Architecture struct {
	ProjectName string      `json:"project_name"`
	TechStack   []string    `json:"tech_stack"`
	Components  []Component `json:"components"`
	Summary     string      `json:"summary,omitempty"`
}

// StageStatus is the outcome recorded for one stage invocation.
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StageFailure StageStatus = "failure"
	StageSkipped StageStatus = "skipped"
	// StageDegraded records a stage that exhausted its retries and then
	// completed through its simpler fallback execution mode.
	StageDegraded StageStatus = "degraded"
)

// StageExecution is one ledger entry: the outcome of a stage attempt-group.
// Retries are transparent to the ledger; exactly one entry is appended per
// stage invocation, never mutated afterwards.
type StageExecution struct {
	Stage    string        `json:"stage"`
	Status   StageStatus   `json:"status"`
	Duration time.Duration `json:"duration"`
	Retries  int           `json:"retries"`
	Error    string        `json:"error,omitempty"`
}

// Context is the mutable accumulator threaded through all stages of one run.
// A later stage may read any earlier stage's output slot but must only append
// its own slot. Created once per run by the orchestrator; not persisted beyond
// the job's own state unless the caller serializes it.
type Context struct {
	Request     string
	TechStack   []string
	ProjectName string
	StartedAt   time.Time

	Intent         *intent.Result
	Architecture   *Architecture
	PRD            string
	Skeleton       []GeneratedFile
	Implementation []GeneratedFile
	Validation     []FileValidation
	Final          []GeneratedFile

	History []StageExecution
}

// NewContext builds a fresh run context for the given request.
func NewContext(request string, opts Options) *Context {
	return &Context{
		Request:     request,
		TechStack:   opts.TechStack,
		ProjectName: opts.ProjectName,
		StartedAt:   time.Now(),
	}
}

// BestArtifacts returns the best-available artifact list: the final output if
// present, else the raw implementation, else nothing.
func (c *Context) BestArtifacts() []GeneratedFile {
	if len(c.Final) > 0 {
		return c.Final
	}
	if len(c.Implementation) > 0 {
		return c.Implementation
	}
	return nil
}

// EffectiveTechStack is the explicit tech stack when supplied, otherwise the
// hints extracted by the intent stage.
func (c *Context) EffectiveTechStack() []string {
	if len(c.TechStack) > 0 {
		return c.TechStack
	}
	if c.Intent != nil {
		return c.Intent.TechStackHints
	}
	return nil
}
