package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/grump-ai/grump-engine/internal/intent"
)

// IntentParser derives a structured intent from free text. Implemented by
// intent.Runner (the grump-intent subprocess) and by generate.LocalIntent.
type IntentParser interface {
	Parse(ctx context.Context, input string, constraints map[string]any) (*intent.Result, error)
}

// ArchitectureDesigner derives a system architecture from a parsed intent.
type ArchitectureDesigner interface {
	Design(ctx context.Context, in *intent.Result, request string, techStack []string) (*Architecture, error)
}

// PRDComposer writes a product requirements document for an architecture. It
// may return a refreshed architecture alongside the document; nil means the
// input architecture stands.
type PRDComposer interface {
	Compose(ctx context.Context, in *intent.Result, arch *Architecture) (prd string, refreshed *Architecture, err error)
}

// CodeGenerator derives full source files from an architecture.
type CodeGenerator interface {
	Generate(ctx context.Context, arch *Architecture) ([]GeneratedFile, error)
}

// SkeletonSynthesizer produces a minimal file scaffold for a tech stack.
// Pure and local; never expected to fail under normal operation.
type SkeletonSynthesizer interface {
	Scaffold(techStack []string, projectName string) []GeneratedFile
}

// FileValidator performs lightweight static validation of one generated file.
// A nil result means the file's extension is not covered.
type FileValidator interface {
	Validate(file GeneratedFile) *FileValidation
}

// Services are the external collaborators the stages delegate to. The engine
// treats their output as opaque.
type Services struct {
	Intent IntentParser
	// IntentFallback, when set, is the intent stage's degraded execution
	// mode: run only after Intent has exhausted its retries, and only if the
	// stage policy allows degradation.
	IntentFallback IntentParser
	Architect      ArchitectureDesigner
	PRD            PRDComposer
	CodeGen        CodeGenerator
	Skeleton       SkeletonSynthesizer
	Validator      FileValidator
}

// Config controls an orchestrator instance.
type Config struct {
	// FailFast aborts the run on the first unrecovered stage error. Default
	// behavior of the engine.
	FailFast bool
	// Stages overrides the default per-stage policies by name.
	Stages map[string]StageConfig
	Logger *slog.Logger
}

// Orchestrator sequences the seven pipeline stages over a shared context.
type Orchestrator struct {
	services    Services
	logger      *slog.Logger
	failFast    bool
	configs     map[string]StageConfig
	stages      []stageDef
	backoffBase time.Duration
}

// New creates an orchestrator with the given collaborators and policies.
func New(services Services, cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	configs := DefaultStageConfigs()
	for name, sc := range cfg.Stages {
		configs[name] = sc
	}

	o := &Orchestrator{
		services:    services,
		logger:      logger,
		failFast:    cfg.FailFast,
		configs:     configs,
		backoffBase: defaultBackoffBase,
	}
	o.stages = o.registry()
	return o
}

// SetBackoffBase overrides the retry backoff unit (for testing).
func (o *Orchestrator) SetBackoffBase(d time.Duration) {
	o.backoffBase = d
}

// Options configure a single pipeline run.
type Options struct {
	TechStack   []string
	ProjectName string
	SkipStages  []string
	// Stages partially overrides the orchestrator's per-stage policies for
	// this run only.
	Stages map[string]StageConfig
}

// StageSummary is the per-stage record exposed on a Result.
type StageSummary struct {
	Status   StageStatus   `json:"status"`
	Duration time.Duration `json:"duration"`
	Retries  int           `json:"retries"`
	Error    string        `json:"error,omitempty"`
}

// Result is the terminal outcome of one pipeline run.
type Result struct {
	Success  bool                    `json:"success"`
	Files    []GeneratedFile         `json:"files"`
	Duration time.Duration           `json:"duration"`
	Errors   []*StageError           `json:"errors,omitempty"`
	Stages   map[string]StageSummary `json:"stages"`
	History  []StageExecution        `json:"history"`
}

// ErrorText joins the run's stage errors into a single terminal error string,
// or returns "" for a successful run.
func (r *Result) ErrorText() string {
	if len(r.Errors) == 0 {
		return ""
	}
	text := ""
	for i, e := range r.Errors {
		if i > 0 {
			text += "; "
		}
		text += e.Error()
	}
	return text
}

// Execute runs the full pipeline for one request. It never panics and never
// reports in-run failures as a Go error: anything escaping the stage retry
// envelope is recovered into a failed Result carrying a synthetic final-stage
// error.
func (o *Orchestrator) Execute(ctx context.Context, request string, opts Options) (result *Result) {
	pc := NewContext(request, opts)
	result = &Result{Stages: make(map[string]StageSummary)}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("pipeline run panicked",
				slog.Any("panic", r),
			)
			result.Errors = append(result.Errors, &StageError{
				Stage: StageFinal,
				Err:   fmt.Errorf("unexpected pipeline failure: %v", r),
			})
			o.finish(pc, result)
		}
	}()

	o.logger.Info("pipeline run started",
		slog.String("project", opts.ProjectName),
		slog.Int("request_len", len(request)),
	)

	skip := make(map[string]bool, len(opts.SkipStages))
	for _, name := range opts.SkipStages {
		skip[name] = true
	}

	for _, def := range o.stages {
		cfg := o.configFor(def.name, opts)

		if skip[def.name] || !cfg.Enabled || (cfg.SkipIf != nil && cfg.SkipIf(pc)) {
			o.logger.Debug("stage skipped", slog.String("stage", def.name))
			continue
		}

		// Cancellation is observed at each stage boundary; a started unit of
		// work still runs to completion or its own timeout.
		if err := ctx.Err(); err != nil {
			result.Errors = append(result.Errors, &StageError{Stage: def.name, Err: err})
			break
		}

		stageErr := o.runStage(ctx, pc, def.name, cfg, def.run, def.degrade)
		result.Stages[def.name] = summarize(pc.History[len(pc.History)-1])

		if stageErr != nil {
			result.Errors = append(result.Errors, stageErr)
			if o.failFast {
				break
			}
		}
	}

	o.finish(pc, result)
	return result
}

// RunSingleStage executes exactly one stage against a caller-supplied partial
// context, for isolated stage testing. The partial context may be nil.
func (o *Orchestrator) RunSingleStage(ctx context.Context, name string, partial *Context) (*Result, error) {
	var def *stageDef
	for i := range o.stages {
		if o.stages[i].name == name {
			def = &o.stages[i]
			break
		}
	}
	if def == nil {
		return nil, fmt.Errorf("unknown stage %q", name)
	}

	pc := partial
	if pc == nil {
		pc = &Context{}
	}
	if pc.StartedAt.IsZero() {
		pc.StartedAt = time.Now()
	}

	result := &Result{Stages: make(map[string]StageSummary)}
	stageErr := o.runStage(ctx, pc, def.name, o.configs[def.name], def.run, def.degrade)
	result.Stages[def.name] = summarize(pc.History[len(pc.History)-1])
	if stageErr != nil {
		result.Errors = append(result.Errors, stageErr)
	}

	o.finish(pc, result)
	return result, nil
}

// configFor resolves the effective policy for a stage in one run.
func (o *Orchestrator) configFor(name string, opts Options) StageConfig {
	if sc, ok := opts.Stages[name]; ok {
		return sc
	}
	return o.configs[name]
}

// finish seals the run result from the context state.
func (o *Orchestrator) finish(pc *Context, result *Result) {
	result.History = pc.History
	result.Success = len(result.Errors) == 0
	result.Files = pc.BestArtifacts()
	result.Duration = time.Since(pc.StartedAt)

	o.logger.Info("pipeline run finished",
		slog.Bool("success", result.Success),
		slog.Int("files", len(result.Files)),
		slog.Int("errors", len(result.Errors)),
		slog.Duration("duration", result.Duration),
	)
}

func summarize(entry StageExecution) StageSummary {
	return StageSummary{
		Status:   entry.Status,
		Duration: entry.Duration,
		Retries:  entry.Retries,
		Error:    entry.Error,
	}
}
