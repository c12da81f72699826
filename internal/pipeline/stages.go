package pipeline

import (
	"context"
	"fmt"
)

// registry binds the seven stages to their units of work, in order. The
// orchestrator loop is data-driven over this list; adding, removing, or
// reordering stages does not touch control flow.
func (o *Orchestrator) registry() []stageDef {
	return []stageDef{
		{name: StageIntent, run: o.runIntent, degrade: o.intentFallback()},
		{name: StageArchitecture, run: o.runArchitecture},
		{name: StagePRD, run: o.runPRD},
		{name: StageSkeleton, run: o.runSkeleton},
		{name: StageImplementation, run: o.runImplementation},
		{name: StageValidation, run: o.runValidation},
		{name: StageFinal, run: o.runFinal},
	}
}

// runIntent derives a structured intent from the free-text request.
func (o *Orchestrator) runIntent(ctx context.Context, pc *Context) error {
	return o.parseIntent(ctx, pc, o.services.Intent)
}

// intentFallback returns the intent stage's degraded unit of work, or nil
// when no fallback parser is configured.
func (o *Orchestrator) intentFallback() func(context.Context, *Context) error {
	if o.services.IntentFallback == nil {
		return nil
	}
	return func(ctx context.Context, pc *Context) error {
		return o.parseIntent(ctx, pc, o.services.IntentFallback)
	}
}

func (o *Orchestrator) parseIntent(ctx context.Context, pc *Context, parser IntentParser) error {
	constraints := make(map[string]any)
	if len(pc.TechStack) > 0 {
		constraints["tech_stack"] = pc.TechStack
	}
	if pc.ProjectName != "" {
		constraints["project_name"] = pc.ProjectName
	}

	res, err := parser.Parse(ctx, pc.Request, constraints)
	if err != nil {
		return fmt.Errorf("parse intent: %w", err)
	}
	pc.Intent = res
	return nil
}

// runArchitecture derives a system architecture description.
func (o *Orchestrator) runArchitecture(ctx context.Context, pc *Context) error {
	arch, err := o.services.Architect.Design(ctx, pc.Intent, pc.Request, pc.EffectiveTechStack())
	if err != nil {
		return fmt.Errorf("design architecture: %w", err)
	}
	if arch.ProjectName == "" {
		arch.ProjectName = pc.ProjectName
	}
	pc.Architecture = arch
	return nil
}

// runPRD writes the product requirements document. PRD must follow
// architecture; a missing architecture slot is an ordering violation.
func (o *Orchestrator) runPRD(ctx context.Context, pc *Context) error {
	if pc.Architecture == nil {
		return &DependencyError{Stage: StagePRD, Missing: StageArchitecture}
	}

	prd, refreshed, err := o.services.PRD.Compose(ctx, pc.Intent, pc.Architecture)
	if err != nil {
		return fmt.Errorf("compose prd: %w", err)
	}
	pc.PRD = prd
	if refreshed != nil {
		pc.Architecture = refreshed
	}
	return nil
}

// runSkeleton synthesizes a minimal file scaffold from the tech stack. Pure
// and local; best-effort.
func (o *Orchestrator) runSkeleton(_ context.Context, pc *Context) error {
	pc.Skeleton = o.services.Skeleton.Scaffold(pc.EffectiveTechStack(), pc.ProjectName)
	return nil
}

// runImplementation derives full source files from the architecture.
func (o *Orchestrator) runImplementation(ctx context.Context, pc *Context) error {
	files, err := o.services.CodeGen.Generate(ctx, pc.Architecture)
	if err != nil {
		return fmt.Errorf("generate implementation: %w", err)
	}
	pc.Implementation = files
	return nil
}

// runValidation statically validates generated files with covered extensions.
// Findings never abort the run.
func (o *Orchestrator) runValidation(_ context.Context, pc *Context) error {
	var results []FileValidation
	for _, f := range pc.Implementation {
		if v := o.services.Validator.Validate(f); v != nil {
			results = append(results, *v)
		}
	}
	pc.Validation = results
	return nil
}

// runFinal merges implementation with any skeleton entries whose path is not
// already taken. First writer wins by path; no duplicates.
func (o *Orchestrator) runFinal(_ context.Context, pc *Context) error {
	seen := make(map[string]bool, len(pc.Implementation))
	final := make([]GeneratedFile, 0, len(pc.Implementation)+len(pc.Skeleton))

	for _, f := range pc.Implementation {
		if seen[f.Path] {
			continue
		}
		seen[f.Path] = true
		final = append(final, f)
	}
	for _, f := range pc.Skeleton {
		if seen[f.Path] {
			continue
		}
		seen[f.Path] = true
		final = append(final, f)
	}

	pc.Final = final
	return nil
}
