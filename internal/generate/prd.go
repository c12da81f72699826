package generate

import (
	"context"
	"fmt"
	"strings"

	"github.com/grump-ai/grump-engine/internal/intent"
	"github.com/grump-ai/grump-engine/internal/pipeline"
)

// PRDWriter is the default requirements-document composer.
type PRDWriter struct{}

// Compose renders a markdown PRD from the intent and architecture. The
// architecture is refreshed only when its summary was left empty.
func (PRDWriter) Compose(_ context.Context, in *intent.Result, arch *pipeline.Architecture) (string, *pipeline.Architecture, error) {
	var b strings.Builder

	title := arch.ProjectName
	if title == "" {
		title = "Generated Application"
	}
	fmt.Fprintf(&b, "# %s - Product Requirements\n\n", title)

	if in != nil {
		fmt.Fprintf(&b, "## Request\n\n%s\n\n", in.Raw)
		if len(in.Actors) > 0 {
			b.WriteString("## Actors\n\n")
			for _, a := range in.Actors {
				fmt.Fprintf(&b, "- %s\n", a)
			}
			b.WriteString("\n")
		}
		if len(in.Features) > 0 {
			b.WriteString("## Features\n\n")
			for _, f := range in.Features {
				fmt.Fprintf(&b, "- %s\n", f)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("## Architecture\n\n")
	fmt.Fprintf(&b, "Tech stack: %s\n\n", strings.Join(arch.TechStack, ", "))
	for _, c := range arch.Components {
		fmt.Fprintf(&b, "- **%s** (%s): %s\n", c.Name, c.Kind, c.Responsibility)
	}

	var refreshed *pipeline.Architecture
	if arch.Summary == "" {
		clone := *arch
		clone.Summary = fmt.Sprintf("documented architecture with %d components", len(arch.Components))
		refreshed = &clone
	}

	return b.String(), refreshed, nil
}
