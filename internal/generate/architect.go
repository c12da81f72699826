package generate

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/grump-ai/grump-engine/internal/intent"
	"github.com/grump-ai/grump-engine/internal/pipeline"
)

// frontendMarkers and backendMarkers classify tech-stack entries.
var (
	frontendMarkers = []string{"react", "vue", "nextjs", "frontend", "svelte"}
	backendMarkers  = []string{"node", "express", "go", "backend", "api", "fastify"}
)

// HasFrontend reports whether the tech stack names a frontend technology.
func HasFrontend(techStack []string) bool {
	return hasAnyMarker(techStack, frontendMarkers)
}

// HasBackend reports whether the tech stack names a backend technology.
func HasBackend(techStack []string) bool {
	return hasAnyMarker(techStack, backendMarkers)
}

func hasAnyMarker(techStack, markers []string) bool {
	for _, entry := range techStack {
		e := strings.ToLower(strings.TrimSpace(entry))
		for _, m := range markers {
			if strings.Contains(e, m) {
				return true
			}
		}
	}
	return false
}

// Architect is the default architecture designer: deterministic and local,
// deriving components from the parsed intent.
type Architect struct{}

// Design builds an architecture from the intent's features and the effective
// tech stack. A nil intent yields a single-component architecture from the
// raw request.
func (Architect) Design(_ context.Context, in *intent.Result, request string, techStack []string) (*pipeline.Architecture, error) {
	if len(techStack) == 0 {
		techStack = []string{"typescript", "node"}
	}

	arch := &pipeline.Architecture{
		TechStack: techStack,
	}

	if HasFrontend(techStack) {
		arch.Components = append(arch.Components, pipeline.Component{
			Name:           "web-client",
			Kind:           "frontend",
			Responsibility: "user-facing application shell",
		})
	}
	if HasBackend(techStack) {
		arch.Components = append(arch.Components, pipeline.Component{
			Name:           "api-server",
			Kind:           "backend",
			Responsibility: "request handling and persistence",
		})
	}
	if len(arch.Components) == 0 {
		arch.Components = append(arch.Components, pipeline.Component{
			Name:           "core",
			Kind:           "service",
			Responsibility: "primary application logic",
		})
	}

	if in != nil {
		for _, feature := range in.Features {
			arch.Components = append(arch.Components, pipeline.Component{
				Name:           componentName(feature),
				Kind:           "service",
				Responsibility: feature,
			})
		}
		arch.Summary = fmt.Sprintf("system for %q serving %s",
			truncate(in.Raw, 80), strings.Join(in.Actors, ", "))
	} else {
		arch.Summary = fmt.Sprintf("system for %q", truncate(request, 80))
	}

	return arch, nil
}

// componentName derives a short kebab-case component name from a feature
// phrase.
func componentName(feature string) string {
	words := strings.Fields(strings.ToLower(feature))
	if len(words) > 3 {
		words = words[:3]
	}
	return strings.Join(words, "-")
}

// truncate shortens s to at most n bytes, backing off to the nearest rune
// boundary so the cut never produces invalid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
