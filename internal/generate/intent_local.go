package generate

import (
	"context"
	"strings"

	"github.com/grump-ai/grump-engine/internal/intent"
)

// actorWords are the roles the deterministic extractor recognizes, mirroring
// the compiler's pattern set.
var actorWords = []string{"user", "admin", "developer", "customer", "manager", "guest"}

// dataFlowWords are the data-flow keywords the compiler scans for.
var dataFlowWords = []string{
	"api", "rest", "graphql", "websocket", "real-time", "sync", "async",
	"request", "response", "webhook", "queue", "event", "stream",
}

// techHintWords map request keywords to tech-stack hints.
var techHintWords = map[string]string{
	"react":      "react",
	"frontend":   "react",
	"vue":        "vue",
	"next":       "nextjs",
	"node":       "node",
	"express":    "node",
	"backend":    "node",
	"typescript": "typescript",
	"go ":        "go",
	"golang":     "go",
	"python":     "python",
	"postgres":   "postgres",
	"sqlite":     "sqlite",
}

// LocalIntent is a deterministic, in-process intent extractor. It is the
// degraded execution mode for the intent stage when the compiler subprocess
// is unavailable.
type LocalIntent struct{}

// Parse extracts actors, features, data flows, and tech hints by keyword
// scanning. It never fails.
func (LocalIntent) Parse(_ context.Context, input string, _ map[string]any) (*intent.Result, error) {
	input = strings.TrimSpace(input)
	lower := strings.ToLower(input)

	var actors []string
	for _, w := range actorWords {
		if strings.Contains(lower, w) {
			actors = append(actors, w)
		}
	}
	if len(actors) == 0 {
		actors = []string{"user"}
	}

	var flows []string
	for _, w := range dataFlowWords {
		if strings.Contains(lower, w) {
			flows = append(flows, w)
		}
	}

	var hints []string
	seen := make(map[string]bool)
	for kw, hint := range techHintWords {
		if strings.Contains(lower, kw) && !seen[hint] {
			seen[hint] = true
			hints = append(hints, hint)
		}
	}

	return &intent.Result{
		Raw:            input,
		Actors:         actors,
		Features:       extractFeatures(lower),
		DataFlows:      flows,
		TechStackHints: hints,
	}, nil
}

// extractFeatures pulls feature-like phrases following build/support/with
// style verbs.
func extractFeatures(lower string) []string {
	var out []string
	for _, verb := range []string{"build ", "create ", "support ", "allow ", "enable ", "include ", "add ", "with "} {
		rest := lower
		for {
			i := strings.Index(rest, verb)
			if i < 0 {
				break
			}
			phrase := rest[i+len(verb):]
			if j := strings.IndexAny(phrase, ",."); j >= 0 {
				phrase = phrase[:j]
			}
			phrase = strings.TrimSpace(phrase)
			if len(phrase) > 2 && !contains(out, phrase) {
				out = append(out, phrase)
			}
			rest = rest[i+len(verb):]
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
