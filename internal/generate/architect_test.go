package generate

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grump-ai/grump-engine/internal/intent"
)

func TestHasFrontendHasBackend(t *testing.T) {
	assert.True(t, HasFrontend([]string{"React", "node"}))
	assert.True(t, HasBackend([]string{"react", "Node"}))
	assert.False(t, HasFrontend([]string{"python"}))
	assert.False(t, HasBackend([]string{"vue"}))
	assert.True(t, HasBackend([]string{"express"}))
}

func TestArchitect_Design(t *testing.T) {
	t.Run("frontend and backend tiers", func(t *testing.T) {
		arch, err := Architect{}.Design(context.Background(), nil, "a shop", []string{"react", "node"})
		require.NoError(t, err)

		kinds := make([]string, len(arch.Components))
		for i, c := range arch.Components {
			kinds[i] = c.Kind
		}
		assert.Contains(t, kinds, "frontend")
		assert.Contains(t, kinds, "backend")
	})

	t.Run("defaults to typescript and node", func(t *testing.T) {
		arch, err := Architect{}.Design(context.Background(), nil, "a cli", nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"typescript", "node"}, arch.TechStack)
	})

	t.Run("feature components from intent", func(t *testing.T) {
		in := &intent.Result{
			Raw:      "a task tracker for team leads",
			Actors:   []string{"user", "manager"},
			Features: []string{"task assignment and tracking"},
		}

		arch, err := Architect{}.Design(context.Background(), in, "a task tracker", []string{"node"})
		require.NoError(t, err)

		var names []string
		for _, c := range arch.Components {
			names = append(names, c.Name)
		}
		assert.Contains(t, names, "task-assignment-and")
		assert.Contains(t, arch.Summary, "user, manager")
	})

	t.Run("summary stays valid utf-8 for long multibyte requests", func(t *testing.T) {
		// 30 three-byte runes is 90 bytes, so the 80-byte cut lands inside
		// a rune unless the truncation backs off to a boundary.
		raw := strings.Repeat("日", 30)

		arch, err := Architect{}.Design(context.Background(), &intent.Result{
			Raw:    raw,
			Actors: []string{"user"},
		}, raw, []string{"node"})
		require.NoError(t, err)
		assert.True(t, utf8.ValidString(arch.Summary))
	})

	t.Run("unknown stack falls back to core component", func(t *testing.T) {
		arch, err := Architect{}.Design(context.Background(), nil, "something", []string{"cobol"})
		require.NoError(t, err)
		require.Len(t, arch.Components, 1)
		assert.Equal(t, "core", arch.Components[0].Name)
	})
}
