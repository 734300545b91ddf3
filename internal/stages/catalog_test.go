package stages

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogOrder(t *testing.T) {
	want := []string{"Initial response", "Verified response", "Web search", "Validated reasoning", "Final response"}
	all := All()
	require.Len(t, all, len(want))
	require.Equal(t, len(want), Count())
	for i, s := range all {
		assert.Equal(t, want[i], s.Name())
		assert.Equal(t, i+1, s.Index())
		assert.NotEmpty(t, s.Description())
	}
}

func TestTransitions(t *testing.T) {
	s := First()
	var visited []Stage
	for {
		visited = append(visited, s)
		n, ok := s.Next()
		if !ok {
			break
		}
		s = n
	}
	assert.Equal(t, All(), visited)
	assert.Equal(t, CompletedMarker, FinalResponse.NextName())
	assert.Equal(t, "Web search", VerifiedResponse.NextName())
}

func TestParse(t *testing.T) {
	s, ok := Parse("  web SEARCH ")
	require.True(t, ok)
	assert.Equal(t, WebSearch, s)

	_, ok = Parse(CompletedMarker)
	assert.False(t, ok)
}

func TestOnlyWebSearchSearches(t *testing.T) {
	for _, s := range All() {
		assert.Equal(t, s == WebSearch, s.SearchesWeb(), s.Name())
	}
	assert.Contains(t, WebSearch.SystemPrompt(), "[[")
}

func TestSystemPromptStartsWithPersona(t *testing.T) {
	for _, s := range All() {
		p := s.SystemPrompt()
		assert.True(t, strings.HasPrefix(p, Persona))
		assert.Greater(t, len(p), len(Persona))
	}
	assert.Equal(t, Persona, Stage(42).SystemPrompt())
}
