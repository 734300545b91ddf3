package helpers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractBracketQuery(t *testing.T) {
	q, ok := ExtractBracketQuery("Let me look. [[capital of France population]] and [[second]]")
	assert.True(t, ok)
	assert.Equal(t, "capital of France population", q)

	q, ok = ExtractBracketQuery("no marker here")
	assert.False(t, ok)
	assert.Equal(t, "no marker here", q)
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"capital of France population", "capital+of+france+population"},
		{"Search Query: eiffel tower height", "%3A+eiffel+tower+height"},
		{"  research   queryable searches ", "re+able+es"},
		{"c++ & go", "c%2B%2B+%26+go"},
		{"sesearcharch quesearchry go", "go"},
	}
	for _, tt := range tests {
		got := NormalizeQuery(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.NotContains(t, got, "search")
		assert.NotContains(t, got, "query")
		assert.False(t, strings.ContainsAny(got, " \t\n"))
	}
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a\n\n b\t\tc  "))
	assert.Equal(t, "", CollapseWhitespace(" \n "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", Truncate("héllo wörld", 5))
	assert.Equal(t, "short", Truncate("short", 50))
	assert.Equal(t, "x", Truncate("x", 0))
}
