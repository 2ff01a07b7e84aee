package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSourcesDeduplicatesByURL(t *testing.T) {
	state := NewResearchState("ukraine conflict geopolitics", "", 3)

	added := state.MergeSources([]Source{
		{URL: "https://example.com/a", Title: "A"},
		{URL: "https://example.com/b", Title: "B"},
	})
	require.Equal(t, 2, added)
	require.Len(t, state.Sources, 2)

	// Re-retrieving a known URL must not duplicate it, across cycles either.
	added = state.MergeSources([]Source{
		{URL: "https://EXAMPLE.com/a", Title: "A again"},
		{URL: "https://example.com/c", Title: "C"},
	})
	assert.Equal(t, 1, added)
	assert.Len(t, state.Sources, 3)
	// First fetch wins; the original title is preserved.
	assert.Equal(t, "A", state.Sources[0].Title)
}

func TestMergeSourcesIsMonotonic(t *testing.T) {
	state := NewResearchState("q", "", 1)
	batches := [][]Source{
		{{URL: "https://a.test/1"}},
		{},
		{{URL: "https://a.test/1"}, {URL: "https://a.test/2"}},
		{{URL: ""}},
	}
	prev := 0
	for _, b := range batches {
		state.MergeSources(b)
		assert.GreaterOrEqual(t, len(state.Sources), prev)
		prev = len(state.Sources)
	}
	assert.Len(t, state.Sources, 2)
}

func TestAtIterationCap(t *testing.T) {
	state := NewResearchState("q", "", 2)
	assert.False(t, state.AtIterationCap())
	state.Iteration = 1
	assert.False(t, state.AtIterationCap())
	state.Iteration = 2
	assert.True(t, state.AtIterationCap())
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"https://Example.COM/Path/":       "https://example.com/Path",
		"http://example.com":              "http://example.com",
		"https://example.com/a?q=1":       "https://example.com/a?q=1",
		"  https://example.com/x  ":       "https://example.com/x",
		"example.com/page/":               "example.com/page",
		"":                                "",
		"https://HOST.example.com/A/b/C/": "https://host.example.com/A/b/C",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeURL(in), "input %q", in)
	}
}
