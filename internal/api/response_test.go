package api

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSearchResponseWrapped(t *testing.T) {
	raw := []byte(`{
		"response": {
			"candidates": [{
				"content": {"parts": [{"text": "Paris is the capital."}, {"text": "Population about 2.1 million."}]},
				"groundingMetadata": {
					"groundingChunks": [
						{"web": {"uri": "https://example.com/paris", "title": "Paris"}},
						{"web": {"uri": "https://example.org/france", "title": "France"}}
					],
					"webSearchQueries": ["capital of France"]
				}
			}]
		}
	}`)

	result := ParseSearchResponse(raw)
	assert.Equal(t, "Paris is the capital.\n\nPopulation about 2.1 million.", result.Text)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, Source{Title: "Paris", URL: "https://example.com/paris"}, result.Sources[0])
	assert.Equal(t, []string{"capital of France"}, result.SearchQueries)
}

func TestParseSearchResponseBare(t *testing.T) {
	raw := []byte(`{"candidates":[{"content":{"parts":[{"text":"bare shape"}]}}]}`)

	result := ParseSearchResponse(raw)
	assert.Equal(t, "bare shape", result.Text)
	assert.Empty(t, result.Sources)
	assert.Empty(t, result.SearchQueries)
}

func TestParseSearchResponseDeduplicatesByURL(t *testing.T) {
	raw := []byte(`{
		"candidates": [{
			"content": {"parts": [{"text": "t"}]},
			"groundingMetadata": {
				"groundingChunks": [
					{"web": {"uri": "https://example.com/a", "title": "First"}},
					{"web": {"uri": "https://example.com/a", "title": "Second"}},
					{"web": {"uri": "https://example.com/b"}}
				]
			}
		}]
	}`)

	result := ParseSearchResponse(raw)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "First", result.Sources[0].Title, "a duplicate URL must keep the first-seen title")
	assert.Equal(t, UntitledSource, result.Sources[1].Title)
}

func TestParseSearchResponseMissingEverything(t *testing.T) {
	for _, raw := range []string{`{}`, `{"candidates":[]}`, `not json at all`, ``} {
		result := ParseSearchResponse([]byte(raw))
		assert.Empty(t, result.Text)
		assert.Empty(t, result.Sources)
		assert.Empty(t, result.SearchQueries)
	}
}

func TestFormatSearchResult(t *testing.T) {
	md := FormatSearchResult(SearchResult{
		Text: "Answer text.",
		Sources: []Source{
			{Title: "Paris", URL: "https://example.com/paris"},
		},
		SearchQueries: []string{"capital of France"},
	})

	assert.True(t, strings.HasPrefix(md, "## Search Results\n"))
	assert.Contains(t, md, "Answer text.")
	assert.Contains(t, md, "### Sources")
	assert.Contains(t, md, "- [Paris](https://example.com/paris) (example.com)")
	assert.Contains(t, md, "### Search Queries Used")
	assert.Contains(t, md, `- "capital of France"`)
}

func TestFormatSearchResultOmitsEmptySections(t *testing.T) {
	md := FormatSearchResult(SearchResult{Text: "Only text."})
	assert.NotContains(t, md, "### Sources")
	assert.NotContains(t, md, "### Search Queries Used")

	empty := FormatSearchResult(SearchResult{})
	assert.Contains(t, empty, "_No results found._")
}

func TestFormatErrorResponseAuth(t *testing.T) {
	md := FormatErrorResponse(401, "invalid credentials", "gemini")
	assert.Contains(t, md, "## Authentication Error")
	assert.Contains(t, md, "Gemini CLI")
	assert.Contains(t, md, "`auth --login gemini`")
	assert.Contains(t, md, "invalid credentials")

	forbidden := FormatErrorResponse(403, "", "antigravity")
	assert.Contains(t, forbidden, "## Authentication Error")
	assert.Contains(t, forbidden, "`auth --login antigravity`")
}

func TestFormatErrorResponseRateLimited(t *testing.T) {
	md := FormatErrorResponse(429, "quota exceeded", "antigravity")
	assert.Contains(t, md, "## Rate Limited")
	assert.Contains(t, md, "Antigravity")
	assert.Contains(t, md, "quota exceeded")
	assert.Contains(t, md, "`auth --default-provider <provider>`")
}

func TestFormatErrorResponseGeneric(t *testing.T) {
	md := FormatErrorResponse(500, "backend exploded", "gemini")
	assert.Contains(t, md, "## Search Error")
	assert.Contains(t, md, "**Status:** 500")
	assert.Contains(t, md, "backend exploded")
}
