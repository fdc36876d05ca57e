package api

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// UntitledSource is the sentinel title for citation chunks that arrive
// without one.
const UntitledSource = "Untitled"

// Source is one deduplicated citation from grounding metadata.
type Source struct {
	Title string
	URL   string
}

// SearchResult is the parsed outcome of a successful search response.
type SearchResult struct {
	Text          string
	Sources       []Source
	SearchQueries []string
}

// ParseSearchResponse extracts answer text, citations and issued search
// queries from an upstream response body. Extraction is tolerant: any
// missing nesting level yields empty defaults, never an error. Both the
// wrapped shape ({"response": {...}}) and the bare shape are accepted
// because the two providers disagree and the upstream contract drifts.
func ParseSearchResponse(raw []byte) SearchResult {
	root := gjson.GetBytes(raw, "response")
	if !root.Exists() {
		root = gjson.ParseBytes(raw)
	}

	candidate := root.Get("candidates.0")

	var texts []string
	candidate.Get("content.parts").ForEach(func(_, part gjson.Result) bool {
		if text := part.Get("text").String(); text != "" {
			texts = append(texts, text)
		}
		return true
	})

	// Deduplicate citations by URL, keeping first-seen order and the
	// first-seen title. A later duplicate with a different title must not
	// overwrite the first.
	seen := make(map[string]struct{})
	var sources []Source
	candidate.Get("groundingMetadata.groundingChunks").ForEach(func(_, chunk gjson.Result) bool {
		uri := chunk.Get("web.uri").String()
		if uri == "" {
			return true
		}
		if _, dup := seen[uri]; dup {
			return true
		}
		seen[uri] = struct{}{}
		title := chunk.Get("web.title").String()
		if title == "" {
			title = UntitledSource
		}
		sources = append(sources, Source{Title: title, URL: uri})
		return true
	})

	var queries []string
	candidate.Get("groundingMetadata.webSearchQueries").ForEach(func(_, query gjson.Result) bool {
		if q := query.String(); q != "" {
			queries = append(queries, q)
		}
		return true
	})

	return SearchResult{
		Text:          strings.Join(texts, "\n\n"),
		Sources:       sources,
		SearchQueries: queries,
	}
}

func extractDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return rawURL
	}
	return parsed.Hostname()
}

// FormatSearchResult renders a SearchResult as markdown. The sources and
// search-query sections are omitted when empty.
func FormatSearchResult(result SearchResult) string {
	var sections []string

	sections = append(sections, "## Search Results\n")
	if result.Text != "" {
		sections = append(sections, result.Text)
	} else {
		sections = append(sections, "_No results found._")
	}

	if len(result.Sources) > 0 {
		sections = append(sections, "\n### Sources\n")
		for _, source := range result.Sources {
			sections = append(sections, fmt.Sprintf("- [%s](%s) (%s)", source.Title, source.URL, extractDomain(source.URL)))
		}
	}

	if len(result.SearchQueries) > 0 {
		sections = append(sections, "\n### Search Queries Used\n")
		for _, query := range result.SearchQueries {
			sections = append(sections, fmt.Sprintf("- %q", query))
		}
	}

	return strings.Join(sections, "\n")
}

// FormatErrorResponse renders an upstream failure as actionable markdown.
// 401/403 yield an authentication-error section with provider-specific
// re-auth instructions, 429 a rate-limit section suggesting a wait or a
// provider switch, anything else a generic section carrying the raw status.
func FormatErrorResponse(status int, errorText, provider string) string {
	display := providerDisplayName(provider)

	switch {
	case status == 401 || status == 403:
		if errorText == "" {
			errorText = "Authentication failed"
		}
		return fmt.Sprintf(`## Authentication Error

Your %s credentials are invalid or expired.

**Error:** %s

**To fix:**
1. Use `+"`auth --login %s`"+` to re-authenticate
2. Follow the instructions to complete authentication
3. Try your search again`, display, errorText, provider)

	case status == 429:
		if errorText == "" {
			errorText = "Too many requests"
		}
		return fmt.Sprintf(`## Rate Limited

The %s API has rate limited your requests.

**Error:** %s

**What to do:**
- Wait a few minutes before trying again
- If you have another provider configured, try switching with `+"`auth --default-provider <provider>`"+`
- Consider reducing the frequency of searches`, display, errorText)

	default:
		if errorText == "" {
			errorText = "Unknown error"
		}
		return fmt.Sprintf(`## Search Error

An error occurred while searching.

**Status:** %d
**Error:** %s

**Troubleshooting:**
- Check your internet connection
- Verify your authentication is still valid with `+"`auth --status`"+`
- If the problem persists, try re-authenticating with `+"`auth --login %s`"+``, status, errorText, provider)
	}
}

func providerDisplayName(provider string) string {
	if cfg, ok := ProviderAPI(provider); ok {
		return cfg.DisplayName
	}
	return provider
}
