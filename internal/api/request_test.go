package api

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/router-for-me/GroundedSearchMCP/internal/config"
	"github.com/router-for-me/GroundedSearchMCP/internal/constant"
)

func mustProvider(t *testing.T, name string) ProviderAPIConfig {
	t.Helper()
	cfg, ok := ProviderAPI(name)
	require.True(t, ok)
	return cfg
}

func TestBuildSearchPayloadExclusiveTool(t *testing.T) {
	for _, name := range constant.Providers {
		t.Run(name, func(t *testing.T) {
			payload, err := BuildSearchPayload(SearchRequestOptions{Query: "test"}, mustProvider(t, name))
			require.NoError(t, err)

			tools := gjson.GetBytes(payload, "tools")
			require.Equal(t, int64(1), int64(len(tools.Array())), "the grounding tool must be the only tool")
			assert.True(t, tools.Get("0.googleSearch").Exists())
		})
	}
}

func TestBuildSearchPayloadThinking(t *testing.T) {
	antigravity := mustProvider(t, constant.Antigravity)
	gemini := mustProvider(t, constant.Gemini)

	tests := []struct {
		name         string
		provider     ProviderAPIConfig
		thinking     string
		wantThinking bool
	}{
		{"thinking-capable high", antigravity, config.ThinkingHigh, true},
		{"thinking-capable low", antigravity, config.ThinkingLow, true},
		{"thinking-capable none", antigravity, config.ThinkingNone, false},
		{"thinking-capable empty", antigravity, "", false},
		{"no thinking support", gemini, config.ThinkingHigh, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := BuildSearchPayload(SearchRequestOptions{Query: "q", Thinking: tt.thinking, IncludeThoughts: true}, tt.provider)
			require.NoError(t, err)

			thinkingCfg := gjson.GetBytes(payload, "generationConfig.thinkingConfig")
			if tt.wantThinking {
				require.True(t, thinkingCfg.Exists())
				assert.Equal(t, tt.thinking, thinkingCfg.Get("thinkingLevel").String())
				assert.True(t, thinkingCfg.Get("includeThoughts").Bool())
				assert.False(t, gjson.GetBytes(payload, "generationConfig.temperature").Exists())
			} else {
				assert.False(t, thinkingCfg.Exists())
				assert.Equal(t, 0.0, gjson.GetBytes(payload, "generationConfig.temperature").Float())
				assert.Equal(t, 1.0, gjson.GetBytes(payload, "generationConfig.topP").Float())
			}
		})
	}
}

func TestBuildSearchPayloadContents(t *testing.T) {
	payload, err := BuildSearchPayload(SearchRequestOptions{Query: "capital of France"}, mustProvider(t, constant.Gemini))
	require.NoError(t, err)

	assert.Equal(t, "user", gjson.GetBytes(payload, "contents.0.role").String())
	assert.Equal(t, "capital of France", gjson.GetBytes(payload, "contents.0.parts.0.text").String())
	assert.Contains(t, gjson.GetBytes(payload, "systemInstruction.parts.0.text").String(), "google_search")
}

func TestWrapProviderRequestGeminiEnvelope(t *testing.T) {
	provider := mustProvider(t, constant.Gemini)
	wrapped, err := BuildSearchRequest(SearchRequestOptions{Query: "q"}, provider, "my-project")
	require.NoError(t, err)

	assert.Equal(t, "my-project", gjson.GetBytes(wrapped, "project").String())
	assert.Equal(t, provider.Model, gjson.GetBytes(wrapped, "model").String())
	assert.True(t, strings.HasPrefix(gjson.GetBytes(wrapped, "user_prompt_id").String(), "search-"))
	assert.True(t, strings.HasPrefix(gjson.GetBytes(wrapped, "request.session_id").String(), "gsearch-"))
	assert.False(t, gjson.GetBytes(wrapped, "requestId").Exists())
	assert.False(t, gjson.GetBytes(wrapped, "userAgent").Exists())
	assert.Equal(t, "q", gjson.GetBytes(wrapped, "request.contents.0.parts.0.text").String())
}

func TestWrapProviderRequestAntigravityEnvelope(t *testing.T) {
	provider := mustProvider(t, constant.Antigravity)
	wrapped, err := BuildSearchRequest(SearchRequestOptions{Query: "q"}, provider, "")
	require.NoError(t, err)

	assert.Equal(t, AntigravityDefaultProjectID, gjson.GetBytes(wrapped, "project").String(),
		"an empty project id must substitute the baked-in default")
	assert.Equal(t, constant.Antigravity, gjson.GetBytes(wrapped, "userAgent").String())
	assert.True(t, strings.HasPrefix(gjson.GetBytes(wrapped, "requestId").String(), "search-"))
	assert.True(t, strings.HasPrefix(gjson.GetBytes(wrapped, "request.sessionId").String(), "gsearch-"))
	assert.False(t, gjson.GetBytes(wrapped, "user_prompt_id").Exists())
}

func TestRequestIDsUniquePerCall(t *testing.T) {
	provider := mustProvider(t, constant.Antigravity)

	first, err := BuildSearchRequest(SearchRequestOptions{Query: "q"}, provider, "p")
	require.NoError(t, err)
	second, err := BuildSearchRequest(SearchRequestOptions{Query: "q"}, provider, "p")
	require.NoError(t, err)

	assert.NotEqual(t,
		gjson.GetBytes(first, "requestId").String(),
		gjson.GetBytes(second, "requestId").String())
}

func TestHeadersDrawFromPools(t *testing.T) {
	provider := mustProvider(t, constant.Antigravity)

	headers := provider.Headers()
	assert.Contains(t, headers["User-Agent"], "antigravity/"+AntigravityVersion)
	assert.NotEmpty(t, headers["X-Goog-Api-Client"])
	assert.True(t, gjson.Valid(headers["Client-Metadata"]), "antigravity client metadata is a JSON blob")

	gemini := mustProvider(t, constant.Gemini).Headers()
	assert.Contains(t, gemini["Client-Metadata"], "pluginType=GEMINI")
}
