// Package api implements the search side of the grounded-search MCP server:
// provider capability table, request construction, response parsing, redirect
// resolution, and the provider/endpoint fallback orchestrator.
package api

import (
	"math/rand"
	"sync"
	"time"

	"github.com/router-for-me/GroundedSearchMCP/internal/constant"
)

// Cloud Code Assist endpoints. Only the daily sandbox endpoint reliably
// serves Antigravity OAuth credentials; autopush and production are kept as
// fallbacks because they occasionally accept traffic when the sandbox is at
// capacity.
const (
	geminiCLIEndpoint           = "https://cloudcode-pa.googleapis.com"
	antigravityDailyEndpoint    = "https://daily-cloudcode-pa.sandbox.googleapis.com"
	antigravityAutopushEndpoint = "https://autopush-cloudcode-pa.sandbox.googleapis.com"

	codeAssistVersion = "v1internal"
)

// AntigravityVersion is embedded in the Antigravity user agents. Outdated
// versions make upstream reject requests with "no longer supported" errors.
const AntigravityVersion = "1.15.8"

// AntigravityDefaultProjectID substitutes for a failed project lookup
// (business/workspace accounts do not expose a managed project).
const AntigravityDefaultProjectID = "rising-fact-p41fc"

// EnvelopeShape names the provider-specific request wrapper fields. The two
// providers disagree on naming conventions for the same concepts; modeling
// the divergence as data keeps any third provider a table change.
type EnvelopeShape struct {
	// RequestIDField is the top-level per-request identifier field.
	RequestIDField string
	// SessionIDField is the identifier field injected into the nested request.
	SessionIDField string
	// UserAgentField, when non-empty, is set to the provider's short name.
	UserAgentField string
}

// ProviderAPIConfig is one row of the provider capability table: endpoint
// priority order, identification headers, model id, thinking support and
// envelope shape.
type ProviderAPIConfig struct {
	Name              string
	DisplayName       string
	Endpoints         []string
	Model             string
	SupportsThinking  bool
	Envelope          EnvelopeShape
	ProjectIDRequired bool
	DefaultProjectID  string

	userAgents     []string
	apiClients     []string
	clientMetadata string
}

var antigravityUserAgents = []string{
	"antigravity/" + AntigravityVersion + " windows/amd64",
	"antigravity/" + AntigravityVersion + " darwin/arm64",
	"antigravity/" + AntigravityVersion + " linux/amd64",
	"antigravity/" + AntigravityVersion + " darwin/amd64",
	"antigravity/" + AntigravityVersion + " linux/arm64",
}

var providerAPIConfigs = map[string]ProviderAPIConfig{
	constant.Gemini: {
		Name:        constant.Gemini,
		DisplayName: "Gemini CLI",
		Endpoints:   []string{geminiCLIEndpoint},
		// Only model with googleSearch support on this endpoint.
		Model:            "gemini-2.5-flash",
		SupportsThinking: false,
		Envelope: EnvelopeShape{
			RequestIDField: "user_prompt_id",
			SessionIDField: "session_id",
		},
		ProjectIDRequired: true,
		userAgents: []string{
			"google-api-nodejs-client/10.3.0",
			"google-api-nodejs-client/9.15.1",
			"google-api-nodejs-client/9.14.0",
		},
		apiClients: []string{
			"gl-node/22.18.0",
			"gl-node/22.17.0",
			"gl-node/22.12.0",
			"gl-node/20.18.0",
		},
		clientMetadata: "ideType=IDE_UNSPECIFIED,platform=PLATFORM_UNSPECIFIED,pluginType=GEMINI",
	},
	constant.Antigravity: {
		Name:        constant.Antigravity,
		DisplayName: "Antigravity",
		Endpoints: []string{
			antigravityDailyEndpoint,
			antigravityAutopushEndpoint,
			geminiCLIEndpoint,
		},
		Model:            "gemini-3-flash",
		SupportsThinking: true,
		Envelope: EnvelopeShape{
			RequestIDField: "requestId",
			SessionIDField: "sessionId",
			UserAgentField: "userAgent",
		},
		DefaultProjectID: AntigravityDefaultProjectID,
		userAgents:       antigravityUserAgents,
		apiClients: []string{
			"google-cloud-sdk vscode_cloudshelleditor/0.1",
			"google-cloud-sdk vscode/1.96.0",
			"google-cloud-sdk jetbrains/2024.3",
			"google-cloud-sdk vscode/1.95.0",
		},
		clientMetadata: `{"ideType":"IDE_UNSPECIFIED","platform":"PLATFORM_UNSPECIFIED","pluginType":"GEMINI"}`,
	},
}

// ProviderAPI returns the capability-table row for the named provider.
func ProviderAPI(name string) (ProviderAPIConfig, bool) {
	cfg, ok := providerAPIConfigs[name]
	return cfg, ok
}

var (
	headerRand   = rand.New(rand.NewSource(time.Now().UnixNano()))
	headerRandMu sync.Mutex
)

func randomFrom(values []string) string {
	headerRandMu.Lock()
	defer headerRandMu.Unlock()
	return values[headerRand.Intn(len(values))]
}

// Headers returns the provider-identification header set with User-Agent and
// X-Goog-Api-Client drawn randomly per call from a pool of plausible client
// signatures. The rotation reduces fingerprinting and rate-limit correlation
// across requests; it is advisory camouflage, not a security boundary.
func (c ProviderAPIConfig) Headers() map[string]string {
	return map[string]string{
		"User-Agent":        randomFrom(c.userAgents),
		"X-Goog-Api-Client": randomFrom(c.apiClients),
		"Client-Metadata":   c.clientMetadata,
	}
}
