package api

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"github.com/router-for-me/GroundedSearchMCP/internal/config"
)

// searchSystemInstruction is the persona sent with every search request.
const searchSystemInstruction = `You are an expert web search assistant with access to Google Search.

Your capabilities:
- Use google_search to find real-time information from the web

Guidelines:
- Always provide accurate, well-sourced information
- Cite your sources when presenting facts
- Be concise but comprehensive in your responses
- If information is uncertain or conflicting, acknowledge it
- Focus on answering the user's question directly`

// SearchRequestOptions carries the per-call inputs for request construction.
type SearchRequestOptions struct {
	Query string

	// Thinking is "high", "low" or "none"; ignored for providers whose
	// model does not support thinking.
	Thinking string

	// IncludeThoughts surfaces the thinking trace in the response.
	IncludeThoughts bool
}

type payloadPart struct {
	Text string `json:"text"`
}

type payloadContent struct {
	Role  string        `json:"role,omitempty"`
	Parts []payloadPart `json:"parts"`
}

type thinkingConfig struct {
	ThinkingLevel   string `json:"thinkingLevel"`
	IncludeThoughts bool   `json:"includeThoughts"`
}

type generationConfig struct {
	ThinkingConfig *thinkingConfig `json:"thinkingConfig,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"topP,omitempty"`
}

// searchPayload is the provider-agnostic request body. The tools array holds
// exactly one entry, the parameterless search-grounding tool: adding any
// other tool would let the model answer from memory instead of grounding in
// live search.
type searchPayload struct {
	SystemInstruction payloadContent   `json:"systemInstruction"`
	Contents          []payloadContent `json:"contents"`
	Tools             []map[string]any `json:"tools"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

// BuildSearchPayload constructs the core search payload for a provider.
// Thinking-capable providers with a requested level other than "none" get a
// thinking configuration block; everything else gets a flat deterministic
// generation config (temperature 0, top-p 1) to maximize reproducibility and
// avoid unsupported-field errors upstream.
func BuildSearchPayload(options SearchRequestOptions, provider ProviderAPIConfig) ([]byte, error) {
	payload := searchPayload{
		SystemInstruction: payloadContent{
			Parts: []payloadPart{{Text: searchSystemInstruction}},
		},
		Contents: []payloadContent{
			{Role: "user", Parts: []payloadPart{{Text: options.Query}}},
		},
		Tools: []map[string]any{
			{"googleSearch": map[string]any{}},
		},
	}

	if provider.SupportsThinking && options.Thinking != "" && options.Thinking != config.ThinkingNone {
		payload.GenerationConfig.ThinkingConfig = &thinkingConfig{
			ThinkingLevel:   options.Thinking,
			IncludeThoughts: options.IncludeThoughts,
		}
	} else {
		temperature := 0.0
		topP := 1.0
		payload.GenerationConfig.Temperature = &temperature
		payload.GenerationConfig.TopP = &topP
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("build search payload: %w", err)
	}
	return data, nil
}

// WrapProviderRequest applies the provider-specific envelope around a search
// payload: project id, model name, a fresh request id, and a session id
// injected into the nested request, using the field names from the
// provider's envelope shape.
func WrapProviderRequest(payload []byte, provider ProviderAPIConfig, projectID string) ([]byte, error) {
	if projectID == "" {
		projectID = provider.DefaultProjectID
	}

	wrapped := []byte(`{}`)
	var err error
	if wrapped, err = sjson.SetBytes(wrapped, "project", projectID); err != nil {
		return nil, fmt.Errorf("wrap request: %w", err)
	}
	if wrapped, err = sjson.SetBytes(wrapped, "model", provider.Model); err != nil {
		return nil, fmt.Errorf("wrap request: %w", err)
	}
	if provider.Envelope.UserAgentField != "" {
		if wrapped, err = sjson.SetBytes(wrapped, provider.Envelope.UserAgentField, provider.Name); err != nil {
			return nil, fmt.Errorf("wrap request: %w", err)
		}
	}
	if wrapped, err = sjson.SetBytes(wrapped, provider.Envelope.RequestIDField, newRequestID()); err != nil {
		return nil, fmt.Errorf("wrap request: %w", err)
	}
	if wrapped, err = sjson.SetRawBytes(wrapped, "request", payload); err != nil {
		return nil, fmt.Errorf("wrap request: %w", err)
	}
	if wrapped, err = sjson.SetBytes(wrapped, "request."+provider.Envelope.SessionIDField, newSessionID()); err != nil {
		return nil, fmt.Errorf("wrap request: %w", err)
	}
	return wrapped, nil
}

// BuildSearchRequest combines payload construction and provider wrapping.
func BuildSearchRequest(options SearchRequestOptions, provider ProviderAPIConfig, projectID string) ([]byte, error) {
	payload, err := BuildSearchPayload(options, provider)
	if err != nil {
		return nil, err
	}
	return WrapProviderRequest(payload, provider, projectID)
}

func newRequestID() string {
	return "search-" + uuid.NewString()
}

func newSessionID() string {
	return "gsearch-" + uuid.NewString()
}
