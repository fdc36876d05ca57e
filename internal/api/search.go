package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/router-for-me/GroundedSearchMCP/internal/auth"
	"github.com/router-for-me/GroundedSearchMCP/internal/config"
	"github.com/router-for-me/GroundedSearchMCP/internal/constant"
)

// UsageRecorder receives per-provider counters from the orchestrator. A nil
// recorder disables accounting.
type UsageRecorder interface {
	RecordSearch(provider string, fallback bool)
	RecordFailure(provider string)
}

// SearchOptions carries the per-call parameters of a grounded search.
// Zero-valued fields fall back to the active configuration.
type SearchOptions struct {
	Query    string
	Thinking string
}

// Orchestrator drives a grounded search across the configured providers,
// handling token refresh, project id resolution, endpoint fallback and
// provider fallback.
type Orchestrator struct {
	tokens     *auth.Manager
	store      *auth.FileTokenStore
	httpClient *http.Client
	resolver   *URLResolver
	usage      UsageRecorder
	cfg        func() *config.Config

	projectMu  sync.Mutex
	projectIDs map[string]string

	// test seams
	endpointOverrides map[string][]string
}

// NewOrchestrator wires an orchestrator from its collaborators. cfg is read
// on every call so config reloads take effect without restarting.
func NewOrchestrator(store *auth.FileTokenStore, tokens *auth.Manager, httpClient *http.Client, resolver *URLResolver, usage UsageRecorder, cfg func() *config.Config) *Orchestrator {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Orchestrator{
		tokens:     tokens,
		store:      store,
		httpClient: httpClient,
		resolver:   resolver,
		usage:      usage,
		cfg:        cfg,
		projectIDs: make(map[string]string),
	}
}

// SearchWithFallback runs the query against the preferred provider first and
// falls back to the remaining authenticated providers on any failure. The
// returned markdown is final; callers never re-parse it.
func (o *Orchestrator) SearchWithFallback(ctx context.Context, opts SearchOptions) string {
	cfg := o.cfg()
	timeout := time.Duration(cfg.Timeout) * time.Millisecond

	ordered := o.providerOrder(cfg)
	preferred := ordered[0]

	var last *Outcome
	var notes []string

	for _, name := range ordered {
		pcfg, ok := ProviderAPI(name)
		if !ok {
			continue
		}

		accessToken, errToken := o.tokens.GetValidAccessToken(ctx, name)
		if errToken != nil {
			log.Warnf("search: %s token unavailable: %v", name, errToken)
			last = &Outcome{Provider: name, Kind: FailureAuth, Message: errToken.Error()}
			notes = append(notes, fmt.Sprintf("%s: %s", name, last.Reason()))
			o.recordFailure(name)
			continue
		}
		if accessToken == "" {
			continue
		}

		projectID, errProject := o.projectID(ctx, pcfg, accessToken)
		if errProject != nil {
			log.Warnf("search: %s project id unavailable: %v", name, errProject)
			last = &Outcome{Provider: name, Kind: FailureProjectSetup, Message: errProject.Error()}
			notes = append(notes, fmt.Sprintf("%s: %s", name, last.Reason()))
			o.recordFailure(name)
			continue
		}

		reqOpts := SearchRequestOptions{
			Query:           opts.Query,
			Thinking:        o.thinkingLevel(cfg, opts),
			IncludeThoughts: cfg.IncludeThoughts,
		}

		outcome := o.searchProvider(ctx, pcfg, accessToken, projectID, reqOpts, timeout)
		if outcome.Success() {
			fallback := name != preferred || len(notes) > 0
			o.recordSearch(name, fallback)
			o.resolveResultSources(ctx, outcome.Result)
			md := FormatSearchResult(*outcome.Result)
			if fallback {
				md += fmt.Sprintf("\n\n---\n_Served by %s (%s)", providerDisplayName(name), pcfg.Model)
				if len(notes) > 0 {
					md += fmt.Sprintf("; %s_", strings.Join(notes, "; "))
				} else {
					md += "_"
				}
			}
			return md
		}

		last = outcome
		notes = append(notes, fmt.Sprintf("%s: %s", name, outcome.Reason()))
		o.recordFailure(name)
	}

	// A provider with stored credentials that failed token acquisition still
	// produced a typed outcome. Only a run where no provider holds any
	// credentials at all reports "no providers".
	if last == nil {
		return noProvidersMessage()
	}
	return last.Markdown() + "\n\n---\n_Tip: if this keeps failing, retry later or use your client's built-in web search._"
}

// searchProvider walks the provider's endpoint list, advancing only on
// capacity or quota pressure. Other failures stop the walk so the caller can
// move to the next provider.
func (o *Orchestrator) searchProvider(ctx context.Context, pcfg ProviderAPIConfig, accessToken, projectID string, reqOpts SearchRequestOptions, timeout time.Duration) *Outcome {
	var last *Outcome
	for _, endpoint := range o.endpoints(pcfg) {
		outcome := o.executeSearch(ctx, pcfg, endpoint, accessToken, projectID, reqOpts, timeout)
		if outcome.Success() || !outcome.EndpointAdvance() {
			return outcome
		}
		log.Debugf("search: %s endpoint %s unavailable (%s), trying next", pcfg.Name, endpoint, outcome.Reason())
		last = outcome
	}
	if last == nil {
		last = &Outcome{Provider: pcfg.Name, Kind: FailureNetwork, Message: "no endpoints configured"}
	}
	return last
}

// executeSearch performs a single generateContent call and classifies the
// result into a typed outcome.
func (o *Orchestrator) executeSearch(ctx context.Context, pcfg ProviderAPIConfig, endpoint, accessToken, projectID string, reqOpts SearchRequestOptions, timeout time.Duration) *Outcome {
	outcome := &Outcome{Provider: pcfg.Name, Model: pcfg.Model, Timeout: timeout}

	body, errBuild := BuildSearchRequest(reqOpts, pcfg, projectID)
	if errBuild != nil {
		outcome.Kind = FailureUpstream
		outcome.Message = errBuild.Error()
		return outcome
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := endpoint + "/" + codeAssistVersion + ":generateContent"
	req, errReq := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if errReq != nil {
		outcome.Kind = FailureNetwork
		outcome.Message = errReq.Error()
		return outcome
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	for k, v := range pcfg.Headers() {
		req.Header.Set(k, v)
	}

	resp, errDo := o.httpClient.Do(req)
	if errDo != nil {
		if errors.Is(errDo, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			outcome.Kind = FailureTimeout
		} else {
			outcome.Kind = FailureNetwork
		}
		outcome.Message = errDo.Error()
		return outcome
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Debugf("search: close response body: %v", errClose)
		}
	}()

	raw, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		outcome.Kind = FailureNetwork
		outcome.Message = errRead.Error()
		return outcome
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		classify(outcome, resp.StatusCode, string(raw))
		return outcome
	}

	// Provider errors can arrive inside a 200 body.
	if errObj := gjson.GetBytes(raw, "error"); errObj.Exists() && errObj.IsObject() {
		status := int(errObj.Get("code").Int())
		if status == 0 {
			status = 500
		}
		classify(outcome, status, errObj.Get("message").String())
		return outcome
	}

	result := ParseSearchResponse(raw)
	if result.Text == "" && len(result.Sources) == 0 {
		outcome.Kind = FailureUpstream
		outcome.Status = resp.StatusCode
		outcome.Message = "empty response from provider"
		return outcome
	}
	outcome.Result = &result
	return outcome
}

// classify maps an HTTP status and body text onto a failure kind. Capacity
// markers in the body force the capacity kind regardless of status so the
// endpoint walk keeps going.
func classify(o *Outcome, status int, body string) {
	o.Status = status
	o.Message = body

	if strings.Contains(body, "No capacity available") || strings.Contains(body, "Resource has been exhausted") {
		o.Kind = FailureCapacity
		return
	}
	switch {
	case status == 401 || status == 403:
		o.Kind = FailureAuth
	case status == 429:
		o.Kind = FailureRateLimited
	case status == 503:
		o.Kind = FailureCapacity
	default:
		o.Kind = FailureUpstream
	}
}

// projectID resolves the provider's project id, caching the result for the
// process lifetime. Providers that require a project fail hard when
// resolution is impossible; the rest substitute their baked-in default.
func (o *Orchestrator) projectID(ctx context.Context, pcfg ProviderAPIConfig, accessToken string) (string, error) {
	o.projectMu.Lock()
	if id, ok := o.projectIDs[pcfg.Name]; ok {
		o.projectMu.Unlock()
		return id, nil
	}
	o.projectMu.Unlock()

	id, errResolve := o.loadProjectID(ctx, pcfg, accessToken)
	if errResolve != nil || id == "" {
		if pcfg.ProjectIDRequired {
			if errResolve == nil {
				errResolve = errors.New("no project id in response")
			}
			return "", fmt.Errorf("%s project id: %w", pcfg.Name, errResolve)
		}
		id = pcfg.DefaultProjectID
	}

	o.projectMu.Lock()
	o.projectIDs[pcfg.Name] = id
	o.projectMu.Unlock()
	return id, nil
}

// loadProjectID calls v1internal:loadCodeAssist on each of the provider's
// endpoints until one answers.
func (o *Orchestrator) loadProjectID(ctx context.Context, pcfg ProviderAPIConfig, accessToken string) (string, error) {
	payload := []byte(`{"metadata":{"ideType":"IDE_UNSPECIFIED","platform":"PLATFORM_UNSPECIFIED","pluginType":"GEMINI"}}`)

	var lastErr error
	for _, endpoint := range o.endpoints(pcfg) {
		callCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		req, errReq := http.NewRequestWithContext(callCtx, http.MethodPost, endpoint+"/"+codeAssistVersion+":loadCodeAssist", bytes.NewReader(payload))
		if errReq != nil {
			cancel()
			return "", fmt.Errorf("build request: %w", errReq)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+accessToken)
		for k, v := range pcfg.Headers() {
			req.Header.Set(k, v)
		}

		resp, errDo := o.httpClient.Do(req)
		if errDo != nil {
			cancel()
			lastErr = fmt.Errorf("execute request: %w", errDo)
			continue
		}
		raw, errRead := io.ReadAll(resp.Body)
		if errClose := resp.Body.Close(); errClose != nil {
			log.Debugf("search: close loadCodeAssist body: %v", errClose)
		}
		cancel()
		if errRead != nil {
			lastErr = fmt.Errorf("read response: %w", errRead)
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
			continue
		}

		project := gjson.GetBytes(raw, "cloudaicompanionProject")
		if project.IsObject() {
			if id := project.Get("id").String(); id != "" {
				return id, nil
			}
		} else if id := project.String(); id != "" {
			return id, nil
		}
		return "", nil
	}
	if lastErr == nil {
		lastErr = errors.New("no endpoints configured")
	}
	return "", lastErr
}

// providerOrder returns all known providers with the preferred one first. A
// default stored alongside the tokens (set via auth --default-provider) wins
// over the config file default.
func (o *Orchestrator) providerOrder(cfg *config.Config) []string {
	preferred := cfg.DefaultProvider
	if stored, errDefault := o.store.DefaultProvider(); errDefault == nil && stored != "" {
		preferred = stored
	}
	if !constant.IsProvider(preferred) {
		preferred = constant.Antigravity
	}

	ordered := []string{preferred}
	for _, name := range constant.Providers {
		if name != preferred {
			ordered = append(ordered, name)
		}
	}
	return ordered
}

func (o *Orchestrator) thinkingLevel(cfg *config.Config, opts SearchOptions) string {
	if opts.Thinking != "" {
		return opts.Thinking
	}
	return cfg.DefaultThinking
}

func (o *Orchestrator) endpoints(pcfg ProviderAPIConfig) []string {
	if override, ok := o.endpointOverrides[pcfg.Name]; ok {
		return override
	}
	return pcfg.Endpoints
}

func (o *Orchestrator) resolveResultSources(ctx context.Context, result *SearchResult) {
	if o.resolver == nil || result == nil {
		return
	}
	result.Sources = o.resolver.ResolveSources(ctx, result.Sources)
}

func (o *Orchestrator) recordSearch(provider string, fallback bool) {
	if o.usage != nil {
		o.usage.RecordSearch(provider, fallback)
	}
}

func (o *Orchestrator) recordFailure(provider string) {
	if o.usage != nil {
		o.usage.RecordFailure(provider)
	}
}

func noProvidersMessage() string {
	return `## No Providers Available

No authenticated search providers were found.

**To get started:**
1. Run ` + "`auth --login antigravity`" + ` or ` + "`auth --login gemini`" + `
2. Complete the sign-in flow in your browser
3. Retry your search`
}
