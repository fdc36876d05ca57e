package auth

import (
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
	"golang.org/x/oauth2"
)

// FlowTTL is the validity window of a started authorization flow. A flow not
// completed within this window must be restarted.
const FlowTTL = 5 * time.Minute

// FlowState is the in-memory state of one authorization flow. It is never
// persisted and is consumed exactly once by completion, or discarded on
// timeout.
type FlowState struct {
	CodeVerifier string
	State        string
	Provider     string
	RedirectURI  string
	ExpiresAt    time.Time
}

// StartedFlow is returned by StartAuthFlow for presentation to the user.
type StartedFlow struct {
	AuthURL  string
	State    string
	Provider string
}

// FlowManager runs the PKCE authorization flows. Pending flow state is keyed
// by the CSRF state value.
type FlowManager struct {
	store      *FileTokenStore
	httpClient *http.Client

	mu    sync.Mutex
	flows map[string]*FlowState

	// Overridable for tests.
	authURL     string
	tokenURL    string
	userInfoURL string
	now         func() time.Time
}

// NewFlowManager creates a flow manager persisting completed logins to store.
func NewFlowManager(store *FileTokenStore, httpClient *http.Client) *FlowManager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &FlowManager{
		store:       store,
		httpClient:  httpClient,
		flows:       make(map[string]*FlowState),
		authURL:     googleAuthURL,
		tokenURL:    googleTokenURL,
		userInfoURL: googleUserInfoURL,
		now:         time.Now,
	}
}

// StartAuthFlow generates PKCE codes and a CSRF state value, registers the
// pending flow, and returns the authorization URL for the user to visit.
// redirectURI may be empty to use the provider's default (the manual
// copy-a-code page); the loopback login passes its localhost callback here.
func (m *FlowManager) StartAuthFlow(provider, redirectURI string) (*StartedFlow, error) {
	cfg, ok := Provider(provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	if redirectURI == "" {
		redirectURI = cfg.RedirectURI
	}

	pkce, err := GeneratePKCECodes()
	if err != nil {
		return nil, fmt.Errorf("%s auth flow: %w", provider, err)
	}
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("%s auth flow: %w", provider, err)
	}

	conf := m.oauthConfig(cfg, redirectURI)
	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		// Force re-issuance of a refresh token even on repeat logins.
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	m.mu.Lock()
	m.flows[state] = &FlowState{
		CodeVerifier: pkce.CodeVerifier,
		State:        state,
		Provider:     provider,
		RedirectURI:  redirectURI,
		ExpiresAt:    m.now().Add(FlowTTL),
	}
	m.mu.Unlock()

	return &StartedFlow{AuthURL: authURL, State: state, Provider: provider}, nil
}

// CompleteAuthFlow consumes the pending flow identified by state, exchanges
// the authorization code for tokens, fetches the account email, and persists
// the result. The flow state is removed whether or not completion succeeds.
func (m *FlowManager) CompleteAuthFlow(ctx context.Context, state, code string) (*ProviderToken, string, error) {
	m.mu.Lock()
	flow := m.flows[state]
	delete(m.flows, state)
	m.mu.Unlock()

	if flow == nil {
		return nil, "", fmt.Errorf("no pending authentication flow for this state; start a new login")
	}
	if m.now().After(flow.ExpiresAt) {
		return nil, "", fmt.Errorf("%s login expired after %s; start a new login", flow.Provider, FlowTTL)
	}

	token, err := m.ExchangeCodeForTokens(ctx, code, flow.CodeVerifier, flow.Provider, flow.RedirectURI)
	if err != nil {
		return nil, "", err
	}

	email, errInfo := m.FetchUserInfo(ctx, token.AccessToken)
	if errInfo != nil {
		// Email is display-only; a failed lookup should not void the login.
		log.Warnf("%s auth flow: could not fetch account email: %v", flow.Provider, errInfo)
	}
	token.Email = email

	if errUpdate := m.store.UpdateProviderTokens(flow.Provider, token); errUpdate != nil {
		return nil, "", errUpdate
	}
	return token, flow.Provider, nil
}

// PendingFlow returns a copy of the pending flow for state, or nil. Expired
// flows are reported as absent.
func (m *FlowManager) PendingFlow(state string) *FlowState {
	m.mu.Lock()
	defer m.mu.Unlock()
	flow := m.flows[state]
	if flow == nil || m.now().After(flow.ExpiresAt) {
		return nil
	}
	copied := *flow
	return &copied
}

// ExchangeCodeForTokens exchanges an authorization code plus PKCE verifier
// for a token set. A non-2xx upstream response yields a TokenExchangeError
// carrying the upstream error code and description.
func (m *FlowManager) ExchangeCodeForTokens(ctx context.Context, code, codeVerifier, provider, redirectURI string) (*ProviderToken, error) {
	cfg, ok := Provider(provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	if redirectURI == "" {
		redirectURI = cfg.RedirectURI
	}

	conf := m.oauthConfig(cfg, redirectURI)
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	tok, err := conf.Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &TokenExchangeError{
				Provider:    provider,
				StatusCode:  retrieveErr.Response.StatusCode,
				Code:        gjson.GetBytes(retrieveErr.Body, "error").String(),
				Description: gjson.GetBytes(retrieveErr.Body, "error_description").String(),
			}
		}
		return nil, fmt.Errorf("%s token exchange: %w", provider, err)
	}

	return &ProviderToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.UnixMilli(),
	}, nil
}

// FetchUserInfo retrieves the authenticated account's email for display.
func (m *FlowManager) FetchUserInfo(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.userInfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("userinfo: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, errDo := m.httpClient.Do(req)
	if errDo != nil {
		return "", fmt.Errorf("userinfo: execute request: %w", errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("userinfo: close body error: %v", errClose)
		}
	}()

	bodyBytes, errRead := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	if errRead != nil {
		return "", fmt.Errorf("userinfo: read response: %w", errRead)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("userinfo: request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	email := strings.TrimSpace(gjson.GetBytes(bodyBytes, "email").String())
	if email == "" {
		return "", fmt.Errorf("userinfo: response missing email")
	}
	return email, nil
}

func (m *FlowManager) oauthConfig(cfg ProviderConfig, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  m.authURL,
			TokenURL: m.tokenURL,
		},
	}
}
