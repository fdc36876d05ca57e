package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/router-for-me/GroundedSearchMCP/internal/constant"
)

func newTestFlowManager(t *testing.T) (*FlowManager, *FileTokenStore) {
	t.Helper()
	store, err := NewFileTokenStore(filepath.Join(t.TempDir(), "tokens.json"))
	require.NoError(t, err)
	return NewFlowManager(store, &http.Client{Timeout: 5 * time.Second}), store
}

func TestStartAuthFlowURL(t *testing.T) {
	for _, provider := range constant.Providers {
		t.Run(provider, func(t *testing.T) {
			m, _ := newTestFlowManager(t)

			started, err := m.StartAuthFlow(provider, "")
			require.NoError(t, err)

			parsed, errParse := url.Parse(started.AuthURL)
			require.NoError(t, errParse)
			q := parsed.Query()

			cfg, ok := Provider(provider)
			require.True(t, ok)
			assert.Equal(t, cfg.ClientID, q.Get("client_id"))
			assert.Equal(t, cfg.RedirectURI, q.Get("redirect_uri"))
			assert.Equal(t, "code", q.Get("response_type"))
			assert.Equal(t, "offline", q.Get("access_type"))
			assert.Equal(t, "consent", q.Get("prompt"))
			assert.Equal(t, "S256", q.Get("code_challenge_method"))
			assert.NotEmpty(t, q.Get("code_challenge"))
			assert.Equal(t, started.State, q.Get("state"))

			// The pending flow must carry the verifier matching the challenge.
			flow := m.PendingFlow(started.State)
			require.NotNil(t, flow)
			assert.Equal(t, generateCodeChallenge(flow.CodeVerifier), q.Get("code_challenge"))
		})
	}
}

func TestStartAuthFlowScopesDiffer(t *testing.T) {
	m, _ := newTestFlowManager(t)

	gemini, err := m.StartAuthFlow(constant.Gemini, "")
	require.NoError(t, err)
	antigravity, err := m.StartAuthFlow(constant.Antigravity, "")
	require.NoError(t, err)

	cclogScope := url.QueryEscape("https://www.googleapis.com/auth/cclog")
	assert.NotContains(t, gemini.AuthURL, cclogScope)
	assert.Contains(t, antigravity.AuthURL, cclogScope)
}

func TestStartAuthFlowUnknownProvider(t *testing.T) {
	m, _ := newTestFlowManager(t)
	_, err := m.StartAuthFlow("openai", "")
	assert.Error(t, err)
}

func TestCompleteAuthFlow(t *testing.T) {
	var exchangedCode, exchangedVerifier string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			require.NoError(t, r.ParseForm())
			exchangedCode = r.Form.Get("code")
			exchangedVerifier = r.Form.Get("code_verifier")
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"at","refresh_token":"rt","expires_in":3600,"token_type":"Bearer"}`)
		case "/userinfo":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"email":"user@example.com"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()

	m, store := newTestFlowManager(t)
	m.tokenURL = upstream.URL + "/token"
	m.userInfoURL = upstream.URL + "/userinfo"

	started, err := m.StartAuthFlow(constant.Gemini, "")
	require.NoError(t, err)
	verifier := m.PendingFlow(started.State).CodeVerifier

	token, provider, errComplete := m.CompleteAuthFlow(context.Background(), started.State, "auth-code-123")
	require.NoError(t, errComplete)
	assert.Equal(t, constant.Gemini, provider)
	assert.Equal(t, "at", token.AccessToken)
	assert.Equal(t, "rt", token.RefreshToken)
	assert.Equal(t, "user@example.com", token.Email)
	assert.Greater(t, token.ExpiresAt, time.Now().UnixMilli())

	assert.Equal(t, "auth-code-123", exchangedCode)
	assert.Equal(t, verifier, exchangedVerifier)

	persisted, errGet := store.GetProviderTokens(constant.Gemini)
	require.NoError(t, errGet)
	assert.Equal(t, token, persisted)
}

func TestCompleteAuthFlowConsumesState(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at","refresh_token":"rt","expires_in":3600,"token_type":"Bearer"}`)
	}))
	defer upstream.Close()

	m, _ := newTestFlowManager(t)
	m.tokenURL = upstream.URL
	m.userInfoURL = upstream.URL

	started, err := m.StartAuthFlow(constant.Gemini, "")
	require.NoError(t, err)

	_, _, errFirst := m.CompleteAuthFlow(context.Background(), started.State, "code")
	require.NoError(t, errFirst)

	_, _, errSecond := m.CompleteAuthFlow(context.Background(), started.State, "code")
	assert.Error(t, errSecond, "a flow must be consumable exactly once")
}

func TestCompleteAuthFlowExpired(t *testing.T) {
	m, _ := newTestFlowManager(t)

	started, err := m.StartAuthFlow(constant.Antigravity, "")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(FlowTTL + time.Second) }

	_, _, errComplete := m.CompleteAuthFlow(context.Background(), started.State, "code")
	require.Error(t, errComplete)
	assert.Contains(t, errComplete.Error(), "expired")

	assert.Nil(t, m.PendingFlow(started.State), "expired flow must be gone")
}

func TestCompleteAuthFlowUnknownState(t *testing.T) {
	m, _ := newTestFlowManager(t)
	_, _, err := m.CompleteAuthFlow(context.Background(), "never-issued", "code")
	assert.Error(t, err)
}

func TestExchangeErrorCarriesUpstreamDetail(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_request","error_description":"Missing code verifier."}`)
	}))
	defer upstream.Close()

	m, _ := newTestFlowManager(t)
	m.tokenURL = upstream.URL

	_, err := m.ExchangeCodeForTokens(context.Background(), "code", "verifier", constant.Gemini, "")
	var exchange *TokenExchangeError
	require.ErrorAs(t, err, &exchange)
	assert.Equal(t, http.StatusBadRequest, exchange.StatusCode)
	assert.Equal(t, "invalid_request", exchange.Code)
	assert.Equal(t, "Missing code verifier.", exchange.Description)
}

func TestCompleteAuthFlowSurvivesUserInfoFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"at","refresh_token":"rt","expires_in":3600,"token_type":"Bearer"}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer upstream.Close()

	m, store := newTestFlowManager(t)
	m.tokenURL = upstream.URL + "/token"
	m.userInfoURL = upstream.URL + "/userinfo"

	started, err := m.StartAuthFlow(constant.Gemini, "")
	require.NoError(t, err)

	token, _, errComplete := m.CompleteAuthFlow(context.Background(), started.State, "code")
	require.NoError(t, errComplete, "a failed email lookup must not void the login")
	assert.Empty(t, token.Email)

	persisted, errGet := store.GetProviderTokens(constant.Gemini)
	require.NoError(t, errGet)
	require.NotNil(t, persisted)
}
