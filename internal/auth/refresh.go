package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

const (
	// AccessTokenBufferMs refreshes tokens 60 seconds before expiry so a
	// token cannot expire mid-flight.
	AccessTokenBufferMs = 60_000

	// MaxRefreshRetries bounds refresh attempts for transient failures.
	MaxRefreshRetries = 3
)

// retryBaseDelay is the first backoff step; subsequent steps double it.
const retryBaseDelay = time.Second

// IsTokenExpired reports whether a token with the given expiry (epoch
// milliseconds) needs refreshing at the given instant, honoring the
// proactive buffer.
func IsTokenExpired(expiresAt int64, now time.Time) bool {
	return now.UnixMilli() >= expiresAt-AccessTokenBufferMs
}

// Manager produces currently-valid access tokens, refreshing transparently
// when needed. Concurrent refreshes for the same provider are deduplicated:
// N simultaneous callers trigger exactly one upstream refresh call and all
// observe the same result.
type Manager struct {
	store      *FileTokenStore
	httpClient *http.Client
	group      singleflight.Group

	// Overridable for tests.
	tokenURL  string
	baseDelay time.Duration
	now       func() time.Time
}

// NewManager creates a refresh coordinator backed by store.
func NewManager(store *FileTokenStore, httpClient *http.Client) *Manager {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Manager{
		store:      store,
		httpClient: httpClient,
		tokenURL:   googleTokenURL,
		baseDelay:  retryBaseDelay,
		now:        time.Now,
	}
}

// GetValidAccessToken returns a currently-valid access token for provider.
// An empty token with a nil error means the provider is not authenticated;
// that is a status, not an error.
func (m *Manager) GetValidAccessToken(ctx context.Context, provider string) (string, error) {
	current, err := m.store.GetProviderTokens(provider)
	if err != nil {
		return "", err
	}
	if current == nil {
		return "", nil
	}

	if !IsTokenExpired(current.ExpiresAt, m.now()) {
		return current.AccessToken, nil
	}

	if current.RefreshToken == "" {
		return "", &ReauthRequiredError{Provider: provider, Reason: "no refresh token stored"}
	}

	// singleflight collapses concurrent refreshes for the same provider into
	// one upstream call; the in-flight marker is released when Do returns,
	// success or failure, so a later call can retry cleanly.
	result, err, _ := m.group.Do(provider, func() (any, error) {
		return m.refreshAndPersist(ctx, provider, current)
	})
	if err != nil {
		return "", err
	}
	return result.(*ProviderToken).AccessToken, nil
}

// refreshAndPersist refreshes the token with retry and writes the updated
// record back to the store. The original refresh token is retained; upstream
// does not reissue one on refresh.
func (m *Manager) refreshAndPersist(ctx context.Context, provider string, current *ProviderToken) (*ProviderToken, error) {
	refreshed, err := m.refreshWithRetry(ctx, provider, current.RefreshToken)
	if err != nil {
		return nil, err
	}

	updated := &ProviderToken{
		AccessToken:  refreshed.accessToken,
		RefreshToken: current.RefreshToken,
		ExpiresAt:    m.now().Add(time.Duration(refreshed.expiresIn) * time.Second).UnixMilli(),
		Email:        current.Email,
	}
	if errUpdate := m.store.UpdateProviderTokens(provider, updated); errUpdate != nil {
		return nil, errUpdate
	}
	log.Debugf("%s: access token refreshed, valid for %ds", provider, refreshed.expiresIn)
	return updated, nil
}

type refreshResult struct {
	accessToken string
	expiresIn   int64
}

// refreshWithRetry performs up to MaxRefreshRetries attempts with
// exponential backoff (1s, 2s, 4s). An invalid_grant failure is
// non-retryable: the refresh token is revoked or expired and retrying
// cannot help, so it fails immediately with ReauthRequiredError.
func (m *Manager) refreshWithRetry(ctx context.Context, provider, refreshToken string) (*refreshResult, error) {
	var lastErr error

	for attempt := 0; attempt < MaxRefreshRetries; attempt++ {
		result, err := m.refreshAccessToken(ctx, provider, refreshToken)
		if err == nil {
			return result, nil
		}
		if reauth, ok := err.(*ReauthRequiredError); ok {
			return nil, reauth
		}
		lastErr = err
		log.Debugf("%s: token refresh attempt %d/%d failed: %v", provider, attempt+1, MaxRefreshRetries, err)

		if attempt < MaxRefreshRetries-1 {
			delay := m.baseDelay << attempt
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, &MaxRetriesError{Provider: provider, Attempts: MaxRefreshRetries, Last: lastErr}
}

// refreshAccessToken performs one refresh_token grant call.
func (m *Manager) refreshAccessToken(ctx context.Context, provider, refreshToken string) (*refreshResult, error) {
	cfg, ok := Provider(provider)
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	form := url.Values{}
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", cfg.ClientID)
	form.Set("client_secret", cfg.ClientSecret)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s token refresh: create request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, errDo := m.httpClient.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("%s token refresh: execute request: %w", provider, errDo)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("%s token refresh: close body error: %v", provider, errClose)
		}
	}()

	bodyBytes, errRead := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if errRead != nil {
		return nil, fmt.Errorf("%s token refresh: read response: %w", provider, errRead)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		oauthErr := gjson.GetBytes(bodyBytes, "error").String()
		if oauthErr == "invalid_grant" {
			return nil, &ReauthRequiredError{Provider: provider, Reason: "refresh token revoked or expired"}
		}
		return nil, &TokenExchangeError{
			Provider:    provider,
			StatusCode:  resp.StatusCode,
			Code:        oauthErr,
			Description: gjson.GetBytes(bodyBytes, "error_description").String(),
		}
	}

	accessToken := gjson.GetBytes(bodyBytes, "access_token").String()
	if accessToken == "" {
		return nil, fmt.Errorf("%s token refresh: response missing access_token", provider)
	}
	return &refreshResult{
		accessToken: accessToken,
		expiresIn:   gjson.GetBytes(bodyBytes, "expires_in").Int(),
	}, nil
}
