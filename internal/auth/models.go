// Package auth provides OAuth2 authentication functionality for the two
// supported Google backends. It handles the complete flow: PKCE-secured
// authorization, code exchange, secure token persistence, and proactive,
// concurrency-safe token refresh.
package auth

import (
	"fmt"

	"github.com/router-for-me/GroundedSearchMCP/internal/constant"
)

// ProviderToken stores the OAuth2 token set for a single provider.
type ProviderToken struct {
	// AccessToken is the bearer token presented to the upstream API.
	AccessToken string `json:"access_token"`

	// RefreshToken, when present, allows minting new access tokens.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt is the access token expiry as Unix epoch milliseconds.
	ExpiresAt int64 `json:"expires_at"`

	// Email is the authenticated account, kept for status display.
	Email string `json:"email,omitempty"`
}

// TokenFile is the on-disk structure holding credentials for all providers
// plus the default-provider preference.
type TokenFile struct {
	Gemini          *ProviderToken `json:"gemini,omitempty"`
	Antigravity     *ProviderToken `json:"antigravity,omitempty"`
	DefaultProvider string         `json:"default_provider,omitempty"`
}

// Provider returns the token set for the named provider, or nil.
func (t *TokenFile) Provider(name string) *ProviderToken {
	switch name {
	case constant.Gemini:
		return t.Gemini
	case constant.Antigravity:
		return t.Antigravity
	}
	return nil
}

// SetProvider replaces the token set for the named provider. A nil token
// clears the slot.
func (t *TokenFile) SetProvider(name string, token *ProviderToken) {
	switch name {
	case constant.Gemini:
		t.Gemini = token
	case constant.Antigravity:
		t.Antigravity = token
	}
}

// Validate checks structural invariants of a loaded token file.
func (t *TokenFile) Validate() error {
	for _, name := range constant.Providers {
		token := t.Provider(name)
		if token == nil {
			continue
		}
		if token.AccessToken == "" {
			return fmt.Errorf("provider %s: missing access_token", name)
		}
		if token.ExpiresAt <= 0 {
			return fmt.Errorf("provider %s: missing expires_at", name)
		}
	}
	if t.DefaultProvider != "" && !constant.IsProvider(t.DefaultProvider) {
		return fmt.Errorf("default_provider %q is not a known provider", t.DefaultProvider)
	}
	return nil
}
