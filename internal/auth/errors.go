package auth

import "fmt"

// ReauthRequiredError signals that the stored refresh token is revoked,
// expired or absent. Retrying cannot help; the user must log in again.
type ReauthRequiredError struct {
	Provider string
	Reason   string
}

func (e *ReauthRequiredError) Error() string {
	return fmt.Sprintf("%s: re-authentication required: %s", e.Provider, e.Reason)
}

// TokenExchangeError carries the upstream OAuth error returned by a failed
// authorization-code exchange or refresh call.
type TokenExchangeError struct {
	Provider    string
	StatusCode  int
	Code        string
	Description string
}

func (e *TokenExchangeError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s token exchange failed (status %d): %s: %s", e.Provider, e.StatusCode, e.Code, e.Description)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s token exchange failed (status %d): %s", e.Provider, e.StatusCode, e.Code)
	}
	return fmt.Sprintf("%s token exchange failed (status %d)", e.Provider, e.StatusCode)
}

// MaxRetriesError reports that refreshWithRetry exhausted all attempts.
// The last underlying error is wrapped for diagnostics.
type MaxRetriesError struct {
	Provider string
	Attempts int
	Last     error
}

func (e *MaxRetriesError) Error() string {
	return fmt.Sprintf("%s: token refresh failed after %d attempts: %v", e.Provider, e.Attempts, e.Last)
}

func (e *MaxRetriesError) Unwrap() error {
	return e.Last
}
