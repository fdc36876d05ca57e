package auth

import (
	"github.com/router-for-me/GroundedSearchMCP/internal/constant"
)

// Google OAuth endpoints shared by both providers.
const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v1/userinfo"
)

// ProviderConfig holds the embedded OAuth client credentials for one
// provider. These are the public client id/secret pairs shipped inside the
// first-party apps each provider impersonates; they are not secrets.
type ProviderConfig struct {
	Name         string
	DisplayName  string
	ClientID     string
	ClientSecret string
	Scopes       []string
	RedirectURI  string
}

var providerConfigs = map[string]ProviderConfig{
	constant.Gemini: {
		Name:         constant.Gemini,
		DisplayName:  "Gemini CLI",
		ClientID:     "681255809395-oo8ft2oprdrnp9e3aqf6av3hmdib135j.apps.googleusercontent.com",
		ClientSecret: "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",
		Scopes: []string{
			"https://www.googleapis.com/auth/cloud-platform",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
		},
		RedirectURI: "https://codeassist.google.com/authcode",
	},
	constant.Antigravity: {
		Name:         constant.Antigravity,
		DisplayName:  "Antigravity",
		ClientID:     "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com",
		ClientSecret: "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",
		Scopes: []string{
			"https://www.googleapis.com/auth/cloud-platform",
			"https://www.googleapis.com/auth/userinfo.email",
			"https://www.googleapis.com/auth/userinfo.profile",
			"https://www.googleapis.com/auth/cclog",
			"https://www.googleapis.com/auth/experimentsandconfigs",
		},
		RedirectURI: "https://codeassist.google.com/authcode",
	},
}

// Provider returns the OAuth configuration for the named provider.
// The second return value is false for unknown names.
func Provider(name string) (ProviderConfig, bool) {
	cfg, ok := providerConfigs[name]
	return cfg, ok
}
