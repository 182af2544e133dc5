package oauth

import (
	"github.com/crosspost-io/crosspost/internal/common/config"
)

// PlatformConfig is the static OAuth configuration for one platform, loaded
// once at manager construction and immutable for the process lifetime.
type PlatformConfig struct {
	AuthURL      string
	TokenURL     string
	RevokeURL    string // empty when the platform has no revoke endpoint
	Scopes       []string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	UsePKCE      bool
	// ExtraAuthParams are appended to the authorization URL verbatim,
	// e.g. YouTube's access_type=offline&prompt=consent.
	ExtraAuthParams map[string]string
	// BasicAuthTokenRequest sends client credentials as an HTTP Basic
	// header on the token endpoint instead of form fields (Twitter).
	BasicAuthTokenRequest bool
	// OmitSecretWithPKCE drops client_secret from the token request when a
	// code verifier is present (Twitter, YouTube forbid secret+PKCE).
	OmitSecretWithPKCE bool
	// SupportsRefresh marks platforms that can refresh tokens. Instagram
	// Basic Display cannot.
	SupportsRefresh bool
}

// buildPlatformConfigs merges the static provider endpoints with the client
// credentials from configuration.
func buildPlatformConfigs(creds config.PlatformsConfig) map[string]PlatformConfig {
	configs := map[string]PlatformConfig{
		"twitter": {
			AuthURL:               "https://twitter.com/i/oauth2/authorize",
			TokenURL:              "https://api.twitter.com/2/oauth2/token",
			RevokeURL:             "https://api.twitter.com/2/oauth2/revoke",
			Scopes:                []string{"tweet.read", "tweet.write", "users.read", "offline.access"},
			UsePKCE:               true,
			BasicAuthTokenRequest: true,
			OmitSecretWithPKCE:    true,
			SupportsRefresh:       true,
		},
		"linkedin": {
			AuthURL:         "https://www.linkedin.com/oauth/v2/authorization",
			TokenURL:        "https://www.linkedin.com/oauth/v2/accessToken",
			Scopes:          []string{"w_member_social", "r_liteprofile", "r_emailaddress"},
			SupportsRefresh: true,
		},
		"instagram": {
			AuthURL:  "https://api.instagram.com/oauth/authorize",
			TokenURL: "https://api.instagram.com/oauth/access_token",
			Scopes:   []string{"user_profile", "user_media"},
			// Basic Display issues no refresh tokens
			SupportsRefresh: false,
		},
		"facebook": {
			AuthURL:         "https://www.facebook.com/v18.0/dialog/oauth",
			TokenURL:        "https://graph.facebook.com/v18.0/oauth/access_token",
			Scopes:          []string{"pages_manage_posts", "pages_read_engagement", "pages_show_list"},
			SupportsRefresh: true,
		},
		"youtube": {
			AuthURL:   "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL:  "https://oauth2.googleapis.com/token",
			RevokeURL: "https://oauth2.googleapis.com/revoke",
			Scopes: []string{
				"https://www.googleapis.com/auth/youtube.upload",
				"https://www.googleapis.com/auth/youtube.readonly",
			},
			UsePKCE: true,
			ExtraAuthParams: map[string]string{
				"access_type": "offline",
				"prompt":      "consent",
			},
			OmitSecretWithPKCE: true,
			SupportsRefresh:    true,
		},
	}

	for name, pc := range configs {
		c := creds[name]
		pc.ClientID = c.ClientID
		pc.ClientSecret = c.ClientSecret
		pc.RedirectURI = c.RedirectURI
		configs[name] = pc
	}
	return configs
}
