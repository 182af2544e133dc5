package config

import (
	"fmt"
	"os"
)

// PlatformCredentials holds the OAuth client credentials for one platform.
// Values normally come from environment variables, one set per platform.
type PlatformCredentials struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

// PlatformsConfig maps platform name to its OAuth client credentials.
type PlatformsConfig map[string]PlatformCredentials

// SupportedPlatforms lists the platforms this service can broker.
var SupportedPlatforms = []string{"twitter", "linkedin", "instagram", "facebook", "youtube"}

// envPrefixes maps platform name to the environment variable prefix used for
// its credentials. YouTube uses Google credentials.
var envPrefixes = map[string]string{
	"twitter":   "TWITTER",
	"linkedin":  "LINKEDIN",
	"instagram": "INSTAGRAM",
	"facebook":  "FACEBOOK",
	"youtube":   "GOOGLE",
}

func platformsFromEnv() PlatformsConfig {
	out := make(PlatformsConfig, len(SupportedPlatforms))
	for _, platform := range SupportedPlatforms {
		prefix := envPrefixes[platform]
		out[platform] = PlatformCredentials{
			ClientID:     os.Getenv(prefix + "_CLIENT_ID"),
			ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
			RedirectURI:  defaultEnv(prefix+"_REDIRECT_URI", "http://localhost:8501/oauth/"+platform+"/callback"),
		}
	}
	return out
}

func defaultEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// Validate checks that credentials exist for the given platform. A missing
// client id or secret is a configuration error, reported before any network
// I/O is attempted.
func (p PlatformsConfig) Validate(platform string) error {
	creds, ok := p[platform]
	if !ok {
		return fmt.Errorf("unsupported platform: %s", platform)
	}
	if creds.ClientID == "" || creds.ClientSecret == "" {
		prefix := envPrefixes[platform]
		return fmt.Errorf("missing OAuth credentials for %s: set %s_CLIENT_ID and %s_CLIENT_SECRET", platform, prefix, prefix)
	}
	return nil
}
