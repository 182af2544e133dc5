package errorx

import (
	"errors"
	"fmt"
)

// Kind classifies broker errors for callers that need to branch on category
// without string matching.
type Kind string

const (
	KindConfiguration Kind = "configuration"
	KindAuthorization Kind = "authorization"
	KindTokenExpired  Kind = "token_expired"
	KindRateLimited   Kind = "rate_limited"
	KindPlatformAPI   Kind = "platform_api"
	KindCrypto        Kind = "crypto"
)

// Error is the structured error carried across component boundaries.
type Error struct {
	Kind       Kind   `json:"kind"`
	Platform   string `json:"platform,omitempty"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
	// RetryAfter carries the provider's retry hint in seconds for
	// rate-limited errors.
	RetryAfter int   `json:"retry_after,omitempty"`
	Err        error `json:"-"`
}

func (e *Error) Error() string {
	if e.Platform != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Platform, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same kind, so sentinel comparisons like
// errors.Is(err, ErrUnsupportedPlatform) work across wrapped instances.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind && (other.Message == "" || other.Message == e.Message)
	}
	return false
}

var (
	// ErrUnsupportedPlatform is returned for platforms outside the
	// configuration table. Fails fast, never attempts network I/O.
	ErrUnsupportedPlatform = &Error{Kind: KindConfiguration, Message: "unsupported platform"}

	// ErrMissingCredentials is returned when a platform lacks client
	// credentials in the environment.
	ErrMissingCredentials = &Error{Kind: KindConfiguration, Message: "missing platform credentials"}

	// ErrInvalidState is returned when an OAuth callback carries a state
	// parameter with no live entry, covering replay, forgery and
	// cross-session confusion.
	ErrInvalidState = &Error{Kind: KindAuthorization, Message: "invalid or expired authorization request"}

	// ErrStateExpired is returned when the callback arrives after the
	// state's 10 minute TTL.
	ErrStateExpired = &Error{Kind: KindAuthorization, Message: "authorization request expired"}

	// ErrNotAuthenticated is returned when no valid token exists for a
	// user+platform pair.
	ErrNotAuthenticated = &Error{Kind: KindAuthorization, Message: "not authenticated"}

	// ErrCiphertextCorrupted is returned when a stored token blob cannot
	// be decrypted. Fatal for the affected token only.
	ErrCiphertextCorrupted = &Error{Kind: KindCrypto, Message: "ciphertext corrupted or key unavailable"}
)

// NewConfiguration builds a configuration error for a platform.
func NewConfiguration(platform, message string) *Error {
	return &Error{Kind: KindConfiguration, Platform: platform, Message: message}
}

// NewAuthorization builds an authorization error carrying the provider's
// reason verbatim.
func NewAuthorization(platform, message string) *Error {
	return &Error{Kind: KindAuthorization, Platform: platform, Message: message}
}

// NewRateLimited builds a retryable rate-limit error with a retry hint.
func NewRateLimited(platform string, retryAfter int) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Platform:   platform,
		Message:    "rate limit exceeded",
		RetryAfter: retryAfter,
	}
}

// NewPlatformAPI wraps a non-2xx provider response, preserving the status
// code and body for diagnostics.
func NewPlatformAPI(platform string, statusCode int, body string) *Error {
	return &Error{
		Kind:       KindPlatformAPI,
		Platform:   platform,
		Message:    fmt.Sprintf("HTTP %d: %s", statusCode, body),
		StatusCode: statusCode,
	}
}

// KindOf extracts the error kind, or empty string for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
