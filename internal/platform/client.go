// Package platform implements the per-provider social media clients. Each
// client normalizes its provider's API into the shared Client interface;
// provider differences live in the concrete types, not in callers.
package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/common/errorx"
	"github.com/crosspost-io/crosspost/internal/oauth"
	"github.com/crosspost-io/crosspost/internal/ratelimit"
)

// Content is the normalized post payload shared by all platforms. Clients
// pick the fields their provider understands.
type Content struct {
	Text        string   `json:"text"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Link        string   `json:"link,omitempty"`
	MediaPaths  []string `json:"media_paths,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// PostResult is the normalized outcome of a publish attempt.
type PostResult struct {
	Success   bool      `json:"success"`
	Platform  string    `json:"platform"`
	PostID    string    `json:"post_id,omitempty"`
	URL       string    `json:"url,omitempty"`
	Error     string    `json:"error,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// AnalyticsResult carries normalized engagement metrics for one post.
type AnalyticsResult struct {
	Success  bool             `json:"success"`
	Platform string           `json:"platform"`
	PostID   string           `json:"post_id"`
	Metrics  map[string]int64 `json:"metrics,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Profile describes the authenticated account on a platform.
type Profile struct {
	Platform string `json:"platform"`
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Client is the provider-neutral surface the social layer talks to.
type Client interface {
	Platform() string
	PostContent(ctx context.Context, userID string, content Content) *PostResult
	GetAnalytics(ctx context.Context, userID, postID string) *AnalyticsResult
	GetUserProfile(ctx context.Context, userID string) (*Profile, error)
	DeletePost(ctx context.Context, userID, postID string) error
	UpdatePost(ctx context.Context, userID, postID string, content Content) error
	TestConnection(ctx context.Context, userID string) error
}

// TokenSource yields valid access tokens, refreshing as needed. A nil record
// with nil error means the user is not connected.
type TokenSource interface {
	GetValidTokens(ctx context.Context, platform, userID string) (*oauth.TokenRecord, error)
}

// Observer is notified after every completed provider API call; feeds the
// platform call metrics.
type Observer func(platform string, status int, since time.Time)

// maxRetryAfter caps how long a client honors a 429 Retry-After hint.
const maxRetryAfter = 60 * time.Second

// baseClient carries the machinery shared by all providers: rate limiting
// before each call, token lookup, and uniform HTTP error mapping.
type baseClient struct {
	platform string
	logger   *zap.Logger
	tokens   TokenSource
	limiter  *ratelimit.Limiter
	http     *http.Client
	observe  Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

func newBaseClient(platform string, logger *zap.Logger, tokens TokenSource, limiter *ratelimit.Limiter) baseClient {
	return baseClient{
		platform: platform,
		logger:   logger.Named(platform),
		tokens:   tokens,
		limiter:  limiter,
		http:     &http.Client{Timeout: 30 * time.Second},
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// accessToken waits for rate limit clearance and resolves a usable token.
// No HTTP request is made when the user has no valid tokens.
func (b *baseClient) accessToken(ctx context.Context, userID string) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}
	record, err := b.tokens.GetValidTokens(ctx, b.platform, userID)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", errorx.NewAuthorization(b.platform, "not authenticated, connect the platform first")
	}
	return record.AccessToken, nil
}

// do executes an authenticated request once and returns status plus body.
// On 429 it waits out the Retry-After hint, bounded by maxRetryAfter, then
// reports the call as rate limited so callers surface a retryable failure;
// the request is never replayed. The limiter records one outcome per HTTP
// attempt, so a request that fails to build records nothing.
func (b *baseClient) do(ctx context.Context, token string, build func(ctx context.Context) (*http.Request, error)) (int, []byte, error) {
	req, err := build(ctx)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	status, body, hint, err := b.doOnce(req)
	if err != nil {
		b.limiter.Record(false)
		return 0, nil, err
	}
	b.limiter.Record(status < 400)
	if status != http.StatusTooManyRequests {
		return status, body, nil
	}

	wait := retryAfter(hint, maxRetryAfter)
	b.logger.Warn("platform rate limited, backing off",
		zap.Duration("wait", wait))
	if err := b.sleep(ctx, wait); err != nil {
		return 0, nil, err
	}
	return status, body, errorx.NewRateLimited(b.platform, int(wait.Seconds()))
}

func (b *baseClient) doOnce(req *http.Request) (int, []byte, string, error) {
	start := time.Now()
	resp, err := b.http.Do(req)
	if err != nil {
		return 0, nil, "", fmt.Errorf("network error calling %s: %w", b.platform, err)
	}
	defer resp.Body.Close()
	if b.observe != nil {
		b.observe(b.platform, resp.StatusCode, start)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, "", err
	}
	return resp.StatusCode, body, resp.Header.Get("Retry-After"), nil
}

func retryAfter(header string, cap time.Duration) time.Duration {
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
			d := time.Duration(secs) * time.Second
			if d > cap {
				return cap
			}
			return d
		}
	}
	return 5 * time.Second
}

// apiError maps a non-2xx response to the error taxonomy.
func (b *baseClient) apiError(status int, body []byte) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errorx.NewAuthorization(b.platform, "access denied: "+truncate(string(body), 200))
	case http.StatusTooManyRequests:
		return errorx.NewRateLimited(b.platform, 0)
	default:
		return errorx.NewPlatformAPI(b.platform, status, truncate(string(body), 500))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func failedPost(platform string, err error) *PostResult {
	return &PostResult{
		Success:   false,
		Platform:  platform,
		Error:     err.Error(),
		Retryable: errorx.KindOf(err) == errorx.KindRateLimited,
	}
}

func failedAnalytics(platform, postID string, err error) *AnalyticsResult {
	return &AnalyticsResult{
		Success:  false,
		Platform: platform,
		PostID:   postID,
		Error:    err.Error(),
	}
}

func splitTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		parts = append(parts, "#"+strings.TrimPrefix(t, "#"))
	}
	return strings.Join(parts, " ")
}
