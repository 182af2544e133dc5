package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/common/errorx"
	"github.com/crosspost-io/crosspost/internal/ratelimit"
)

// restliHeader is required on every LinkedIn REST call.
const restliHeader = "2.0.0"

// LinkedInClient posts UGC shares via the LinkedIn REST API.
type LinkedInClient struct {
	baseClient
	baseURL string
}

func NewLinkedInClient(logger *zap.Logger, tokens TokenSource, limiter *ratelimit.Limiter) *LinkedInClient {
	return &LinkedInClient{
		baseClient: newBaseClient("linkedin", logger, tokens, limiter),
		baseURL:    "https://api.linkedin.com/v2",
	}
}

func (c *LinkedInClient) Platform() string { return "linkedin" }

func (c *LinkedInClient) request(method, url string, body []byte) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Restli-Protocol-Version", restliHeader)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}
}

// personURN resolves the author URN for the authenticated member.
func (c *LinkedInClient) personURN(ctx context.Context, token string) (string, error) {
	status, body, err := c.do(ctx, token, c.request(http.MethodGet, c.baseURL+"/me", nil))
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", c.apiError(status, body)
	}
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", errorx.NewPlatformAPI("linkedin", status, "profile response missing member id")
	}
	return "urn:li:person:" + id, nil
}

func (c *LinkedInClient) PostContent(ctx context.Context, userID string, content Content) *PostResult {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return failedPost("linkedin", err)
	}

	author, err := c.personURN(ctx, token)
	if err != nil {
		return failedPost("linkedin", err)
	}

	text := content.Text
	if tags := splitTags(content.Tags); tags != "" {
		text = text + "\n\n" + tags
	}

	share := map[string]any{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]any{"text": text},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	payload, err := json.Marshal(share)
	if err != nil {
		return failedPost("linkedin", err)
	}

	status, body, err := c.do(ctx, token, c.request(http.MethodPost, c.baseURL+"/ugcPosts", payload))
	if err != nil {
		return failedPost("linkedin", err)
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return failedPost("linkedin", c.apiError(status, body))
	}

	id := gjson.GetBytes(body, "id").String()
	c.logger.Info("posted linkedin share", zap.String("post_id", id))
	return &PostResult{
		Success:   true,
		Platform:  "linkedin",
		PostID:    id,
		URL:       "https://www.linkedin.com/feed/update/" + id,
		CreatedAt: time.Now(),
	}
}

// GetAnalytics returns social action counts for a share. LinkedIn exposes
// likes and comments on the socialActions endpoint.
func (c *LinkedInClient) GetAnalytics(ctx context.Context, userID, postID string) *AnalyticsResult {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return failedAnalytics("linkedin", postID, err)
	}

	url := fmt.Sprintf("%s/socialActions/%s", c.baseURL, postID)
	status, body, err := c.do(ctx, token, c.request(http.MethodGet, url, nil))
	if err != nil {
		return failedAnalytics("linkedin", postID, err)
	}
	if status != http.StatusOK {
		return failedAnalytics("linkedin", postID, c.apiError(status, body))
	}

	return &AnalyticsResult{
		Success:  true,
		Platform: "linkedin",
		PostID:   postID,
		Metrics: map[string]int64{
			"likes":    gjson.GetBytes(body, "likesSummary.totalLikes").Int(),
			"comments": gjson.GetBytes(body, "commentsSummary.totalComments").Int(),
		},
	}
}

func (c *LinkedInClient) GetUserProfile(ctx context.Context, userID string) (*Profile, error) {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(ctx, token, c.request(http.MethodGet, c.baseURL+"/me", nil))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.apiError(status, body)
	}

	name := strings.TrimSpace(gjson.GetBytes(body, "localizedFirstName").String() + " " +
		gjson.GetBytes(body, "localizedLastName").String())
	return &Profile{
		Platform: "linkedin",
		ID:       gjson.GetBytes(body, "id").String(),
		Name:     name,
	}, nil
}

func (c *LinkedInClient) DeletePost(ctx context.Context, userID, postID string) error {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return err
	}

	status, body, err := c.do(ctx, token, c.request(http.MethodDelete, c.baseURL+"/ugcPosts/"+postID, nil))
	if err != nil {
		return err
	}
	if status != http.StatusNoContent && status != http.StatusOK {
		return c.apiError(status, body)
	}
	return nil
}

// UpdatePost is unsupported: published LinkedIn shares cannot be edited via
// the API.
func (c *LinkedInClient) UpdatePost(ctx context.Context, userID, postID string, content Content) error {
	return errorx.NewPlatformAPI("linkedin", 0, "linkedin posts cannot be edited after publishing")
}

func (c *LinkedInClient) TestConnection(ctx context.Context, userID string) error {
	_, err := c.GetUserProfile(ctx, userID)
	return err
}
