package platform

import (
	"context"
	"net/http"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/common/errorx"
	"github.com/crosspost-io/crosspost/internal/ratelimit"
)

// InstagramClient reads account data via the Basic Display API. The Basic
// Display API cannot publish, edit or delete media, so every write operation
// reports the limitation instead of attempting a call.
type InstagramClient struct {
	baseClient
	baseURL string
}

func NewInstagramClient(logger *zap.Logger, tokens TokenSource, limiter *ratelimit.Limiter) *InstagramClient {
	return &InstagramClient{
		baseClient: newBaseClient("instagram", logger, tokens, limiter),
		baseURL:    "https://graph.instagram.com",
	}
}

func (c *InstagramClient) Platform() string { return "instagram" }

func (c *InstagramClient) PostContent(ctx context.Context, userID string, content Content) *PostResult {
	return failedPost("instagram",
		errorx.NewPlatformAPI("instagram", 0, "posting requires the Instagram Graph API for business accounts, the Basic Display API is read-only"))
}

func (c *InstagramClient) GetAnalytics(ctx context.Context, userID, postID string) *AnalyticsResult {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return failedAnalytics("instagram", postID, err)
	}

	url := c.baseURL + "/" + postID + "?fields=id,media_type,like_count,comments_count"
	status, body, err := c.do(ctx, token, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		return failedAnalytics("instagram", postID, err)
	}
	if status != http.StatusOK {
		return failedAnalytics("instagram", postID, c.apiError(status, body))
	}

	return &AnalyticsResult{
		Success:  true,
		Platform: "instagram",
		PostID:   postID,
		Metrics: map[string]int64{
			"likes":    gjson.GetBytes(body, "like_count").Int(),
			"comments": gjson.GetBytes(body, "comments_count").Int(),
		},
	}
}

func (c *InstagramClient) GetUserProfile(ctx context.Context, userID string) (*Profile, error) {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	url := c.baseURL + "/me?fields=id,username,account_type"
	status, body, err := c.do(ctx, token, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.apiError(status, body)
	}

	return &Profile{
		Platform: "instagram",
		ID:       gjson.GetBytes(body, "id").String(),
		Username: gjson.GetBytes(body, "username").String(),
	}, nil
}

func (c *InstagramClient) DeletePost(ctx context.Context, userID, postID string) error {
	return errorx.NewPlatformAPI("instagram", 0, "the Basic Display API cannot delete media")
}

func (c *InstagramClient) UpdatePost(ctx context.Context, userID, postID string, content Content) error {
	return errorx.NewPlatformAPI("instagram", 0, "the Basic Display API cannot edit media")
}

func (c *InstagramClient) TestConnection(ctx context.Context, userID string) error {
	_, err := c.GetUserProfile(ctx, userID)
	return err
}
