package platform

import (
	"context"
	"net/http"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/common/errorx"
	"github.com/crosspost-io/crosspost/internal/ratelimit"
)

// YouTubeClient reads channel and video data via the YouTube Data API v3.
// Publishing needs the resumable upload protocol, which is not implemented;
// PostContent reports that instead of failing mid-upload.
type YouTubeClient struct {
	baseClient
	baseURL string
}

func NewYouTubeClient(logger *zap.Logger, tokens TokenSource, limiter *ratelimit.Limiter) *YouTubeClient {
	return &YouTubeClient{
		baseClient: newBaseClient("youtube", logger, tokens, limiter),
		baseURL:    "https://www.googleapis.com/youtube/v3",
	}
}

func (c *YouTubeClient) Platform() string { return "youtube" }

func (c *YouTubeClient) PostContent(ctx context.Context, userID string, content Content) *PostResult {
	return failedPost("youtube",
		errorx.NewPlatformAPI("youtube", 0, "video upload requires the resumable upload protocol, which is not implemented"))
}

func (c *YouTubeClient) GetAnalytics(ctx context.Context, userID, postID string) *AnalyticsResult {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return failedAnalytics("youtube", postID, err)
	}

	u := c.baseURL + "/videos?part=statistics&id=" + postID
	status, body, err := c.do(ctx, token, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return failedAnalytics("youtube", postID, err)
	}
	if status != http.StatusOK {
		return failedAnalytics("youtube", postID, c.apiError(status, body))
	}

	stats := gjson.GetBytes(body, "items.0.statistics")
	if !stats.Exists() {
		return failedAnalytics("youtube", postID,
			errorx.NewPlatformAPI("youtube", status, "video not found"))
	}

	return &AnalyticsResult{
		Success:  true,
		Platform: "youtube",
		PostID:   postID,
		Metrics: map[string]int64{
			"views":    stats.Get("viewCount").Int(),
			"likes":    stats.Get("likeCount").Int(),
			"comments": stats.Get("commentCount").Int(),
		},
	}
}

func (c *YouTubeClient) GetUserProfile(ctx context.Context, userID string) (*Profile, error) {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	u := c.baseURL + "/channels?part=snippet&mine=true"
	status, body, err := c.do(ctx, token, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.apiError(status, body)
	}

	channel := gjson.GetBytes(body, "items.0")
	if !channel.Exists() {
		return nil, errorx.NewPlatformAPI("youtube", status, "no channel for the authenticated account")
	}

	return &Profile{
		Platform: "youtube",
		ID:       channel.Get("id").String(),
		Name:     channel.Get("snippet.title").String(),
	}, nil
}

func (c *YouTubeClient) DeletePost(ctx context.Context, userID, postID string) error {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return err
	}

	status, body, err := c.do(ctx, token, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/videos?id="+postID, nil)
	})
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return c.apiError(status, body)
	}
	return nil
}

// UpdatePost would need a full snippet replacement including the category,
// which callers do not carry. Editing stays out of scope with uploads.
func (c *YouTubeClient) UpdatePost(ctx context.Context, userID, postID string, content Content) error {
	return errorx.NewPlatformAPI("youtube", 0, "video metadata editing is not implemented")
}

func (c *YouTubeClient) TestConnection(ctx context.Context, userID string) error {
	_, err := c.GetUserProfile(ctx, userID)
	return err
}
