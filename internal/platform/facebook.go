package platform

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/ratelimit"
)

// FacebookClient posts to the user feed via the Graph API.
type FacebookClient struct {
	baseClient
	baseURL string
}

func NewFacebookClient(logger *zap.Logger, tokens TokenSource, limiter *ratelimit.Limiter) *FacebookClient {
	return &FacebookClient{
		baseClient: newBaseClient("facebook", logger, tokens, limiter),
		baseURL:    "https://graph.facebook.com/v18.0",
	}
}

func (c *FacebookClient) Platform() string { return "facebook" }

func (c *FacebookClient) PostContent(ctx context.Context, userID string, content Content) *PostResult {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return failedPost("facebook", err)
	}

	message := content.Text
	if tags := splitTags(content.Tags); tags != "" {
		message = message + "\n\n" + tags
	}

	form := url.Values{}
	form.Set("message", message)
	if content.Link != "" {
		form.Set("link", content.Link)
	}

	status, body, err := c.do(ctx, token, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/me/feed",
			strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return failedPost("facebook", err)
	}
	if status != http.StatusOK {
		return failedPost("facebook", c.apiError(status, body))
	}

	id := gjson.GetBytes(body, "id").String()
	c.logger.Info("posted facebook feed entry", zap.String("post_id", id))
	return &PostResult{
		Success:   true,
		Platform:  "facebook",
		PostID:    id,
		URL:       "https://www.facebook.com/" + id,
		CreatedAt: time.Now(),
	}
}

func (c *FacebookClient) GetAnalytics(ctx context.Context, userID, postID string) *AnalyticsResult {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return failedAnalytics("facebook", postID, err)
	}

	u := c.baseURL + "/" + postID + "/insights?metric=post_impressions,post_engaged_users"
	status, body, err := c.do(ctx, token, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return failedAnalytics("facebook", postID, err)
	}
	if status != http.StatusOK {
		return failedAnalytics("facebook", postID, c.apiError(status, body))
	}

	metrics := make(map[string]int64)
	gjson.GetBytes(body, "data").ForEach(func(_, item gjson.Result) bool {
		name := item.Get("name").String()
		value := item.Get("values.0.value").Int()
		switch name {
		case "post_impressions":
			metrics["impressions"] = value
		case "post_engaged_users":
			metrics["engaged_users"] = value
		}
		return true
	})

	return &AnalyticsResult{
		Success:  true,
		Platform: "facebook",
		PostID:   postID,
		Metrics:  metrics,
	}
}

func (c *FacebookClient) GetUserProfile(ctx context.Context, userID string) (*Profile, error) {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(ctx, token, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me?fields=id,name", nil)
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.apiError(status, body)
	}

	return &Profile{
		Platform: "facebook",
		ID:       gjson.GetBytes(body, "id").String(),
		Name:     gjson.GetBytes(body, "name").String(),
	}, nil
}

func (c *FacebookClient) DeletePost(ctx context.Context, userID, postID string) error {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return err
	}

	status, body, err := c.do(ctx, token, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/"+postID, nil)
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return c.apiError(status, body)
	}
	return nil
}

// UpdatePost edits the post message in place. Feed posts are the one surface
// that allows edits after publishing.
func (c *FacebookClient) UpdatePost(ctx context.Context, userID, postID string, content Content) error {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set("message", content.Text)

	status, body, err := c.do(ctx, token, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+postID,
			strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return c.apiError(status, body)
	}
	return nil
}

func (c *FacebookClient) TestConnection(ctx context.Context, userID string) error {
	_, err := c.GetUserProfile(ctx, userID)
	return err
}
