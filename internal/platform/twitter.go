package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/common/errorx"
	"github.com/crosspost-io/crosspost/internal/ratelimit"
)

const tweetMaxLen = 280

// truncateTweet trims text to the tweet limit. Twitter counts characters, so
// the cut is on runes; slicing bytes would split multibyte characters.
func truncateTweet(text string) string {
	runes := []rune(text)
	if len(runes) <= tweetMaxLen {
		return text
	}
	return string(runes[:tweetMaxLen-3]) + "..."
}

// TwitterClient posts via the Twitter API v2.
type TwitterClient struct {
	baseClient
	baseURL string
}

func NewTwitterClient(logger *zap.Logger, tokens TokenSource, limiter *ratelimit.Limiter) *TwitterClient {
	return &TwitterClient{
		baseClient: newBaseClient("twitter", logger, tokens, limiter),
		baseURL:    "https://api.twitter.com/2",
	}
}

func (c *TwitterClient) Platform() string { return "twitter" }

func (c *TwitterClient) PostContent(ctx context.Context, userID string, content Content) *PostResult {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return failedPost("twitter", err)
	}

	text := content.Text
	if tags := splitTags(content.Tags); tags != "" {
		text = text + "\n\n" + tags
	}
	text = truncateTweet(text)

	id, err := c.createTweet(ctx, token, text, "")
	if err != nil {
		return failedPost("twitter", err)
	}

	c.logger.Info("posted tweet", zap.String("post_id", id))
	return &PostResult{
		Success:   true,
		Platform:  "twitter",
		PostID:    id,
		URL:       "https://twitter.com/i/web/status/" + id,
		CreatedAt: time.Now(),
	}
}

// PostThread publishes the texts as a reply chain and returns the results in
// order. Publishing stops at the first failure.
func (c *TwitterClient) PostThread(ctx context.Context, userID string, texts []string) []*PostResult {
	results := make([]*PostResult, 0, len(texts))
	var replyTo string
	for _, text := range texts {
		token, err := c.accessToken(ctx, userID)
		if err != nil {
			results = append(results, failedPost("twitter", err))
			break
		}
		id, err := c.createTweet(ctx, token, truncateTweet(text), replyTo)
		if err != nil {
			results = append(results, failedPost("twitter", err))
			break
		}
		results = append(results, &PostResult{
			Success:   true,
			Platform:  "twitter",
			PostID:    id,
			URL:       "https://twitter.com/i/web/status/" + id,
			CreatedAt: time.Now(),
		})
		replyTo = id
	}
	return results
}

func (c *TwitterClient) createTweet(ctx context.Context, token, text, replyTo string) (string, error) {
	payload := map[string]any{"text": text}
	if replyTo != "" {
		payload["reply"] = map[string]any{"in_reply_to_tweet_id": replyTo}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	status, respBody, err := c.do(ctx, token, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tweets", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return "", c.apiError(status, respBody)
	}

	id := gjson.GetBytes(respBody, "data.id").String()
	if id == "" {
		return "", errorx.NewPlatformAPI("twitter", status, "response missing tweet id")
	}
	return id, nil
}

func (c *TwitterClient) GetAnalytics(ctx context.Context, userID, postID string) *AnalyticsResult {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return failedAnalytics("twitter", postID, err)
	}

	url := fmt.Sprintf("%s/tweets/%s?tweet.fields=public_metrics", c.baseURL, postID)
	status, body, err := c.do(ctx, token, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		return failedAnalytics("twitter", postID, err)
	}
	if status != http.StatusOK {
		return failedAnalytics("twitter", postID, c.apiError(status, body))
	}

	metrics := gjson.GetBytes(body, "data.public_metrics")
	return &AnalyticsResult{
		Success:  true,
		Platform: "twitter",
		PostID:   postID,
		Metrics: map[string]int64{
			"likes":    metrics.Get("like_count").Int(),
			"retweets": metrics.Get("retweet_count").Int(),
			"replies":  metrics.Get("reply_count").Int(),
			"quotes":   metrics.Get("quote_count").Int(),
		},
	}
}

func (c *TwitterClient) GetUserProfile(ctx context.Context, userID string) (*Profile, error) {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(ctx, token, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/me", nil)
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.apiError(status, body)
	}

	data := gjson.GetBytes(body, "data")
	return &Profile{
		Platform: "twitter",
		ID:       data.Get("id").String(),
		Username: data.Get("username").String(),
		Name:     data.Get("name").String(),
	}, nil
}

func (c *TwitterClient) DeletePost(ctx context.Context, userID, postID string) error {
	token, err := c.accessToken(ctx, userID)
	if err != nil {
		return err
	}

	status, body, err := c.do(ctx, token, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/tweets/"+postID, nil)
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return c.apiError(status, body)
	}
	if !gjson.GetBytes(body, "data.deleted").Bool() {
		return errorx.NewPlatformAPI("twitter", status, "delete not confirmed")
	}
	return nil
}

// UpdatePost is unsupported: tweets cannot be edited through the v2 write
// API, only deleted and reposted.
func (c *TwitterClient) UpdatePost(ctx context.Context, userID, postID string, content Content) error {
	return errorx.NewPlatformAPI("twitter", 0, "tweets cannot be edited, delete and repost instead")
}

func (c *TwitterClient) TestConnection(ctx context.Context, userID string) error {
	_, err := c.GetUserProfile(ctx, userID)
	return err
}
