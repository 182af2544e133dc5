package social

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/common/config"
	"github.com/crosspost-io/crosspost/internal/common/errorx"
	"github.com/crosspost-io/crosspost/internal/history"
	"github.com/crosspost-io/crosspost/internal/oauth"
	"github.com/crosspost-io/crosspost/internal/platform"
	"github.com/crosspost-io/crosspost/internal/ratelimit"
)

// fakeBroker marks a fixed set of platforms as connected.
type fakeBroker struct {
	connected map[string]bool
	revoked   []string
}

func (f *fakeBroker) GetValidTokens(ctx context.Context, platformName, userID string) (*oauth.TokenRecord, error) {
	if !f.connected[platformName] {
		return nil, nil
	}
	return &oauth.TokenRecord{
		AccessToken: "tok-" + platformName,
		ExpiresIn:   3600,
		CreatedAt:   time.Now(),
	}, nil
}

func (f *fakeBroker) RevokeAccess(ctx context.Context, platformName, userID string) *oauth.RevokeResult {
	f.revoked = append(f.revoked, platformName)
	delete(f.connected, platformName)
	return &oauth.RevokeResult{Success: true, Platform: platformName}
}

// fakeClient returns canned results and counts calls.
type fakeClient struct {
	name      string
	postCalls int
	fail      bool
}

func (f *fakeClient) Platform() string { return f.name }

func (f *fakeClient) PostContent(ctx context.Context, userID string, content platform.Content) *platform.PostResult {
	f.postCalls++
	if f.fail {
		return &platform.PostResult{Success: false, Platform: f.name, Error: "boom"}
	}
	return &platform.PostResult{
		Success:  true,
		Platform: f.name,
		PostID:   f.name + "-1",
		URL:      "https://" + f.name + ".example/1",
	}
}

func (f *fakeClient) GetAnalytics(ctx context.Context, userID, postID string) *platform.AnalyticsResult {
	return &platform.AnalyticsResult{
		Success: true, Platform: f.name, PostID: postID,
		Metrics: map[string]int64{"likes": 7},
	}
}

func (f *fakeClient) GetUserProfile(ctx context.Context, userID string) (*platform.Profile, error) {
	return &platform.Profile{Platform: f.name, ID: "id-" + f.name, Username: "user"}, nil
}

func (f *fakeClient) DeletePost(ctx context.Context, userID, postID string) error { return nil }
func (f *fakeClient) UpdatePost(ctx context.Context, userID, postID string, content platform.Content) error {
	return errorx.NewPlatformAPI(f.name, 0, "editing not supported")
}
func (f *fakeClient) TestConnection(ctx context.Context, userID string) error { return nil }

func testServer(t *testing.T, broker OAuthBroker, fail map[string]bool) (*Server, map[string]*fakeClient) {
	t.Helper()
	hist, err := history.NewStore(zap.NewNop(), &config.HistoryConfig{
		Type: "sqlite",
		DSN:  t.TempDir() + "/history.db",
	})
	require.NoError(t, err)

	clients := make(map[string]*fakeClient)
	s := NewServer(zap.NewNop(), broker, ratelimit.NewRegistry(zap.NewNop()), hist)
	s.factory = func(name string, _ *zap.Logger, _ platform.TokenSource, _ *ratelimit.Limiter, _ ...platform.Option) (platform.Client, error) {
		c := &fakeClient{name: name, fail: fail[name]}
		clients[name] = c
		return c, nil
	}
	return s, clients
}

func TestPostContentFansOut(t *testing.T) {
	broker := &fakeBroker{connected: map[string]bool{"twitter": true, "linkedin": true}}
	s, clients := testServer(t, broker, nil)

	results := s.PostContent(context.Background(), "u", []string{"twitter", "linkedin"},
		platform.Content{Text: "hello"})

	require.Len(t, results, 2)
	assert.True(t, results["twitter"].Success)
	assert.True(t, results["linkedin"].Success)
	assert.Equal(t, 1, clients["twitter"].postCalls)
	assert.Equal(t, 1, clients["linkedin"].postCalls)
}

func TestPostContentPartialFailure(t *testing.T) {
	broker := &fakeBroker{connected: map[string]bool{"twitter": true, "linkedin": true}}
	s, _ := testServer(t, broker, map[string]bool{"linkedin": true})

	results := s.PostContent(context.Background(), "u", []string{"twitter", "linkedin"},
		platform.Content{Text: "hello"})

	assert.True(t, results["twitter"].Success)
	assert.False(t, results["linkedin"].Success)
	assert.Equal(t, "boom", results["linkedin"].Error)
}

func TestPostContentRecordsHistory(t *testing.T) {
	broker := &fakeBroker{connected: map[string]bool{"twitter": true}}
	s, _ := testServer(t, broker, map[string]bool{"twitter": true})

	s.PostContent(context.Background(), "u", []string{"twitter"}, platform.Content{Text: "attempt"})

	records, err := s.RecentPosts(context.Background(), "u", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Success, "failed attempts are recorded too")
	assert.Equal(t, "attempt", records[0].Text)
	assert.Equal(t, "boom", records[0].Error)
}

func TestPostContentUnknownPlatform(t *testing.T) {
	broker := &fakeBroker{connected: map[string]bool{}}
	s := NewServer(zap.NewNop(), broker, ratelimit.NewRegistry(zap.NewNop()), nil)

	results := s.PostContent(context.Background(), "u", []string{"friendster"}, platform.Content{Text: "x"})
	require.Contains(t, results, "friendster")
	assert.False(t, results["friendster"].Success)
}

func TestStatusAggregation(t *testing.T) {
	broker := &fakeBroker{connected: map[string]bool{"twitter": true, "facebook": true}}
	s, _ := testServer(t, broker, nil)

	statuses := s.Status(context.Background(), "u", true)
	require.Len(t, statuses, len(config.SupportedPlatforms))

	byName := make(map[string]PlatformStatus)
	for _, st := range statuses {
		byName[st.Platform] = st
	}
	assert.True(t, byName["twitter"].Connected)
	require.NotNil(t, byName["twitter"].Profile)
	assert.Equal(t, "id-twitter", byName["twitter"].Profile.ID)
	assert.False(t, byName["linkedin"].Connected)
	assert.Nil(t, byName["linkedin"].Profile)
}

func TestConnectedPlatformsSorted(t *testing.T) {
	broker := &fakeBroker{connected: map[string]bool{"youtube": true, "facebook": true, "twitter": true}}
	s, _ := testServer(t, broker, nil)

	got := s.ConnectedPlatforms(context.Background(), "u")
	assert.Equal(t, []string{"facebook", "twitter", "youtube"}, got)
}

func TestDisconnect(t *testing.T) {
	broker := &fakeBroker{connected: map[string]bool{"twitter": true}}
	s, _ := testServer(t, broker, nil)

	res := s.Disconnect(context.Background(), "u", "twitter")
	assert.True(t, res.Success)
	assert.Equal(t, []string{"twitter"}, broker.revoked)
	assert.Empty(t, s.ConnectedPlatforms(context.Background(), "u"))
}

func TestGetAnalyticsAndDelete(t *testing.T) {
	broker := &fakeBroker{connected: map[string]bool{"twitter": true}}
	s, _ := testServer(t, broker, nil)

	res := s.GetAnalytics(context.Background(), "u", "twitter", "p1")
	require.True(t, res.Success)
	assert.Equal(t, int64(7), res.Metrics["likes"])

	assert.NoError(t, s.DeletePost(context.Background(), "u", "twitter", "p1"))
	assert.Error(t, s.UpdatePost(context.Background(), "u", "twitter", "p1", platform.Content{Text: "e"}))
}

func TestClientCacheReuse(t *testing.T) {
	broker := &fakeBroker{connected: map[string]bool{"twitter": true}}
	s, clients := testServer(t, broker, nil)

	s.PostContent(context.Background(), "u", []string{"twitter"}, platform.Content{Text: "one"})
	s.PostContent(context.Background(), "u", []string{"twitter"}, platform.Content{Text: "two"})

	assert.Equal(t, 2, clients["twitter"].postCalls, "same client instance serves both calls")
}
