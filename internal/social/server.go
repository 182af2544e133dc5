// Package social coordinates the per-platform clients behind one facade:
// multi-platform publishing, status aggregation, analytics and disconnects.
package social

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/common/config"
	"github.com/crosspost-io/crosspost/internal/history"
	"github.com/crosspost-io/crosspost/internal/oauth"
	"github.com/crosspost-io/crosspost/internal/platform"
	"github.com/crosspost-io/crosspost/internal/ratelimit"
)

// OAuthBroker is the slice of the OAuth manager the social layer needs.
type OAuthBroker interface {
	platform.TokenSource
	RevokeAccess(ctx context.Context, platform, userID string) *oauth.RevokeResult
}

// clientFactory builds a platform client; swapped in tests.
type clientFactory func(name string, logger *zap.Logger, tokens platform.TokenSource, limiter *ratelimit.Limiter, opts ...platform.Option) (platform.Client, error)

// Option tweaks the server at construction.
type Option func(*Server)

// WithObserver forwards every platform API call to fn, typically a metrics
// hook.
func WithObserver(fn platform.Observer) Option {
	return func(s *Server) { s.observer = fn }
}

// Server is the social media coordination layer. Clients are created lazily
// and shared: they hold no per-user state, tokens are resolved per call.
type Server struct {
	logger   *zap.Logger
	manager  OAuthBroker
	limiters *ratelimit.Registry
	history  *history.Store
	factory  clientFactory
	observer platform.Observer

	mu      sync.Mutex
	clients map[string]platform.Client
}

func NewServer(logger *zap.Logger, manager OAuthBroker, limiters *ratelimit.Registry, hist *history.Store, opts ...Option) *Server {
	s := &Server{
		logger:   logger.Named("social"),
		manager:  manager,
		limiters: limiters,
		history:  hist,
		factory:  platform.NewClient,
		clients:  make(map[string]platform.Client),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Server) client(name string) (platform.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[name]; ok {
		return c, nil
	}
	var opts []platform.Option
	if s.observer != nil {
		opts = append(opts, platform.WithObserver(s.observer))
	}
	c, err := s.factory(name, s.logger, s.manager, s.limiters.Get(name), opts...)
	if err != nil {
		return nil, err
	}
	s.clients[name] = c
	return c, nil
}

// PostContent publishes to every requested platform concurrently and
// returns one result per platform. Each attempt is recorded in history,
// success or not.
func (s *Server) PostContent(ctx context.Context, userID string, platforms []string, content platform.Content) map[string]*platform.PostResult {
	results := make(map[string]*platform.PostResult, len(platforms))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, name := range platforms {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			var res *platform.PostResult
			c, err := s.client(name)
			if err != nil {
				res = &platform.PostResult{Success: false, Platform: name, Error: err.Error()}
			} else {
				res = c.PostContent(ctx, userID, content)
			}

			s.recordResult(ctx, userID, content.Text, res)

			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

func (s *Server) recordResult(ctx context.Context, userID, text string, res *platform.PostResult) {
	if s.history == nil {
		return
	}
	err := s.history.Record(ctx, &history.PostRecord{
		UserID:     userID,
		Platform:   res.Platform,
		PlatformID: res.PostID,
		URL:        res.URL,
		Text:       text,
		Success:    res.Success,
		Error:      res.Error,
	})
	if err != nil {
		s.logger.Warn("post published but history record failed",
			zap.String("platform", res.Platform),
			zap.Error(err))
	}
}

// GetAnalytics fetches engagement metrics for one post.
func (s *Server) GetAnalytics(ctx context.Context, userID, platformName, postID string) *platform.AnalyticsResult {
	c, err := s.client(platformName)
	if err != nil {
		return &platform.AnalyticsResult{Success: false, Platform: platformName, PostID: postID, Error: err.Error()}
	}
	return c.GetAnalytics(ctx, userID, postID)
}

// DeletePost removes one post from its platform.
func (s *Server) DeletePost(ctx context.Context, userID, platformName, postID string) error {
	c, err := s.client(platformName)
	if err != nil {
		return err
	}
	return c.DeletePost(ctx, userID, postID)
}

// UpdatePost edits one post where the platform allows it.
func (s *Server) UpdatePost(ctx context.Context, userID, platformName, postID string, content platform.Content) error {
	c, err := s.client(platformName)
	if err != nil {
		return err
	}
	return c.UpdatePost(ctx, userID, postID, content)
}

// PlatformStatus is one platform's connection and quota snapshot.
type PlatformStatus struct {
	Platform  string            `json:"platform"`
	Connected bool              `json:"connected"`
	Profile   *platform.Profile `json:"profile,omitempty"`
	RateLimit ratelimit.Status  `json:"rate_limit"`
}

// Status reports connection state for every supported platform. Connection
// is judged from stored tokens, not a live API call; Profile is filled only
// for connected platforms when withProfiles is set.
func (s *Server) Status(ctx context.Context, userID string, withProfiles bool) []PlatformStatus {
	out := make([]PlatformStatus, 0, len(config.SupportedPlatforms))
	for _, name := range config.SupportedPlatforms {
		st := PlatformStatus{
			Platform:  name,
			RateLimit: s.limiters.Get(name).Status(),
		}
		record, err := s.manager.GetValidTokens(ctx, name, userID)
		st.Connected = err == nil && record != nil

		if st.Connected && withProfiles {
			if c, err := s.client(name); err == nil {
				if p, err := c.GetUserProfile(ctx, userID); err == nil {
					st.Profile = p
				}
			}
		}
		out = append(out, st)
	}
	return out
}

// ConnectedPlatforms lists platforms with usable tokens, sorted by name.
func (s *Server) ConnectedPlatforms(ctx context.Context, userID string) []string {
	var out []string
	for _, name := range config.SupportedPlatforms {
		if record, err := s.manager.GetValidTokens(ctx, name, userID); err == nil && record != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Disconnect revokes and deletes tokens for one platform.
func (s *Server) Disconnect(ctx context.Context, userID, platformName string) *oauth.RevokeResult {
	return s.manager.RevokeAccess(ctx, platformName, userID)
}

// RecentPosts returns the user's publish history, newest first.
func (s *Server) RecentPosts(ctx context.Context, userID string, limit int) ([]history.PostRecord, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.Recent(ctx, userID, limit)
}
