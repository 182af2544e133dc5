package platform

import (
	"go.uber.org/zap"

	"github.com/crosspost-io/crosspost/internal/common/errorx"
	"github.com/crosspost-io/crosspost/internal/ratelimit"
)

// Option tweaks a client after construction.
type Option func(*baseClient)

// WithObserver attaches a call observer to the client.
func WithObserver(fn Observer) Option {
	return func(b *baseClient) { b.observe = fn }
}

// NewClient builds the client for a platform name.
func NewClient(name string, logger *zap.Logger, tokens TokenSource, limiter *ratelimit.Limiter, opts ...Option) (Client, error) {
	switch name {
	case "twitter":
		c := NewTwitterClient(logger, tokens, limiter)
		apply(&c.baseClient, opts)
		return c, nil
	case "linkedin":
		c := NewLinkedInClient(logger, tokens, limiter)
		apply(&c.baseClient, opts)
		return c, nil
	case "instagram":
		c := NewInstagramClient(logger, tokens, limiter)
		apply(&c.baseClient, opts)
		return c, nil
	case "facebook":
		c := NewFacebookClient(logger, tokens, limiter)
		apply(&c.baseClient, opts)
		return c, nil
	case "youtube":
		c := NewYouTubeClient(logger, tokens, limiter)
		apply(&c.baseClient, opts)
		return c, nil
	default:
		return nil, errorx.NewConfiguration(name, "unsupported platform")
	}
}

func apply(b *baseClient, opts []Option) {
	for _, o := range opts {
		o(b)
	}
}
