package ratelimit

import (
	"sync"

	"go.uber.org/zap"
)

// Registry hands out one limiter per platform, created lazily. All callers
// hitting the same platform share the same budget.
type Registry struct {
	logger *zap.Logger

	mu       sync.Mutex
	limiters map[string]*Limiter
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:   logger,
		limiters: make(map[string]*Limiter),
	}
}

// Get returns the limiter for a platform, creating it on first use.
func (r *Registry) Get(platform string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[platform]
	if !ok {
		l = New(r.logger, platform)
		r.limiters[platform] = l
	}
	return l
}

// Statuses returns a snapshot for every limiter created so far.
func (r *Registry) Statuses() map[string]Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Status, len(r.limiters))
	for name, l := range r.limiters {
		out[name] = l.Status()
	}
	return out
}
