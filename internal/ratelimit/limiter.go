// Package ratelimit provides per-platform request pacing with a sliding
// window quota and a minimum spacing between consecutive calls.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// historyCap bounds the retained call history per limiter.
const historyCap = 1000

// Limit describes one platform's request budget.
type Limit struct {
	Requests    int           // max requests per window
	Window      time.Duration // sliding window length
	MinInterval time.Duration // minimum spacing between consecutive calls
}

// Limits is the default per-platform budget table. The values track each
// provider's published API quotas with headroom.
var Limits = map[string]Limit{
	"twitter":   {Requests: 300, Window: 900 * time.Second, MinInterval: 100 * time.Millisecond},
	"linkedin":  {Requests: 100, Window: time.Hour, MinInterval: time.Second},
	"instagram": {Requests: 200, Window: time.Hour, MinInterval: time.Second},
	"facebook":  {Requests: 200, Window: time.Hour, MinInterval: 500 * time.Millisecond},
	"youtube":   {Requests: 10000, Window: 24 * time.Hour, MinInterval: 100 * time.Millisecond},
}

// DefaultLimit applies to platforms missing from the table.
var DefaultLimit = Limit{Requests: 100, Window: time.Hour, MinInterval: time.Second}

type call struct {
	at      time.Time
	success bool
}

// Limiter paces requests for a single platform. Wait blocks until both the
// window quota and the minimum interval allow another request; the two
// delays stack when both apply.
//
// The window slice is the quota counter: it holds every request time still
// inside the sliding window and is never truncated, so quotas larger than
// historyCap stay enforced. The history ring is capped and only feeds the
// success-rate report.
type Limiter struct {
	platform string
	limit    Limit
	logger   *zap.Logger

	mu       sync.Mutex
	window   []time.Time
	history  []call
	lastCall time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a limiter for the named platform, using the default table
// when the platform has no explicit entry.
func New(logger *zap.Logger, platform string) *Limiter {
	limit, ok := Limits[platform]
	if !ok {
		limit = DefaultLimit
	}
	return &Limiter{
		platform: platform,
		limit:    limit,
		logger:   logger.Named("ratelimit"),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait blocks until a request may proceed, or returns the context error if
// cancelled first. A cancelled wait does not consume quota.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	now := l.now()
	l.prune(now)

	var windowWait time.Duration
	if len(l.window) >= l.limit.Requests {
		oldest := l.window[0]
		windowWait = oldest.Add(l.limit.Window).Sub(now)
		if windowWait < 0 {
			windowWait = 0
		}
	}

	var spacingWait time.Duration
	if !l.lastCall.IsZero() {
		next := l.lastCall.Add(l.limit.MinInterval)
		if d := next.Sub(now); d > 0 {
			spacingWait = d
		}
	}
	l.mu.Unlock()

	if windowWait > 0 {
		l.logger.Debug("window quota reached, waiting",
			zap.String("platform", l.platform),
			zap.Duration("wait", windowWait))
		if err := l.sleep(ctx, windowWait); err != nil {
			return err
		}
	}
	if spacingWait > 0 {
		if err := l.sleep(ctx, spacingWait); err != nil {
			return err
		}
	}
	return nil
}

// Record logs the outcome of a request. Only recorded calls count against
// the window quota.
func (l *Limiter) Record(success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.lastCall = now
	l.window = append(l.window, now)
	l.history = append(l.history, call{at: now, success: success})
	if len(l.history) > historyCap {
		l.history = l.history[len(l.history)-historyCap:]
	}
}

// prune drops window entries older than the window length. Caller holds
// l.mu. The history ring is left alone; Status filters it by time.
func (l *Limiter) prune(now time.Time) {
	cutoff := now.Add(-l.limit.Window)
	i := 0
	for i < len(l.window) && l.window[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		l.window = l.window[i:]
	}
}

// Status reports current utilization for the platform.
type Status struct {
	Platform       string        `json:"platform"`
	RequestsUsed   int           `json:"requests_used"`
	RequestsLimit  int           `json:"requests_limit"`
	Window         time.Duration `json:"window"`
	SuccessRate    float64       `json:"success_rate"`
	LastRequest    time.Time     `json:"last_request,omitempty"`
	NextAvailable  time.Time     `json:"next_available,omitempty"`
	WindowResetsAt time.Time     `json:"window_resets_at,omitempty"`
}

// Status returns a snapshot of quota usage and the success rate over the
// last hour of recorded calls.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	st := Status{
		Platform:      l.platform,
		RequestsUsed:  len(l.window),
		RequestsLimit: l.limit.Requests,
		Window:        l.limit.Window,
		SuccessRate:   1.0,
	}
	if !l.lastCall.IsZero() {
		st.LastRequest = l.lastCall
		st.NextAvailable = l.lastCall.Add(l.limit.MinInterval)
	}
	if len(l.window) > 0 {
		st.WindowResetsAt = l.window[0].Add(l.limit.Window)
	}

	hourAgo := now.Add(-time.Hour)
	var total, ok int
	for _, c := range l.history {
		if c.at.Before(hourAgo) {
			continue
		}
		total++
		if c.success {
			ok++
		}
	}
	if total > 0 {
		st.SuccessRate = float64(ok) / float64(total)
	}
	return st
}
