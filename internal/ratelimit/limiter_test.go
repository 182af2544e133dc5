package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock makes limiter timing deterministic: sleeps advance the clock
// instead of blocking.
type fakeClock struct {
	now    time.Time
	slept  []time.Duration
	cancel bool
}

func newFakeLimiter(platform string) (*Limiter, *fakeClock) {
	l := New(zap.NewNop(), platform)
	c := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	l.now = func() time.Time { return c.now }
	l.sleep = func(ctx context.Context, d time.Duration) error {
		if c.cancel {
			return context.Canceled
		}
		c.slept = append(c.slept, d)
		c.now = c.now.Add(d)
		return nil
	}
	return l, c
}

func TestWaitFirstCallImmediate(t *testing.T) {
	l, c := newFakeLimiter("twitter")
	require.NoError(t, l.Wait(context.Background()))
	assert.Empty(t, c.slept)
}

func TestWaitEnforcesMinInterval(t *testing.T) {
	l, c := newFakeLimiter("linkedin") // 1s spacing

	require.NoError(t, l.Wait(context.Background()))
	l.Record(true)

	c.now = c.now.Add(300 * time.Millisecond)
	require.NoError(t, l.Wait(context.Background()))
	require.Len(t, c.slept, 1)
	assert.Equal(t, 700*time.Millisecond, c.slept[0])
}

func TestWaitEnforcesWindowQuota(t *testing.T) {
	l, c := newFakeLimiter("linkedin") // 100 per hour

	for i := 0; i < 100; i++ {
		l.Record(true)
		c.now = c.now.Add(2 * time.Second)
	}

	start := c.now
	require.NoError(t, l.Wait(context.Background()))

	// must have waited at least until the oldest call leaves the window
	require.NotEmpty(t, c.slept)
	assert.GreaterOrEqual(t, c.now.Sub(start), 50*time.Minute)
}

func TestWaitStacksWindowAndSpacing(t *testing.T) {
	l, c := newFakeLimiter("linkedin")

	for i := 0; i < 100; i++ {
		l.Record(true)
	}

	require.NoError(t, l.Wait(context.Background()))
	assert.Len(t, c.slept, 2, "window wait and spacing wait both apply")
}

func TestWaitCancellable(t *testing.T) {
	l, c := newFakeLimiter("linkedin")
	l.Record(true)
	c.cancel = true

	err := l.Wait(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitRealContextCancel(t *testing.T) {
	l := New(zap.NewNop(), "linkedin")
	l.Record(true)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWindowReset(t *testing.T) {
	l, c := newFakeLimiter("linkedin")

	for i := 0; i < 100; i++ {
		l.Record(true)
	}
	assert.Equal(t, 100, l.Status().RequestsUsed)

	c.now = c.now.Add(time.Hour + time.Second)
	st := l.Status()
	assert.Equal(t, 0, st.RequestsUsed, "old calls fall out of the window")
}

func TestHistoryCapped(t *testing.T) {
	l, _ := newFakeLimiter("youtube") // window large enough to keep everything

	for i := 0; i < historyCap+500; i++ {
		l.Record(true)
	}

	l.mu.Lock()
	n := len(l.history)
	l.mu.Unlock()
	assert.Equal(t, historyCap, n)
}

func TestQuotaLargerThanHistoryCapStillEnforced(t *testing.T) {
	l, c := newFakeLimiter("youtube") // 10000 per 24h, well above historyCap

	for i := 0; i < 10000; i++ {
		l.Record(true)
		c.now = c.now.Add(time.Second)
	}

	st := l.Status()
	assert.Equal(t, 10000, st.RequestsUsed, "window count must not be capped with the history ring")

	require.NoError(t, l.Wait(context.Background()))
	require.NotEmpty(t, c.slept, "call over the daily quota must wait")
	assert.Equal(t, 24*time.Hour-10000*time.Second, c.slept[0])
}

func TestStatusSuccessRate(t *testing.T) {
	l, c := newFakeLimiter("twitter")

	// old failures outside the last hour are ignored
	for i := 0; i < 10; i++ {
		l.Record(false)
	}
	c.now = c.now.Add(2 * time.Hour)

	l.Record(true)
	l.Record(true)
	l.Record(false)
	l.Record(true)

	st := l.Status()
	assert.InDelta(t, 0.75, st.SuccessRate, 0.001)
}

func TestStatusEmptyLimiter(t *testing.T) {
	l, _ := newFakeLimiter("facebook")
	st := l.Status()
	assert.Equal(t, 0, st.RequestsUsed)
	assert.Equal(t, 200, st.RequestsLimit)
	assert.Equal(t, 1.0, st.SuccessRate)
}

func TestUnknownPlatformGetsDefaultLimit(t *testing.T) {
	l := New(zap.NewNop(), "mastodon")
	st := l.Status()
	assert.Equal(t, DefaultLimit.Requests, st.RequestsLimit)
	assert.Equal(t, DefaultLimit.Window, st.Window)
}

func TestRegistrySharesLimiters(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	a := r.Get("twitter")
	b := r.Get("twitter")
	assert.Same(t, a, b)

	a.Record(true)
	statuses := r.Statuses()
	require.Contains(t, statuses, "twitter")
	assert.Equal(t, 1, statuses["twitter"].RequestsUsed)
}
