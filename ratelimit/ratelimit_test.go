package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTime struct{ t time.Time }

func (f *fakeTime) now() time.Time { return f.t }

func newTestLimiter(max int) (*RateLimiter, *fakeTime) {
	ft := &fakeTime{t: time.Unix(1_700_000_000, 0)}
	rl := NewRateLimiter(&RateLimiterConfig{MaxRequests: max, WindowSize: time.Minute})
	rl.now = ft.now
	return rl, ft
}

func TestSlidingWindow(t *testing.T) {
	rl, ft := newTestLimiter(2)
	defer rl.Stop()

	assert.True(t, rl.Allow("a"))
	ft.t = ft.t.Add(30 * time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys are independent")
	assert.Equal(t, 2, rl.Count("a"))

	// the first request leaves the window, freeing one slot
	ft.t = ft.t.Add(30 * time.Second)
	assert.Equal(t, 1, rl.Count("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	rl.Reset("a")
	assert.Zero(t, rl.Count("a"))
	assert.True(t, rl.Allow("a"))
}

func TestCleanupDropsIdleKeys(t *testing.T) {
	rl, ft := newTestLimiter(1)
	defer rl.Stop()

	rl.Allow("a")
	ft.t = ft.t.Add(2 * time.Minute)
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.requests)
}

func TestStopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(&RateLimiterConfig{MaxRequests: 1, WindowSize: time.Second, CleanupInterval: time.Millisecond})
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}

func TestCallerLimiter(t *testing.T) {
	disabled := NewCallerLimiter(0)
	assert.Nil(t, disabled)
	assert.NoError(t, disabled.AllowIP("1.2.3.4"))
	assert.NoError(t, disabled.AllowCaller("0xabc"))
	disabled.Stop()

	cl := NewCallerLimiter(1)
	defer cl.Stop()

	require.NoError(t, cl.AllowIP("1.2.3.4"))
	err := cl.AllowIP("1.2.3.4")
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "ip", rle.Type)
	assert.NoError(t, cl.AllowIP("5.6.7.8"))

	// ip and caller windows are separate
	require.NoError(t, cl.AllowCaller("0xabc"))
	err = cl.AllowCaller("0xabc")
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "caller", rle.Type)
	assert.Contains(t, rle.Error(), "0xabc")

	assert.NoError(t, cl.AllowIP(""), "unknown identities are not limited")
	assert.NoError(t, cl.AllowCaller(""))
}
