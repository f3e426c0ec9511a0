package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickqr/qrbot/internal/auth/kv"
)

func newTestLimiter(limits map[string]Limit, failOpen bool) *RateLimiter {
	return NewRateLimiter(kv.NewMemory(), limits, failOpen)
}

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	r := newTestLimiter(map[string]Limit{
		ActionLogin: {Requests: 3, Window: time.Minute},
	}, false)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.NoError(t, r.Allow(ctx, "alice", ActionLogin))
	}

	err := r.Allow(ctx, "alice", ActionLogin)
	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, ActionLogin, limited.Action)
	assert.Greater(t, limited.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, limited.RetryAfter, time.Minute)
}

func TestRateLimiterSubjectsIndependent(t *testing.T) {
	r := newTestLimiter(map[string]Limit{
		ActionLogin: {Requests: 1, Window: time.Minute},
	}, false)
	ctx := context.Background()

	require.NoError(t, r.Allow(ctx, "alice", ActionLogin))
	assert.Error(t, r.Allow(ctx, "alice", ActionLogin))

	assert.NoError(t, r.Allow(ctx, "bob", ActionLogin), "one subject's burst must not affect another")
}

func TestRateLimiterActionsIndependent(t *testing.T) {
	r := newTestLimiter(map[string]Limit{
		ActionLogin:      {Requests: 1, Window: time.Minute},
		ActionQRGenerate: {Requests: 1, Window: time.Minute},
	}, false)
	ctx := context.Background()

	require.NoError(t, r.Allow(ctx, "alice", ActionLogin))
	assert.Error(t, r.Allow(ctx, "alice", ActionLogin))

	assert.NoError(t, r.Allow(ctx, "alice", ActionQRGenerate))
}

func TestRateLimiterUnconfiguredActionPasses(t *testing.T) {
	r := newTestLimiter(map[string]Limit{}, false)

	for i := 0; i < 100; i++ {
		assert.NoError(t, r.Allow(context.Background(), "alice", "unmetered"))
	}
}

func TestRateLimiterWindowResets(t *testing.T) {
	r := newTestLimiter(map[string]Limit{
		ActionLogin: {Requests: 1, Window: time.Minute},
	}, false)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return base }

	require.NoError(t, r.Allow(ctx, "alice", ActionLogin))
	assert.Error(t, r.Allow(ctx, "alice", ActionLogin))

	// The next window has a different index, hence a different counter key.
	r.now = func() time.Time { return base.Add(time.Minute) }

	assert.NoError(t, r.Allow(ctx, "alice", ActionLogin), "a new window starts a new count")
}

func TestRateLimiterConcurrentBudget(t *testing.T) {
	r := newTestLimiter(map[string]Limit{
		ActionAPI: {Requests: 10, Window: time.Minute},
	}, false)
	ctx := context.Background()

	const attempts = 50
	var allowed int64
	var mu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			if err := r.Allow(ctx, "alice", ActionAPI); err == nil {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed, "exactly the budget gets through, no more")
}

func TestRateLimiterFailClosed(t *testing.T) {
	r := NewRateLimiter(brokenKV{}, map[string]Limit{
		ActionLogin: {Requests: 3, Window: time.Minute},
	}, false)

	err := r.Allow(context.Background(), "alice", ActionLogin)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestRateLimiterFailOpen(t *testing.T) {
	r := NewRateLimiter(brokenKV{}, map[string]Limit{
		ActionLogin: {Requests: 3, Window: time.Minute},
	}, true)

	assert.NoError(t, r.Allow(context.Background(), "alice", ActionLogin))
}
