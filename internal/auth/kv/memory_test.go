package kv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGetSet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.SetWithTTL(ctx, "session:abc", "user-1", time.Minute))

	val, err := m.Get(ctx, "session:abc")
	require.NoError(t, err)
	assert.Equal(t, "user-1", val)
}

func TestMemoryExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }

	require.NoError(t, m.SetWithTTL(ctx, "session:abc", "user-1", time.Minute))

	m.now = func() time.Time { return base.Add(2 * time.Minute) }

	_, err := m.Get(ctx, "session:abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryIncrement(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := m.Increment(ctx, "ratelimit:u:login:1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestMemoryIncrementFreshAfterExpiry(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }

	_, err := m.Increment(ctx, "ratelimit:u:login:1", time.Minute)
	require.NoError(t, err)

	m.now = func() time.Time { return base.Add(2 * time.Minute) }

	got, err := m.Increment(ctx, "ratelimit:u:login:1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got, "counter restarts once the window key expires")
}

func TestMemoryIncrementConcurrent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := m.Increment(ctx, "counter", time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := m.Increment(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(workers+1), got, "no increments may be lost")
}

func TestMemoryDeleteIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SetWithTTL(ctx, "session:abc", "user-1", time.Minute))
	require.NoError(t, m.Delete(ctx, "session:abc"))
	require.NoError(t, m.Delete(ctx, "session:abc"))

	_, err := m.Get(ctx, "session:abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySweep(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	base := time.Now()
	m.now = func() time.Time { return base }

	require.NoError(t, m.SetWithTTL(ctx, "short", "a", time.Minute))
	require.NoError(t, m.SetWithTTL(ctx, "long", "b", time.Hour))

	m.now = func() time.Time { return base.Add(10 * time.Minute) }

	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, 1, m.Len())
}
