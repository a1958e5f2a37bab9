package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(1, 2)
	l.nowFn = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.CheckLimit(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := l.CheckLimit(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	t.Run("keys are independent", func(t *testing.T) {
		d, err := l.CheckLimit(ctx, "user-2")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})

	t.Run("tokens refill", func(t *testing.T) {
		now = now.Add(time.Second)
		d, err := l.CheckLimit(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLimiter(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := NewRedisLimiter(client, 2, time.Minute, "test")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := l.CheckLimit(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := l.CheckLimit(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)

	t.Run("window expires", func(t *testing.T) {
		mr.FastForward(time.Minute + time.Second)
		d, err := l.CheckLimit(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	})

	t.Run("reset", func(t *testing.T) {
		require.NoError(t, l.Reset(ctx, "user-1"))
		assert.False(t, mr.Exists("test:user-1"))
	})
}

func TestRedisLimiter_ErrorWhenDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := NewRedisLimiter(client, 2, time.Minute, "")
	mr.Close()

	_, err := l.CheckLimit(context.Background(), "user-1")
	assert.Error(t, err)
}
