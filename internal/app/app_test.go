package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/config"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/internal/model"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/logger"
	"github.com/weightlossprojectionlab-admin/weightlossprojectionlab-sub013/pkg/ratelimit"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Store.Backend = "memory"
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.Backend = "local"
	cfg.RateLimit.RPS = 5
	cfg.RateLimit.Burst = 5
	cfg.Notification.Channel = "none"
	cfg.Metrics.Namespace = "test"
	return cfg
}

func TestNewInMemory(t *testing.T) {
	a, err := New(context.Background(), testConfig(), logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Redis)
	assert.IsType(t, &ratelimit.LocalLimiter{}, a.Limiter)
	assert.Empty(t, a.Checks)

	ctx := context.Background()
	require.NoError(t, a.Repos.Patients.Create(ctx, &model.Patient{ID: "kiddo", OwnerID: "owner", Name: "Kiddo"}))
	d, err := a.Guard.Authorize(ctx, &model.Principal{UserID: "owner"}, "kiddo", model.CapViewVitals)
	require.NoError(t, err)
	assert.Equal(t, "owner", d.OwnerID)
}

func TestNewWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.RateLimit.Backend = "redis"
	cfg.RateLimit.Requests = 10
	cfg.RateLimit.Window = time.Minute

	a, err := New(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Redis)
	assert.IsType(t, &ratelimit.RedisLimiter{}, a.Limiter)
	require.Contains(t, a.Checks, "redis")
	assert.NoError(t, a.Checks["redis"](context.Background()))
}

func TestNewRedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.URL = "redis://127.0.0.1:1"

	_, err := New(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}
