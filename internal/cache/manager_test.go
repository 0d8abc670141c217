package cache

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/skillbridge/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	m, err := NewManager(Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return mr, m
}

func TestNewManager_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewManager(Config{Addr: addr}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}

func TestManager_SetGetDelete(t *testing.T) {
	_, m := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, m.Delete(ctx, "k"))
	_, err = m.Get(ctx, "k")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, m.Delete(ctx))
}

func TestManager_DefaultTTL(t *testing.T) {
	mr, m := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "short", "v", 10*time.Second))
	require.NoError(t, m.Set(ctx, "default", "v", 0))
	assert.Equal(t, 10*time.Second, mr.TTL("short"))
	assert.Equal(t, time.Minute, mr.TTL("default"))

	mr.FastForward(11 * time.Second)
	_, err := m.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))
	_, err = m.Get(ctx, "default")
	assert.NoError(t, err)
}

func TestManager_JSON(t *testing.T) {
	_, m := setupTestRedis(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	require.NoError(t, m.SetJSON(ctx, "j", payload{Name: "a", Count: 2}, 0))

	var got payload
	require.NoError(t, m.GetJSON(ctx, "j", &got))
	assert.Equal(t, payload{Name: "a", Count: 2}, got)

	require.NoError(t, m.Set(ctx, "bad", "{", 0))
	assert.Error(t, m.GetJSON(ctx, "bad", &got))
}

func TestManager_Closed(t *testing.T) {
	_, m := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.Get(ctx, "k")
	assert.Error(t, err)
	assert.Error(t, m.Set(ctx, "k", "v", 0))
	assert.Error(t, m.Ping(ctx))
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.DefaultRedisConfig(), time.Hour)
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, time.Hour, cfg.DefaultTTL)
	assert.Equal(t, 10, cfg.PoolSize)
}

func TestConfigFrom_TLS(t *testing.T) {
	rc := config.DefaultRedisConfig()
	assert.False(t, ConfigFrom(rc, 0).TLS)
	rc.TLS = true
	assert.True(t, ConfigFrom(rc, 0).TLS)
}
