package config

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvMemoryDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []int{101, 102, 103, 104, 105}, cfg.Parking.SlotIDs)
	assert.True(t, cfg.Parking.SeedDemo)
	assert.Equal(t, time.UTC, cfg.Parking.Location)
	assert.Equal(t, LockLocal, cfg.Parking.LockDriver)
	assert.Equal(t, 5*time.Second, cfg.Parking.LockTimeout)
	assert.Equal(t, "admin@example.com", cfg.Parking.AdminEmail)
	assert.False(t, cfg.Events.Enabled)
	assert.True(t, cfg.IsDev())
}

func TestFromEnvReportsAllMissing(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_PORT", "")
	t.Setenv("DB_NAME", "")

	_, err := FromEnv()
	require.Error(t, err)
	for _, key := range []string{"JWT_SECRET", "DB_USER", "DB_HOST", "DB_PORT", "DB_NAME"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("PARKING_TIMEZONE", "Mars/Olympus")
	t.Setenv("LOCK_DRIVER", "zookeeper")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PARKING_TIMEZONE")
	assert.Contains(t, err.Error(), "LOCK_DRIVER")
}

func TestParseSlotIDs(t *testing.T) {
	ids, err := ParseSlotIDs("105, 101-103,102")
	require.NoError(t, err)
	assert.Equal(t, []int{101, 102, 103, 105}, ids)

	for _, bad := range []string{"", "abc", "10-5", "1-x"} {
		_, err := ParseSlotIDs(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 2*time.Second, cfg.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.TTL)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_TTL", "1m")

	cfg := LoadCacheConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cfg.Methods)
	assert.Equal(t, time.Minute, cfg.TTL)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	client := NewRedisClient(RedisConfig{Enabled: true, Addr: addr})
	require.NotNil(t, client)
	client.Close()

	assert.Nil(t, NewRedisClient(RedisConfig{Enabled: false, Addr: addr}))

	// unreachable once the server is gone
	mr.Close()
	assert.Nil(t, NewRedisClient(RedisConfig{Enabled: true, Addr: addr}))
}

func TestLoadRedisConfigHostPort(t *testing.T) {
	t.Setenv("REDIS_ADDR", "ignored:1")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_TLS", "1")

	cfg := LoadRedisConfig()
	assert.Equal(t, "cache:6380", cfg.Addr)
	assert.True(t, cfg.TLS)
}
