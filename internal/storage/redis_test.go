package storage

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-holdings/internal/config"
)

func setupRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cache := NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func TestNewRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cache, err := NewRedisCache(&config.RedisConfig{
		Host:           mr.Host(),
		Port:           mr.Port(),
		MaxConnections: 5,
	})
	require.NoError(t, err)
	defer func() {
		_ = cache.Close()
	}()

	assert.NoError(t, cache.Ping(testContext(t)))
}

func TestNewRedisCacheUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	host, port := mr.Host(), mr.Port()
	mr.Close()

	_, err = NewRedisCache(&config.RedisConfig{Host: host, Port: port, MaxConnections: 1})
	assert.Error(t, err)
}

func TestRedisCache_SetGetDel(t *testing.T) {
	ctx := testContext(t)
	cache, mr := setupRedisCache(t)

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), 10*time.Second))
	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
	assert.Equal(t, 10*time.Second, mr.TTL("k"))

	require.NoError(t, cache.Del(ctx, "k"))
	_, err = cache.Get(ctx, "k")
	assert.True(t, errors.Is(err, redis.Nil))

	assert.NoError(t, cache.Del(ctx), "deleting nothing is a no-op")
}

func TestRedisCache_ScanKeys(t *testing.T) {
	ctx := testContext(t)
	cache, mr := setupRedisCache(t)

	for _, k := range []string{"holdings:u1:all", "holdings:u1:acc", "holdings:u10:all", "other:u1"} {
		require.NoError(t, mr.Set(k, "x"))
	}

	keys, err := cache.ScanKeys(ctx, "holdings:u1:*")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"holdings:u1:acc", "holdings:u1:all"}, keys)
}

func TestRedisCache_Counter(t *testing.T) {
	ctx := testContext(t)
	cache, mr := setupRedisCache(t)

	_, err := cache.GetUint64(ctx, "gen:u1")
	assert.True(t, errors.Is(err, redis.Nil))

	n, err := cache.IncrWithExpiry(ctx, "gen:u1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = cache.IncrWithExpiry(ctx, "gen:u1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := cache.GetUint64(ctx, "gen:u1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got)
	assert.Equal(t, time.Hour, mr.TTL("gen:u1"))
}
