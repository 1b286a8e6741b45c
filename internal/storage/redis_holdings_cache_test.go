package storage

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-holdings/internal/logging"
)

func setupRedisHoldingsCache(t *testing.T) (*RedisHoldingsCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr:       mr.Addr(),
		MaxRetries: -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	logger := logging.NewLogger(logging.LevelError, logging.FormatJSON)
	cache := NewRedisHoldingsCache(NewRedisCacheFromClient(client), 30*time.Second, logger)
	return cache, mr
}

func TestRedisHoldingsCache_RoundTrip(t *testing.T) {
	ctx := testContext(t)
	cache, mr := setupRedisHoldingsCache(t)

	key := HoldingsCacheKey("user1", 0, nil)
	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, key, sampleHoldings("AAPL"), 0))
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 30*time.Second, mr.TTL(key))

	got, ok := cache.Get(ctx, key)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "AAPL", got[0].Symbol)
	assert.True(t, got[0].MarketValue.Equal(sampleHoldings("AAPL")[0].MarketValue))
}

func TestRedisHoldingsCache_Expiry(t *testing.T) {
	ctx := testContext(t)
	cache, mr := setupRedisHoldingsCache(t)

	key := HoldingsCacheKey("user1", 0, nil)
	require.NoError(t, cache.Put(ctx, key, sampleHoldings("AAPL"), 10*time.Second))

	mr.FastForward(11 * time.Second)

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)
}

func TestRedisHoldingsCache_InvalidateOwner(t *testing.T) {
	ctx := testContext(t)
	cache, mr := setupRedisHoldingsCache(t)
	acc := "acc-1"

	require.NoError(t, cache.Put(ctx, HoldingsCacheKey("user1", 0, nil), sampleHoldings("AAPL"), 0))
	require.NoError(t, cache.Put(ctx, HoldingsCacheKey("user1", 0, &acc), sampleHoldings("AAPL"), 0))
	require.NoError(t, cache.Put(ctx, HoldingsCacheKey("user10", 0, nil), sampleHoldings("MSFT"), 0))
	require.NoError(t, mr.Set("unrelated:user1", "x"))

	require.NoError(t, cache.Invalidate(ctx, "user1"))

	assert.False(t, mr.Exists(HoldingsCacheKey("user1", 0, nil)))
	assert.False(t, mr.Exists(HoldingsCacheKey("user1", 0, &acc)))
	assert.True(t, mr.Exists(HoldingsCacheKey("user10", 0, nil)))
	assert.True(t, mr.Exists("unrelated:user1"))

	gen, err := cache.Generation(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
	assert.Equal(t, GenerationRetention, mr.TTL(GenerationKey("user1")))
}

func TestRedisHoldingsCache_GenerationSharedAcrossInstances(t *testing.T) {
	ctx := testContext(t)
	first, mr := setupRedisHoldingsCache(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	second := NewRedisHoldingsCache(NewRedisCacheFromClient(client), 30*time.Second, logging.NewLogger(logging.LevelError, logging.FormatJSON))

	before, err := first.Generation(ctx, "user1")
	require.NoError(t, err)

	require.NoError(t, second.Invalidate(ctx, "user1"))

	// the first instance finishes a computation it started before the invalidation
	require.NoError(t, first.Put(ctx, HoldingsCacheKey("user1", before, nil), sampleHoldings("STALE"), 0))

	after, err := first.Generation(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	_, ok := second.Get(ctx, HoldingsCacheKey("user1", after, nil))
	assert.False(t, ok)
	_, ok = first.Get(ctx, HoldingsCacheKey("user1", after, nil))
	assert.False(t, ok)
}

func TestRedisHoldingsCache_InvalidateWithoutKeys(t *testing.T) {
	ctx := testContext(t)
	cache, _ := setupRedisHoldingsCache(t)

	assert.NoError(t, cache.Invalidate(ctx, "nobody"))
}

func TestRedisHoldingsCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := testContext(t)
	cache, mr := setupRedisHoldingsCache(t)

	key := HoldingsCacheKey("user1", 0, nil)
	require.NoError(t, mr.Set(key, "{not json"))

	_, ok := cache.Get(ctx, key)
	assert.False(t, ok)
}

func TestRedisHoldingsCache_UnavailableRedisDegrades(t *testing.T) {
	ctx := testContext(t)
	cache, mr := setupRedisHoldingsCache(t)
	mr.Close()

	key := HoldingsCacheKey("user1", 0, nil)
	_, ok := cache.Get(ctx, key)
	assert.False(t, ok, "read failure is a miss")

	assert.Error(t, cache.Put(ctx, key, sampleHoldings("AAPL"), 0))
	assert.Error(t, cache.Invalidate(ctx, "user1"))
	_, err := cache.Generation(ctx, "user1")
	assert.Error(t, err)
}

func TestRedisHoldingsCache_BreakerOpensAfterFailures(t *testing.T) {
	ctx := testContext(t)
	cache, mr := setupRedisHoldingsCache(t)
	mr.Close()

	for i := 0; i < 10; i++ {
		_, _ = cache.Get(ctx, HoldingsCacheKey("user1", 0, nil))
	}

	assert.Equal(t, "open", cache.BreakerState())
}
