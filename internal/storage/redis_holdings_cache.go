package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	apperrors "github.com/portfolio-holdings/internal/errors"
	"github.com/portfolio-holdings/internal/logging"
	"github.com/portfolio-holdings/internal/models"
)

// RedisHoldingsCache is a HoldingsCache shared by every instance pointed at
// the same Redis. Entries expire through native key TTLs. All calls go
// through a circuit breaker so a failing Redis degrades to cache misses.
type RedisHoldingsCache struct {
	redis      *RedisCache
	cb         *gobreaker.CircuitBreaker
	defaultTTL time.Duration
	logger     *logging.Logger
}

// NewRedisHoldingsCache wraps a Redis connection as a holdings cache
func NewRedisHoldingsCache(redisCache *RedisCache, ttl time.Duration, logger *logging.Logger) *RedisHoldingsCache {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "holdings-cache",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("cache circuit breaker state changed")
		},
	})

	return &RedisHoldingsCache{
		redis:      redisCache,
		cb:         cb,
		defaultTTL: ttl,
		logger:     logger.WithField("component", "redis_holdings_cache"),
	}
}

// Generation implements HoldingsCache. The counter lives in Redis so every
// instance sharing the store agrees on it.
func (c *RedisHoldingsCache) Generation(ctx context.Context, ownerID string) (uint64, error) {
	result, err := c.cb.Execute(func() (interface{}, error) {
		gen, err := c.redis.GetUint64(ctx, GenerationKey(ownerID))
		if errors.Is(err, redis.Nil) {
			return uint64(0), nil
		}
		return gen, err
	})
	if err != nil {
		return 0, apperrors.NewCacheError("generation", err)
	}
	return result.(uint64), nil
}

// Get implements HoldingsCache. Redis errors and open-breaker rejections are
// logged and reported as misses.
func (c *RedisHoldingsCache) Get(ctx context.Context, key string) ([]models.Holding, bool) {
	result, err := c.cb.Execute(func() (interface{}, error) {
		data, err := c.redis.Get(ctx, key)
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, nil
			}
			return nil, err
		}
		return data, nil
	})
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("holdings cache read failed")
		return nil, false
	}

	data, ok := result.([]byte)
	if !ok || data == nil {
		return nil, false
	}

	var holdings []models.Holding
	if err := json.Unmarshal(data, &holdings); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("discarding undecodable holdings cache entry")
		return nil, false
	}
	return holdings, true
}

// Put implements HoldingsCache
func (c *RedisHoldingsCache) Put(ctx context.Context, key string, holdings []models.Holding, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if holdings == nil {
		holdings = []models.Holding{}
	}

	data, err := json.Marshal(holdings)
	if err != nil {
		return fmt.Errorf("failed to marshal holdings: %w", err)
	}

	_, err = c.cb.Execute(func() (interface{}, error) {
		return nil, c.redis.Set(ctx, key, data, ttl)
	})
	if err != nil {
		return apperrors.NewCacheError("put", err)
	}
	return nil
}

// Invalidate implements HoldingsCache. The generation moves first; the SCAN
// and DEL of the owner's key prefix only reclaim space.
func (c *RedisHoldingsCache) Invalidate(ctx context.Context, ownerID string) error {
	pattern := OwnerKeyPrefix(ownerID) + "*"

	_, err := c.cb.Execute(func() (interface{}, error) {
		if _, err := c.redis.IncrWithExpiry(ctx, GenerationKey(ownerID), GenerationRetention); err != nil {
			return nil, err
		}
		keys, err := c.redis.ScanKeys(ctx, pattern)
		if err != nil {
			return nil, err
		}
		return nil, c.redis.Del(ctx, keys...)
	})
	if err != nil {
		return apperrors.NewCacheError("invalidate", err)
	}
	return nil
}

// BreakerState exposes the breaker state for health reporting
func (c *RedisHoldingsCache) BreakerState() string {
	return c.cb.State().String()
}
