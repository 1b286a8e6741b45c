package storage

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/portfolio-holdings/internal/models"
	"github.com/portfolio-holdings/internal/types"
)

// HoldingsCacheKeyPrefix namespaces holdings entries in shared stores
const HoldingsCacheKeyPrefix = "holdings"

// GenerationKeyPrefix namespaces per-owner generation counters. It must not
// share a prefix with holdings entries so owner invalidation leaves it alone.
const GenerationKeyPrefix = "holdings-gen"

// GenerationRetention is how long an owner's generation outlives its last
// invalidation before it may be forgotten and restart at zero
const GenerationRetention = 24 * time.Hour

// HoldingsCache memoizes computed holdings per owner and account scope.
// Implementations must be safe for concurrent use.
//
// Keys embed the owner's generation. Invalidate advances the generation before
// deleting entries, so a computation that read the old generation can only
// write a key no reader will ask for again, on this instance or any other
// sharing the store.
type HoldingsCache interface {
	// Generation returns the owner's current generation
	Generation(ctx context.Context, ownerID string) (uint64, error)
	// Get returns the cached holdings for key. Expired entries are misses.
	Get(ctx context.Context, key string) ([]models.Holding, bool)
	// Put stores holdings under key for ttl
	Put(ctx context.Context, key string, holdings []models.Holding, ttl time.Duration) error
	// Invalidate advances the owner's generation and drops every entry
	// belonging to ownerID regardless of TTL
	Invalidate(ctx context.Context, ownerID string) error
}

// HoldingsCacheKey builds holdings:<owner>:<generation>:<account|all>.
// Components are query-escaped so a ':' or glob character inside an id cannot
// collide with another owner's keys.
func HoldingsCacheKey(ownerID string, generation uint64, accountID *string) string {
	scope := types.AccountScopeAll
	if accountID != nil && *accountID != "" {
		scope = url.QueryEscape(*accountID)
	}
	return OwnerKeyPrefix(ownerID) + strconv.FormatUint(generation, 10) + ":" + scope
}

// OwnerKeyPrefix is the prefix shared by all of an owner's keys. It ends with
// the separator so "user1" never matches "user10".
func OwnerKeyPrefix(ownerID string) string {
	return HoldingsCacheKeyPrefix + ":" + url.QueryEscape(ownerID) + ":"
}

// GenerationKey is where a shared store keeps the owner's generation
func GenerationKey(ownerID string) string {
	return GenerationKeyPrefix + ":" + url.QueryEscape(ownerID)
}

// ownerPrefixOf returns the OwnerKeyPrefix part of a holdings key
func ownerPrefixOf(key string) string {
	rest := strings.TrimPrefix(key, HoldingsCacheKeyPrefix+":")
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		return HoldingsCacheKeyPrefix + ":" + rest[:i+1]
	}
	return key
}

type localEntry struct {
	holdings  []models.Holding
	expiresAt time.Time
}

type localGeneration struct {
	value         uint64
	invalidatedAt time.Time
}

// LocalHoldingsCache is a process-local HoldingsCache. Expired entries are
// evicted lazily on access, and a full sweep runs at most once per sweep
// interval, triggered by Get or Put. The sweep also forgets generations of
// owners with no live entries once GenerationRetention has passed.
type LocalHoldingsCache struct {
	mu            sync.Mutex
	entries       map[string]localEntry
	generations   map[string]localGeneration
	defaultTTL    time.Duration
	sweepInterval time.Duration
	lastSweep     time.Time
	now           func() time.Time
}

// NewLocalHoldingsCache creates an empty local cache. ttl is used when Put
// is called with a non-positive ttl.
func NewLocalHoldingsCache(ttl, sweepInterval time.Duration) *LocalHoldingsCache {
	return newLocalHoldingsCache(ttl, sweepInterval, time.Now)
}

func newLocalHoldingsCache(ttl, sweepInterval time.Duration, now func() time.Time) *LocalHoldingsCache {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	return &LocalHoldingsCache{
		entries:       make(map[string]localEntry),
		generations:   make(map[string]localGeneration),
		defaultTTL:    ttl,
		sweepInterval: sweepInterval,
		lastSweep:     now(),
		now:           now,
	}
}

// Generation implements HoldingsCache
func (c *LocalHoldingsCache) Generation(_ context.Context, ownerID string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[ownerID].value, nil
}

// Get implements HoldingsCache
func (c *LocalHoldingsCache) Get(_ context.Context, key string) ([]models.Holding, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.maybeSweep(now)

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !now.Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}

	out := make([]models.Holding, len(entry.holdings))
	copy(out, entry.holdings)
	return out, true
}

// Put implements HoldingsCache
func (c *LocalHoldingsCache) Put(_ context.Context, key string, holdings []models.Holding, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	stored := make([]models.Holding, len(holdings))
	copy(stored, holdings)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.maybeSweep(now)
	c.entries[key] = localEntry{holdings: stored, expiresAt: now.Add(ttl)}
	return nil
}

// Invalidate implements HoldingsCache
func (c *LocalHoldingsCache) Invalidate(_ context.Context, ownerID string) error {
	prefix := OwnerKeyPrefix(ownerID)

	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.generations[ownerID]
	c.generations[ownerID] = localGeneration{value: gen.value + 1, invalidatedAt: c.now()}

	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired or not
func (c *LocalHoldingsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// maybeSweep must be called with mu held
func (c *LocalHoldingsCache) maybeSweep(now time.Time) {
	if now.Sub(c.lastSweep) < c.sweepInterval {
		return
	}
	live := make(map[string]struct{})
	for key, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, key)
			continue
		}
		live[ownerPrefixOf(key)] = struct{}{}
	}
	for ownerID, gen := range c.generations {
		if now.Sub(gen.invalidatedAt) < GenerationRetention {
			continue
		}
		if _, ok := live[OwnerKeyPrefix(ownerID)]; !ok {
			delete(c.generations, ownerID)
		}
	}
	c.lastSweep = now
}
