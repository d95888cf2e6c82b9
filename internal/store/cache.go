package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// StatsKey is the cache key holding the aggregate stats document.
const StatsKey = "guide:stats"

// StatsCache stores the last computed aggregate stats.
type StatsCache interface {
	// Get reports ok=false on a cache miss.
	Get(ctx context.Context) (stats Stats, ok bool, err error)
	Set(ctx context.Context, stats Stats) error
	Close() error
}

// RedisStatsCache keeps aggregate stats as a JSON document in Redis.
type RedisStatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStatsCache creates a cache backed by Redis.
func NewRedisStatsCache(addr, password string, db int, ttl time.Duration) *RedisStatsCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStatsCache{client: rdb, ttl: ttl}
}

func (c *RedisStatsCache) Get(ctx context.Context) (Stats, bool, error) {
	raw, err := c.client.Get(ctx, StatsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return Stats{}, false, nil
	}
	if err != nil {
		return Stats{}, false, fmt.Errorf("stats cache get: %w", err)
	}
	var s Stats
	if err := json.Unmarshal(raw, &s); err != nil {
		return Stats{}, false, fmt.Errorf("stats cache decode: %w", err)
	}
	return s, true, nil
}

func (c *RedisStatsCache) Set(ctx context.Context, s Stats) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, StatsKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("stats cache set: %w", err)
	}
	return nil
}

func (c *RedisStatsCache) Close() error {
	return c.client.Close()
}

// CachedFacade serves AggregateStats from a StatsCache and delegates every
// other read to the wrapped Facade. Concurrent misses share one store query.
// Cache failures fall through to the store.
type CachedFacade struct {
	Facade
	cache StatsCache
	group singleflight.Group
}

// NewCachedFacade wraps f with a stats cache.
func NewCachedFacade(f Facade, cache StatsCache) *CachedFacade {
	return &CachedFacade{Facade: f, cache: cache}
}

func (c *CachedFacade) AggregateStats(ctx context.Context) (Stats, error) {
	s, ok, err := c.cache.Get(ctx)
	if err != nil {
		slog.Warn("store: stats cache unavailable", "err", err)
	}
	if ok {
		return s, nil
	}
	// The shared read outlives any one caller; the SQL facade bounds it with
	// its own query timeout.
	flight := context.WithoutCancel(ctx)
	ch := c.group.DoChan(StatsKey, func() (any, error) {
		return c.load(flight)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Stats{}, res.Err
		}
		return res.Val.(Stats), nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// RefreshStats recomputes the aggregate stats and stores them in the cache.
func (c *CachedFacade) RefreshStats(ctx context.Context) error {
	_, err := c.load(ctx)
	return err
}

func (c *CachedFacade) load(ctx context.Context) (Stats, error) {
	s, err := c.Facade.AggregateStats(ctx)
	if err != nil {
		return Stats{}, err
	}
	if err := c.cache.Set(ctx, s); err != nil {
		slog.Warn("store: stats cache write failed", "err", err)
	}
	return s, nil
}
