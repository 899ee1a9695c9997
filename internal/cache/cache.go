// Package cache keeps artifacts read from the current snapshot in Redis. The
// whole keyspace is dropped whenever a new snapshot is published.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Voting-Pattern-Analytics/pkg/resilience"
)

const keyPrefix = "vpa:"

// Backend is satisfied by *redis.Client from pkg/redis.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// Observer receives hit/miss notifications, typically metrics.
type Observer func(kind string, hit bool)

type Cache struct {
	backend  Backend
	ttl      time.Duration
	breaker  *resilience.CircuitBreaker
	group    singleflight.Group
	observer Observer
	logger   *slog.Logger
	hits     atomic.Int64
	misses   atomic.Int64
}

// New wraps backend. Redis failures open the breaker, after which the cache
// behaves as always-miss until Redis recovers.
func New(backend Backend, ttl time.Duration, breaker *resilience.CircuitBreaker) *Cache {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{})
	}
	return &Cache{
		backend: backend,
		ttl:     ttl,
		breaker: breaker,
		logger:  slog.Default().With("component", "analytics-cache"),
	}
}

// SetObserver installs fn. Not safe to call concurrently with lookups.
func (c *Cache) SetObserver(fn Observer) {
	if c != nil {
		c.observer = fn
	}
}

// Key builds a cache key from a kind and its identifying parts.
func Key(kind string, parts ...string) string {
	return keyPrefix + kind + ":" + strings.Join(parts, ":")
}

func kindOf(key string) string {
	rest := strings.TrimPrefix(key, keyPrefix)
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		return rest[:i]
	}
	return rest
}

// get reports ok=false on a miss, a decode failure or an unavailable backend.
func (c *Cache) get(ctx context.Context, key string, dst any) bool {
	var (
		raw   []byte
		found bool
	)
	err := c.breaker.Execute(func() error {
		var err error
		raw, found, err = c.backend.Get(ctx, key)
		return err
	})
	hit := false
	switch {
	case err != nil:
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
	case !found:
	default:
		if uerr := json.Unmarshal(raw, dst); uerr != nil {
			c.logger.Error("cache unmarshal failed", "key", key, "error", uerr)
		} else {
			hit = true
		}
	}
	c.record(key, hit)
	return hit
}

func (c *Cache) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrCircuitOpen) {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *Cache) record(key string, hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if c.observer != nil {
		c.observer(kindOf(key), hit)
	}
}

// GetOrCompute returns the cached value for key or computes, stores and
// returns it. Concurrent callers for the same key share one computation. A
// nil cache always computes.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, compute func(ctx context.Context) (T, error)) (T, bool, error) {
	if c == nil {
		v, err := compute(ctx)
		return v, false, err
	}
	var cached T
	if c.get(ctx, key, &cached) {
		return cached, true, nil
	}
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		var again T
		if c.get(ctx, key, &again) {
			return again, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, v)
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	v, _ := val.(T)
	return v, false, nil
}

// Invalidate drops every cached entry.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var deleted int64
	err := c.breaker.Execute(func() error {
		n, err := c.backend.DeletePrefix(ctx, keyPrefix)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *Cache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

// BreakerState exposes the Redis breaker for health and metrics.
func (c *Cache) BreakerState() resilience.State {
	if c == nil {
		return resilience.StateClosed
	}
	return c.breaker.GetState()
}
