package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// entry is the stored envelope. ExpiresAt is authoritative: a read at or
// after it is a miss regardless of what either tier still holds.
type entry struct {
	Payload   json.RawMessage `json:"payload"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// ResultCache memoizes provider results keyed by (input hash, page key). A
// process-local go-cache tier fronts the shared redis tier.
type ResultCache struct {
	rdb      *redis.Client
	local    *gocache.Cache
	localTTL time.Duration
	group    singleflight.Group
	now      func() time.Time
	logger   *zap.Logger
}

type Option func(*ResultCache)

func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) { c.now = now }
}

func New(rdb *redis.Client, localTTL time.Duration, logger *zap.Logger, opts ...Option) *ResultCache {
	if localTTL <= 0 {
		localTTL = 5 * time.Minute
	}
	c := &ResultCache{
		rdb:      rdb,
		local:    gocache.New(localTTL, 2*localTTL),
		localTTL: localTTL,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func cacheKey(inputHash, pageKey string) string {
	return fmt.Sprintf("cache:%s:%s", inputHash, pageKey)
}

// Get returns the cached payload for (inputHash, pageKey).
func (c *ResultCache) Get(ctx context.Context, inputHash, pageKey string) ([]byte, bool, error) {
	key := cacheKey(inputHash, pageKey)
	now := c.now()

	if x, found := c.local.Get(key); found {
		e := x.(entry)
		if now.Before(e.ExpiresAt) {
			return e.Payload, true, nil
		}
		c.local.Delete(key)
	}

	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache read %s: %w", key, err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		c.logger.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.rdb.Del(ctx, key)
		return nil, false, nil
	}
	if !now.Before(e.ExpiresAt) {
		return nil, false, nil
	}
	c.setLocal(key, e, now)
	return e.Payload, true, nil
}

// Put stores payload, which must be valid JSON, for ttl. A non-positive ttl
// removes the entry so the next read misses.
func (c *ResultCache) Put(ctx context.Context, inputHash, pageKey string, payload []byte, ttl time.Duration) error {
	key := cacheKey(inputHash, pageKey)
	if ttl <= 0 {
		c.local.Delete(key)
		return c.rdb.Del(ctx, key).Err()
	}

	now := c.now()
	e := entry{Payload: payload, ExpiresAt: now.Add(ttl)}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache write %s: %w", key, err)
	}
	c.setLocal(key, e, now)
	return nil
}

func (c *ResultCache) setLocal(key string, e entry, now time.Time) {
	ttl := e.ExpiresAt.Sub(now)
	if ttl > c.localTTL {
		ttl = c.localTTL
	}
	if ttl > 0 {
		c.local.Set(key, e, ttl)
	}
}

// Loader produces a fresh payload. keep=false returns the payload to the
// caller without storing it.
type Loader func(ctx context.Context) (payload []byte, keep bool, err error)

// GetOrLoad returns the cached payload or runs load, stores its result for
// ttl and returns it. Concurrent misses on the same key share one load.
// cached reports whether the payload came from the cache.
func (c *ResultCache) GetOrLoad(ctx context.Context, inputHash, pageKey string, ttl time.Duration, load Loader) (payload []byte, cached bool, err error) {
	payload, hit, err := c.Get(ctx, inputHash, pageKey)
	if err != nil {
		c.logger.Warn("Cache read failed, loading directly", zap.Error(err))
	}
	if hit {
		return payload, true, nil
	}

	key := cacheKey(inputHash, pageKey)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if payload, hit, _ := c.Get(ctx, inputHash, pageKey); hit {
			return payload, nil
		}
		payload, keep, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if keep {
			if err := c.Put(ctx, inputHash, pageKey, payload, ttl); err != nil {
				c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return payload, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}

// GetOrLoadJSON is GetOrLoad for values that round-trip through JSON.
func GetOrLoadJSON[T any](ctx context.Context, c *ResultCache, inputHash, pageKey string, ttl time.Duration, load func(ctx context.Context) (T, bool, error)) (T, bool, error) {
	var out T
	payload, cached, err := c.GetOrLoad(ctx, inputHash, pageKey, ttl, func(ctx context.Context) ([]byte, bool, error) {
		v, keep, err := load(ctx)
		if err != nil {
			return nil, false, err
		}
		data, err := json.Marshal(v)
		return data, keep, err
	})
	if err != nil {
		return out, false, err
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, false, fmt.Errorf("cache decode: %w", err)
	}
	return out, cached, nil
}
