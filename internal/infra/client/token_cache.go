package client

import (
	"context"
	"encoding/json"
	"time"

	red "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/cache"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/port"
)

// tokenSafetyMargin is subtracted from the advertised expiry so a token is
// never presented right as it lapses.
const tokenSafetyMargin = 5 * time.Minute

const tokenKey = "sirene:token"

// usableFor returns how long t may still be presented, zero if no longer.
func usableFor(t port.Token, now time.Time) time.Duration {
	d := t.ExpiresAt.Add(-tokenSafetyMargin).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// MemoryTokenCache keeps the registry token in process memory.
type MemoryTokenCache struct {
	items *cache.InMemory[port.Token]
}

// NewMemoryTokenCache creates a process-local token cache.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{items: cache.New[port.Token](time.Hour)}
}

// Get returns the cached token while it is still usable.
func (c *MemoryTokenCache) Get(_ context.Context) (*port.Token, bool) {
	t, ok := c.items.Get(tokenKey)
	if !ok || usableFor(t, time.Now()) <= 0 {
		return nil, false
	}
	return &t, true
}

// Set stores the token until its usable lifetime ends.
func (c *MemoryTokenCache) Set(_ context.Context, t port.Token) {
	c.items.SetWithTTL(tokenKey, t, usableFor(t, time.Now()))
}

// Invalidate drops the cached token.
func (c *MemoryTokenCache) Invalidate(_ context.Context) {
	c.items.Delete(tokenKey)
}

// Close releases the cache cleanup goroutine.
func (c *MemoryTokenCache) Close() {
	c.items.Close()
}

// RedisTokenCache shares the registry token between replicas. Redis errors
// degrade to a cache miss; the rate limiter stays per-process either way.
type RedisTokenCache struct {
	client *red.Client
	key    string
	logger *zap.Logger
}

// NewRedisTokenCache creates a Redis-backed token cache.
func NewRedisTokenCache(client *red.Client, logger *zap.Logger) *RedisTokenCache {
	return &RedisTokenCache{client: client, key: tokenKey, logger: logger}
}

// Get returns the cached token while it is still usable.
func (c *RedisTokenCache) Get(ctx context.Context) (*port.Token, bool) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if err != red.Nil {
			c.logger.Warn("token cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var t port.Token
	if err := json.Unmarshal(raw, &t); err != nil {
		c.logger.Warn("token cache entry corrupted", zap.Error(err))
		return nil, false
	}
	if usableFor(t, time.Now()) <= 0 {
		return nil, false
	}
	return &t, true
}

// Set stores the token with a TTL matching its usable lifetime.
func (c *RedisTokenCache) Set(ctx context.Context, t port.Token) {
	ttl := usableFor(t, time.Now())
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(t)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key, raw, ttl).Err(); err != nil {
		c.logger.Warn("token cache write failed", zap.Error(err))
	}
}

// Invalidate drops the cached token.
func (c *RedisTokenCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		c.logger.Warn("token cache invalidate failed", zap.Error(err))
	}
}
