package eventconfig

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessevent"
)

// KV is the subset of *redis.Client the cache uses.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisCache fronts a Store with per-tenant, per-type flags in redis. Redis failures fall
// through to the backing store.
//
// Set drops the tenant's flags before and after writing the store. A reader that loaded
// the old value from the store before the write committed can still cache it after the
// second drop, so the TTL bounds how long a change may go unseen.
type RedisCache struct {
	next   Store
	kv     KV
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewRedisCache(next Store, kv KV, ttl time.Duration, logger *slog.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisCache{next: next, kv: kv, ttl: ttl, prefix: "eec", logger: logger}
}

func (c *RedisCache) key(tenantID, eventType string) string {
	return c.prefix + ":" + tenantID + ":" + eventType
}

func (c *RedisCache) IsEnabled(ctx context.Context, tenantID, eventType string) (bool, error) {
	key := c.key(tenantID, eventType)
	v, err := c.kv.Get(ctx, key).Result()
	switch {
	case err == nil:
		return v == "1", nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("event config cache read failed", "tenant_id", tenantID, "event_type", eventType, "err", err)
	}

	enabled, err := c.next.IsEnabled(ctx, tenantID, eventType)
	if err != nil {
		return false, err
	}
	flag := "0"
	if enabled {
		flag = "1"
	}
	if err := c.kv.Set(ctx, key, flag, c.ttl).Err(); err != nil {
		c.logger.Warn("event config cache write failed", "tenant_id", tenantID, "event_type", eventType, "err", err)
	}
	return enabled, nil
}

func (c *RedisCache) List(ctx context.Context, tenantID string) (map[string]bool, error) {
	return c.next.List(ctx, tenantID)
}

func (c *RedisCache) Set(ctx context.Context, tenantID string, changes map[string]bool) error {
	if err := c.Invalidate(ctx, tenantID); err != nil {
		c.logger.Warn("event config cache invalidation failed", "tenant_id", tenantID, "err", err)
	}
	if err := c.next.Set(ctx, tenantID, changes); err != nil {
		return err
	}
	return c.Invalidate(ctx, tenantID)
}

// Invalidate drops every cached flag of the tenant.
func (c *RedisCache) Invalidate(ctx context.Context, tenantID string) error {
	all := businessevent.All()
	keys := make([]string, 0, len(all))
	for _, d := range all {
		keys = append(keys, c.key(tenantID, d.Name()))
	}
	return c.kv.Del(ctx, keys...).Err()
}
