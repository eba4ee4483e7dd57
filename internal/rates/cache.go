package rates

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"retreat/internal/models"
)

const cacheKey = "rates:active"

// Cache stores the active rate rows between loads.
type Cache interface {
	Get(ctx context.Context) (*models.RateRecords, bool)
	Set(ctx context.Context, rec *models.RateRecords)
	Invalidate(ctx context.Context)
}

// MemoryCache keeps rate rows in process memory.
type MemoryCache struct {
	store *gocache.Cache
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{store: gocache.New(ttl, 2*ttl)}
}

func (c *MemoryCache) Get(_ context.Context) (*models.RateRecords, bool) {
	v, ok := c.store.Get(cacheKey)
	if !ok {
		return nil, false
	}
	rec, ok := v.(*models.RateRecords)
	return rec, ok
}

func (c *MemoryCache) Set(_ context.Context, rec *models.RateRecords) {
	c.store.SetDefault(cacheKey, rec)
}

func (c *MemoryCache) Invalidate(_ context.Context) {
	c.store.Delete(cacheKey)
}

// RedisCache shares rate rows between engine instances.
type RedisCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *zerolog.Logger
}

// NewRedisCache namespaces its key with prefix.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration, logger *zerolog.Logger) *RedisCache {
	return &RedisCache{client: client, key: prefix + cacheKey, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context) (*models.RateRecords, bool) {
	val, err := c.client.Get(ctx, c.key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("rate cache read failed")
		}
		return nil, false
	}
	var rec models.RateRecords
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		c.logger.Warn().Err(err).Msg("rate cache entry is corrupt")
		return nil, false
	}
	return &rec, true
}

func (c *RedisCache) Set(ctx context.Context, rec *models.RateRecords) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("rate cache write failed")
	}
}

func (c *RedisCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("rate cache invalidate failed")
	}
}
