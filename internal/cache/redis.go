package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures the distributed decision cache.
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"keyPrefix"`
	TTL       time.Duration `yaml:"ttl"`
	OpTimeout time.Duration `yaml:"opTimeout"`
}

// DefaultRedisConfig returns sane defaults.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "broker:authz:",
		TTL:       5 * time.Minute,
		OpTimeout: 200 * time.Millisecond,
	}
}

// RedisCache implements DecisionCache on Redis so a broker fleet shares
// decisions. Redis failures degrade to cache misses; they never fail an
// authorization evaluation.
type RedisCache struct {
	client *redis.Client
	cfg    RedisConfig

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedisCache connects and verifies the server is reachable.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisCache{client: client, cfg: cfg}, nil
}

func (c *RedisCache) Get(key string) (bool, bool) {
	ctx, cancel := c.opCtx()
	defer cancel()

	val, err := c.client.Get(ctx, c.cfg.KeyPrefix+key).Result()
	if err != nil {
		c.misses.Add(1)
		return false, false
	}
	c.hits.Add(1)
	return val == "1", true
}

func (c *RedisCache) Set(key string, allowed bool) {
	ctx, cancel := c.opCtx()
	defer cancel()

	val := "0"
	if allowed {
		val = "1"
	}
	// Best effort: a failed write only costs a future recomputation.
	_ = c.client.Set(ctx, c.cfg.KeyPrefix+key, val, c.cfg.TTL).Err()
}

func (c *RedisCache) Delete(key string) {
	ctx, cancel := c.opCtx()
	defer cancel()
	_ = c.client.Del(ctx, c.cfg.KeyPrefix+key).Err()
}

func (c *RedisCache) DeletePrefix(prefix string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	iter := c.client.Scan(ctx, 0, c.cfg.KeyPrefix+prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		_ = c.client.Del(ctx, iter.Val()).Err()
	}
}

func (c *RedisCache) Clear() {
	c.DeletePrefix("")
}

func (c *RedisCache) Stats() Stats {
	stats := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}

	ctx, cancel := c.opCtx()
	defer cancel()
	if n, err := c.client.DBSize(ctx).Result(); err == nil {
		stats.Size = int(n)
	}
	return stats
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.cfg.OpTimeout)
}
