package cache

import (
	"context"
	"sync/atomic"
	"time"

	"SemHub/internal/modules/kb/domain/repository"
	"SemHub/pkg/zlog"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache 外部缓存层。客户端由启动阶段注入（initial.OpenRedis）。
// 缓存故障只降级不阻断：错误记日志并按未命中处理。
type RedisCache struct {
	client *goredis.Client
	prefix string

	hits      uint64
	misses    uint64
}

var _ repository.Cache = (*RedisCache)(nil)

func NewRedisCache(client *goredis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "semhub:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.client == nil {
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != goredis.Nil {
			zlog.Warn("redis cache get failed", zap.String("key", key), zap.Error(err))
		}
		atomic.AddUint64(&c.misses, 1)
		return nil, false
	}
	atomic.AddUint64(&c.hits, 1)
	return val, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c.client == nil || ttl <= 0 {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		zlog.Warn("redis cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		zlog.Warn("redis cache del failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Stats() repository.CacheStats {
	return statsOf(atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), 0)
}
