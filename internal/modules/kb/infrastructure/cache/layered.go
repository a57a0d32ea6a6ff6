package cache

import (
	"context"
	"sync/atomic"
	"time"

	"SemHub/internal/modules/kb/domain/repository"
)

// LayeredCache 两级缓存：进程内优先，未命中再查外部层；
// 外部命中会以较短 TTL 提升回进程内层。外部层可为 nil（单机部署）。
type LayeredCache struct {
	memory   *MemoryCache
	external repository.Cache

	// promotedTTL 外部命中写回内存层时使用的短 TTL
	promotedTTL time.Duration
	// externalFactor 写入外部层时 TTL 的放大倍数
	externalFactor int

	hits   uint64
	misses uint64
}

var _ repository.Cache = (*LayeredCache)(nil)

func NewLayeredCache(memory *MemoryCache, external repository.Cache, promotedTTL time.Duration) *LayeredCache {
	if promotedTTL <= 0 {
		promotedTTL = 10 * time.Minute
	}
	return &LayeredCache{
		memory:         memory,
		external:       external,
		promotedTTL:    promotedTTL,
		externalFactor: 2,
	}
}

func (c *LayeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := c.memory.Get(ctx, key); ok {
		atomic.AddUint64(&c.hits, 1)
		return v, true
	}
	if c.external != nil {
		if v, ok := c.external.Get(ctx, key); ok {
			c.memory.Set(ctx, key, v, c.promotedTTL)
			atomic.AddUint64(&c.hits, 1)
			return v, true
		}
	}
	atomic.AddUint64(&c.misses, 1)
	return nil, false
}

func (c *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	c.memory.Set(ctx, key, value, ttl)
	if c.external != nil {
		c.external.Set(ctx, key, value, ttl*time.Duration(c.externalFactor))
	}
}

func (c *LayeredCache) Invalidate(ctx context.Context, key string) {
	c.memory.Invalidate(ctx, key)
	if c.external != nil {
		c.external.Invalidate(ctx, key)
	}
}

func (c *LayeredCache) Stats() repository.CacheStats {
	mem := c.memory.Stats()
	return statsOf(atomic.LoadUint64(&c.hits), atomic.LoadUint64(&c.misses), mem.Evictions)
}
