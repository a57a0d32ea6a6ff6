package repository

import (
	"context"
	"time"
)

// CacheStats 命中/未命中/淘汰计数
type CacheStats struct {
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache 分层缓存抽象。key 已经是内容寻址后的稳定哈希（见 cache.Key*）。
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
	Stats() CacheStats
}
