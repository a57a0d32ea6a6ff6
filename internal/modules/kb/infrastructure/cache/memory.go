package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"SemHub/internal/modules/kb/domain/repository"
)

type memEntry struct {
	value       []byte
	expiresAt   time.Time
	accessCount uint64
}

// MemoryCache 进程内有界缓存。
// 淘汰策略：按访问次数升序排列，淘汰最低的十分之一（访问频率近似，不是严格 LRU）。
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*memEntry

	hits      uint64
	misses    uint64
	evictions uint64
}

var _ repository.Cache = (*MemoryCache)(nil)

func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryCache{
		capacity: capacity,
		entries:  make(map[string]*memEntry, capacity),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	e.accessCount++
	c.hits++
	return e.value, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictLowestDecile()
	}
	c.entries[key] = &memEntry{value: value, expiresAt: time.Now().Add(ttl)}
}

func (c *MemoryCache) Invalidate(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *MemoryCache) Stats() repository.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return statsOf(c.hits, c.misses, c.evictions)
}

// evictLowestDecile 先清过期项，仍然满则淘汰访问次数最低的 10%（至少 1 个）。
// 调用方必须已持有 c.mu。
func (c *MemoryCache) evictLowestDecile() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			c.evictions++
		}
	}
	if len(c.entries) < c.capacity {
		return
	}

	type ranked struct {
		key   string
		count uint64
	}
	all := make([]ranked, 0, len(c.entries))
	for k, e := range c.entries {
		all = append(all, ranked{key: k, count: e.accessCount})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].count < all[j].count })

	n := len(all) / 10
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		delete(c.entries, all[i].key)
		c.evictions++
	}
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func statsOf(hits, misses, evictions uint64) repository.CacheStats {
	s := repository.CacheStats{Hits: hits, Misses: misses, Evictions: evictions}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}
