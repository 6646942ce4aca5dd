package utils

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheItem 包装缓存数据和过期时间
type CacheItem[V any] struct {
	Data      V
	StoredAt  time.Time
	ExpiresAt time.Time
}

// TTLCache 本地 LRU 缓存封装，每个条目带过期时间。
// 由使用方持有（不再是全局单例），生命周期跟随持有者，可随时 Clear。
type TTLCache[V any] struct {
	lruCache *lru.Cache[string, CacheItem[V]]
	now      func() time.Time
}

// NewTTLCache creates a cache holding at most size entries. A nil now uses time.Now.
func NewTTLCache[V any](size int, now func() time.Time) (*TTLCache[V], error) {
	l, err := lru.New[string, CacheItem[V]](size)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &TTLCache[V]{lruCache: l, now: now}, nil
}

// Set 设置缓存，TTL 为过期时间
func (c *TTLCache[V]) Set(key string, data V, ttl time.Duration) {
	t := c.now()
	c.lruCache.Add(key, CacheItem[V]{
		Data:      data,
		StoredAt:  t,
		ExpiresAt: t.Add(ttl),
	})
}

// Get 获取缓存，若不存在或已过期则返回 false
func (c *TTLCache[V]) Get(key string) (V, bool) {
	val, ok := c.lruCache.Get(key)
	if !ok {
		var zero V
		return zero, false
	}

	// 检查过期
	if !c.now().Before(val.ExpiresAt) {
		c.lruCache.Remove(key)
		var zero V
		return zero, false
	}

	return val.Data, true
}

// Delete 删除指定缓存
func (c *TTLCache[V]) Delete(key string) {
	c.lruCache.Remove(key)
}

// Clear 清空全部缓存
func (c *TTLCache[V]) Clear() {
	c.lruCache.Purge()
}

func (c *TTLCache[V]) Len() int {
	return c.lruCache.Len()
}
