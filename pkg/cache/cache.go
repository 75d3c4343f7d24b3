package cache

import (
	"sync"
	"time"
)

// Cache 通用缓存接口
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	Clear()
	Size() int
}

// InMemoryCache 内存 TTL 缓存，过期项在读取或 Set 时惰性清理，不起后台 goroutine
type InMemoryCache[K comparable, V any] struct {
	mu         sync.RWMutex
	items      map[K]cacheItem[V]
	defaultTTL time.Duration
	now        func() time.Time
}

type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// NewInMemoryCache 创建新的内存缓存
func NewInMemoryCache[K comparable, V any](defaultTTL time.Duration) *InMemoryCache[K, V] {
	return &InMemoryCache[K, V]{
		items:      make(map[K]cacheItem[V]),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// SetClock 替换时钟（测试用）
func (c *InMemoryCache[K, V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Get 获取缓存值，过期视为不存在
func (c *InMemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	expired := ok && !c.now().Before(item.expiresAt)
	c.mu.RUnlock()

	if !ok || expired {
		if expired {
			c.Delete(key)
		}
		var zero V
		return zero, false
	}
	return item.value, true
}

// Set 设置缓存值，ttl <= 0 时使用默认 TTL
func (c *InMemoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.pruneLocked(now)
	c.items[key] = cacheItem[V]{value: value, expiresAt: now.Add(ttl)}
}

// Delete 删除缓存项
func (c *InMemoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Clear 清空缓存
func (c *InMemoryCache[K, V]) Clear() {
	c.mu.Lock()
	c.items = make(map[K]cacheItem[V])
	c.mu.Unlock()
}

// Size 获取缓存大小（含尚未清理的过期项）
func (c *InMemoryCache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *InMemoryCache[K, V]) pruneLocked(now time.Time) {
	for key, item := range c.items {
		if !now.Before(item.expiresAt) {
			delete(c.items, key)
		}
	}
}
