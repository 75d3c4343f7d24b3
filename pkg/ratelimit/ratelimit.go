package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow 滑动窗口速率限制器
type SlidingWindow struct {
	limit      int           // 窗口内允许的次数
	windowSize time.Duration // 窗口大小
	requests   []time.Time   // 窗口内请求时间戳（升序）
	now        func() time.Time
	mu         sync.Mutex
}

// NewSlidingWindow 创建新的滑动窗口速率限制器
func NewSlidingWindow(limit int, windowSize time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:      limit,
		windowSize: windowSize,
		now:        time.Now,
	}
}

// prune 移除窗口外的请求（调用方持锁）
func (sw *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-sw.windowSize)
	i := 0
	for i < len(sw.requests) && !sw.requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		sw.requests = append(sw.requests[:0], sw.requests[i:]...)
	}
}

// Allow 检查是否允许请求，允许时记一次
func (sw *SlidingWindow) Allow() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	sw.prune(now)
	if len(sw.requests) >= sw.limit {
		return false
	}
	sw.requests = append(sw.requests, now)
	return true
}

// GetRemaining 获取剩余请求数
func (sw *SlidingWindow) GetRemaining() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.prune(sw.now())
	if r := sw.limit - len(sw.requests); r > 0 {
		return r
	}
	return 0
}

// GetResetTime 最早一条请求滑出窗口的时间
func (sw *SlidingWindow) GetResetTime() time.Time {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	now := sw.now()
	sw.prune(now)
	if len(sw.requests) == 0 {
		return now
	}
	return sw.requests[0].Add(sw.windowSize)
}

// Reset 清空窗口（如登录成功后清除失败计数）
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.requests = sw.requests[:0]
}

func (sw *SlidingWindow) idle(now time.Time) bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.prune(now)
	return len(sw.requests) == 0
}

// KeyedLimiter 按 key（如客户端 IP）分别限流
type KeyedLimiter struct {
	limit      int
	windowSize time.Duration
	now        func() time.Time

	mu       sync.Mutex
	limiters map[string]*SlidingWindow
}

// NewKeyedLimiter 创建按 key 限流器
func NewKeyedLimiter(limit int, windowSize time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		limit:      limit,
		windowSize: windowSize,
		now:        time.Now,
		limiters:   make(map[string]*SlidingWindow),
	}
}

// Get 获取（或创建）key 对应的限流器
func (k *KeyedLimiter) Get(key string) *SlidingWindow {
	k.mu.Lock()
	defer k.mu.Unlock()
	sw, ok := k.limiters[key]
	if !ok {
		sw = NewSlidingWindow(k.limit, k.windowSize)
		sw.now = k.now
		k.limiters[key] = sw
	}
	return sw
}

// Allow 检查 key 是否允许请求
func (k *KeyedLimiter) Allow(key string) bool {
	return k.Get(key).Allow()
}

// Reset 清空 key 的计数
func (k *KeyedLimiter) Reset(key string) {
	k.mu.Lock()
	sw, ok := k.limiters[key]
	k.mu.Unlock()
	if ok {
		sw.Reset()
	}
}

// Sweep 删除窗口内已无请求的 key，返回删除数量
func (k *KeyedLimiter) Sweep() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	now := k.now()
	n := 0
	for key, sw := range k.limiters {
		if sw.idle(now) {
			delete(k.limiters, key)
			n++
		}
	}
	return n
}
