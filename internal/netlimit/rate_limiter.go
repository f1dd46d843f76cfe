package netlimit

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter 基于 Token Bucket 的速率限流器（TCP accept 速率）
type RateLimiter struct {
	limiter       *rate.Limiter
	allowedCount  atomic.Int64
	rejectedCount atomic.Int64
}

// NewRateLimiter 创建速率限流器
// perSec: 稳定速率；burst: 突发容量，<=0 时取速率的 2 倍
func NewRateLimiter(perSec float64, burst int) *RateLimiter {
	if perSec <= 0 {
		perSec = 100
	}
	if burst <= 0 {
		burst = int(perSec * 2)
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

// Allow 检查是否允许（非阻塞）
func (l *RateLimiter) Allow() bool {
	if l.limiter.Allow() {
		l.allowedCount.Add(1)
		return true
	}
	l.rejectedCount.Add(1)
	return false
}

// Stats 获取统计信息
func (l *RateLimiter) Stats() RateLimiterStats {
	return RateLimiterStats{
		RatePerSecond: float64(l.limiter.Limit()),
		Burst:         l.limiter.Burst(),
		AllowedTotal:  l.allowedCount.Load(),
		RejectedTotal: l.rejectedCount.Load(),
	}
}

// RateLimiterStats 速率限流器统计信息
type RateLimiterStats struct {
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`
	AllowedTotal  int64   `json:"allowed_total"`
	RejectedTotal int64   `json:"rejected_total"`
	Keys          int     `json:"keys,omitempty"`
}

type keyedEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter 按键（UDP 对端地址）独立计量的令牌桶
type KeyedRateLimiter struct {
	perSec float64
	burst  int

	mu      sync.Mutex
	entries map[string]*keyedEntry

	allowedCount  atomic.Int64
	rejectedCount atomic.Int64
	now           func() time.Time
}

// NewKeyedRateLimiter 创建按键限流器
func NewKeyedRateLimiter(perSec float64, burst int) *KeyedRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &KeyedRateLimiter{
		perSec:  perSec,
		burst:   burst,
		entries: make(map[string]*keyedEntry),
		now:     time.Now,
	}
}

// Allow 消耗 key 的一个令牌
func (l *KeyedRateLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(rate.Limit(l.perSec), l.burst)}
		l.entries[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)
	l.mu.Unlock()

	if allowed {
		l.allowedCount.Add(1)
	} else {
		l.rejectedCount.Add(1)
	}
	return allowed
}

// Sweep 清理 idle 时间内未出现的键，返回清理数量
func (l *KeyedRateLimiter) Sweep(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, e := range l.entries {
		if e.lastSeen.Before(cutoff) {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

// Stats 获取统计信息
func (l *KeyedRateLimiter) Stats() RateLimiterStats {
	l.mu.Lock()
	keys := len(l.entries)
	l.mu.Unlock()
	return RateLimiterStats{
		RatePerSecond: l.perSec,
		Burst:         l.burst,
		AllowedTotal:  l.allowedCount.Load(),
		RejectedTotal: l.rejectedCount.Load(),
		Keys:          keys,
	}
}
