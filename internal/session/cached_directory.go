package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

type cacheEntry struct {
	dev     *Device
	expires time.Time
}

// CachedDirectory 目录查询缓存，未知标识同样缓存（较短 TTL），
// 避免未注册设备的每一帧都打到数据库
type CachedDirectory struct {
	next        Directory
	ttl         time.Duration
	negativeTTL time.Duration
	now         func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCachedDirectory 创建缓存目录
func NewCachedDirectory(next Directory, ttl, negativeTTL time.Duration) *CachedDirectory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if negativeTTL <= 0 {
		negativeTTL = 30 * time.Second
	}
	return &CachedDirectory{
		next:        next,
		ttl:         ttl,
		negativeTTL: negativeTTL,
		now:         time.Now,
		entries:     make(map[string]cacheEntry),
	}
}

// FindDevice 实现 Directory
func (c *CachedDirectory) FindDevice(ctx context.Context, uniqueID string) (*Device, error) {
	now := c.now()
	c.mu.RLock()
	e, ok := c.entries[uniqueID]
	c.mu.RUnlock()
	if ok && now.Before(e.expires) {
		if e.dev == nil {
			return nil, ErrDeviceNotFound
		}
		d := *e.dev
		return &d, nil
	}

	dev, err := c.next.FindDevice(ctx, uniqueID)
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		c.store(uniqueID, cacheEntry{expires: now.Add(c.negativeTTL)})
		return nil, err
	case err != nil:
		return nil, err
	}
	d := *dev
	c.store(uniqueID, cacheEntry{dev: &d, expires: now.Add(c.ttl)})
	return dev, nil
}

func (c *CachedDirectory) store(key string, e cacheEntry) {
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Invalidate 移除缓存项（设备变更后调用）
func (c *CachedDirectory) Invalidate(uniqueID string) {
	c.mu.Lock()
	delete(c.entries, uniqueID)
	c.mu.Unlock()
}
