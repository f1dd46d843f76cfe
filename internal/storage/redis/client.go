package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
)

// Client 定位队列、位置缓存与在线状态共用的 Redis 连接
type Client struct {
	*redis.Client
}

// PoolUsage 连接池使用情况
type PoolUsage struct {
	Total       uint32
	Idle        uint32
	Stale       uint32
	Hits        uint32
	Misses      uint32
	Timeouts    uint32
	Utilization float64
}

// NewClient 建立连接并在 dialTimeout 内完成一次 PING
func NewClient(ctx context.Context, cfg cfgpkg.RedisConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, errors.New("redis is not enabled")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return &Client{Client: rdb}, nil
}

// Close 可在 nil 上调用
func (c *Client) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	return c.Client.Close()
}

// Probe PING 一次并返回往返耗时
func (c *Client) Probe(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := c.Ping(ctx).Err()
	return time.Since(start), err
}

// Usage 连接池快照，Utilization 为已占用连接比例
func (c *Client) Usage() PoolUsage {
	st := c.PoolStats()
	u := PoolUsage{
		Total:    st.TotalConns,
		Idle:     st.IdleConns,
		Stale:    st.StaleConns,
		Hits:     st.Hits,
		Misses:   st.Misses,
		Timeouts: st.Timeouts,
	}
	if st.TotalConns > 0 {
		u.Utilization = float64(st.TotalConns-st.IdleConns) / float64(st.TotalConns)
	}
	return u
}
