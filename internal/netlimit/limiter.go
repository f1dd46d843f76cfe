package netlimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrHostLimit 单个来源地址的连接数已满
var ErrHostLimit = errors.New("per-host connection limit exceeded")

// ConnectionLimiter 连接数限流器：全局信号量 + 单来源地址上限。
// 同一 NAT 出口下的设备共享来源地址，perHost 应按部署规模设置。
type ConnectionLimiter struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	maxConn int
	perHost int

	mu    sync.Mutex
	hosts map[string]int

	activeCount   atomic.Int64
	rejectedCount atomic.Int64
}

// NewConnectionLimiter 创建连接限流器
// maxConn: 最大并发连接数
// perHost: 单来源地址最大连接数，<=0 不限制
// timeout: 获取全局许可的等待时间
func NewConnectionLimiter(maxConn, perHost int, timeout time.Duration) *ConnectionLimiter {
	if maxConn <= 0 {
		maxConn = 10000
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ConnectionLimiter{
		sem:     semaphore.NewWeighted(int64(maxConn)),
		timeout: timeout,
		maxConn: maxConn,
		perHost: perHost,
		hosts:   make(map[string]int),
	}
}

// Acquire 为来源地址 host 获取连接许可；成功后必须调用 Release(host)
func (l *ConnectionLimiter) Acquire(ctx context.Context, host string) error {
	if !l.reserveHost(host) {
		l.rejectedCount.Add(1)
		return ErrHostLimit
	}

	if !l.sem.TryAcquire(1) {
		waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
		err := l.sem.Acquire(waitCtx, 1)
		cancel()
		if err != nil {
			l.releaseHost(host)
			l.rejectedCount.Add(1)
			return fmt.Errorf("connection limit exceeded: max=%d", l.maxConn)
		}
	}
	l.activeCount.Add(1)
	return nil
}

// Release 释放连接许可；多余的 Release 被忽略
func (l *ConnectionLimiter) Release(host string) {
	for {
		n := l.activeCount.Load()
		if n <= 0 {
			return
		}
		if l.activeCount.CompareAndSwap(n, n-1) {
			break
		}
	}
	l.sem.Release(1)
	l.releaseHost(host)
}

func (l *ConnectionLimiter) reserveHost(host string) bool {
	if l.perHost <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.hosts[host] >= l.perHost {
		return false
	}
	l.hosts[host]++
	return true
}

func (l *ConnectionLimiter) releaseHost(host string) {
	if l.perHost <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if n := l.hosts[host]; n <= 1 {
		delete(l.hosts, host)
	} else {
		l.hosts[host] = n - 1
	}
}

// Current 当前活跃连接数
func (l *ConnectionLimiter) Current() int {
	return int(l.activeCount.Load())
}

// MaxConnections 最大连接数
func (l *ConnectionLimiter) MaxConnections() int {
	return l.maxConn
}

// RejectedCount 被拒绝的连接数（累计）
func (l *ConnectionLimiter) RejectedCount() int64 {
	return l.rejectedCount.Load()
}

// Stats 获取统计信息
func (l *ConnectionLimiter) Stats() LimiterStats {
	l.mu.Lock()
	hosts := len(l.hosts)
	l.mu.Unlock()
	return LimiterStats{
		MaxConnections:    l.maxConn,
		ActiveConnections: l.Current(),
		ActiveHosts:       hosts,
		RejectedTotal:     l.RejectedCount(),
		Utilization:       float64(l.Current()) / float64(l.maxConn),
	}
}

// LimiterStats 限流器统计信息
type LimiterStats struct {
	MaxConnections    int     `json:"max_connections"`
	ActiveConnections int     `json:"active_connections"`
	ActiveHosts       int     `json:"active_hosts"` // 仅在启用单地址上限时统计
	RejectedTotal     int64   `json:"rejected_total"`
	Utilization       float64 `json:"utilization"` // 0.0 - 1.0
}
