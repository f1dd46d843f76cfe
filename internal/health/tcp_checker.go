package health

import (
	"context"
	"time"

	"github.com/taoyao-code/tracker-server/internal/netlimit"
)

// TCPServer 协议 TCP 监听器的只读视图
type TCPServer interface {
	Listening() bool
	ActiveConnections() int
	MaxConnections() int
	LimiterStats() netlimit.LimiterStats
	RateLimiterStats() *netlimit.RateLimiterStats
}

// TCPChecker 监听是否存活、设备连接数是否逼近上限
type TCPChecker struct {
	name   string
	server TCPServer
}

// NewTCPChecker name 通常为 "tcp:<协议>"
func NewTCPChecker(name string, server TCPServer) *TCPChecker {
	if name == "" {
		name = "tcp"
	}
	return &TCPChecker{name: name, server: server}
}

func (c *TCPChecker) Name() string { return c.name }

func (c *TCPChecker) Check(_ context.Context) CheckResult {
	start := time.Now()
	if !c.server.Listening() {
		return CheckResult{Status: StatusUnhealthy, Message: "listener not running", Latency: time.Since(start)}
	}

	active, max := c.server.ActiveConnections(), c.server.MaxConnections()
	r := CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: map[string]interface{}{
			"active_connections": active,
			"rejected_total":     c.server.LimiterStats().RejectedTotal,
		},
	}
	if rs := c.server.RateLimiterStats(); rs != nil {
		r.Details["accept_rate_rejected"] = rs.RejectedTotal
	}
	if max > 0 {
		used := ratio(active, max)
		r.Details["max_connections"] = max
		r.Details["utilization"] = percent(used)
		r.Status, r.Message = usageStatus(used, 0.8, 0.95, "connection limit")
	}
	r.Latency = time.Since(start)
	return r
}
