package health

import (
	"context"
	"time"
)

// UDPServer UDPChecker 依赖的监听器视图
type UDPServer interface {
	Listening() bool
	Peers() int
}

// UDPChecker UDP 监听健康检查
type UDPChecker struct {
	name   string
	server UDPServer
}

func NewUDPChecker(name string, server UDPServer) *UDPChecker {
	if name == "" {
		name = "udp"
	}
	return &UDPChecker{name: name, server: server}
}

func (c *UDPChecker) Name() string { return c.name }

func (c *UDPChecker) Check(_ context.Context) CheckResult {
	start := time.Now()
	if !c.server.Listening() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "listener not running",
			Latency: time.Since(start),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: map[string]interface{}{"peers": c.server.Peers()},
		Latency: time.Since(start),
	}
}
