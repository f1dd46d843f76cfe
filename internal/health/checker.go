package health

import (
	"context"
	"fmt"
	"time"
)

// Status 健康状态
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"  // 部分功能受损但仍可接收数据
	StatusUnhealthy Status = "unhealthy" // 无法接收或无法持久化
)

// CheckResult 健康检查结果
type CheckResult struct {
	Status  Status                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Latency time.Duration          `json:"latency"`
}

// Checker 健康检查器接口
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

type funcChecker struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

func (f funcChecker) Name() string { return f.name }

func (f funcChecker) Check(ctx context.Context) CheckResult { return f.fn(ctx) }

// CheckerFunc 以函数构造检查器
func CheckerFunc(name string, fn func(ctx context.Context) CheckResult) Checker {
	return funcChecker{name: name, fn: fn}
}

// usageStatus 按占用比例给出状态；unhealthyAt <= 0 表示不判定为不健康
func usageStatus(utilization, degradedAt, unhealthyAt float64, what string) (Status, string) {
	switch {
	case unhealthyAt > 0 && utilization >= unhealthyAt:
		return StatusUnhealthy, what + " exhausted"
	case utilization > degradedAt:
		return StatusDegraded, what + " near limit"
	}
	return StatusHealthy, "ok"
}

func ratio(used, max int) float64 {
	if max <= 0 {
		return 0
	}
	return float64(used) / float64(max)
}

func percent(v float64) string { return fmt.Sprintf("%.1f%%", v*100) }
