package health

import (
	"context"
	"time"

	"github.com/taoyao-code/tracker-server/internal/pipeline"
)

// PipelineChecker 存储熔断器打开时降级
type PipelineChecker struct {
	breaker *pipeline.Breaker
}

func NewPipelineChecker(breaker *pipeline.Breaker) *PipelineChecker {
	return &PipelineChecker{breaker: breaker}
}

func (c *PipelineChecker) Name() string { return "pipeline" }

func (c *PipelineChecker) Check(_ context.Context) CheckResult {
	start := time.Now()
	stats := c.breaker.Stats()

	status := StatusHealthy
	message := "ok"
	if stats.State != pipeline.StateClosed.String() {
		status = StatusDegraded
		message = "store circuit " + stats.State
	}
	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]interface{}{
			"circuit_state": stats.State,
			"trip_count":    stats.TripCount,
			"failures":      stats.FailureCount,
		},
		Latency: time.Since(start),
	}
}
