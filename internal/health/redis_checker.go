package health

import (
	"context"
	"fmt"

	redisstorage "github.com/taoyao-code/tracker-server/internal/storage/redis"
)

// QueueDepth Redis 定位队列长度（含死信）
type QueueDepth interface {
	Len(ctx context.Context) (int64, error)
	DeadLen(ctx context.Context) (int64, error)
}

// RedisChecker 检查 Redis 连通性、连接池，以及定位队列积压
type RedisChecker struct {
	client *redisstorage.Client
	queue  QueueDepth
}

// NewRedisChecker queue 可为空（使用内存队列时）
func NewRedisChecker(client *redisstorage.Client, queue QueueDepth) *RedisChecker {
	return &RedisChecker{client: client, queue: queue}
}

func (c *RedisChecker) Name() string { return "redis" }

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	latency, err := c.client.Probe(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: latency,
		}
	}

	usage := c.client.Usage()
	result := CheckResult{
		Details: map[string]interface{}{
			"total_conns": usage.Total,
			"idle_conns":  usage.Idle,
			"timeouts":    usage.Timeouts,
			"utilization": percent(usage.Utilization),
		},
		Latency: latency,
	}
	result.Status, result.Message = usageStatus(usage.Utilization, 0.9, 0, "connection pool")
	if result.Status == StatusHealthy && usage.Timeouts > 0 && usage.Timeouts >= usage.Hits {
		result.Status, result.Message = StatusDegraded, "connection pool timeouts"
	}

	if c.queue != nil {
		if n, err := c.queue.Len(ctx); err == nil {
			result.Details["queue_len"] = n
		}
		// 死信只上报，不影响状态
		if n, err := c.queue.DeadLen(ctx); err == nil {
			result.Details["dead_letters"] = n
		}
	}
	return result
}
