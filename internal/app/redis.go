package app

import (
	"context"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
	"github.com/taoyao-code/tracker-server/internal/health"
	"github.com/taoyao-code/tracker-server/internal/pipeline"
	redisstorage "github.com/taoyao-code/tracker-server/internal/storage/redis"
)

// NewRedisClient 未启用时返回 nil, nil
func NewRedisClient(ctx context.Context, cfg cfgpkg.RedisConfig, logger *zap.Logger) (*redisstorage.Client, error) {
	if !cfg.Enabled {
		logger.Info("redis disabled: memory queue only, no presence or location cache")
		return nil, nil
	}
	client, err := redisstorage.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("redis connected",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", cfg.PoolSize))
	return client, nil
}

// AddRedisChecker 使用 Redis 队列时一并上报队列积压
func AddRedisChecker(aggregator *health.Aggregator, client *redisstorage.Client, queue pipeline.Queue) {
	if client == nil {
		return
	}
	var depth health.QueueDepth
	if q, ok := queue.(*redisstorage.PositionQueue); ok {
		depth = q
	}
	aggregator.AddChecker(health.NewRedisChecker(client, depth))
}
