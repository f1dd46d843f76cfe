package app

import (
	"fmt"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
	"github.com/taoyao-code/tracker-server/internal/metrics"
	"github.com/taoyao-code/tracker-server/internal/pipeline"
	"github.com/taoyao-code/tracker-server/internal/storage"
	redisstorage "github.com/taoyao-code/tracker-server/internal/storage/redis"
)

// NewQueue 按 pipeline.queue 选择内存或 Redis 队列
func NewQueue(cfg cfgpkg.PipelineConfig, redisClient *redisstorage.Client) (pipeline.Queue, error) {
	switch cfg.Queue {
	case "memory":
		return pipeline.NewMemoryQueue(cfg.Buffer), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("pipeline.queue=redis requires redis.enabled")
		}
		return redisstorage.NewPositionQueue(redisClient, cfg.QueueKey), nil
	default:
		return nil, fmt.Errorf("unknown pipeline.queue %q", cfg.Queue)
	}
}

// NewPipeline 组装入库流水线；cache、toucher 可为空
func NewPipeline(cfg cfgpkg.PipelineConfig, queue pipeline.Queue, store storage.PositionStore,
	cache pipeline.LocationUpdater, toucher pipeline.DeviceToucher, appm *metrics.AppMetrics, logger *zap.Logger,
) *pipeline.Pipeline {
	breaker := pipeline.NewBreaker(cfg.BreakerThreshold, cfg.BreakerTimeout)
	p := pipeline.New(queue, store, breaker, pipeline.Options{
		Workers:       cfg.Workers,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, appm, logger.Named("pipeline"))
	breaker.SetStateChangeCallback(func(from, to pipeline.State) {
		logger.Warn("store circuit state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	})
	if cache != nil {
		p.SetLocationCache(cache)
	}
	if toucher != nil {
		p.SetDeviceToucher(toucher)
	}
	return p
}
