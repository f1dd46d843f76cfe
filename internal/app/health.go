package app

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/taoyao-code/tracker-server/internal/health"
	"github.com/taoyao-code/tracker-server/internal/session"
)

// NewHealthAggregator 创建健康检查聚合器，启动过程中逐步添加检查器
func NewHealthAggregator(registry *session.Registry) *health.Aggregator {
	return health.NewAggregator(
		health.CheckerFunc("sessions", func(context.Context) health.CheckResult {
			return health.CheckResult{
				Status:  health.StatusHealthy,
				Details: map[string]interface{}{"active": registry.Count()},
			}
		}),
	)
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator, readiness *health.Readiness) {
	health.RegisterHTTPRoutes(r, aggregator, readiness)
}
