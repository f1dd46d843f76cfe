package api

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/taoyao-code/tracker-server/internal/api/docs"
	"github.com/taoyao-code/tracker-server/internal/api/middleware"
)

// RegisterReadOnlyRoutes 注册只读查询路由
func RegisterReadOnlyRoutes(r gin.IRouter, handler *ReadOnlyHandler, authCfg middleware.AuthConfig, logger *zap.Logger) {
	if r == nil || handler == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	api := r.Group("/api")
	if authCfg.Enabled() {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled")
	}

	api.GET("/devices", handler.ListDevices)
	api.GET("/devices/:uniqueId", handler.GetDevice)
	api.GET("/devices/:uniqueId/position", handler.LatestPosition)
	api.GET("/devices/:uniqueId/positions", handler.ListPositions)
	api.GET("/devices/:uniqueId/session", handler.GetSessionStatus)
	api.GET("/sessions", handler.SessionSummary)
}

// RegisterSwaggerRoutes 挂载只读接口文档：GET /swagger/index.html、/swagger/doc.json
func RegisterSwaggerRoutes(r gin.IRouter) {
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}
