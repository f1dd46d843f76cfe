package app

import (
	"net/http"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
	"github.com/taoyao-code/tracker-server/internal/health"
	"github.com/taoyao-code/tracker-server/internal/httpserver"
)

// NewHTTPServer 指标关闭时不注册指标路由
func NewHTTPServer(cfg cfgpkg.HTTPConfig, mcfg cfgpkg.MetricsConfig, metricsHandler http.Handler, readiness *health.Readiness, logger *zap.Logger) *httpserver.Server {
	if !mcfg.Enable {
		metricsHandler = nil
	}
	return httpserver.New(cfg, mcfg.Path, metricsHandler, readiness, logger.Named("http"))
}
