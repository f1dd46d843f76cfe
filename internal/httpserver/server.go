package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
)

// Readiness 就绪探针的数据来源
type Readiness interface {
	Ready() bool
	Pending() []string
}

// Server 运维 HTTP 服务：探针、指标，以及外部注册的健康明细与只读 API
type Server struct {
	srv    *http.Server
	engine *gin.Engine
	logger *zap.Logger
}

// New ready 为空时 /readyz 恒为就绪；metricsHandler 为空时不注册指标路由
func New(cfg cfgpkg.HTTPConfig, metricsPath string, metricsHandler http.Handler, ready Readiness, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		if ready == nil || ready.Ready() {
			c.String(http.StatusOK, "ready")
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not-ready", "pending": ready.Pending()})
	})
	if metricsHandler != nil {
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		r.GET(metricsPath, gin.WrapH(metricsHandler))
	}

	return &Server{
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           r,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		engine: r,
		logger: logger,
	}
}

// accessLog 记录 API 请求；探针与指标抓取过于频繁，只在失败时记录
func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		quiet := path == "/healthz" || path == "/readyz" || path == "/metrics"
		if quiet && status < http.StatusInternalServerError {
			return
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("http request failed", fields...)
			return
		}
		logger.Debug("http request", fields...)
	}
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start 阻塞直到关闭；Shutdown 引起的退出返回 nil
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("http listener started", zap.String("addr", ln.Addr().String()))
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
