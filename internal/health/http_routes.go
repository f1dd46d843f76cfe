package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RegisterHTTPRoutes 注册健康检查HTTP路由；readiness 可为空
func RegisterHTTPRoutes(r gin.IRouter, aggregator *Aggregator, readiness *Readiness) {
	// GET /health/ready：启动未完成或任一组件不健康时返回 503
	r.GET("/health/ready", func(c *gin.Context) {
		if readiness != nil && !readiness.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "starting",
				"ready":   false,
				"pending": readiness.Pending(),
			})
			return
		}
		if !aggregator.Ready(c.Request.Context()) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": StatusUnhealthy,
				"ready":  false,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"ready":  true,
		})
	})

	// GET /health/live：进程能响应即存活
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"alive": true, "checks": aggregator.Names()})
	})

	// GET /health：各组件明细，降级仍返回 200
	r.GET("/health", func(c *gin.Context) {
		results := aggregator.CheckAll(c.Request.Context())
		overall := Summarize(results)

		code := http.StatusOK
		if overall == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, HealthReport{
			Status:    overall,
			Timestamp: time.Now().UTC(),
			Checks:    results,
		})
	})
}
