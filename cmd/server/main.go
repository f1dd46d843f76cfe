package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/taoyao-code/tracker-server/internal/app/bootstrap"
	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
	"github.com/taoyao-code/tracker-server/internal/logging"
)

// @title Tracker Server 只读 API
// @version 1.0
// @description 设备、定位与会话的只读查询接口
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func main() {
	configPath := flag.String("config", "", "配置文件路径，为空时读取 TRACKER_CONFIG 或 configs/example.yaml")
	flag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	// 3) 启动并阻塞直到收到关闭信号
	if err := bootstrap.Run(cfg, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
