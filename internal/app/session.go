package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
	"github.com/taoyao-code/tracker-server/internal/metrics"
	"github.com/taoyao-code/tracker-server/internal/session"
	"github.com/taoyao-code/tracker-server/internal/storage"
	"github.com/taoyao-code/tracker-server/internal/storage/gormrepo"
)

// NewDirectory 按配置构造设备目录（数据库或 YAML 文件），外层包一层查询缓存
func NewDirectory(cfg cfgpkg.SessionConfig, repo storage.DeviceRepo, logger *zap.Logger) (session.Directory, error) {
	var base session.Directory
	switch cfg.Directory {
	case "database":
		if repo == nil {
			return nil, fmt.Errorf("database directory requires a device repository")
		}
		base = gormrepo.NewDirectory(repo, cfg.RegisterUnknown)
		logger.Info("using database device directory", zap.Bool("register_unknown", cfg.RegisterUnknown))
	case "file":
		dir, err := session.LoadFileDirectory(cfg.DirectoryFile)
		if err != nil {
			return nil, err
		}
		base = dir
		logger.Info("using file device directory",
			zap.String("path", cfg.DirectoryFile),
			zap.Int("devices", dir.Len()))
	default:
		return nil, fmt.Errorf("unknown session.directory %q", cfg.Directory)
	}
	return session.NewCachedDirectory(base, cfg.CacheTTL, cfg.NegativeCacheTTL), nil
}

// NewRegistry 构造会话注册表；presence 可为空，活跃会话数同步到指标
func NewRegistry(dir session.Directory, locations session.LocationProvider, presence session.Presence, appm *metrics.AppMetrics, logger *zap.Logger) *session.Registry {
	reg := session.NewRegistry(dir, locations, logger.Named("session"))
	if presence != nil {
		reg.SetPresence(presence)
	}
	if appm != nil {
		reg.SetOnChange(func(active int) { appm.SessionsGauge.Set(float64(active)) })
	}
	return reg
}

// StartSessionSweeper 周期清理长时间无数据的会话，ctx 取消后退出
func StartSessionSweeper(ctx context.Context, reg *session.Registry, interval, idle time.Duration, logger *zap.Logger) {
	if interval <= 0 || idle <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := reg.Sweep(idle); n > 0 {
					logger.Info("idle device sessions swept", zap.Int("count", n))
				}
			}
		}
	}()
}
