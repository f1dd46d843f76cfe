package app

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"gorm.io/gorm"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
	"github.com/taoyao-code/tracker-server/internal/migrate"
	"github.com/taoyao-code/tracker-server/internal/storage/gormrepo"
	pgstorage "github.com/taoyao-code/tracker-server/internal/storage/pg"
)

// ConnectDBAndMigrate 建立数据库连接并按需执行迁移
func ConnectDBAndMigrate(ctx context.Context, cfg cfgpkg.DatabaseConfig, log *zap.Logger) (*pgxpool.Pool, error) {
	dbpool, err := pgstorage.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error("db connect error", zap.Error(err))
		return nil, err
	}
	if cfg.AutoMigrate {
		n, err := (migrate.Runner{Dir: cfg.MigrationsDir, Logger: log}).UpCount(ctx, dbpool)
		if err != nil {
			log.Error("db migrate error", zap.Error(err))
			dbpool.Close()
			return nil, err
		}
		log.Info("db migrations applied", zap.Int("count", n))
	}
	return dbpool, nil
}

// NewDeviceRepo 在同一个连接池上打开 gorm 设备仓储
func NewDeviceRepo(dbpool *pgxpool.Pool) (*gormrepo.Repository, *gorm.DB, error) {
	db, err := gormrepo.Open(dbpool)
	if err != nil {
		return nil, nil, err
	}
	return gormrepo.New(db), db, nil
}
