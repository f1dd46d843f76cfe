package app

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taoyao-code/tracker-server/internal/api"
	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
	"github.com/taoyao-code/tracker-server/internal/session"
	"github.com/taoyao-code/tracker-server/internal/storage"
	mongostorage "github.com/taoyao-code/tracker-server/internal/storage/mongo"
	pgstorage "github.com/taoyao-code/tracker-server/internal/storage/pg"
)

// PositionBackend 选定的定位存储及其查询视图
type PositionBackend struct {
	Store storage.PositionStore
	// Locations 最近已知位置来源，store=none 时为空
	Locations session.LocationProvider
	// Query 只读 API 使用，store=none 时为空
	Query api.PositionQuery
}

// NewPositionBackend 按 pipeline.store 选择 postgres / mongo / none
func NewPositionBackend(cfg cfgpkg.PipelineConfig, dbpool *pgxpool.Pool, mongoStore *mongostorage.Store) (*PositionBackend, error) {
	switch cfg.Store {
	case "postgres":
		if dbpool == nil {
			return nil, fmt.Errorf("pipeline.store=postgres requires a database pool")
		}
		repo := &pgstorage.Repository{Pool: dbpool}
		return &PositionBackend{Store: repo, Locations: repo, Query: repo}, nil
	case "mongo":
		if mongoStore == nil {
			return nil, fmt.Errorf("pipeline.store=mongo requires mongo.enabled")
		}
		return &PositionBackend{Store: mongoStore, Locations: mongoStore, Query: mongoStore}, nil
	case "none":
		return &PositionBackend{Store: storage.DiscardStore{}}, nil
	default:
		return nil, fmt.Errorf("unknown pipeline.store %q", cfg.Store)
	}
}
