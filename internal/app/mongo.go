package app

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
	mongostorage "github.com/taoyao-code/tracker-server/internal/storage/mongo"
)

// ConnectMongo 连接 MongoDB 并确保定位集合索引；未启用时返回 nil
func ConnectMongo(ctx context.Context, cfg cfgpkg.MongoConfig, log *zap.Logger) (*mongo.Client, *mongostorage.Store, error) {
	if !cfg.Enabled {
		return nil, nil, nil
	}
	client, err := mongostorage.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	store := mongostorage.NewStore(client.Database(cfg.Database), cfg.Collection)
	if err := store.EnsureIndexes(ctx); err != nil {
		log.Warn("mongo ensure indexes failed", zap.Error(err))
	}
	log.Info("mongo connected",
		zap.String("database", cfg.Database),
		zap.String("collection", cfg.Collection))
	return client, store, nil
}
