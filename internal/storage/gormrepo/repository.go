package gormrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/taoyao-code/tracker-server/internal/storage"
	"github.com/taoyao-code/tracker-server/internal/storage/models"
)

// Open 在已有 pgx 连接池之上创建 *gorm.DB，两者共享连接
func Open(pool *pgxpool.Pool) (*gorm.DB, error) {
	sqlDB := stdlib.OpenDBFromPool(pool)
	return gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
}

// Repository 基于 GORM 的设备目录存储
type Repository struct {
	db *gorm.DB
}

var _ storage.DeviceRepo = (*Repository)(nil)

// New 返回一个使用给定 *gorm.DB 的 Repository
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GetDeviceByUniqueID 通过唯一标识查询设备
func (r *Repository) GetDeviceByUniqueID(ctx context.Context, uniqueID string) (*models.Device, error) {
	var device models.Device
	err := r.db.WithContext(ctx).Where("unique_id = ?", uniqueID).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// EnsureDevice 若设备不存在则插入，存在则刷新 updated_at
func (r *Repository) EnsureDevice(ctx context.Context, uniqueID string) (*models.Device, error) {
	record := &models.Device{UniqueID: uniqueID}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "unique_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"updated_at": gorm.Expr("NOW()")}),
		}).
		Create(record).Error
	if err != nil {
		return nil, err
	}
	return r.GetDeviceByUniqueID(ctx, uniqueID)
}

// TouchLastSeen 批量刷新设备 last_seen_at
func (r *Repository) TouchLastSeen(ctx context.Context, deviceIDs []int64, at time.Time) error {
	if len(deviceIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("id IN ?", deviceIDs).
		Updates(map[string]interface{}{
			"last_seen_at": at,
			"updated_at":   gorm.Expr("NOW()"),
		}).Error
}

// ListDevices 分页返回设备列表，按 id 倒序
func (r *Repository) ListDevices(ctx context.Context, limit, offset int) ([]models.Device, error) {
	var devices []models.Device
	q := r.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}
