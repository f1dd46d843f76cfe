package storage

import (
	"context"

	"github.com/taoyao-code/tracker-server/internal/model"
	"github.com/taoyao-code/tracker-server/internal/storage/models"
)

// PositionStore 定位持久化抽象。
// 约束：
// - InsertPositions 以批为单位写入，失败时整批返回错误由调用方决定重试或丢弃
// - LatestPosition 只返回有效定位；不存在时返回 nil, nil
type PositionStore interface {
	InsertPositions(ctx context.Context, positions []*model.Position) error
	LatestPosition(ctx context.Context, deviceID int64) (*model.Position, error)
}

// DeviceRepo 设备目录存储抽象
type DeviceRepo interface {
	// GetDeviceByUniqueID 不存在时返回 ErrNotFound
	GetDeviceByUniqueID(ctx context.Context, uniqueID string) (*models.Device, error)
	// EnsureDevice 不存在则登记为新设备
	EnsureDevice(ctx context.Context, uniqueID string) (*models.Device, error)
	ListDevices(ctx context.Context, limit, offset int) ([]models.Device, error)
}

// DiscardStore 丢弃全部定位，用于只需解码与应答的部署
type DiscardStore struct{}

// InsertPositions 实现 PositionStore
func (DiscardStore) InsertPositions(context.Context, []*model.Position) error { return nil }

// LatestPosition 实现 PositionStore
func (DiscardStore) LatestPosition(context.Context, int64) (*model.Position, error) { return nil, nil }
