package session

import (
	"context"
	"errors"

	"github.com/taoyao-code/tracker-server/internal/model"
)

// ErrDeviceNotFound 设备标识未注册（常态，不应按失败告警）
var ErrDeviceNotFound = errors.New("device not found")

// Device 设备目录中的设备
type Device struct {
	ID       int64  `yaml:"id" json:"id"`
	UniqueID string `yaml:"uniqueId" json:"unique_id"`
	Name     string `yaml:"name" json:"name"`
	Disabled bool   `yaml:"disabled" json:"disabled"`
}

// Directory 外部设备目录：传输标识 -> 持久设备ID
type Directory interface {
	FindDevice(ctx context.Context, uniqueID string) (*Device, error)
}

// LocationProvider 最近已知位置查询；无记录时返回 nil, nil
type LocationProvider interface {
	LastLocation(ctx context.Context, deviceID int64) (*model.Position, error)
}

// Presence 会话上下线通知（可选，用于多实例共享在线信息）
type Presence interface {
	Online(ctx context.Context, s *DeviceSession) error
	Offline(ctx context.Context, s *DeviceSession) error
}
