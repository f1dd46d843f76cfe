package gormrepo

import (
	"context"
	"errors"

	"github.com/taoyao-code/tracker-server/internal/session"
	"github.com/taoyao-code/tracker-server/internal/storage"
	"github.com/taoyao-code/tracker-server/internal/storage/models"
)

// Directory 以 devices 表作为设备目录
type Directory struct {
	repo storage.DeviceRepo
	// registerUnknown 未知标识自动登记
	registerUnknown bool
}

var _ session.Directory = (*Directory)(nil)

// NewDirectory 创建数据库设备目录
func NewDirectory(repo storage.DeviceRepo, registerUnknown bool) *Directory {
	return &Directory{repo: repo, registerUnknown: registerUnknown}
}

// FindDevice 实现 session.Directory
func (d *Directory) FindDevice(ctx context.Context, uniqueID string) (*session.Device, error) {
	dev, err := d.repo.GetDeviceByUniqueID(ctx, uniqueID)
	if errors.Is(err, storage.ErrNotFound) {
		if !d.registerUnknown {
			return nil, session.ErrDeviceNotFound
		}
		dev, err = d.repo.EnsureDevice(ctx, uniqueID)
	}
	if err != nil {
		return nil, err
	}
	return toSessionDevice(dev), nil
}

func toSessionDevice(m *models.Device) *session.Device {
	dev := &session.Device{
		ID:       m.ID,
		UniqueID: m.UniqueID,
		Disabled: m.Disabled,
	}
	if m.Name != nil {
		dev.Name = *m.Name
	}
	return dev
}
