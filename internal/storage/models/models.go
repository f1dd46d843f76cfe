package models

import (
	"time"
)

// 注意：
// - 保持与 internal/migrate/sql 下的迁移脚本对齐
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt

// Device 映射 devices 表
type Device struct {
	// 主键
	ID int64 `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	// 设备上报的唯一标识（IMEI、设备 ID、VIN 等）
	UniqueID string  `gorm:"column:unique_id;type:text;not null;uniqueIndex" json:"uniqueId"`
	Name     *string `gorm:"column:name;type:text" json:"name,omitempty"`
	// 停用设备的上报被视为未知设备
	Disabled bool `gorm:"column:disabled;not null;default:false" json:"disabled"`
	// 最近一次上报
	LastSeenAt *time.Time `gorm:"column:last_seen_at" json:"lastSeenAt,omitempty"`
	// 审计字段
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Device) TableName() string { return "devices" }
