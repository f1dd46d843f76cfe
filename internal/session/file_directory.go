package session

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StaticDirectory 内存设备目录，可从 YAML 文件加载（开发与测试环境）
type StaticDirectory struct {
	devices map[string]*Device
}

type directoryFile struct {
	Devices []Device `yaml:"devices"`
}

// NewStaticDirectory 以给定设备创建目录；未指定ID的设备按顺序编号
func NewStaticDirectory(devices ...Device) *StaticDirectory {
	d := &StaticDirectory{devices: make(map[string]*Device, len(devices))}
	for i := range devices {
		dev := devices[i]
		if dev.ID == 0 {
			dev.ID = int64(i + 1)
		}
		d.devices[dev.UniqueID] = &dev
	}
	return d
}

// LoadFileDirectory 从 YAML 文件加载设备目录
//
//	devices:
//	  - id: 1
//	    uniqueId: M0ZR4X0
//	    name: demo
func LoadFileDirectory(path string) (*StaticDirectory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read device directory: %w", err)
	}
	var f directoryFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("unmarshal device directory: %w", err)
	}
	for i, dev := range f.Devices {
		if dev.UniqueID == "" {
			return nil, fmt.Errorf("device #%d: uniqueId is required", i)
		}
	}
	return NewStaticDirectory(f.Devices...), nil
}

// FindDevice 实现 Directory
func (d *StaticDirectory) FindDevice(_ context.Context, uniqueID string) (*Device, error) {
	dev, ok := d.devices[uniqueID]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	c := *dev
	return &c, nil
}

// Len 设备数量
func (d *StaticDirectory) Len() int { return len(d.devices) }
