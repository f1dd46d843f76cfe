package model

import (
	"strconv"
	"time"
)

// 扩展属性键（与上游平台保持一致的稳定字符串）
const (
	KeySatellites   = "sat"
	KeyHDOP         = "hdop"
	KeyAcceleration = "acceleration"
	KeyBattery      = "battery"
	KeyRSSI         = "rssi"
	KeyIgnition     = "ignition"
	KeyEngineLoad   = "engineLoad"
	KeyCoolantTemp  = "coolantTemp"
	KeyRPM          = "rpm"
	KeyOBDSpeed     = "obdSpeed"
	KeyThrottle     = "throttle"
	KeyDeviceTemp   = "deviceTemp"
	KeyAlarm        = "alarm"
	KeyEvent        = "event"
	KeyIP           = "ip"

	// PrefixIO 未映射字段的通用前缀，后接十进制字段码
	PrefixIO = "io"
)

// 告警取值
const (
	AlarmLowPower = "lowPower"
)

// Position 一次观测到（或合成）的定位记录
type Position struct {
	Protocol string `json:"protocol"`
	// DeviceID 创建时确定，之后不再修改
	DeviceID int64 `json:"deviceId"`

	ServerTime time.Time `json:"serverTime"`
	DeviceTime time.Time `json:"deviceTime"`
	FixTime    time.Time `json:"fixTime"`
	// Outdated 坐标来自最近已知位置而非本帧
	Outdated bool `json:"outdated"`
	Valid    bool `json:"valid"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Speed     float64 `json:"speed"` // 节
	Course    float64 `json:"course"`
	Accuracy  float64 `json:"accuracy"`

	Network    *Network               `json:"network,omitempty"`
	Attributes map[string]interface{} `json:"attributes"`
}

// NewPosition 创建定位记录，服务器时间取当前时间
func NewPosition(protocol string, deviceID int64) *Position {
	return &Position{
		Protocol:   protocol,
		DeviceID:   deviceID,
		ServerTime: time.Now().UTC(),
		Attributes: make(map[string]interface{}),
	}
}

// Set 写入扩展属性；nil 值与空字符串被忽略
func (p *Position) Set(key string, value interface{}) {
	switch v := value.(type) {
	case nil:
		return
	case string:
		if v == "" {
			return
		}
	}
	if p.Attributes == nil {
		p.Attributes = make(map[string]interface{})
	}
	p.Attributes[key] = value
}

// SetIO 以通用前缀保存未映射字段
func (p *Position) SetIO(code int, value string) {
	p.Set(PrefixIO+strconv.Itoa(code), value)
}

// Has 判断属性是否存在
func (p *Position) Has(key string) bool {
	_, ok := p.Attributes[key]
	return ok
}

// Float 读取数值属性
func (p *Position) Float(key string) (float64, bool) {
	switch v := p.Attributes[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Int 读取整数属性
func (p *Position) Int(key string) (int64, bool) {
	switch v := p.Attributes[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Bool 读取布尔属性
func (p *Position) Bool(key string) (bool, bool) {
	v, ok := p.Attributes[key].(bool)
	return v, ok
}

// String 读取字符串属性
func (p *Position) String(key string) (string, bool) {
	v, ok := p.Attributes[key].(string)
	return v, ok
}

// SetTime 同时设置设备时间与定位时间
func (p *Position) SetTime(t time.Time) {
	p.DeviceTime = t
	p.FixTime = t
}

// CopyLocation 用 last 的坐标覆盖当前记录，并标记为过期位置。
// 有效标志保持不变。
func (p *Position) CopyLocation(last *Position) {
	p.Outdated = true
	if last == nil {
		return
	}
	p.FixTime = last.FixTime
	p.Latitude = last.Latitude
	p.Longitude = last.Longitude
	p.Altitude = last.Altitude
	p.Speed = last.Speed
	p.Course = last.Course
	p.Accuracy = last.Accuracy
}

// Clone 深拷贝（属性表浅拷贝值）
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	c := *p
	c.Attributes = make(map[string]interface{}, len(p.Attributes))
	for k, v := range p.Attributes {
		c.Attributes[k] = v
	}
	if p.Network != nil {
		n := *p.Network
		n.CellTowers = append([]CellTower(nil), p.Network.CellTowers...)
		c.Network = &n
	}
	return &c
}
