package session

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taoyao-code/tracker-server/internal/model"
)

// lastLocationRetry 最近位置加载失败后，在此时间内不再查询存储
const lastLocationRetry = 30 * time.Second

// DeviceSession 连接与设备之间的绑定
type DeviceSession struct {
	id       string
	deviceID int64
	uniqueID string
	connKey  string
	remote   net.Addr
	created  time.Time
	lastSeen atomic.Int64 // unix nano

	mu         sync.RWMutex
	aliases    []string
	last       *model.Position
	lastLoaded bool
	retryAt    time.Time
	locations  LocationProvider
	now        func() time.Time
}

func newDeviceSession(dev *Device, alias, connKey string, remote net.Addr, locations LocationProvider, now time.Time) *DeviceSession {
	s := &DeviceSession{
		id:        uuid.New().String(),
		deviceID:  dev.ID,
		uniqueID:  dev.UniqueID,
		connKey:   connKey,
		remote:    remote,
		created:   now,
		locations: locations,
		now:       time.Now,
	}
	if s.uniqueID == "" {
		s.uniqueID = alias
	}
	s.aliases = append(s.aliases, alias)
	s.lastSeen.Store(now.UnixNano())
	return s
}

// ID 会话ID（uuid）
func (s *DeviceSession) ID() string { return s.id }

// DeviceID 持久设备ID
func (s *DeviceSession) DeviceID() int64 { return s.deviceID }

// UniqueID 设备目录中的唯一标识
func (s *DeviceSession) UniqueID() string { return s.uniqueID }

// ConnKey 所属连接
func (s *DeviceSession) ConnKey() string { return s.connKey }

// RemoteAddr 建立会话时的远端地址
func (s *DeviceSession) RemoteAddr() net.Addr { return s.remote }

// CreatedAt 会话创建时间
func (s *DeviceSession) CreatedAt() time.Time { return s.created }

// LastSeen 最近一次使用时间
func (s *DeviceSession) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

func (s *DeviceSession) touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

// Identifiers 本连接上观察到的全部传输标识
func (s *DeviceSession) Identifiers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.aliases...)
}

func (s *DeviceSession) addAlias(alias string) {
	if alias == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.aliases {
		if a == alias {
			return
		}
	}
	s.aliases = append(s.aliases, alias)
}

// LastLocation 返回最近已知位置的副本。
// 首次调用时从 LocationProvider 加载一次，之后只使用本地快照；
// 加载失败后 lastLocationRetry 内直接返回本地快照。
func (s *DeviceSession) LastLocation(ctx context.Context) *model.Position {
	s.mu.RLock()
	if s.lastLoaded || s.locations == nil || s.now().Before(s.retryAt) {
		last := s.last.Clone()
		s.mu.RUnlock()
		return last
	}
	s.mu.RUnlock()

	loaded, err := s.locations.LastLocation(ctx, s.deviceID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.retryAt = s.now().Add(lastLocationRetry)
		return s.last.Clone()
	}
	if !s.lastLoaded {
		s.lastLoaded = true
		if s.last == nil && loaded != nil {
			s.last = loaded.Clone()
		}
	}
	return s.last.Clone()
}

// UpdateLastLocation 用有效定位刷新快照；较旧的定位被忽略
func (s *DeviceSession) UpdateLastLocation(p *model.Position) {
	if p == nil || !p.Valid {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != nil && p.FixTime.Before(s.last.FixTime) {
		return
	}
	s.last = p.Clone()
}
