package session

import (
	"context"
	"errors"
	"hash/fnv"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const shardCount = 32

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*DeviceSession // connKey -> session
	held     map[string]struct{}       // 仍在线的流式连接，Sweep 不清理
}

// Registry 设备会话注册表
// - 按连接分片存储，互不相关的连接不会竞争同一把锁
// - 同一标识的并发目录查询合并为一次
type Registry struct {
	shards    [shardCount]shard
	directory Directory
	locations LocationProvider
	presence  Presence
	logger    *zap.Logger
	group     singleflight.Group
	active    atomic.Int64
	now       func() time.Time

	// 可选回调：活跃会话数变化
	onChange func(active int)
}

// NewRegistry 创建会话注册表
func NewRegistry(directory Directory, locations LocationProvider, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		directory: directory,
		locations: locations,
		logger:    logger,
		now:       time.Now,
	}
	for i := range r.shards {
		r.shards[i].sessions = make(map[string]*DeviceSession)
		r.shards[i].held = make(map[string]struct{})
	}
	return r
}

// SetPresence 安装上下线通知
func (r *Registry) SetPresence(p Presence) { r.presence = p }

// SetOnChange 安装活跃会话数回调
func (r *Registry) SetOnChange(fn func(active int)) { r.onChange = fn }

func (r *Registry) shardFor(connKey string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(connKey))
	return &r.shards[h.Sum32()%shardCount]
}

// Hold 标记连接在线（TCP 连接建立时调用），其会话只随 Release 销毁，不被 Sweep 清理
func (r *Registry) Hold(connKey string) {
	sh := r.shardFor(connKey)
	sh.mu.Lock()
	sh.held[connKey] = struct{}{}
	sh.mu.Unlock()
}

// Resolve 将连接上的传输标识解析为设备会话。
// 连接已有会话时直接复用（即使本次出现的是同一设备的其它别名），不再查询目录。
// 否则按顺序尝试 identifiers，第一个可解析的生效；全部未知时返回 ErrDeviceNotFound。
// connKey 为空（没有连接）时每帧都查询目录，会话按设备归档。
func (r *Registry) Resolve(ctx context.Context, connKey string, remote net.Addr, identifiers ...string) (*DeviceSession, error) {
	now := r.now()
	if connKey == "" {
		return r.resolveDetached(ctx, remote, now, identifiers)
	}
	sh := r.shardFor(connKey)

	sh.mu.RLock()
	s := sh.sessions[connKey]
	sh.mu.RUnlock()
	if s != nil {
		s.touch(now)
		for _, id := range identifiers {
			s.addAlias(id)
		}
		return s, nil
	}

	for _, id := range identifiers {
		if id == "" {
			continue
		}
		dev, err := r.lookup(ctx, id)
		if errors.Is(err, ErrDeviceNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}

		return r.bind(ctx, connKey, dev, id, remote, now), nil
	}
	return nil, ErrDeviceNotFound
}

func (r *Registry) resolveDetached(ctx context.Context, remote net.Addr, now time.Time, identifiers []string) (*DeviceSession, error) {
	for _, id := range identifiers {
		if id == "" {
			continue
		}
		dev, err := r.lookup(ctx, id)
		if errors.Is(err, ErrDeviceNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return r.bind(ctx, "device-"+strconv.FormatInt(dev.ID, 10), dev, id, remote, now), nil
	}
	return nil, ErrDeviceNotFound
}

// bind 返回 connKey 上的会话，不存在时为 dev 新建
func (r *Registry) bind(ctx context.Context, connKey string, dev *Device, id string, remote net.Addr, now time.Time) *DeviceSession {
	sh := r.shardFor(connKey)
	sh.mu.Lock()
	if existing := sh.sessions[connKey]; existing != nil {
		sh.mu.Unlock()
		existing.touch(now)
		existing.addAlias(id)
		return existing
	}
	created := newDeviceSession(dev, id, connKey, remote, r.locations, now)
	created.now = r.now
	sh.sessions[connKey] = created
	sh.mu.Unlock()

	r.changed(r.active.Add(1))
	r.logger.Debug("device session created",
		zap.String("session_id", created.ID()),
		zap.Int64("device_id", created.DeviceID()),
		zap.String("identifier", id),
		zap.String("conn", connKey))
	if r.presence != nil {
		if err := r.presence.Online(ctx, created); err != nil {
			r.logger.Warn("session presence online failed", zap.Error(err))
		}
	}
	return created
}

func (r *Registry) lookup(ctx context.Context, id string) (*Device, error) {
	if r.directory == nil {
		return nil, ErrDeviceNotFound
	}
	v, err, _ := r.group.Do(id, func() (interface{}, error) {
		return r.directory.FindDevice(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	dev, _ := v.(*Device)
	if dev == nil || dev.Disabled {
		return nil, ErrDeviceNotFound
	}
	return dev, nil
}

// Get 返回连接上的会话
func (r *Registry) Get(connKey string) (*DeviceSession, bool) {
	sh := r.shardFor(connKey)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[connKey]
	return s, ok
}

// Release 连接关闭时销毁会话
func (r *Registry) Release(connKey string) {
	sh := r.shardFor(connKey)
	sh.mu.Lock()
	s, ok := sh.sessions[connKey]
	if ok {
		delete(sh.sessions, connKey)
	}
	delete(sh.held, connKey)
	sh.mu.Unlock()
	if ok {
		r.released(s)
	}
}

// Sweep 清理空闲超过 idle 的会话（UDP 对端与无连接会话），Hold 住的连接不受影响；返回清理数量
func (r *Registry) Sweep(idle time.Duration) int {
	deadline := r.now().Add(-idle)
	var removed []*DeviceSession
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		for k, s := range sh.sessions {
			if _, ok := sh.held[k]; ok {
				continue
			}
			if s.LastSeen().Before(deadline) {
				delete(sh.sessions, k)
				removed = append(removed, s)
			}
		}
		sh.mu.Unlock()
	}
	for _, s := range removed {
		r.released(s)
	}
	return len(removed)
}

func (r *Registry) released(s *DeviceSession) {
	r.changed(r.active.Add(-1))
	r.logger.Debug("device session released",
		zap.String("session_id", s.ID()),
		zap.Int64("device_id", s.DeviceID()),
		zap.String("conn", s.ConnKey()))
	if r.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.presence.Offline(ctx, s); err != nil {
			r.logger.Warn("session presence offline failed", zap.Error(err))
		}
	}
}

func (r *Registry) changed(n int64) {
	if r.onChange != nil {
		r.onChange(int(n))
	}
}

// ByDevice 返回设备当前在本实例上的全部会话
func (r *Registry) ByDevice(deviceID int64) []*DeviceSession {
	var out []*DeviceSession
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		for _, s := range sh.sessions {
			if s.DeviceID() == deviceID {
				out = append(out, s)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// Count 活跃会话数
func (r *Registry) Count() int { return int(r.active.Load()) }
