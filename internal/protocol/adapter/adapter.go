package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/taoyao-code/tracker-server/internal/model"
)

// Conn 解码器可见的连接能力（TCP 连接或 UDP 对端）
type Conn interface {
	// ID 连接标识，在进程内唯一；UDP 对端使用远端地址
	ID() string
	RemoteAddr() net.Addr
	// Write 异步写入，不等待数据刷到网络
	Write(b []byte) error
}

// Decoder 协议解码器
// 要求：
// - 实例无状态，所有连接共享
// - 返回 nil, nil 表示帧不属于本协议或被静默丢弃
// - 只有帧损坏（校验失败）以 error 返回
type Decoder interface {
	Protocol() string
	Decode(ctx context.Context, conn Conn, frame []byte) ([]*model.Position, error)
}

// Framer 流式分帧器（处理半包/粘包），每个 TCP 连接独占一个实例
type Framer interface {
	Feed(p []byte) ([][]byte, error)
}

// Protocol 协议注册项
type Protocol struct {
	Name    string
	Decoder Decoder
	// NewFramer 为空时每次读取的数据视为一帧
	NewFramer func() Framer
}

// Registry 按协议名索引的解码器注册表
type Registry struct {
	mu        sync.RWMutex
	protocols map[string]Protocol
}

// NewRegistry 创建注册表
func NewRegistry() *Registry {
	return &Registry{protocols: make(map[string]Protocol)}
}

// Register 注册协议，重名返回错误
func (r *Registry) Register(p Protocol) error {
	if p.Name == "" || p.Decoder == nil {
		return errors.New("protocol name and decoder are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.protocols[p.Name]; ok {
		return fmt.Errorf("protocol %s already registered", p.Name)
	}
	r.protocols[p.Name] = p
	return nil
}

// Get 按名称查找协议
func (r *Registry) Get(name string) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.protocols[name]
	return p, ok
}

// Names 已注册协议名（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.protocols))
	for n := range r.protocols {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ErrCorrupted 帧完整性校验失败
var ErrCorrupted = errors.New("corrupted frame")

// ChecksumError 校验不一致，携带诊断信息
type ChecksumError struct {
	Protocol string
	Expected string
	Received string
	Sentence string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("corrupted checksum for %s protocol: should be %s but received %s; received payload: %s",
		e.Protocol, e.Expected, e.Received, e.Sentence)
}

// Is 使 errors.Is(err, ErrCorrupted) 成立
func (e *ChecksumError) Is(target error) bool { return target == ErrCorrupted }

// IsCorruption 判断错误是否为帧损坏
func IsCorruption(err error) bool { return errors.Is(err, ErrCorrupted) }
