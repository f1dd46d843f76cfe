package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisPresence 在 Redis 中登记设备会话所在的服务实例，支持多实例部署时查询
type RedisPresence struct {
	client   *redis.Client
	serverID string
	ttl      time.Duration
}

// PresenceInfo Redis 中保存的会话登记
type PresenceInfo struct {
	SessionID string    `json:"session_id"`
	DeviceID  int64     `json:"device_id"`
	UniqueID  string    `json:"unique_id"`
	ConnKey   string    `json:"conn_key"`
	Remote    string    `json:"remote,omitempty"`
	ServerID  string    `json:"server_id"`
	Since     time.Time `json:"since"`
}

// Redis Key设计
const (
	// session:device:{deviceID} -> PresenceInfo JSON
	keyDevicePrefix = "session:device:"

	// session:server:{serverID}:devices -> Set[deviceID]
	keyServerPrefix = "session:server:"
)

// NewRedisPresence 创建 Redis 在线登记
func NewRedisPresence(client *redis.Client, serverID string, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if serverID == "" {
		serverID = uuid.New().String()
	}
	return &RedisPresence{client: client, serverID: serverID, ttl: ttl}
}

// ServerID 当前实例ID
func (p *RedisPresence) ServerID() string { return p.serverID }

// Online 实现 Presence
func (p *RedisPresence) Online(ctx context.Context, s *DeviceSession) error {
	data := PresenceInfo{
		SessionID: s.ID(),
		DeviceID:  s.DeviceID(),
		UniqueID:  s.UniqueID(),
		ConnKey:   s.ConnKey(),
		ServerID:  p.serverID,
		Since:     s.CreatedAt(),
	}
	if s.RemoteAddr() != nil {
		data.Remote = s.RemoteAddr().String()
	}
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal presence: %w", err)
	}
	pipe := p.client.TxPipeline()
	pipe.Set(ctx, deviceKey(s.DeviceID()), b, p.ttl)
	pipe.SAdd(ctx, p.serverKey(), s.DeviceID())
	_, err = pipe.Exec(ctx)
	return err
}

// Offline 实现 Presence；仅删除属于同一会话的登记，避免覆盖设备在其它实例上的新会话
func (p *RedisPresence) Offline(ctx context.Context, s *DeviceSession) error {
	cur, err := p.Lookup(ctx, s.DeviceID())
	if err != nil {
		return err
	}
	pipe := p.client.TxPipeline()
	if cur != nil && cur.SessionID == s.ID() {
		pipe.Del(ctx, deviceKey(s.DeviceID()))
	}
	pipe.SRem(ctx, p.serverKey(), s.DeviceID())
	_, err = pipe.Exec(ctx)
	return err
}

// Lookup 查询设备当前登记；不存在返回 nil, nil
func (p *RedisPresence) Lookup(ctx context.Context, deviceID int64) (*PresenceInfo, error) {
	val, err := p.client.Get(ctx, deviceKey(deviceID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var data PresenceInfo
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// OnlineDevices 当前实例登记的设备数
func (p *RedisPresence) OnlineDevices(ctx context.Context) (int64, error) {
	return p.client.SCard(ctx, p.serverKey()).Result()
}

// Cleanup 清理本实例的全部登记（用于优雅关闭）
func (p *RedisPresence) Cleanup(ctx context.Context) error {
	ids, err := p.client.SMembers(ctx, p.serverKey()).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		deviceID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		cur, err := p.Lookup(ctx, deviceID)
		if err == nil && cur != nil && cur.ServerID == p.serverID {
			p.client.Del(ctx, deviceKey(deviceID))
		}
	}
	return p.client.Del(ctx, p.serverKey()).Err()
}

func deviceKey(deviceID int64) string {
	return keyDevicePrefix + strconv.FormatInt(deviceID, 10)
}

func (p *RedisPresence) serverKey() string {
	return fmt.Sprintf("%s%s:devices", keyServerPrefix, p.serverID)
}
