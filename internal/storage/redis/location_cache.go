package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/taoyao-code/tracker-server/internal/model"
	"github.com/taoyao-code/tracker-server/internal/session"
)

const keyLocationPrefix = "tracker:last:"

// LocationCache 最近有效定位缓存，未命中时回源并回填
type LocationCache struct {
	client *Client
	next   session.LocationProvider
	ttl    time.Duration
	group  singleflight.Group
}

var _ session.LocationProvider = (*LocationCache)(nil)

// NewLocationCache next 可为 nil（仅使用缓存）
func NewLocationCache(client *Client, next session.LocationProvider, ttl time.Duration) *LocationCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LocationCache{client: client, next: next, ttl: ttl}
}

func locationKey(deviceID int64) string {
	return keyLocationPrefix + strconv.FormatInt(deviceID, 10)
}

// LastLocation 实现 session.LocationProvider
func (c *LocationCache) LastLocation(ctx context.Context, deviceID int64) (*model.Position, error) {
	data, err := c.client.Get(ctx, locationKey(deviceID)).Bytes()
	switch {
	case err == nil:
		var p model.Position
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
	case !errors.Is(err, redis.Nil):
		if c.next == nil {
			return nil, err
		}
	}
	if c.next == nil {
		return nil, nil
	}

	v, err, _ := c.group.Do(locationKey(deviceID), func() (interface{}, error) {
		p, err := c.next.LastLocation(ctx, deviceID)
		if err != nil || p == nil {
			return p, err
		}
		_ = c.Set(ctx, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	p, _ := v.(*model.Position)
	return p, nil
}

// Set 写入缓存；无效定位或更旧的定位不覆盖
func (c *LocationCache) Set(ctx context.Context, p *model.Position) error {
	if p == nil || !p.Valid {
		return nil
	}
	key := locationKey(p.DeviceID)
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var cur model.Position
		if json.Unmarshal(data, &cur) == nil && cur.FixTime.After(p.FixTime) {
			return nil
		}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

// Update 取批量中每个设备最新的有效定位写入缓存
func (c *LocationCache) Update(ctx context.Context, positions []*model.Position) error {
	latest := make(map[int64]*model.Position)
	for _, p := range positions {
		if p == nil || !p.Valid {
			continue
		}
		if cur, ok := latest[p.DeviceID]; !ok || p.FixTime.After(cur.FixTime) {
			latest[p.DeviceID] = p
		}
	}
	var firstErr error
	for _, p := range latest {
		if err := c.Set(ctx, p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
