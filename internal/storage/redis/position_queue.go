package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/taoyao-code/tracker-server/internal/model"
)

const (
	defaultQueueKey = "tracker:positions"
	// 无法解析的条目移入死信列表
	deadSuffix = ":dead"
)

// PositionQueue 基于 List 的定位队列（RPUSH 入队，BLPOP 出队）
type PositionQueue struct {
	client *Client
	key    string
}

// NewPositionQueue 创建定位队列，key 为空时使用默认值
func NewPositionQueue(client *Client, key string) *PositionQueue {
	if key == "" {
		key = defaultQueueKey
	}
	return &PositionQueue{client: client, key: key}
}

// Key 队列 key
func (q *PositionQueue) Key() string { return q.key }

// Push 批量入队
func (q *PositionQueue) Push(ctx context.Context, positions ...*model.Position) error {
	if len(positions) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(positions))
	for _, p := range positions {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal position: %w", err)
		}
		values = append(values, data)
	}
	return q.client.RPush(ctx, q.key, values...).Err()
}

// Pop 阻塞出队最多 max 条；等待 wait 仍为空时返回 nil, nil
func (q *PositionQueue) Pop(ctx context.Context, max int, wait time.Duration) ([]*model.Position, error) {
	if max <= 0 {
		max = 1
	}
	res, err := q.client.BLPop(ctx, wait, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	raw := []string{res[1]}
	if max > 1 {
		more, err := q.client.LPopCount(ctx, q.key, max-1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, err
		}
		raw = append(raw, more...)
	}

	out := make([]*model.Position, 0, len(raw))
	for _, item := range raw {
		var p model.Position
		if err := json.Unmarshal([]byte(item), &p); err != nil {
			_ = q.client.RPush(ctx, q.key+deadSuffix, item).Err()
			continue
		}
		out = append(out, &p)
	}
	return out, nil
}

// Len 队列长度
func (q *PositionQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// DeadLen 死信数量
func (q *PositionQueue) DeadLen(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key+deadSuffix).Result()
}
