package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/taoyao-code/tracker-server/internal/model"
)

// ErrQueueFull 内存队列已满，本批被丢弃
var ErrQueueFull = errors.New("position queue full")

// Queue 解码结果与存储写入之间的缓冲
type Queue interface {
	Push(ctx context.Context, positions ...*model.Position) error
	// Pop 最多取 max 条；等待 wait 仍为空时返回 nil, nil
	Pop(ctx context.Context, max int, wait time.Duration) ([]*model.Position, error)
	Len(ctx context.Context) (int64, error)
}

// MemoryQueue 进程内有界队列；一批定位要么整体入队要么整体丢弃
type MemoryQueue struct {
	mu       sync.Mutex
	items    []*model.Position
	capacity int
	notify   chan struct{}
}

// NewMemoryQueue 创建容量为 capacity 的内存队列
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryQueue{
		items:    make([]*model.Position, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Push 实现 Queue，不阻塞
func (q *MemoryQueue) Push(_ context.Context, positions ...*model.Position) error {
	if len(positions) == 0 {
		return nil
	}
	q.mu.Lock()
	if len(q.items)+len(positions) > q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.items = append(q.items, positions...)
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop 实现 Queue
func (q *MemoryQueue) Pop(ctx context.Context, max int, wait time.Duration) ([]*model.Position, error) {
	if max <= 0 {
		max = 1
	}
	var timer *time.Timer
	for {
		if batch := q.take(max); len(batch) > 0 {
			if timer != nil {
				timer.Stop()
			}
			return batch, nil
		}
		if timer == nil {
			timer = time.NewTimer(wait)
		}
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
			return q.take(max), nil
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) take(max int) []*model.Position {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	n := min(max, len(q.items))
	batch := make([]*model.Position, n)
	copy(batch, q.items[:n])
	rest := copy(q.items, q.items[n:])
	clear(q.items[rest:])
	q.items = q.items[:rest]
	if rest > 0 {
		q.signal()
	}
	return batch
}

// Drain 取出全部剩余定位（停机时使用）
func (q *MemoryQueue) Drain() []*model.Position {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = make([]*model.Position, 0, q.capacity)
	return out
}

// Len 实现 Queue
func (q *MemoryQueue) Len(_ context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.items)), nil
}
