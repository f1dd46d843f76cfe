package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/tracker-server/internal/metrics"
	"github.com/taoyao-code/tracker-server/internal/model"
	"github.com/taoyao-code/tracker-server/internal/storage"
)

const (
	DropQueueFull   = "queue_full"
	DropQueueError  = "queue_error"
	DropStoreError  = "store_error"
	DropCircuitOpen = "circuit_open"
)

// LocationUpdater 写入成功后刷新最近位置缓存
type LocationUpdater interface {
	Update(ctx context.Context, positions []*model.Position) error
}

// DeviceToucher 写入成功后更新设备最后上报时间
type DeviceToucher interface {
	TouchLastSeen(ctx context.Context, deviceIDs []int64, at time.Time) error
}

// Options 工作池参数
type Options struct {
	Workers       int
	BatchSize     int
	FlushInterval time.Duration
	StoreTimeout  time.Duration
	SubmitTimeout time.Duration
}

func (o *Options) normalize() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 200
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = time.Second
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.SubmitTimeout <= 0 {
		o.SubmitTimeout = time.Second
	}
}

// Pipeline 接收解码结果，由工作池批量写入存储
type Pipeline struct {
	queue   Queue
	store   storage.PositionStore
	breaker *Breaker
	cache   LocationUpdater
	toucher DeviceToucher
	appm    *metrics.AppMetrics
	logger  *zap.Logger
	opts    Options
	now     func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New 创建写入管道；breaker 为空时使用默认熔断参数，appm 可为空
func New(queue Queue, store storage.PositionStore, breaker *Breaker, opts Options, appm *metrics.AppMetrics, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if breaker == nil {
		breaker = NewBreaker(0, 0)
	}
	opts.normalize()
	return &Pipeline{
		queue:   queue,
		store:   store,
		breaker: breaker,
		appm:    appm,
		logger:  logger,
		opts:    opts,
		now:     time.Now,
	}
}

// SetLocationCache 可选
func (p *Pipeline) SetLocationCache(c LocationUpdater) { p.cache = c }

// SetDeviceToucher 可选
func (p *Pipeline) SetDeviceToucher(t DeviceToucher) { p.toucher = t }

// Breaker 存储熔断器
func (p *Pipeline) Breaker() *Breaker { return p.breaker }

// Submit 实现 gateway.Sink：只入队，不等待存储
func (p *Pipeline) Submit(ctx context.Context, positions []*model.Position) {
	if len(positions) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.SubmitTimeout)
	defer cancel()

	if err := p.queue.Push(ctx, positions...); err != nil {
		reason := DropQueueError
		if errors.Is(err, ErrQueueFull) {
			reason = DropQueueFull
		}
		p.dropped(reason, len(positions))
		p.logger.Warn("positions dropped",
			zap.String("reason", reason),
			zap.Int("count", len(positions)),
			zap.Error(err))
	}
}

// Start 启动工作池
func (p *Pipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("pipeline started",
		zap.Int("workers", p.opts.Workers),
		zap.Int("batch_size", p.opts.BatchSize),
		zap.Duration("flush_interval", p.opts.FlushInterval))
}

// Stop 停止工作池并写入内存队列中的剩余定位
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	p.cancel()
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if d, ok := p.queue.(interface{ Drain() []*model.Position }); ok {
		rest := d.Drain()
		for len(rest) > 0 {
			n := min(p.opts.BatchSize, len(rest))
			p.flush(ctx, rest[:n])
			rest = rest[n:]
		}
	}
	p.logger.Info("pipeline stopped")
	return nil
}

func (p *Pipeline) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker", id))

	for ctx.Err() == nil {
		batch, err := p.queue.Pop(ctx, p.opts.BatchSize, p.opts.FlushInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("queue pop failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(batch) == 0 {
			continue
		}
		p.flush(ctx, batch)
		if p.appm != nil {
			if n, err := p.queue.Len(ctx); err == nil {
				p.appm.PipelineQueue.Set(float64(n))
			}
		}
	}
}

func (p *Pipeline) flush(ctx context.Context, batch []*model.Position) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.StoreTimeout)
	defer cancel()

	start := p.now()
	err := p.breaker.Call(func() error {
		return p.store.InsertPositions(ctx, batch)
	})
	if p.appm != nil {
		p.appm.StoreLatency.Observe(p.now().Sub(start).Seconds())
	}
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
			p.dropped(DropCircuitOpen, len(batch))
			p.logger.Warn("store circuit open, batch dropped", zap.Int("count", len(batch)))
			return
		}
		p.dropped(DropStoreError, len(batch))
		p.logger.Error("insert positions failed", zap.Int("count", len(batch)), zap.Error(err))
		return
	}
	if p.appm != nil {
		p.appm.PipelineStored.Add(float64(len(batch)))
	}

	if p.cache != nil {
		if err := p.cache.Update(ctx, batch); err != nil {
			p.logger.Warn("location cache update failed", zap.Error(err))
		}
	}
	if p.toucher != nil {
		if err := p.toucher.TouchLastSeen(ctx, deviceIDs(batch), p.now().UTC()); err != nil {
			p.logger.Warn("touch last seen failed", zap.Error(err))
		}
	}
}

func (p *Pipeline) dropped(reason string, n int) {
	if p.appm != nil {
		p.appm.PipelineDropped.WithLabelValues(reason).Add(float64(n))
	}
}

func deviceIDs(batch []*model.Position) []int64 {
	seen := make(map[int64]struct{}, len(batch))
	ids := make([]int64, 0, len(batch))
	for _, pos := range batch {
		if _, ok := seen[pos.DeviceID]; ok {
			continue
		}
		seen[pos.DeviceID] = struct{}{}
		ids = append(ids, pos.DeviceID)
	}
	return ids
}
