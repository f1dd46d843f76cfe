package pipeline

import (
	"errors"
	"sync"
	"time"
)

// State 熔断器状态
type State int

const (
	StateClosed   State = iota // 正常写入
	StateOpen                  // 存储不可用，直接丢弃
	StateHalfOpen              // 试探恢复
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen 熔断器打开，拒绝写入
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests 半开状态试探请求过多
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Breaker 存储写入熔断器：连续失败 threshold 次后打开，timeout 后半开试探
type Breaker struct {
	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	inflight      int
	lastFailTime  time.Time
	lastStateTime time.Time
	tripCount     int64

	threshold   int
	timeout     time.Duration
	halfOpenMax int
	now         func() time.Time

	onStateChange func(from, to State)
}

// NewBreaker 创建熔断器
func NewBreaker(threshold int, timeout time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Breaker{
		state:         StateClosed,
		threshold:     threshold,
		timeout:       timeout,
		halfOpenMax:   2,
		now:           time.Now,
		lastStateTime: time.Now(),
	}
}

// Call 在熔断保护下执行 fn
func (b *Breaker) Call(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(err)
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.lastFailTime) < b.timeout {
			return ErrCircuitOpen
		}
		b.transitionTo(StateHalfOpen)
		b.failureCount = 0
		b.successCount = 0
		b.inflight = 1
		return nil
	case StateHalfOpen:
		if b.inflight >= b.halfOpenMax {
			return ErrTooManyRequests
		}
		b.inflight++
		return nil
	default:
		return ErrCircuitOpen
	}
}

func (b *Breaker) after(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.inflight > 0 {
		b.inflight--
	}
	if err != nil {
		b.failureCount++
		b.lastFailTime = b.now()
		switch b.state {
		case StateClosed:
			if b.failureCount >= b.threshold {
				b.transitionTo(StateOpen)
				b.tripCount++
			}
		case StateHalfOpen:
			b.transitionTo(StateOpen)
			b.tripCount++
		}
		return
	}

	b.successCount++
	switch b.state {
	case StateHalfOpen:
		if b.successCount >= b.halfOpenMax {
			b.transitionTo(StateClosed)
			b.failureCount = 0
			b.successCount = 0
		}
	case StateClosed:
		// 只统计连续失败
		b.failureCount = 0
	}
}

func (b *Breaker) transitionTo(s State) {
	if b.state == s {
		return
	}
	from := b.state
	b.state = s
	b.lastStateTime = b.now()
	if b.onStateChange != nil {
		go b.onStateChange(from, s)
	}
}

// State 当前状态
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetStateChangeCallback 状态变化回调（异步执行）
func (b *Breaker) SetStateChangeCallback(fn func(from, to State)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Reset 手动恢复
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed)
	b.failureCount = 0
	b.successCount = 0
	b.inflight = 0
}

// BreakerStats 熔断器统计
type BreakerStats struct {
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	TripCount       int64     `json:"trip_count"`
	LastStateChange time.Time `json:"last_state_change"`
}

// Stats 统计信息
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		State:           b.state.String(),
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		TripCount:       b.tripCount,
		LastStateChange: b.lastStateTime,
	}
}
