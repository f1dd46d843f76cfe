package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const defaultCheckTimeout = 3 * time.Second

// Aggregator 按名称汇总各组件检查器；同名检查器后注册者覆盖先注册者
type Aggregator struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	timeout  time.Duration
}

// NewAggregator 创建聚合器
func NewAggregator(checkers ...Checker) *Aggregator {
	a := &Aggregator{checkers: make(map[string]Checker, len(checkers)), timeout: defaultCheckTimeout}
	for _, c := range checkers {
		a.checkers[c.Name()] = c
	}
	return a
}

// AddChecker 添加或替换检查器
func (a *Aggregator) AddChecker(checker Checker) {
	a.mu.Lock()
	a.checkers[checker.Name()] = checker
	a.mu.Unlock()
}

// Names 已注册的检查器名称（有序）
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	names := make([]string, 0, len(a.checkers))
	for name := range a.checkers {
		names = append(names, name)
	}
	a.mu.RUnlock()
	sort.Strings(names)
	return names
}

// CheckAll 并发执行全部检查，每个检查受单独超时约束。
// 检查器 panic 记为不健康，不影响其他检查。
func (a *Aggregator) CheckAll(ctx context.Context) map[string]CheckResult {
	a.mu.RLock()
	checkers := make([]Checker, 0, len(a.checkers))
	for _, c := range a.checkers {
		checkers = append(checkers, c)
	}
	a.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			results[i] = a.run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]CheckResult, len(checkers))
	for i, c := range checkers {
		out[c.Name()] = results[i]
	}
	return out
}

func (a *Aggregator) run(ctx context.Context, c Checker) (res CheckResult) {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("checker panic: %v", r)}
		}
		if res.Latency == 0 {
			res.Latency = time.Since(start)
		}
	}()
	return c.Check(cctx)
}

// Summarize 任一组件不健康则整体不健康，否则任一降级则整体降级
func Summarize(results map[string]CheckResult) Status {
	overall := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// OverallStatus 计算总体健康状态
func (a *Aggregator) OverallStatus(ctx context.Context) Status {
	return Summarize(a.CheckAll(ctx))
}

// Ready 降级仍视为就绪
func (a *Aggregator) Ready(ctx context.Context) bool {
	return a.OverallStatus(ctx) != StatusUnhealthy
}

// HealthReport 健康报告
type HealthReport struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}
