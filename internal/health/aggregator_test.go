package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(_ context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "mock", Latency: time.Millisecond}
}

func TestAggregator(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		checks []Checker
		want   Status
		ready  bool
	}{
		{
			name:   "全部健康",
			checks: []Checker{&mockChecker{"database", StatusHealthy}, &mockChecker{"tcp:freematics", StatusHealthy}},
			want:   StatusHealthy,
			ready:  true,
		},
		{
			name:   "熔断降级仍就绪",
			checks: []Checker{&mockChecker{"database", StatusHealthy}, &mockChecker{"pipeline", StatusDegraded}},
			want:   StatusDegraded,
			ready:  true,
		},
		{
			name:   "监听失败不就绪",
			checks: []Checker{&mockChecker{"pipeline", StatusDegraded}, &mockChecker{"udp:freematics", StatusUnhealthy}},
			want:   StatusUnhealthy,
			ready:  false,
		},
		{
			name:  "无检查器",
			want:  StatusHealthy,
			ready: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(tt.checks...)
			assert.Equal(t, tt.want, agg.OverallStatus(ctx))
			assert.Equal(t, tt.ready, agg.Ready(ctx))
		})
	}

	t.Run("动态添加检查器", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"database", StatusHealthy})
		agg.AddChecker(&mockChecker{"redis", StatusHealthy})
		results := agg.CheckAll(ctx)
		assert.Len(t, results, 2)
		assert.Contains(t, results, "redis")
		assert.Equal(t, []string{"database", "redis"}, agg.Names())
	})

	t.Run("同名检查器覆盖", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"tcp:freematics", StatusUnhealthy})
		agg.AddChecker(&mockChecker{"tcp:freematics", StatusHealthy})
		assert.Equal(t, []string{"tcp:freematics"}, agg.Names())
		assert.Equal(t, StatusHealthy, agg.OverallStatus(ctx))
	})

	t.Run("检查器panic记为不健康", func(t *testing.T) {
		agg := NewAggregator(&mockChecker{"database", StatusHealthy}, CheckerFunc("broken", func(context.Context) CheckResult {
			panic("boom")
		}))
		results := agg.CheckAll(ctx)
		assert.Equal(t, StatusUnhealthy, results["broken"].Status)
		assert.Contains(t, results["broken"].Message, "boom")
		assert.Equal(t, StatusHealthy, results["database"].Status)
	})
}

type slowChecker struct{}

func (slowChecker) Name() string { return "slow" }

func (slowChecker) Check(ctx context.Context) CheckResult {
	<-ctx.Done()
	return CheckResult{Status: StatusUnhealthy, Message: ctx.Err().Error()}
}

func TestAggregator_CheckTimeout(t *testing.T) {
	agg := NewAggregator(slowChecker{})
	agg.timeout = 20 * time.Millisecond
	res := agg.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, res["slow"].Status)
}
