package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DatabaseChecker PostgreSQL：连通性、连接池占用、已应用的迁移版本
type DatabaseChecker struct {
	pool *pgxpool.Pool
}

func NewDatabaseChecker(pool *pgxpool.Pool) *DatabaseChecker {
	return &DatabaseChecker{pool: pool}
}

func (c *DatabaseChecker) Name() string { return "database" }

func (c *DatabaseChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	var version int64
	err := c.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&version)
	if err != nil {
		// 迁移表缺失时再区分是否完全不可达
		if perr := c.pool.Ping(ctx); perr != nil {
			return CheckResult{Status: StatusUnhealthy, Message: fmt.Sprintf("ping failed: %v", perr), Latency: time.Since(start)}
		}
	}

	st := c.pool.Stat()
	used := ratio(int(st.AcquiredConns()), int(st.MaxConns()))
	r := CheckResult{
		Details: map[string]interface{}{
			"acquired_conns": st.AcquiredConns(),
			"idle_conns":     st.IdleConns(),
			"max_conns":      st.MaxConns(),
			"utilization":    percent(used),
		},
		Latency: time.Since(start),
	}
	if err != nil {
		r.Status, r.Message = StatusDegraded, fmt.Sprintf("schema version unavailable: %v", err)
		return r
	}
	r.Details["schema_version"] = version
	r.Status, r.Message = usageStatus(used, 0.9, 1.0, "connection pool")
	return r
}
