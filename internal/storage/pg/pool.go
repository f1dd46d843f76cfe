package pg

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
)

// NewPool 创建 pgx 连接池；开启 SQLTrace 时逐条记录 SQL（Debug 级别）
func NewPool(ctx context.Context, dbCfg cfgpkg.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbCfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if logger != nil {
		level := tracelog.LogLevelWarn
		if dbCfg.SQLTrace {
			level = tracelog.LogLevelTrace
		}
		cfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   &pgxZapLogger{logger: logger.Named("pgx")},
			LogLevel: level,
		}
	}

	cfg.MaxConns = 20
	if dbCfg.MaxOpenConns > 0 {
		cfg.MaxConns = int32(dbCfg.MaxOpenConns)
	}
	cfg.MinConns = 2
	if dbCfg.MaxIdleConns > 0 {
		cfg.MinConns = int32(dbCfg.MaxIdleConns)
	}
	cfg.MaxConnLifetime = time.Hour
	if dbCfg.ConnMaxLifetime > 0 {
		cfg.MaxConnLifetime = dbCfg.ConnMaxLifetime
	}

	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// pgxZapLogger 把 tracelog 输出转发到 zap；trace 级别的 SQL 明细按 Debug 记录
type pgxZapLogger struct {
	logger *zap.Logger
}

var pgxLevels = map[tracelog.LogLevel]zapcore.Level{
	tracelog.LogLevelTrace: zapcore.DebugLevel,
	tracelog.LogLevelDebug: zapcore.DebugLevel,
	tracelog.LogLevelInfo:  zapcore.InfoLevel,
	tracelog.LogLevelWarn:  zapcore.WarnLevel,
	tracelog.LogLevelError: zapcore.ErrorLevel,
}

func (l *pgxZapLogger) Log(_ context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
	lvl, ok := pgxLevels[level]
	if !ok {
		lvl = zapcore.InfoLevel
	}
	ce := l.logger.Check(lvl, "pgx "+strings.ToLower(msg))
	if ce == nil {
		return
	}
	fields := make([]zap.Field, 0, len(data))
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}
	ce.Write(fields...)
}
