package pg

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPgxZapLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := &pgxZapLogger{logger: zap.New(core)}

	l.Log(context.Background(), tracelog.LogLevelTrace, "Query", map[string]any{"sql": "select 1"})
	assert.Zero(t, logs.Len(), "Debug 以下级别应被过滤")

	l.Log(context.Background(), tracelog.LogLevelWarn, "Query", map[string]any{"err": "timeout"})
	l.Log(context.Background(), tracelog.LogLevel(99), "Prepare", nil)

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "pgx query", entries[0].Message)
	assert.Equal(t, "timeout", entries[0].ContextMap()["err"])
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
}
