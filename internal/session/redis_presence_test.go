package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 使用测试用Redis客户端（需要真实Redis实例）
func setupTestRedis(t *testing.T) *redis.Client {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   15, // 使用测试专用数据库
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping test")
		return nil
	}
	client.FlushDB(ctx)

	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})
	return client
}

func TestRedisPresence(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}
	ctx := context.Background()

	p := NewRedisPresence(client, "test-server-1", time.Minute)
	r := NewRegistry(NewStaticDirectory(Device{ID: 42, UniqueID: "M0ZR4X0"}), nil, nil)
	r.SetPresence(p)

	s, err := r.Resolve(ctx, "c1", remote, "M0ZR4X0")
	require.NoError(t, err)

	info, err := p.Lookup(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, s.ID(), info.SessionID)
	assert.Equal(t, "test-server-1", info.ServerID)
	assert.Equal(t, remote.String(), info.Remote)

	n, err := p.OnlineDevices(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	r.Release("c1")
	info, err = p.Lookup(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestRedisPresence_Cleanup(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}
	ctx := context.Background()

	p := NewRedisPresence(client, "", time.Minute)
	assert.NotEmpty(t, p.ServerID())

	r := NewRegistry(NewStaticDirectory(Device{ID: 1, UniqueID: "A"}, Device{ID: 2, UniqueID: "B"}), nil, nil)
	r.SetPresence(p)
	_, err := r.Resolve(ctx, "c1", remote, "A")
	require.NoError(t, err)
	_, err = r.Resolve(ctx, "c2", remote, "B")
	require.NoError(t, err)

	require.NoError(t, p.Cleanup(ctx))
	n, err := p.OnlineDevices(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	info, err := p.Lookup(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, info)
}
