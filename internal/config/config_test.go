package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "app:\n  name: tracker-test\n"))
	require.NoError(t, err)

	assert.Equal(t, "tracker-test", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Minute, cfg.TCP.ReadTimeout)
	assert.Equal(t, 4096, cfg.TCP.MaxFrameLength)
	assert.Equal(t, 10*time.Minute, cfg.UDP.SessionIdle)
	assert.Equal(t, 8, cfg.UDP.Workers)
	assert.Equal(t, 256, cfg.UDP.WorkerQueue)
	assert.False(t, cfg.API.Swagger)
	assert.Equal(t, "database", cfg.Session.Directory)
	assert.Equal(t, "postgres", cfg.Pipeline.Store)
	assert.Equal(t, "memory", cfg.Pipeline.Queue)
	assert.True(t, cfg.Protocols.Freematics.Enabled)
	assert.Equal(t, ":5170", cfg.Protocols.Freematics.TCPAddr)
	assert.False(t, cfg.Protocols.Freematics.AckServerTime)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
session:
  directory: file
  directoryFile: devices.yaml
pipeline:
  store: mongo
mongo:
  enabled: true
protocols:
  freematics:
    udpAddr: ""
    ackServerTime: true
`)
	t.Setenv("TRACKER_HTTP_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "file", cfg.Session.Directory)
	assert.Equal(t, "mongo", cfg.Pipeline.Store)
	assert.Empty(t, cfg.Protocols.Freematics.UDPAddr)
	assert.True(t, cfg.Protocols.Freematics.AckServerTime)
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"未知目录类型", "session:\n  directory: ldap\n"},
		{"文件目录缺少路径", "session:\n  directory: file\n  directoryFile: \"\"\n"},
		{"mongo 存储未启用", "pipeline:\n  store: mongo\n"},
		{"redis 队列未启用", "pipeline:\n  queue: redis\n"},
		{"数据库关闭但目录依赖数据库", "database:\n  enabled: false\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, c.body))
			assert.Error(t, err)
		})
	}
}
