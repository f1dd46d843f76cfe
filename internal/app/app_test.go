package app

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
	"github.com/taoyao-code/tracker-server/internal/health"
	"github.com/taoyao-code/tracker-server/internal/model"
	"github.com/taoyao-code/tracker-server/internal/pipeline"
	"github.com/taoyao-code/tracker-server/internal/session"
	"github.com/taoyao-code/tracker-server/internal/storage"
)

func TestGenerateServerID(t *testing.T) {
	t.Run("配置优先", func(t *testing.T) {
		t.Setenv("SERVER_ID", "from-env")
		assert.Equal(t, "configured", GenerateServerID("configured"))
	})

	t.Run("环境变量次之", func(t *testing.T) {
		t.Setenv("SERVER_ID", "from-env")
		assert.Equal(t, "from-env", GenerateServerID(""))
	})

	t.Run("自动生成", func(t *testing.T) {
		t.Setenv("SERVER_ID", "")
		a, b := GenerateServerID(""), GenerateServerID("")
		assert.True(t, strings.HasPrefix(a, "tracker-"))
		assert.NotEqual(t, a, b)
	})
}

func TestNewMetrics(t *testing.T) {
	reg, appm := NewMetrics("v1.2.3", "tracker-a")
	require.NotNil(t, appm)

	families, err := reg.Gather()
	require.NoError(t, err)
	var labels map[string]string
	for _, mf := range families {
		if mf.GetName() != "tracker_build_info" {
			continue
		}
		labels = map[string]string{}
		for _, lp := range mf.GetMetric()[0].GetLabel() {
			labels[lp.GetName()] = lp.GetValue()
		}
		assert.Equal(t, 1.0, mf.GetMetric()[0].GetGauge().GetValue())
	}
	assert.Equal(t, map[string]string{"version": "v1.2.3", "server_id": "tracker-a"}, labels)
}

func TestNewQueue(t *testing.T) {
	q, err := NewQueue(cfgpkg.PipelineConfig{Queue: "memory", Buffer: 8}, nil)
	require.NoError(t, err)
	assert.IsType(t, &pipeline.MemoryQueue{}, q)

	_, err = NewQueue(cfgpkg.PipelineConfig{Queue: "redis"}, nil)
	assert.Error(t, err)

	_, err = NewQueue(cfgpkg.PipelineConfig{Queue: "kafka"}, nil)
	assert.Error(t, err)
}

func TestNewPositionBackend(t *testing.T) {
	b, err := NewPositionBackend(cfgpkg.PipelineConfig{Store: "none"}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, storage.DiscardStore{}, b.Store)
	assert.Nil(t, b.Locations)
	assert.Nil(t, b.Query)

	_, err = NewPositionBackend(cfgpkg.PipelineConfig{Store: "postgres"}, nil, nil)
	assert.Error(t, err)
	_, err = NewPositionBackend(cfgpkg.PipelineConfig{Store: "mongo"}, nil, nil)
	assert.Error(t, err)
	_, err = NewPositionBackend(cfgpkg.PipelineConfig{Store: "sqlite"}, nil, nil)
	assert.Error(t, err)
}

func TestNewDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices:\n  - uniqueId: M0ZR4X0\n"), 0o600))

	dir, err := NewDirectory(cfgpkg.SessionConfig{Directory: "file", DirectoryFile: path}, nil, zap.NewNop())
	require.NoError(t, err)
	dev, err := dir.FindDevice(context.Background(), "M0ZR4X0")
	require.NoError(t, err)
	assert.Equal(t, int64(1), dev.ID)

	_, err = NewDirectory(cfgpkg.SessionConfig{Directory: "database"}, nil, zap.NewNop())
	assert.Error(t, err)
}

type recordingSink struct {
	mu        sync.Mutex
	positions []*model.Position
}

func (s *recordingSink) Submit(_ context.Context, positions []*model.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, positions...)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.positions)
}

func TestStartListeners(t *testing.T) {
	cfg := &cfgpkg.Config{
		TCP: cfgpkg.TCPConfig{ReadTimeout: 5 * time.Second, WriteTimeout: time.Second, MaxFrameLength: 4096},
		Protocols: cfgpkg.ProtocolsConfig{Freematics: cfgpkg.FreematicsConfig{
			Enabled: true,
			TCPAddr: "127.0.0.1:0",
			UDPAddr: "127.0.0.1:0",
		}},
	}
	_, appm := NewMetrics("test", "tracker-test")
	sessions := NewRegistry(session.NewStaticDirectory(session.Device{UniqueID: "M0ZR4X0"}), nil, nil, appm, zap.NewNop())
	protocols, err := NewProtocolRegistry(cfg, sessions, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"freematics"}, protocols.Names())

	agg := NewHealthAggregator(sessions)
	readiness := health.New()
	sink := &recordingSink{}

	l, err := StartListeners(cfg, protocols, sink, sessions, appm, agg, readiness, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, l.tcp, 1)
	require.Len(t, l.udp, 1)
	assert.True(t, readiness.Ready())

	results := agg.CheckAll(context.Background())
	assert.Equal(t, health.StatusHealthy, results["tcp:freematics"].Status)
	assert.Equal(t, health.StatusHealthy, results["udp:freematics"].Status)

	c, err := net.Dial("tcp", l.tcp[0].Addr().String())
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write([]byte("M0ZR4X0#0:204391,11:140221,10:8445000,A:49.215920,B:18.737755,C:410,D:0,E:208,24:1252,20:0;0;0,82:47*B5\r\n"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, sessions.Count())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Shutdown(ctx))
	assert.Equal(t, health.StatusUnhealthy, agg.CheckAll(context.Background())["tcp:freematics"].Status)
}

func TestStartListeners_BindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := &cfgpkg.Config{Protocols: cfgpkg.ProtocolsConfig{Freematics: cfgpkg.FreematicsConfig{
		Enabled: true,
		TCPAddr: ln.Addr().String(),
	}}}
	_, appm := NewMetrics("test", "tracker-test")
	sessions := NewRegistry(session.NewStaticDirectory(), nil, nil, appm, zap.NewNop())
	protocols, err := NewProtocolRegistry(cfg, sessions, zap.NewNop())
	require.NoError(t, err)

	readiness := health.New()
	_, err = StartListeners(cfg, protocols, &recordingSink{}, sessions, appm, NewHealthAggregator(sessions), readiness, zap.NewNop())
	assert.Error(t, err)
	assert.False(t, readiness.Ready())
	assert.Equal(t, []string{"tcp:freematics"}, readiness.Pending())
}

func TestEndpoints(t *testing.T) {
	assert.Empty(t, endpoints(cfgpkg.ProtocolsConfig{}))
	eps := endpoints(cfgpkg.ProtocolsConfig{Freematics: cfgpkg.FreematicsConfig{Enabled: true, UDPAddr: ":5170"}})
	require.Len(t, eps, 1)
	assert.Empty(t, eps[0].tcpAddr)
	assert.Equal(t, ":5170", eps[0].udpAddr)
}
