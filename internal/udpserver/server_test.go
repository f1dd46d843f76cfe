package udpserver

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
)

func startServer(t *testing.T, cfg cfgpkg.UDPConfig, setup func(*Server)) *Server {
	t.Helper()
	s := New("127.0.0.1:0", cfg, time.Second, nil)
	setup(s)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func TestServer_ReplyToSource(t *testing.T) {
	s := startServer(t, cfgpkg.UDPConfig{}, func(s *Server) {
		s.SetHandler(func(p *Peer, datagram []byte) {
			_ = p.Write(append([]byte("re:"), datagram...))
		})
	})

	c, err := net.Dial("udp", s.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "re:hello", string(buf[:n]))
	assert.Equal(t, 1, s.Peers())
}

func TestServer_PeerIdentity(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	got := make(chan struct{}, 4)
	s := startServer(t, cfgpkg.UDPConfig{}, func(s *Server) {
		s.SetHandler(func(p *Peer, _ []byte) {
			mu.Lock()
			ids = append(ids, p.ID())
			mu.Unlock()
			got <- struct{}{}
		})
	})

	c1, err := net.Dial("udp", s.Addr().String())
	require.NoError(t, err)
	defer c1.Close()
	c2, err := net.Dial("udp", s.Addr().String())
	require.NoError(t, err)
	defer c2.Close()

	for _, c := range []net.Conn{c1, c1, c2} {
		_, err := c.Write([]byte("x"))
		require.NoError(t, err)
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("数据报未送达")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, ids, 3)
	assert.Equal(t, ids[0], ids[1], "同一对端复用连接标识")
	assert.NotEqual(t, ids[0], ids[2])
	assert.Equal(t, "udp-"+c1.LocalAddr().String(), ids[0])
	assert.Equal(t, 2, s.Peers())
}

func TestServer_Sweep(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var expired []string
	s := New("127.0.0.1:0", cfgpkg.UDPConfig{}, 0, nil)
	s.now = func() time.Time { return now }
	s.SetOnPeerExpired(func(p *Peer) { expired = append(expired, p.ID()) })

	a := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1000}
	b := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 2), Port: 1000}
	s.peer(a.String(), a)
	now = now.Add(5 * time.Minute)
	s.peer(b.String(), b)

	assert.Equal(t, 1, s.Sweep(time.Minute))
	assert.Equal(t, []string{"udp-10.0.0.1:1000"}, expired)
	assert.Equal(t, 1, s.Peers())
}

func TestServer_PeerRateLimit(t *testing.T) {
	var drops int
	var mu sync.Mutex
	handled := make(chan struct{}, 8)
	s := startServer(t, cfgpkg.UDPConfig{PeerRate: 0.001, PeerBurst: 1}, func(s *Server) {
		s.SetHandler(func(*Peer, []byte) { handled <- struct{}{} })
		s.SetMetricsCallbacks(nil, nil, func() {
			mu.Lock()
			drops++
			mu.Unlock()
		})
	})

	c, err := net.Dial("udp", s.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	for i := 0; i < 3; i++ {
		_, err := c.Write([]byte("x"))
		require.NoError(t, err)
	}

	<-handled
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return drops == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, handled)
}

func TestServer_ShutdownExpiresPeers(t *testing.T) {
	expired := make(chan string, 1)
	got := make(chan struct{}, 1)
	s := New("127.0.0.1:0", cfgpkg.UDPConfig{}, 0, nil)
	s.SetHandler(func(*Peer, []byte) { got <- struct{}{} })
	s.SetOnPeerExpired(func(p *Peer) { expired <- p.ID() })
	require.NoError(t, s.Start())

	c, err := net.Dial("udp", s.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write([]byte("x"))
	require.NoError(t, err)
	<-got

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.False(t, s.Listening())
	assert.Equal(t, "udp-"+c.LocalAddr().String(), <-expired)
	assert.Zero(t, s.Peers())
}

func TestServer_SlowPeerDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	handled := make(chan string, 4)
	s := startServer(t, cfgpkg.UDPConfig{Workers: 4}, func(s *Server) {
		s.SetHandler(func(p *Peer, datagram []byte) {
			if string(datagram) == "slow" {
				<-release
			}
			handled <- string(datagram)
		})
	})

	slow, err := net.Dial("udp", s.Addr().String())
	require.NoError(t, err)
	defer slow.Close()

	// 另找一个落在不同处理协程上的对端
	var fast net.Conn
	for i := 0; i < 32 && fast == nil; i++ {
		c, err := net.Dial("udp", s.Addr().String())
		require.NoError(t, err)
		defer c.Close()
		if s.shardOf(c.LocalAddr().String()) != s.shardOf(slow.LocalAddr().String()) {
			fast = c
		}
	}
	require.NotNil(t, fast)

	_, err = slow.Write([]byte("slow"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = fast.Write([]byte("fast"))
	require.NoError(t, err)

	select {
	case got := <-handled:
		assert.Equal(t, "fast", got)
	case <-time.After(time.Second):
		t.Fatal("慢对端阻塞了其他对端")
	}
}

func TestServer_PeerOrderPreserved(t *testing.T) {
	handled := make(chan string, 16)
	s := startServer(t, cfgpkg.UDPConfig{Workers: 4}, func(s *Server) {
		s.SetHandler(func(_ *Peer, datagram []byte) { handled <- string(datagram) })
	})

	c, err := net.Dial("udp", s.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	want := []string{"1", "2", "3", "4", "5"}
	for _, m := range want {
		_, err := c.Write([]byte(m))
		require.NoError(t, err)
	}

	got := make([]string, 0, len(want))
	for range want {
		select {
		case m := <-handled:
			got = append(got, m)
		case <-time.After(2 * time.Second):
			t.Fatal("数据报未送达")
		}
	}
	assert.Equal(t, want, got)
}
