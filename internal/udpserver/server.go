package udpserver

import (
	"context"
	"errors"
	"hash/fnv"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
	"github.com/taoyao-code/tracker-server/internal/netlimit"
)

// Peer 一个 UDP 对端，按远端地址区分，作为解码器可见的“连接”
type Peer struct {
	s        *Server
	addr     net.Addr
	id       string
	lastSeen atomic.Int64
}

// ID 连接标识：udp-<远端地址>
func (p *Peer) ID() string { return p.id }

// RemoteAddr 远端地址
func (p *Peer) RemoteAddr() net.Addr { return p.addr }

// Write 向对端发送一个数据报
func (p *Peer) Write(b []byte) error {
	pc := p.s.pc
	if pc == nil {
		return net.ErrClosed
	}
	if p.s.cfgWriteTimeout > 0 {
		_ = pc.SetWriteDeadline(time.Now().Add(p.s.cfgWriteTimeout))
	}
	_, err := pc.WriteTo(b, p.addr)
	return err
}

// LastSeen 最近一次收到数据报的时间
func (p *Peer) LastSeen() time.Time { return time.Unix(0, p.lastSeen.Load()) }

// Server 单 socket UDP 监听器，每个数据报即一帧
type Server struct {
	addr            string
	cfg             cfgpkg.UDPConfig
	cfgWriteTimeout time.Duration
	logger          *zap.Logger

	pc       net.PacketConn
	wg       sync.WaitGroup
	stopC    chan struct{}
	stopOnce sync.Once

	peers     sync.Map // key -> *Peer
	peerCount atomic.Int64
	rate      *netlimit.KeyedRateLimiter
	now       func() time.Time

	handler func(p *Peer, datagram []byte)
	shards  []chan datagramJob
	// 可选回调
	onNewPeer     func()
	onRecvBytes   func(n int)
	onDrop        func()
	onPeerExpired func(p *Peer)
}

// New 创建 UDP 监听器
func New(addr string, cfg cfgpkg.UDPConfig, writeTimeout time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr:            addr,
		cfg:             cfg,
		cfgWriteTimeout: writeTimeout,
		logger:          logger,
		stopC:           make(chan struct{}),
		now:             time.Now,
	}
	if cfg.PeerRate > 0 {
		s.rate = netlimit.NewKeyedRateLimiter(cfg.PeerRate, cfg.PeerBurst)
	}
	return s
}

type datagramJob struct {
	peer *Peer
	data []byte
}

// SetHandler 设置数据报处理回调。同一对端的数据报按到达顺序串行处理，
// 不同对端可并发；datagram 可被保留。
func (s *Server) SetHandler(h func(p *Peer, datagram []byte)) { s.handler = h }

// SetMetricsCallbacks 设置指标回调
func (s *Server) SetMetricsCallbacks(onNewPeer func(), onRecvBytes func(int), onDrop func()) {
	s.onNewPeer, s.onRecvBytes, s.onDrop = onNewPeer, onRecvBytes, onDrop
}

// SetOnPeerExpired 对端空闲过期回调（用于释放设备会话）
func (s *Server) SetOnPeerExpired(fn func(p *Peer)) { s.onPeerExpired = fn }

// Start 绑定 socket 并启动读循环与过期清理
func (s *Server) Start() error {
	pc, err := net.ListenPacket("udp", s.addr)
	if err != nil {
		return err
	}
	s.pc = pc
	s.logger.Info("udp listener started", zap.String("addr", pc.LocalAddr().String()))

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 8
	}
	depth := s.cfg.WorkerQueue
	if depth <= 0 {
		depth = 256
	}
	s.shards = make([]chan datagramJob, workers)
	for i := range s.shards {
		s.shards[i] = make(chan datagramJob, depth)
		s.wg.Add(1)
		go s.worker(s.shards[i])
	}

	s.wg.Add(1)
	go s.readLoop()

	if s.cfg.SessionIdle > 0 {
		s.wg.Add(1)
		go s.sweepLoop()
	}
	return nil
}

// Addr 实际监听地址
func (s *Server) Addr() net.Addr {
	if s.pc == nil {
		return nil
	}
	return s.pc.LocalAddr()
}

func (s *Server) worker(jobs <-chan datagramJob) {
	defer s.wg.Done()
	for job := range jobs {
		s.handler(job.peer, job.data)
	}
}

// dispatch 按对端地址哈希选择处理协程；队列满时丢弃，读循环不等待
func (s *Server) dispatch(key string, p *Peer, datagram []byte) bool {
	select {
	case s.shards[s.shardOf(key)] <- datagramJob{peer: p, data: datagram}:
		return true
	default:
		return false
	}
}

func (s *Server) shardOf(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.shards)))
}

func (s *Server) readLoop() {
	defer s.wg.Done()
	defer func() {
		for _, ch := range s.shards {
			close(ch)
		}
	}()
	size := s.cfg.ReadBuffer
	if size <= 0 {
		size = 2048
	}
	buf := make([]byte, size)
	for {
		n, addr, err := s.pc.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.stopC:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("udp read failed", zap.Error(err))
			continue
		}
		if n == 0 {
			continue
		}
		if s.onRecvBytes != nil {
			s.onRecvBytes(n)
		}

		key := addr.String()
		if s.rate != nil && !s.rate.Allow(key) {
			if s.onDrop != nil {
				s.onDrop()
			}
			continue
		}

		p := s.peer(key, addr)
		if s.handler != nil {
			datagram := make([]byte, n)
			copy(datagram, buf[:n])
			if !s.dispatch(key, p, datagram) {
				s.logger.Debug("udp worker queue full, datagram dropped", zap.String("peer", key))
				if s.onDrop != nil {
					s.onDrop()
				}
			}
		}
	}
}

func (s *Server) peer(key string, addr net.Addr) *Peer {
	now := s.now().UnixNano()
	if v, ok := s.peers.Load(key); ok {
		p := v.(*Peer)
		p.lastSeen.Store(now)
		return p
	}
	p := &Peer{s: s, addr: addr, id: "udp-" + key}
	p.lastSeen.Store(now)
	if v, loaded := s.peers.LoadOrStore(key, p); loaded {
		return v.(*Peer)
	}
	s.peerCount.Add(1)
	if s.onNewPeer != nil {
		s.onNewPeer()
	}
	return p
}

func (s *Server) sweepLoop() {
	defer s.wg.Done()
	interval := s.cfg.SessionIdle / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopC:
			return
		case <-ticker.C:
			if n := s.Sweep(s.cfg.SessionIdle); n > 0 {
				s.logger.Debug("udp peers expired", zap.Int("count", n))
			}
		}
	}
}

// Sweep 移除 idle 时间内无数据的对端，返回移除数量
func (s *Server) Sweep(idle time.Duration) int {
	cutoff := s.now().Add(-idle).UnixNano()
	n := 0
	s.peers.Range(func(k, v any) bool {
		p := v.(*Peer)
		if p.lastSeen.Load() < cutoff {
			s.peers.Delete(k)
			s.peerCount.Add(-1)
			n++
			if s.onPeerExpired != nil {
				s.onPeerExpired(p)
			}
		}
		return true
	})
	if s.rate != nil {
		s.rate.Sweep(idle)
	}
	return n
}

// Peers 当前对端数量
func (s *Server) Peers() int { return int(s.peerCount.Load()) }

// Listening 监听器是否处于运行状态
func (s *Server) Listening() bool {
	if s.pc == nil {
		return false
	}
	select {
	case <-s.stopC:
		return false
	default:
		return true
	}
}

// Shutdown 关闭 socket，等待读循环退出、已入队数据报处理完毕；剩余对端按过期处理
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopC)
		if s.pc != nil {
			_ = s.pc.Close()
		}
	})

	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
	}
	s.peers.Range(func(k, v any) bool {
		s.peers.Delete(k)
		s.peerCount.Add(-1)
		if s.onPeerExpired != nil {
			s.onPeerExpired(v.(*Peer))
		}
		return true
	})
	return nil
}
