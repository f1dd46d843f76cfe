package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
	"github.com/taoyao-code/tracker-server/internal/netlimit"
)

// 拒绝原因（指标标签）
const (
	RejectLimit = "limit"
	RejectRate  = "rate"
)

// Server TCP 监听器：每个连接一个 ConnContext，由 handler 绑定协议处理
type Server struct {
	addr   string
	cfg    cfgpkg.TCPConfig
	logger *zap.Logger

	ln       net.Listener
	wg       sync.WaitGroup
	stopC    chan struct{}
	stopOnce sync.Once

	nextConnID atomic.Uint64
	conns      sync.Map // id -> *ConnContext

	limiter     *netlimit.ConnectionLimiter
	rateLimiter *netlimit.RateLimiter

	handler func(*ConnContext)
	// 可选指标回调
	onAccept    func()
	onReject    func(reason string)
	onRecvBytes func(n int)
}

// New 创建 TCP 监听器
func New(addr string, cfg cfgpkg.TCPConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		addr:    addr,
		cfg:     cfg,
		logger:  logger,
		stopC:   make(chan struct{}),
		limiter: netlimit.NewConnectionLimiter(cfg.MaxConnections, cfg.MaxConnectionsPerHost, time.Second),
	}
	if cfg.AcceptRate > 0 {
		s.rateLimiter = netlimit.NewRateLimiter(cfg.AcceptRate, cfg.AcceptBurst)
	}
	return s
}

// SetHandler 设置新连接回调，在读循环启动前调用
func (s *Server) SetHandler(h func(*ConnContext)) { s.handler = h }

// SetMetricsCallbacks 设置指标回调
func (s *Server) SetMetricsCallbacks(onAccept func(), onReject func(string), onRecvBytes func(int)) {
	s.onAccept, s.onReject, s.onRecvBytes = onAccept, onReject, onRecvBytes
}

// Start 监听并接受连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("tcp listener started", zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr 实际监听地址（端口为 0 时用于获取系统分配的端口）
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopC:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// 短暂错误等待后重试
			s.logger.Warn("tcp accept failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if s.rateLimiter != nil && !s.rateLimiter.Allow() {
			s.reject(c, RejectRate, nil)
			continue
		}

		s.wg.Add(1)
		go s.serve(c)
	}
}

func (s *Server) serve(c net.Conn) {
	defer s.wg.Done()

	host := hostOf(c.RemoteAddr())
	if err := s.limiter.Acquire(context.Background(), host); err != nil {
		s.reject(c, RejectLimit, err)
		return
	}
	defer s.limiter.Release(host)

	if s.onAccept != nil {
		s.onAccept()
	}

	cc := newConnContext(s, c)
	s.conns.Store(cc.ID(), cc)
	defer s.conns.Delete(cc.ID())
	select {
	case <-s.stopC:
		// Shutdown 已遍历过连接表
		_ = cc.Close()
	default:
	}

	s.logger.Debug("tcp connection accepted",
		zap.String("conn", cc.ID()),
		zap.String("remote", c.RemoteAddr().String()))

	if s.handler != nil {
		s.handler(cc)
	}
	cc.run()

	s.logger.Debug("tcp connection closed", zap.String("conn", cc.ID()))
}

func (s *Server) reject(c net.Conn, reason string, err error) {
	if s.onReject != nil {
		s.onReject(reason)
	}
	s.logger.Warn("tcp connection rejected",
		zap.String("reason", reason),
		zap.String("remote", c.RemoteAddr().String()),
		zap.Error(err))
	_ = c.Close()
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// ActiveConnections 当前连接数
func (s *Server) ActiveConnections() int { return s.limiter.Current() }

// MaxConnections 最大连接数
func (s *Server) MaxConnections() int { return s.limiter.MaxConnections() }

// LimiterStats 连接限流统计
func (s *Server) LimiterStats() netlimit.LimiterStats { return s.limiter.Stats() }

// RateLimiterStats accept 速率统计，未启用时返回 nil
func (s *Server) RateLimiterStats() *netlimit.RateLimiterStats {
	if s.rateLimiter == nil {
		return nil
	}
	st := s.rateLimiter.Stats()
	return &st
}

// Listening 监听器是否处于运行状态
func (s *Server) Listening() bool {
	if s.ln == nil {
		return false
	}
	select {
	case <-s.stopC:
		return false
	default:
		return true
	}
}

// Shutdown 关闭监听、断开所有连接并等待处理协程退出
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopC)
		if s.ln != nil {
			_ = s.ln.Close()
		}
		s.conns.Range(func(_, v any) bool {
			_ = v.(*ConnContext).Close()
			return true
		})
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
		return nil
	}
}
