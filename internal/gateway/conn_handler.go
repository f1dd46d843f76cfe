package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/tracker-server/internal/metrics"
	"github.com/taoyao-code/tracker-server/internal/model"
	"github.com/taoyao-code/tracker-server/internal/protocol/adapter"
	"github.com/taoyao-code/tracker-server/internal/tcpserver"
	"github.com/taoyao-code/tracker-server/internal/udpserver"
)

const defaultFrameTimeout = 10 * time.Second

// Sink 接收解码结果，不得阻塞解码路径
type Sink interface {
	Submit(ctx context.Context, positions []*model.Position)
}

// SessionReleaser 管理会话与连接生命周期的绑定：TCP 连接建立时 Hold，连接结束时 Release
type SessionReleaser interface {
	Hold(connKey string)
	Release(connKey string)
}

// Handler 将一个协议的分帧器与解码器绑定到 TCP 连接或 UDP 对端
type Handler struct {
	proto    adapter.Protocol
	sink     Sink
	sessions SessionReleaser
	appm     *metrics.AppMetrics
	logger   *zap.Logger

	frameTimeout time.Duration
}

// New 创建连接处理器；appm 可为空
func New(proto adapter.Protocol, sink Sink, sessions SessionReleaser, appm *metrics.AppMetrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		proto:        proto,
		sink:         sink,
		sessions:     sessions,
		appm:         appm,
		logger:       logger.With(zap.String("protocol", proto.Name)),
		frameTimeout: defaultFrameTimeout,
	}
}

// TCP 返回 tcpserver 的新连接回调：每个连接独占一个分帧器
func (h *Handler) TCP() func(*tcpserver.ConnContext) {
	return func(cc *tcpserver.ConnContext) {
		var framer adapter.Framer
		if h.proto.NewFramer != nil {
			framer = h.proto.NewFramer()
		}
		conn := h.wrap(cc)
		if h.sessions != nil {
			h.sessions.Hold(cc.ID())
		}

		cc.SetOnRead(func(p []byte) {
			if framer == nil {
				h.HandleFrame(conn, append([]byte(nil), p...))
				return
			}
			frames, err := framer.Feed(p)
			for _, f := range frames {
				h.HandleFrame(conn, f)
			}
			if err != nil {
				h.logger.Warn("frame buffer discarded", zap.String("conn", cc.ID()), zap.Error(err))
				h.countFrame(metrics.ResultError)
			}
		})

		go func() {
			<-cc.Done()
			h.release(cc.ID())
		}()
	}
}

// UDP 返回 udpserver 的数据报回调：每个数据报即一帧
func (h *Handler) UDP() func(*udpserver.Peer, []byte) {
	return func(p *udpserver.Peer, datagram []byte) {
		h.HandleFrame(h.wrap(p), datagram)
	}
}

// PeerExpired UDP 对端过期时释放会话
func (h *Handler) PeerExpired(p *udpserver.Peer) { h.release(p.ID()) }

// HandleFrame 解码一帧并把定位交给 Sink
func (h *Handler) HandleFrame(conn adapter.Conn, frame []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), h.frameTimeout)
	defer cancel()

	positions, err := h.proto.Decoder.Decode(ctx, conn, frame)
	if err != nil {
		if adapter.IsCorruption(err) {
			h.logger.Warn("corrupted frame dropped", zap.String("conn", conn.ID()), zap.Error(err))
			h.countFrame(metrics.ResultCorrupted)
			return
		}
		h.logger.Error("frame decode failed", zap.String("conn", conn.ID()), zap.Error(err))
		h.countFrame(metrics.ResultError)
		return
	}
	if len(positions) == 0 {
		h.countFrame(metrics.ResultEmpty)
		return
	}

	h.countFrame(metrics.ResultOK)
	if h.appm != nil {
		h.appm.PositionsOut.WithLabelValues(h.proto.Name).Add(float64(len(positions)))
	}
	if h.sink != nil {
		h.sink.Submit(ctx, positions)
	}
}

func (h *Handler) release(connKey string) {
	if h.sessions != nil {
		h.sessions.Release(connKey)
	}
}

func (h *Handler) countFrame(result string) {
	if h.appm != nil {
		h.appm.FramesTotal.WithLabelValues(h.proto.Name, result).Inc()
	}
}

func (h *Handler) wrap(c adapter.Conn) adapter.Conn {
	if h.appm == nil {
		return c
	}
	return &ackConn{Conn: c, h: h}
}

// ackConn 统计应答写入结果
type ackConn struct {
	adapter.Conn
	h *Handler
}

func (c *ackConn) Write(b []byte) error {
	err := c.Conn.Write(b)
	result := metrics.ResultOK
	if err != nil {
		result = metrics.ResultError
	}
	c.h.appm.AcksTotal.WithLabelValues(c.h.proto.Name, result).Inc()
	return err
}
