package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/tracker-server/internal/config"
	"github.com/taoyao-code/tracker-server/internal/gateway"
	"github.com/taoyao-code/tracker-server/internal/health"
	"github.com/taoyao-code/tracker-server/internal/metrics"
	"github.com/taoyao-code/tracker-server/internal/protocol/adapter"
	"github.com/taoyao-code/tracker-server/internal/protocol/freematics"
	"github.com/taoyao-code/tracker-server/internal/session"
	"github.com/taoyao-code/tracker-server/internal/tcpserver"
	"github.com/taoyao-code/tracker-server/internal/udpserver"
)

// endpoint 一个协议的监听地址，地址为空表示不监听该传输
type endpoint struct {
	protocol string
	tcpAddr  string
	udpAddr  string
}

func endpoints(cfg cfgpkg.ProtocolsConfig) []endpoint {
	var out []endpoint
	if cfg.Freematics.Enabled {
		out = append(out, endpoint{
			protocol: freematics.ProtocolName,
			tcpAddr:  cfg.Freematics.TCPAddr,
			udpAddr:  cfg.Freematics.UDPAddr,
		})
	}
	return out
}

// NewProtocolRegistry 注册已启用协议的解码器
func NewProtocolRegistry(cfg *cfgpkg.Config, sessions *session.Registry, logger *zap.Logger) (*adapter.Registry, error) {
	reg := adapter.NewRegistry()
	if cfg.Protocols.Freematics.Enabled {
		dec := freematics.NewDecoder(sessions, freematics.Options{
			AckServerTime: cfg.Protocols.Freematics.AckServerTime,
			RemoteAddress: cfg.Protocols.Freematics.RemoteAddress,
		}, logger.Named(freematics.ProtocolName))
		if err := reg.Register(freematics.NewProtocol(dec, cfg.TCP.MaxFrameLength)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Listeners 已启动的协议监听器
type Listeners struct {
	tcp    []*tcpserver.Server
	udp    []*udpserver.Server
	logger *zap.Logger
}

// StartListeners 为每个已启用协议启动 TCP/UDP 监听，并登记健康检查与就绪状态。
// 任一监听失败时关闭已启动的监听并返回错误。
func StartListeners(cfg *cfgpkg.Config, protocols *adapter.Registry, sink gateway.Sink, sessions *session.Registry,
	appm *metrics.AppMetrics, agg *health.Aggregator, ready *health.Readiness, logger *zap.Logger,
) (*Listeners, error) {
	l := &Listeners{logger: logger}
	for _, ep := range endpoints(cfg.Protocols) {
		proto, ok := protocols.Get(ep.protocol)
		if !ok {
			l.Shutdown(context.Background())
			return nil, fmt.Errorf("protocol %q not registered", ep.protocol)
		}
		h := gateway.New(proto, sink, sessions, appm, logger.Named("gateway"))

		if ep.tcpAddr != "" {
			name := "tcp:" + ep.protocol
			ready.Register(name)
			srv := tcpserver.New(ep.tcpAddr, cfg.TCP, logger.Named(name))
			srv.SetHandler(h.TCP())
			srv.SetMetricsCallbacks(
				func() { appm.ConnAccepted.WithLabelValues("tcp").Inc() },
				func(reason string) { appm.ConnRejected.WithLabelValues(reason).Inc() },
				func(n int) { appm.BytesReceived.WithLabelValues("tcp").Add(float64(n)) },
			)
			if err := srv.Start(); err != nil {
				l.Shutdown(context.Background())
				return nil, fmt.Errorf("start %s on %s: %w", name, ep.tcpAddr, err)
			}
			l.tcp = append(l.tcp, srv)
			agg.AddChecker(health.NewTCPChecker(name, srv))
			ready.Set(name, true)
		}

		if ep.udpAddr != "" {
			name := "udp:" + ep.protocol
			ready.Register(name)
			srv := udpserver.New(ep.udpAddr, cfg.UDP, cfg.TCP.WriteTimeout, logger.Named(name))
			srv.SetHandler(h.UDP())
			srv.SetOnPeerExpired(h.PeerExpired)
			srv.SetMetricsCallbacks(
				func() { appm.ConnAccepted.WithLabelValues("udp").Inc() },
				func(n int) { appm.BytesReceived.WithLabelValues("udp").Add(float64(n)) },
				func() { appm.ConnRejected.WithLabelValues("peer_rate").Inc() },
			)
			if err := srv.Start(); err != nil {
				l.Shutdown(context.Background())
				return nil, fmt.Errorf("start %s on %s: %w", name, ep.udpAddr, err)
			}
			l.udp = append(l.udp, srv)
			agg.AddChecker(health.NewUDPChecker(name, srv))
			ready.Set(name, true)
		}
	}
	if len(l.tcp)+len(l.udp) == 0 {
		logger.Warn("no protocol listener enabled")
	}
	return l, nil
}

// Shutdown 停止全部监听并等待连接退出
func (l *Listeners) Shutdown(ctx context.Context) error {
	var errs []error
	for _, s := range l.tcp {
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range l.udp {
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
