package freematics

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/tracker-server/internal/model"
	"github.com/taoyao-code/tracker-server/internal/protocol/adapter"
	"github.com/taoyao-code/tracker-server/internal/session"
)

// Sessions 解码器依赖的会话解析能力
type Sessions interface {
	Resolve(ctx context.Context, connKey string, remote net.Addr, identifiers ...string) (*session.DeviceSession, error)
}

// Options 解码选项
type Options struct {
	// AckServerTime 应答帧附加服务器时间 TM/TN
	AckServerTime bool
	// RemoteAddress 在定位上记录设备来源 IP
	RemoteAddress bool
}

// Decoder Freematics 文本协议解码器，无状态，所有连接共享
type Decoder struct {
	sessions Sessions
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

var _ adapter.Decoder = (*Decoder)(nil)

// NewDecoder 创建解码器
func NewDecoder(sessions Sessions, opts Options, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{sessions: sessions, opts: opts, logger: logger, now: time.Now}
}

// Protocol 实现 adapter.Decoder
func (d *Decoder) Protocol() string { return ProtocolName }

// Decode 解码一帧
//
//	M0ZR4X0#0:204391,11:140221,10:8445000,A:49.215920,B:18.737755,C:410,D:0,E:208,24:1252,20:0;0;0,82:47*B5
//	A0QWERT0#EV=7,TS=2206661,ID=A0QWERT0,*33
func (d *Decoder) Decode(ctx context.Context, conn adapter.Conn, frame []byte) ([]*model.Position, error) {
	sentence := strings.TrimRight(string(frame), "\r\n\x00 ")
	env, err := ParseEnvelope(sentence)
	if err != nil || env == nil {
		return nil, err
	}

	if env.IsEvent() {
		return d.decodeEvent(ctx, conn, env), nil
	}

	s := d.resolve(ctx, conn, env.Identifier)
	if s == nil {
		return nil, nil
	}
	return d.decodeData(ctx, conn, s, env.Payload), nil
}

func (d *Decoder) resolve(ctx context.Context, conn adapter.Conn, identifiers ...string) *session.DeviceSession {
	var (
		key    string
		remote net.Addr
	)
	if conn != nil {
		key, remote = conn.ID(), conn.RemoteAddr()
	}
	s, err := d.sessions.Resolve(ctx, key, remote, identifiers...)
	switch {
	case err == nil:
		return s
	case errors.Is(err, session.ErrDeviceNotFound):
		d.logger.Debug("unknown device", zap.Strings("identifiers", identifiers), zap.String("conn", key))
	default:
		d.logger.Warn("device session resolve failed", zap.Strings("identifiers", identifiers), zap.Error(err))
	}
	return nil
}

func (d *Decoder) decodeEvent(ctx context.Context, conn adapter.Conn, env *Envelope) []*model.Position {
	ev := parseEvent(env.Payload)

	s := d.resolve(ctx, conn, env.Identifier, ev.id, ev.vin)
	if s == nil {
		return nil
	}

	if conn != nil && ev.hasEv && ev.ticks != "" {
		var serverTime *time.Time
		if d.opts.AckServerTime {
			now := d.now()
			serverTime = &now
		}
		// 异步入队，不等待发送完成
		if err := conn.Write([]byte(BuildAck(ev.code, ev.ticks, serverTime))); err != nil {
			d.logger.Debug("ack write failed", zap.String("conn", conn.ID()), zap.Error(err))
		}
	}

	if !ev.hasEv || ev.ev != EventLowPower {
		return nil
	}

	pos := d.newPosition(conn, s)
	pos.Set(model.KeyEvent, ev.ev)
	pos.Set(model.KeyAlarm, model.AlarmLowPower)
	pos.CopyLocation(s.LastLocation(ctx))
	pos.DeviceTime = pos.ServerTime
	if ev.hasTM {
		pos.DeviceTime = time.Unix(ev.tm, 0).UTC()
	}
	if pos.FixTime.IsZero() {
		pos.FixTime = pos.DeviceTime
	}
	return []*model.Position{pos}
}

// decodeData 按 tick 键拆分多次定位；首个 tick 之前的字段被忽略。
// 值为空的 tick 仍作为定位边界，设备时间回落到服务器时间。
func (d *Decoder) decodeData(ctx context.Context, conn adapter.Conn, s *session.DeviceSession, payload string) []*model.Position {
	var (
		positions []*model.Position
		cur       *fix
	)
	for _, pair := range strings.Split(payload, ",") {
		key, value, ok := splitPair(pair)
		if !ok {
			continue
		}
		code, ok := parseKey(key)
		if !ok {
			continue
		}
		if code == keyTick {
			if cur != nil {
				positions = append(positions, d.finish(ctx, s, cur))
			}
			cur = &fix{pos: d.newPosition(conn, s)}
			if ms, ok := parseTicks(value); ok {
				cur.pos.DeviceTime = ms
			}
			continue
		}
		if cur == nil || value == "" {
			continue
		}
		_ = cur.apply(code, value)
	}
	if cur != nil {
		positions = append(positions, d.finish(ctx, s, cur))
	}
	return positions
}

// finish 关闭一次定位：温度取舍、时间组合、无效定位回填最近已知位置
func (d *Decoder) finish(ctx context.Context, s *session.DeviceSession, f *fix) *model.Position {
	pos := f.pos
	if t := f.deviceTemp(); t != nil {
		pos.Set(model.KeyDeviceTemp, *t)
	}
	if !pos.Valid {
		pos.CopyLocation(s.LastLocation(ctx))
	}
	if t, ok := f.fixTime(); ok {
		pos.FixTime = t
	}
	if pos.FixTime.IsZero() {
		pos.FixTime = pos.ServerTime
	}
	if pos.DeviceTime.IsZero() {
		pos.DeviceTime = pos.ServerTime
	}
	if pos.Valid {
		s.UpdateLastLocation(pos)
	}
	return pos
}

func (d *Decoder) newPosition(conn adapter.Conn, s *session.DeviceSession) *model.Position {
	pos := model.NewPosition(ProtocolName, s.DeviceID())
	pos.ServerTime = d.now().UTC()
	if d.opts.RemoteAddress && conn != nil && conn.RemoteAddr() != nil {
		if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
			pos.Set(model.KeyIP, host)
		}
	}
	return pos
}

// parseTicks 设备运行毫秒数
func parseTicks(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	var ms int64
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c < '0' || c > '9' {
			return time.Time{}, false
		}
		ms = ms*10 + int64(c-'0')
	}
	return time.UnixMilli(ms).UTC(), true
}

// NewProtocol 组装注册项：TCP 连接使用流式分帧，UDP 每个数据报即一帧
func NewProtocol(dec *Decoder, maxFrameLen int) adapter.Protocol {
	return adapter.Protocol{
		Name:    ProtocolName,
		Decoder: dec,
		NewFramer: func() adapter.Framer {
			return NewStreamDecoder(maxFrameLen)
		},
	}
}
