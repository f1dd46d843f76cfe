package tcpserver

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("connection closed")
	// ErrWriteQueueFull 写队列已满，调用方不等待
	ErrWriteQueueFull = errors.New("write queue full")
)

const readBufferSize = 4096

// ConnContext 为每个 TCP 连接提供读/写循环与回调能力
type ConnContext struct {
	s      *Server
	c      net.Conn
	id     string
	writeC chan []byte
	onRead func([]byte)

	closeOnce sync.Once
	closeC    chan struct{}
	doneC     chan struct{}
}

func newConnContext(s *Server, c net.Conn) *ConnContext {
	backlog := s.cfg.ConnectionBacklog
	if backlog <= 0 {
		backlog = 64
	}
	return &ConnContext{
		s:      s,
		c:      c,
		id:     "tcp-" + strconv.FormatUint(s.nextConnID.Add(1), 10),
		writeC: make(chan []byte, backlog),
		closeC: make(chan struct{}),
		doneC:  make(chan struct{}),
	}
}

// ID 返回连接ID（单进程唯一递增）
func (cc *ConnContext) ID() string { return cc.id }

// RemoteAddr 返回远端地址
func (cc *ConnContext) RemoteAddr() net.Addr { return cc.c.RemoteAddr() }

// SetOnRead 安装读取回调（收到上行原始字节时触发，读循环内串行调用）
func (cc *ConnContext) SetOnRead(h func([]byte)) { cc.onRead = h }

// Write 放入写队列后立即返回；队列满或连接已关闭时返回错误
func (cc *ConnContext) Write(b []byte) error {
	select {
	case <-cc.closeC:
		return ErrConnClosed
	default:
	}
	// 复制一份，避免调用方复用底层切片
	dup := make([]byte, len(b))
	copy(dup, b)
	select {
	case cc.writeC <- dup:
		return nil
	case <-cc.closeC:
		return ErrConnClosed
	default:
		return ErrWriteQueueFull
	}
}

// Close 关闭连接，读写循环随之退出
func (cc *ConnContext) Close() error {
	var err error
	cc.closeOnce.Do(func() {
		close(cc.closeC)
		err = cc.c.Close()
	})
	return err
}

// Done 返回连接关闭通知通道（读写循环均已退出）
func (cc *ConnContext) Done() <-chan struct{} { return cc.doneC }

// run 启动读/写循环，阻塞直至连接结束
func (cc *ConnContext) run() {
	doneW := make(chan struct{})
	go func() {
		defer close(doneW)
		cc.writeLoop()
	}()

	cc.readLoop()
	_ = cc.Close()
	<-doneW
	close(cc.doneC)
}

func (cc *ConnContext) readLoop() {
	buf := make([]byte, readBufferSize)
	for {
		if cc.s.cfg.ReadTimeout > 0 {
			_ = cc.c.SetReadDeadline(time.Now().Add(cc.s.cfg.ReadTimeout))
		}
		n, err := cc.c.Read(buf)
		if n > 0 {
			if cc.s.onRecvBytes != nil {
				cc.s.onRecvBytes(n)
			}
			if cc.onRead != nil {
				cc.onRead(buf[:n])
			}
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// 超过空闲时间没有上行数据，断开
				cc.s.logger.Debug("tcp connection idle timeout", zap.String("conn", cc.id))
			}
			return
		}
	}
}

func (cc *ConnContext) writeLoop() {
	for {
		select {
		case <-cc.closeC:
			return
		case msg := <-cc.writeC:
			if cc.s.cfg.WriteTimeout > 0 {
				_ = cc.c.SetWriteDeadline(time.Now().Add(cc.s.cfg.WriteTimeout))
			}
			if _, err := cc.c.Write(msg); err != nil {
				cc.s.logger.Debug("tcp write failed", zap.String("conn", cc.id), zap.Error(err))
				_ = cc.Close()
				return
			}
		}
	}
}
