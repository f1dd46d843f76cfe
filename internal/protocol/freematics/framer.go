package freematics

import (
	"bytes"
	"errors"

	"github.com/taoyao-code/tracker-server/internal/protocol/adapter"
)

// ErrFrameTooLong 缓冲中超过上限仍未找到校验分隔符
var ErrFrameTooLong = errors.New("freematics frame length limit exceeded")

const checksumLen = 2

// StreamDecoder 处理 TCP 半包/粘包：帧以 "*" 加两位校验结束
type StreamDecoder struct {
	buf         []byte
	maxFrameLen int
}

var _ adapter.Framer = (*StreamDecoder)(nil)

// NewStreamDecoder 创建流式分帧器
func NewStreamDecoder(maxFrameLen int) *StreamDecoder {
	if maxFrameLen <= 0 {
		maxFrameLen = 4096
	}
	return &StreamDecoder{maxFrameLen: maxFrameLen}
}

// Feed 追加数据并尽可能切出完整帧
func (d *StreamDecoder) Feed(p []byte) ([][]byte, error) {
	if len(p) == 0 {
		return nil, nil
	}
	d.buf = append(d.buf, p...)
	var frames [][]byte

	for {
		d.skipDelimiters()
		if len(d.buf) == 0 {
			return frames, nil
		}

		star := bytes.IndexByte(d.buf, '*')
		if star < 0 {
			if len(d.buf) > d.maxFrameLen {
				d.buf = d.buf[:0]
				return frames, ErrFrameTooLong
			}
			return frames, nil
		}

		end := star + 1
		for end < len(d.buf) && end-star-1 < checksumLen && !isDelimiter(d.buf[end]) {
			end++
		}
		// 校验位不足两位且后面还没有行结束符：半包
		if end-star-1 < checksumLen && end == len(d.buf) {
			return frames, nil
		}

		frame := make([]byte, end)
		copy(frame, d.buf[:end])
		frames = append(frames, frame)
		d.buf = d.buf[end:]
	}
}

// Buffered 未成帧的字节数
func (d *StreamDecoder) Buffered() int { return len(d.buf) }

func (d *StreamDecoder) skipDelimiters() {
	i := 0
	for i < len(d.buf) && isDelimiter(d.buf[i]) {
		i++
	}
	if i > 0 {
		d.buf = d.buf[i:]
	}
}

func isDelimiter(c byte) bool {
	return c == '\r' || c == '\n' || c == 0 || c == ' '
}
