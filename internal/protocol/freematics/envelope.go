package freematics

import (
	"strings"

	"github.com/taoyao-code/tracker-server/internal/protocol/adapter"
	"github.com/taoyao-code/tracker-server/internal/protocol/checksum"
)

// ProtocolName 协议名
const ProtocolName = "freematics"

const eventPrefix = "EV"

// Envelope 帧信封：IDENTIFIER#PAYLOAD*CC
type Envelope struct {
	Identifier string
	Payload    string
	Checksum   string
}

// IsEvent 负载以事件标记开头
func (e *Envelope) IsEvent() bool { return strings.HasPrefix(e.Payload, eventPrefix) }

// String 重新序列化为带校验的帧
func (e *Envelope) String() string {
	return checksum.Sign(e.Identifier + "#" + e.Payload)
}

// ParseEnvelope 拆分信封并校验。
// 缺少分隔符（或位置不合法）返回 nil, nil；校验不一致返回 *adapter.ChecksumError。
func ParseEnvelope(sentence string) (*Envelope, error) {
	start := strings.IndexByte(sentence, '#')
	end := strings.IndexByte(sentence, '*')
	if start <= 0 || end <= 0 || end < start {
		return nil, nil
	}

	received := sentence[end+1:]
	expected, ok := checksum.VerifySum(sentence[:end], received)
	if !ok {
		return nil, &adapter.ChecksumError{
			Protocol: ProtocolName,
			Expected: expected,
			Received: received,
			Sentence: sentence,
		}
	}
	return &Envelope{
		Identifier: sentence[:start],
		Payload:    sentence[start+1 : end],
		Checksum:   received,
	}, nil
}
