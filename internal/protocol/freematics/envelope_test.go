package freematics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/tracker-server/internal/protocol/adapter"
)

func TestParseEnvelope(t *testing.T) {
	t.Run("数据帧", func(t *testing.T) {
		env, err := ParseEnvelope("M0ZR4X0#0:566624,24:1246,20:0;0;0*16")
		require.NoError(t, err)
		require.NotNil(t, env)
		assert.Equal(t, "M0ZR4X0", env.Identifier)
		assert.Equal(t, "0:566624,24:1246,20:0;0;0", env.Payload)
		assert.Equal(t, "16", env.Checksum)
		assert.False(t, env.IsEvent())
	})

	t.Run("事件帧", func(t *testing.T) {
		env, err := ParseEnvelope("1#EV=2,TS=1871902,ID=ESP32305C06C40A24*AC")
		require.NoError(t, err)
		require.NotNil(t, env)
		assert.True(t, env.IsEvent())
	})

	t.Run("重新序列化", func(t *testing.T) {
		raw := "1#0:49244,20:0;0;0,24:423*F8"
		env, err := ParseEnvelope(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, env.String())
	})

	t.Run("缺少分隔符", func(t *testing.T) {
		for _, s := range []string{"", "no separators", "#payload*00", "id#payload", "id*00#payload", "*00"} {
			env, err := ParseEnvelope(s)
			assert.NoError(t, err, s)
			assert.Nil(t, env, s)
		}
	})

	t.Run("校验错误", func(t *testing.T) {
		_, err := ParseEnvelope("M0ZR4X0#0:566624,24:1246,20:0;0;0*17")
		require.Error(t, err)
		assert.True(t, errors.Is(err, adapter.ErrCorrupted))

		var ce *adapter.ChecksumError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "16", ce.Expected)
		assert.Equal(t, "17", ce.Received)
		assert.Equal(t, ProtocolName, ce.Protocol)
	})

	t.Run("校验位缺少前导零", func(t *testing.T) {
		_, err := ParseEnvelope("M0ZR4X0#0:560622,24:1246,20:0;0;0*E")
		require.Error(t, err)
		assert.True(t, adapter.IsCorruption(err))
		assert.Contains(t, err.Error(), "should be 0E but received E")
	})

	t.Run("小写校验位视为损坏", func(t *testing.T) {
		_, err := ParseEnvelope("1#EV=2,TS=1871902,ID=ESP32305C06C40A24*ac")
		assert.True(t, adapter.IsCorruption(err))
	})
}

func TestSplitPair(t *testing.T) {
	cases := []struct {
		in         string
		key, value string
		ok         bool
	}{
		{"A:49.215920", "A", "49.215920", true},
		{"A=49.215920", "A", "49.215920", true},
		{"20:0;-1;95", "20", "0;-1;95", true},
		{"1:2:3", "1", "2", true},
		{"A:", "A", "", true},
		{":5", "", "", false},
		{"", "", "", false},
		{"noseparator", "", "", false},
	}
	for _, c := range cases {
		key, value, ok := splitPair(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.Equal(t, c.key, key, c.in)
			assert.Equal(t, c.value, value, c.in)
		}
	}
}
