package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/taoyao-code/tracker-server/internal/model"
)

type nopDecoder struct{ name string }

func (d nopDecoder) Protocol() string { return d.name }
func (d nopDecoder) Decode(context.Context, Conn, []byte) ([]*model.Position, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Protocol{Name: "freematics", Decoder: nopDecoder{"freematics"}}))
	require.NoError(t, r.Register(Protocol{Name: "alpha", Decoder: nopDecoder{"alpha"}}))

	assert.Error(t, r.Register(Protocol{Name: "freematics", Decoder: nopDecoder{"freematics"}}), "重复注册")
	assert.Error(t, r.Register(Protocol{Name: "empty"}), "缺少解码器")

	p, ok := r.Get("freematics")
	require.True(t, ok)
	assert.Equal(t, "freematics", p.Decoder.Protocol())

	_, ok = r.Get("gt06")
	assert.False(t, ok)

	assert.Equal(t, []string{"alpha", "freematics"}, r.Names())
}

func TestChecksumError(t *testing.T) {
	var err error = &ChecksumError{Protocol: "freematics", Expected: "0E", Received: "E", Sentence: "M0ZR4X0#0:1*E"}
	wrapped := fmt.Errorf("decode: %w", err)

	assert.True(t, IsCorruption(wrapped))
	assert.False(t, IsCorruption(errors.New("other")))

	var ce *ChecksumError
	require.True(t, errors.As(wrapped, &ce))
	assert.Equal(t, "0E", ce.Expected)
	assert.Contains(t, err.Error(), "should be 0E but received E")
}
