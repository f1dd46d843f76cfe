package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPosition_Set(t *testing.T) {
	p := NewPosition("freematics", 7)
	p.Set(KeyBattery, 12.5)
	p.Set(KeyIgnition, true)
	p.Set(KeyAcceleration, "")
	p.Set(KeyRSSI, nil)
	p.SetIO(48, "1010")

	v, ok := p.Float(KeyBattery)
	require.True(t, ok)
	assert.InDelta(t, 12.5, v, 1e-9)

	b, ok := p.Bool(KeyIgnition)
	require.True(t, ok)
	assert.True(t, b)

	assert.False(t, p.Has(KeyAcceleration), "空字符串不应写入")
	assert.False(t, p.Has(KeyRSSI), "nil 不应写入")

	s, ok := p.String("io48")
	require.True(t, ok)
	assert.Equal(t, "1010", s)
}

func TestPosition_CopyLocation(t *testing.T) {
	fix := time.Date(2021, 2, 14, 8, 44, 50, 0, time.UTC)
	last := &Position{Valid: true, Latitude: 49.2, Longitude: 18.7, Altitude: 410, Course: 208, Speed: 3, FixTime: fix}

	p := NewPosition("freematics", 1)
	p.CopyLocation(last)

	assert.True(t, p.Outdated)
	assert.False(t, p.Valid, "覆盖位置不改变有效标志")
	assert.Equal(t, 49.2, p.Latitude)
	assert.Equal(t, 18.7, p.Longitude)
	assert.Equal(t, 410.0, p.Altitude)
	assert.Equal(t, 208.0, p.Course)
	assert.Equal(t, fix, p.FixTime)

	empty := NewPosition("freematics", 1)
	empty.CopyLocation(nil)
	assert.True(t, empty.Outdated)
	assert.Zero(t, empty.Latitude)
}

func TestPosition_Clone(t *testing.T) {
	p := NewPosition("freematics", 1)
	p.Set(KeyRPM, 4375)
	p.Network = NewNetwork(CellTower{SignalStrength: -71})

	c := p.Clone()
	c.Set(KeyRPM, 1)
	c.Network.CellTowers[0].SignalStrength = 0

	v, _ := p.Int(KeyRPM)
	assert.Equal(t, int64(4375), v)
	assert.Equal(t, -71, p.Network.CellTowers[0].SignalStrength)
}

func TestKnotsFromKph(t *testing.T) {
	assert.InDelta(t, 1.0, KnotsFromKph(1.852), 1e-9)
	assert.InDelta(t, 1.852, KphFromKnots(1), 1e-9)
}
