package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	content := "devices:\n  - id: 7\n    uniqueId: M0ZR4X0\n    name: demo\n  - uniqueId: A0QWERT0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	d, err := LoadFileDirectory(path)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Len())

	dev, err := d.FindDevice(context.Background(), "M0ZR4X0")
	require.NoError(t, err)
	assert.Equal(t, int64(7), dev.ID)
	assert.Equal(t, "demo", dev.Name)

	dev, err = d.FindDevice(context.Background(), "A0QWERT0")
	require.NoError(t, err)
	assert.Equal(t, int64(2), dev.ID, "未指定ID按顺序编号")

	_, err = d.FindDevice(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestLoadFileDirectory_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("devices:\n  - name: x\n"), 0o644))
	_, err := LoadFileDirectory(path)
	assert.Error(t, err)

	_, err = LoadFileDirectory(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCachedDirectory(t *testing.T) {
	inner := &countingDirectory{inner: NewStaticDirectory(Device{ID: 1, UniqueID: "A"})}
	c := NewCachedDirectory(inner, time.Minute, 10*time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		dev, err := c.FindDevice(ctx, "A")
		require.NoError(t, err)
		assert.Equal(t, int64(1), dev.ID)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	for i := 0; i < 3; i++ {
		_, err := c.FindDevice(ctx, "B")
		assert.ErrorIs(t, err, ErrDeviceNotFound)
	}
	assert.Equal(t, int32(2), inner.calls.Load(), "未知标识同样缓存")

	c.now = func() time.Time { return base.Add(11 * time.Second) }
	_, _ = c.FindDevice(ctx, "B")
	assert.Equal(t, int32(3), inner.calls.Load(), "负缓存过期后重新查询")

	c.Invalidate("A")
	_, _ = c.FindDevice(ctx, "A")
	assert.Equal(t, int32(4), inner.calls.Load())
}
