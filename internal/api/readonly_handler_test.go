package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/tracker-server/internal/api/middleware"
	"github.com/taoyao-code/tracker-server/internal/model"
	"github.com/taoyao-code/tracker-server/internal/session"
	"github.com/taoyao-code/tracker-server/internal/storage"
	"github.com/taoyao-code/tracker-server/internal/storage/models"
)

type fakeDevices struct {
	devices []models.Device
	err     error
}

func (f *fakeDevices) ListDevices(_ context.Context, limit, offset int) ([]models.Device, error) {
	if f.err != nil {
		return nil, f.err
	}
	if offset >= len(f.devices) {
		return []models.Device{}, nil
	}
	end := min(offset+limit, len(f.devices))
	return f.devices[offset:end], nil
}

func (f *fakeDevices) GetDeviceByUniqueID(_ context.Context, uid string) (*models.Device, error) {
	for i := range f.devices {
		if f.devices[i].UniqueID == uid {
			return &f.devices[i], nil
		}
	}
	return nil, storage.ErrNotFound
}

type fakePositions struct {
	latest map[int64]*model.Position
}

func (f *fakePositions) LatestPosition(_ context.Context, id int64) (*model.Position, error) {
	return f.latest[id], nil
}

func (f *fakePositions) ListPositions(_ context.Context, id int64, _ int) ([]*model.Position, error) {
	if p, ok := f.latest[id]; ok {
		return []*model.Position{p}, nil
	}
	return nil, nil
}

type fakePresence struct{}

func (fakePresence) Lookup(_ context.Context, id int64) (*session.PresenceInfo, error) {
	if id == 2 {
		return &session.PresenceInfo{DeviceID: 2, ServerID: "other"}, nil
	}
	return nil, errors.New("redis down")
}

func newTestRouter(t *testing.T, keys ...string) (*gin.Engine, *session.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fix := time.Date(2021, 2, 14, 8, 44, 50, 0, time.UTC)
	pos := model.NewPosition("freematics", 1)
	pos.Valid = true
	pos.FixTime = fix
	pos.Latitude = 49.21592

	devs := &fakeDevices{devices: []models.Device{
		{ID: 1, UniqueID: "M0ZR4X0"},
		{ID: 2, UniqueID: "VIN123"},
	}}
	reg := session.NewRegistry(session.NewStaticDirectory(
		session.Device{ID: 1, UniqueID: "M0ZR4X0"},
	), nil, nil)

	h := NewReadOnlyHandler(devs, &fakePositions{latest: map[int64]*model.Position{1: pos}}, reg, fakePresence{}, nil)
	r := gin.New()
	RegisterReadOnlyRoutes(r, h, middleware.AuthConfig{APIKeys: keys}, nil)
	return r, reg
}

func doGet(r http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestReadOnlyHandler(t *testing.T) {
	r, reg := newTestRouter(t)

	t.Run("设备列表分页", func(t *testing.T) {
		rr := doGet(r, "/api/devices?limit=1&offset=1")
		require.Equal(t, http.StatusOK, rr.Code)
		devices := decode(t, rr)["devices"].([]interface{})
		require.Len(t, devices, 1)
		assert.Equal(t, "VIN123", devices[0].(map[string]interface{})["uniqueId"])
	})

	t.Run("未知设备", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, doGet(r, "/api/devices/NOPE").Code)
		assert.Equal(t, http.StatusNotFound, doGet(r, "/api/devices/NOPE/position").Code)
	})

	t.Run("最新定位", func(t *testing.T) {
		rr := doGet(r, "/api/devices/M0ZR4X0/position")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, 49.21592, decode(t, rr)["latitude"])
	})

	t.Run("无有效定位", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, doGet(r, "/api/devices/VIN123/position").Code)
	})

	t.Run("历史定位为空时返回空数组", func(t *testing.T) {
		rr := doGet(r, "/api/devices/VIN123/positions")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, []interface{}{}, decode(t, rr)["positions"])
	})

	t.Run("本实例会话", func(t *testing.T) {
		_, err := reg.Resolve(context.Background(), "tcp-1", nil, "M0ZR4X0")
		require.NoError(t, err)

		body := decode(t, doGet(r, "/api/devices/M0ZR4X0/session"))
		assert.Equal(t, true, body["online"])
		assert.Len(t, body["sessions"], 1)

		summary := decode(t, doGet(r, "/api/sessions"))
		assert.Equal(t, 1.0, summary["active"])
	})

	t.Run("其它实例在线", func(t *testing.T) {
		body := decode(t, doGet(r, "/api/devices/VIN123/session"))
		assert.Equal(t, true, body["online"])
		assert.NotNil(t, body["presence"])
	})
}

func TestReadOnlyRoutes_Auth(t *testing.T) {
	r, _ := newTestRouter(t, "secret-key-1")
	assert.Equal(t, http.StatusUnauthorized, doGet(r, "/api/devices").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/devices", nil)
	req.Header.Set("X-API-Key", "secret-key-1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSwaggerRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterSwaggerRoutes(r)

	rr := doGet(r, "/swagger/doc.json")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	paths, ok := body["paths"].(map[string]interface{})
	require.True(t, ok)
	for _, p := range []string{
		"/api/devices",
		"/api/devices/{uniqueId}",
		"/api/devices/{uniqueId}/position",
		"/api/devices/{uniqueId}/positions",
		"/api/devices/{uniqueId}/session",
		"/api/sessions",
	} {
		assert.Contains(t, paths, p)
	}

	assert.Equal(t, http.StatusOK, doGet(r, "/swagger/index.html").Code)
}
