package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/tracker-server/internal/model"
	"github.com/taoyao-code/tracker-server/internal/session"
	"github.com/taoyao-code/tracker-server/internal/storage"
	"github.com/taoyao-code/tracker-server/internal/storage/models"
)

// DeviceQuery 设备目录查询
type DeviceQuery interface {
	ListDevices(ctx context.Context, limit, offset int) ([]models.Device, error)
	GetDeviceByUniqueID(ctx context.Context, uniqueID string) (*models.Device, error)
}

// PositionQuery 定位查询（pg / mongo 均实现）
type PositionQuery interface {
	LatestPosition(ctx context.Context, deviceID int64) (*model.Position, error)
	ListPositions(ctx context.Context, deviceID int64, limit int) ([]*model.Position, error)
}

// SessionQuery 本实例会话查询
type SessionQuery interface {
	ByDevice(deviceID int64) []*session.DeviceSession
	Count() int
}

// PresenceQuery 跨实例在线登记查询
type PresenceQuery interface {
	Lookup(ctx context.Context, deviceID int64) (*session.PresenceInfo, error)
}

// ReadOnlyHandler 只读API处理器
type ReadOnlyHandler struct {
	devices   DeviceQuery
	positions PositionQuery
	sessions  SessionQuery
	presence  PresenceQuery
	logger    *zap.Logger
}

// NewReadOnlyHandler 创建只读API处理器；positions、presence 可为空
func NewReadOnlyHandler(devices DeviceQuery, positions PositionQuery, sessions SessionQuery, presence PresenceQuery, logger *zap.Logger) *ReadOnlyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReadOnlyHandler{
		devices:   devices,
		positions: positions,
		sessions:  sessions,
		presence:  presence,
		logger:    logger,
	}
}

func queryInt(c *gin.Context, key string, def, max int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

// ListDevices GET /api/devices?limit=&offset=
// @Summary 查询设备列表
// @Tags 设备
// @Produce json
// @Security ApiKeyAuth
// @Param limit query int false "每页数量(默认100，最大1000)"
// @Param offset query int false "偏移量(默认0)"
// @Success 200 {object} map[string]interface{}
// @Router /api/devices [get]
func (h *ReadOnlyHandler) ListDevices(c *gin.Context) {
	limit := queryInt(c, "limit", 100, 1000)
	offset := queryInt(c, "offset", 0, 0)

	list, err := h.devices.ListDevices(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list devices failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": list, "limit": limit, "offset": offset})
}

// device 解析路径中的设备唯一标识，失败时已写出响应
func (h *ReadOnlyHandler) device(c *gin.Context) (*models.Device, bool) {
	uid := c.Param("uniqueId")
	dev, err := h.devices.GetDeviceByUniqueID(c.Request.Context(), uid)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found", "uniqueId": uid})
		return nil, false
	}
	if err != nil {
		h.logger.Error("get device failed", zap.String("unique_id", uid), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return dev, true
}

// GetDevice GET /api/devices/:uniqueId
// @Summary 按唯一标识查询设备
// @Tags 设备
// @Produce json
// @Security ApiKeyAuth
// @Param uniqueId path string true "设备唯一标识"
// @Success 200 {object} models.Device
// @Failure 404 {object} map[string]interface{}
// @Router /api/devices/{uniqueId} [get]
func (h *ReadOnlyHandler) GetDevice(c *gin.Context) {
	dev, ok := h.device(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dev)
}

// LatestPosition GET /api/devices/:uniqueId/position
// @Summary 查询最近有效定位
// @Tags 定位
// @Produce json
// @Security ApiKeyAuth
// @Param uniqueId path string true "设备唯一标识"
// @Success 200 {object} model.Position
// @Failure 404 {object} map[string]interface{}
// @Failure 501 {object} map[string]interface{} "未启用定位存储"
// @Router /api/devices/{uniqueId}/position [get]
func (h *ReadOnlyHandler) LatestPosition(c *gin.Context) {
	if h.positions == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "position store disabled"})
		return
	}
	dev, ok := h.device(c)
	if !ok {
		return
	}
	p, err := h.positions.LatestPosition(c.Request.Context(), dev.ID)
	if err != nil {
		h.logger.Error("latest position failed", zap.Int64("device_id", dev.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no valid position", "uniqueId": dev.UniqueID})
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListPositions GET /api/devices/:uniqueId/positions?limit=
// @Summary 查询定位历史（按定位时间倒序）
// @Tags 定位
// @Produce json
// @Security ApiKeyAuth
// @Param uniqueId path string true "设备唯一标识"
// @Param limit query int false "条数(默认100，最大1000)"
// @Success 200 {object} map[string]interface{}
// @Failure 501 {object} map[string]interface{} "未启用定位存储"
// @Router /api/devices/{uniqueId}/positions [get]
func (h *ReadOnlyHandler) ListPositions(c *gin.Context) {
	if h.positions == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "position store disabled"})
		return
	}
	dev, ok := h.device(c)
	if !ok {
		return
	}
	limit := queryInt(c, "limit", 100, 1000)
	list, err := h.positions.ListPositions(c.Request.Context(), dev.ID, limit)
	if err != nil {
		h.logger.Error("list positions failed", zap.Int64("device_id", dev.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if list == nil {
		list = []*model.Position{}
	}
	c.JSON(http.StatusOK, gin.H{"deviceId": dev.ID, "positions": list})
}

type sessionView struct {
	ID          string    `json:"id"`
	ConnKey     string    `json:"connKey"`
	Remote      string    `json:"remote,omitempty"`
	Identifiers []string  `json:"identifiers"`
	CreatedAt   time.Time `json:"createdAt"`
	LastSeen    time.Time `json:"lastSeen"`
}

// GetSessionStatus GET /api/devices/:uniqueId/session
// @Summary 查询设备会话与在线状态
// @Tags 会话
// @Produce json
// @Security ApiKeyAuth
// @Param uniqueId path string true "设备唯一标识"
// @Success 200 {object} map[string]interface{}
// @Router /api/devices/{uniqueId}/session [get]
func (h *ReadOnlyHandler) GetSessionStatus(c *gin.Context) {
	dev, ok := h.device(c)
	if !ok {
		return
	}
	local := h.sessions.ByDevice(dev.ID)
	views := make([]sessionView, 0, len(local))
	for _, s := range local {
		v := sessionView{
			ID:          s.ID(),
			ConnKey:     s.ConnKey(),
			Identifiers: s.Identifiers(),
			CreatedAt:   s.CreatedAt(),
			LastSeen:    s.LastSeen(),
		}
		if s.RemoteAddr() != nil {
			v.Remote = s.RemoteAddr().String()
		}
		views = append(views, v)
	}

	resp := gin.H{
		"deviceId": dev.ID,
		"online":   len(views) > 0,
		"sessions": views,
	}
	if h.presence != nil {
		info, err := h.presence.Lookup(c.Request.Context(), dev.ID)
		if err != nil {
			h.logger.Warn("presence lookup failed", zap.Int64("device_id", dev.ID), zap.Error(err))
		} else if info != nil {
			resp["presence"] = info
			resp["online"] = true
		}
	}
	c.JSON(http.StatusOK, resp)
}

// SessionSummary GET /api/sessions
// @Summary 本实例活跃会话数
// @Tags 会话
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} map[string]interface{}
// @Router /api/sessions [get]
func (h *ReadOnlyHandler) SessionSummary(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active": h.sessions.Count()})
}
