package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/booking"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/pricing"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/registry"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/service"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/storage/gormrepo"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/wallet"
)

// StandardResponse 标准响应格式
type StandardResponse struct {
	Code      int         `json:"code"`           // 0=成功, >0=错误码
	Message   string      `json:"message"`        // 消息
	Data      interface{} `json:"data,omitempty"` // 业务数据
	RequestID string      `json:"request_id"`     // 请求追踪ID
	Timestamp int64       `json:"timestamp"`      // 时间戳
}

// SessionHandler 充电会话API处理器
type SessionHandler struct {
	svc    *service.ChargeService
	reg    *registry.Registry
	repo   *gormrepo.Repository
	logger *zap.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(svc *service.ChargeService, reg *registry.Registry, repo *gormrepo.Repository, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{svc: svc, reg: reg, repo: repo, logger: logger}
}

// StartSessionRequest 开始充电请求
type StartSessionRequest struct {
	DeviceID     string  `json:"device_id" binding:"required"`
	UserID       string  `json:"user_id" binding:"required"`
	VendorID     string  `json:"vendor_id" binding:"required"`
	VehicleClass string  `json:"vehicle_class" binding:"required"` // 2W | 4W
	TimerMinutes int     `json:"timer_minutes"`
	BookingID    *string `json:"booking_id"`
}

// StopSessionRequest 停止充电请求
type StopSessionRequest struct {
	DeviceID     string `json:"device_id"`
	TimerMinutes *int   `json:"timer_minutes"`
}

// SessionView 会话对外视图
type SessionView struct {
	ID             string  `json:"id"`
	DeviceID       string  `json:"device_id"`
	UserID         string  `json:"user_id"`
	VendorID       string  `json:"vendor_id"`
	VehicleClass   string  `json:"vehicle_class"`
	BookingID      *string `json:"booking_id,omitempty"`
	Status         string  `json:"status"`
	PricePerKWh    float64 `json:"price_per_kwh"`
	PlatformFeePct float64 `json:"platform_fee_pct"`
	EnergyKWh      float64 `json:"energy_kwh"`
	Amount         float64 `json:"amount"`
	PlatformShare  float64 `json:"platform_share"`
	VendorShare    float64 `json:"vendor_share"`
	CloseReason    string  `json:"close_reason,omitempty"`
	Illegal        bool    `json:"illegal"`
	StartedAt      string  `json:"started_at"`
	EndedAt        *string `json:"ended_at,omitempty"`
}

func sessionView(s *coremodel.Session) SessionView {
	v := SessionView{
		ID:             string(s.ID),
		DeviceID:       string(s.DeviceID),
		UserID:         string(s.UserID),
		VendorID:       string(s.VendorID),
		VehicleClass:   string(s.VehicleClass),
		BookingID:      s.BookingID,
		Status:         string(s.Status),
		PricePerKWh:    s.PricePerKWh,
		PlatformFeePct: s.PlatformFeePct,
		EnergyKWh:      s.EnergyKWh,
		Amount:         s.Amount,
		PlatformShare:  s.PlatformShare,
		VendorShare:    s.VendorShare,
		CloseReason:    string(s.CloseReason),
		Illegal:        s.Illegal,
		StartedAt:      s.StartedAt.Format(time.RFC3339),
	}
	if s.EndedAt != nil {
		ended := s.EndedAt.Format(time.RFC3339)
		v.EndedAt = &ended
	}
	return v
}

// StartSession 开始充电
// @Summary 开始充电
// @Description 余额校验、预约认领、费率锁定后注册会话并下发开电命令
// @Tags 会话管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body StartSessionRequest true "开始充电参数"
// @Success 200 {object} StandardResponse "成功"
// @Failure 400 {object} StandardResponse "参数错误"
// @Failure 402 {object} StandardResponse "余额不足"
// @Failure 409 {object} StandardResponse "设备占用"
// @Router /api/v1/sessions [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)

	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, requestID, "无效的请求: "+err.Error())
		return
	}

	sess, err := h.svc.Start(ctx, service.StartRequest{
		DeviceID:     coremodel.DeviceID(req.DeviceID),
		UserID:       coremodel.UserID(req.UserID),
		VendorID:     coremodel.VendorID(req.VendorID),
		VehicleClass: coremodel.VehicleClass(req.VehicleClass),
		TimerMinutes: req.TimerMinutes,
		BookingID:    req.BookingID,
	})
	if err != nil {
		h.respondStartError(c, requestID, err)
		return
	}

	respondOK(c, requestID, sessionView(sess))
}

func (h *SessionHandler) respondStartError(c *gin.Context, requestID string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		respondError(c, http.StatusBadRequest, requestID, err.Error())
	case errors.Is(err, wallet.ErrInsufficientBalance):
		respondError(c, http.StatusPaymentRequired, requestID, "钱包余额不足")
	case errors.Is(err, service.ErrBookingNotClaimable):
		respondError(c, http.StatusConflict, requestID, "指定预约不可认领")
	case errors.Is(err, registry.ErrDeviceBusy):
		respondError(c, http.StatusConflict, requestID, "设备已有进行中的会话")
	case errors.Is(err, pricing.ErrNoRate):
		respondError(c, http.StatusUnprocessableEntity, requestID, "无可用费率")
	default:
		h.logger.Error("start session failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, requestID, "内部错误")
	}
}

// StopSession 请求停止充电
// @Summary 停止充电
// @Description 向设备下发断电命令，最终结算由设备结束报文驱动
// @Tags 会话管理
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Param request body StopSessionRequest false "停止参数"
// @Success 200 {object} StandardResponse "成功"
// @Failure 404 {object} StandardResponse "会话不存在"
// @Failure 409 {object} StandardResponse "设备不匹配"
// @Router /api/v1/sessions/{id}/stop [post]
func (h *SessionHandler) StopSession(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)
	sessionID := coremodel.SessionID(c.Param("id"))

	// 请求体可选：缺省时停止归属设备且不带定时
	var req StopSessionRequest
	_ = c.ShouldBindJSON(&req)

	sess, err := h.svc.Stop(ctx, sessionID, coremodel.DeviceID(req.DeviceID), req.TimerMinutes)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrNotFound):
			respondError(c, http.StatusNotFound, requestID, "会话不存在")
		case errors.Is(err, service.ErrDeviceMismatch):
			respondError(c, http.StatusConflict, requestID, "设备与会话不匹配")
		default:
			h.logger.Error("stop session failed", zap.Error(err))
			respondError(c, http.StatusInternalServerError, requestID, "内部错误")
		}
		return
	}

	respondOK(c, requestID, sessionView(sess))
}

// ForceStopSession 管理员强停
// @Summary 强制停止充电
// @Tags 会话管理
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Success 200 {object} StandardResponse "成功"
// @Failure 404 {object} StandardResponse "会话不存在"
// @Router /api/v1/sessions/{id}/force-stop [post]
func (h *SessionHandler) ForceStopSession(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)
	sessionID := coremodel.SessionID(c.Param("id"))

	sess, err := h.svc.ForceStop(ctx, sessionID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			respondError(c, http.StatusNotFound, requestID, "会话不存在")
			return
		}
		h.logger.Error("force stop failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, requestID, "内部错误")
		return
	}

	respondOK(c, requestID, sessionView(sess))
}

// GetSession 查询会话
// @Summary 查询会话
// @Tags 会话管理
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Success 200 {object} StandardResponse "成功"
// @Failure 404 {object} StandardResponse "会话不存在"
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)

	sess, err := h.reg.Get(ctx, coremodel.SessionID(c.Param("id")))
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			respondError(c, http.StatusNotFound, requestID, "会话不存在")
			return
		}
		h.logger.Error("get session failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, requestID, "内部错误")
		return
	}

	respondOK(c, requestID, sessionView(sess))
}

// ListOpenSessions 查询全部进行中会话
// @Summary 进行中会话列表
// @Tags 会话管理
// @Security ApiKeyAuth
// @Success 200 {object} StandardResponse "成功"
// @Router /api/v1/sessions [get]
func (h *SessionHandler) ListOpenSessions(c *gin.Context) {
	requestID := requestIDOf(c)

	open := h.reg.ListOpen()
	views := make([]SessionView, 0, len(open))
	for _, s := range open {
		views = append(views, sessionView(s))
	}
	respondOK(c, requestID, gin.H{"sessions": views, "count": len(views)})
}

// ListUserSessions 用户会话历史
// @Summary 用户会话历史
// @Tags 会话管理
// @Security ApiKeyAuth
// @Param id path string true "用户ID"
// @Success 200 {object} StandardResponse "成功"
// @Router /api/v1/users/{id}/sessions [get]
func (h *SessionHandler) ListUserSessions(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)

	sessions, err := h.repo.ListSessionsByUser(ctx, coremodel.UserID(c.Param("id")), 100)
	if err != nil {
		h.logger.Error("list user sessions failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, requestID, "内部错误")
		return
	}

	views := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView(s))
	}
	respondOK(c, requestID, gin.H{"sessions": views, "count": len(views)})
}

// ListSessionTelemetry 会话遥测流水
// @Summary 会话遥测流水
// @Tags 会话管理
// @Security ApiKeyAuth
// @Param id path string true "会话ID"
// @Success 200 {object} StandardResponse "成功"
// @Router /api/v1/sessions/{id}/telemetry [get]
func (h *SessionHandler) ListSessionTelemetry(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)

	events, err := h.repo.ListTelemetryBySession(ctx, coremodel.SessionID(c.Param("id")), 500)
	if err != nil {
		h.logger.Error("list session telemetry failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, requestID, "内部错误")
		return
	}

	respondOK(c, requestID, gin.H{"events": events, "count": len(events)})
}

// ---- 通用响应 ----

func requestIDOf(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	id := uuid.NewString()
	c.Set("request_id", id)
	return id
}

func respondOK(c *gin.Context, requestID string, data interface{}) {
	c.JSON(http.StatusOK, StandardResponse{
		Code:      0,
		Message:   "success",
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	})
}

func respondError(c *gin.Context, status int, requestID, message string) {
	c.JSON(status, StandardResponse{
		Code:      status,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().Unix(),
	})
}

// 预约错误映射（供 booking_handler 复用）
func bookingErrStatus(err error) (int, string) {
	switch {
	case errors.Is(err, booking.ErrInvalidWindow):
		return http.StatusBadRequest, "预约窗口非法"
	case errors.Is(err, booking.ErrWindowConflict):
		return http.StatusConflict, "预约窗口与既有预约重叠"
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound, "预约不存在"
	default:
		return http.StatusInternalServerError, "内部错误"
	}
}
