package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/booking"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
)

// BookingHandler 预约API处理器
type BookingHandler struct {
	books  *booking.Coordinator
	logger *zap.Logger
}

// NewBookingHandler 创建预约处理器
func NewBookingHandler(books *booking.Coordinator, logger *zap.Logger) *BookingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingHandler{books: books, logger: logger}
}

// CreateBookingRequest 创建预约请求
type CreateBookingRequest struct {
	UserID    string    `json:"user_id" binding:"required"`
	DeviceID  string    `json:"device_id" binding:"required"`
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
}

// BookingView 预约对外视图
type BookingView struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	DeviceID  string `json:"device_id"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Status    string `json:"status"`
}

func bookingView(b *booking.Booking) BookingView {
	return BookingView{
		ID:        b.ID,
		UserID:    string(b.UserID),
		DeviceID:  string(b.DeviceID),
		StartTime: b.StartTime.Format(time.RFC3339),
		EndTime:   b.EndTime.Format(time.RFC3339),
		Status:    string(b.Status),
	}
}

// CreateBooking 创建预约
// @Summary 创建预约
// @Description 预约设备时间窗；与既有 BOOKED/ACTIVE 预约重叠则拒绝
// @Tags 预约管理
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body CreateBookingRequest true "预约参数"
// @Success 200 {object} StandardResponse "成功"
// @Failure 400 {object} StandardResponse "窗口非法"
// @Failure 409 {object} StandardResponse "窗口冲突"
// @Router /api/v1/bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)

	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, requestID, "无效的请求: "+err.Error())
		return
	}

	b, err := h.books.Create(ctx,
		coremodel.UserID(req.UserID),
		coremodel.DeviceID(req.DeviceID),
		req.StartTime, req.EndTime)
	if err != nil {
		status, msg := bookingErrStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("create booking failed", zap.Error(err))
		}
		respondError(c, status, requestID, msg)
		return
	}

	respondOK(c, requestID, bookingView(b))
}

// GetBooking 查询预约
// @Summary 查询预约
// @Tags 预约管理
// @Security ApiKeyAuth
// @Param id path string true "预约ID"
// @Success 200 {object} StandardResponse "成功"
// @Failure 404 {object} StandardResponse "预约不存在"
// @Router /api/v1/bookings/{id} [get]
func (h *BookingHandler) GetBooking(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)

	b, err := h.books.Get(ctx, c.Param("id"))
	if err != nil {
		status, msg := bookingErrStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("get booking failed", zap.Error(err))
		}
		respondError(c, status, requestID, msg)
		return
	}

	respondOK(c, requestID, bookingView(b))
}

// ListUserBookings 用户预约列表
// @Summary 用户预约列表
// @Tags 预约管理
// @Security ApiKeyAuth
// @Param id path string true "用户ID"
// @Success 200 {object} StandardResponse "成功"
// @Router /api/v1/users/{id}/bookings [get]
func (h *BookingHandler) ListUserBookings(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)

	list, err := h.books.ListMine(ctx, coremodel.UserID(c.Param("id")), 100)
	if err != nil {
		h.logger.Error("list user bookings failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, requestID, "内部错误")
		return
	}

	views := make([]BookingView, 0, len(list))
	for i := range list {
		views = append(views, bookingView(&list[i]))
	}
	respondOK(c, requestID, gin.H{"bookings": views, "count": len(views)})
}

// ExpireNoShows 手动触发失约清理
// @Summary 失约清理
// @Description 将窗口结束加宽限期仍未认领的预约置为过期；后台清扫器之外的运维入口
// @Tags 预约管理
// @Security ApiKeyAuth
// @Success 200 {object} StandardResponse "成功"
// @Router /api/v1/bookings/expire-no-shows [post]
func (h *BookingHandler) ExpireNoShows(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)

	n, err := h.books.ExpireNoShows(ctx)
	if err != nil {
		h.logger.Error("expire no-shows failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, requestID, "内部错误")
		return
	}
	respondOK(c, requestID, gin.H{"expired": n})
}
