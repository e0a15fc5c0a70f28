package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/pricing"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/storage/gormrepo"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/storage/models"
)

// PlatformHandler 平台运营API：钱包、费率、设备目录
type PlatformHandler struct {
	repo   *gormrepo.Repository
	logger *zap.Logger
}

// NewPlatformHandler 创建平台运营处理器
func NewPlatformHandler(repo *gormrepo.Repository, logger *zap.Logger) *PlatformHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlatformHandler{repo: repo, logger: logger}
}

// GetWallet 查询钱包余额
// @Summary 查询钱包余额
// @Tags 平台运营
// @Security ApiKeyAuth
// @Param owner path string true "用户或商户ID"
// @Success 200 {object} StandardResponse "成功"
// @Router /api/v1/wallets/{owner} [get]
func (h *PlatformHandler) GetWallet(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)
	owner := c.Param("owner")

	balance, err := h.repo.Balance(ctx, owner)
	if err != nil {
		h.logger.Error("query wallet failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, requestID, "内部错误")
		return
	}

	respondOK(c, requestID, gin.H{"owner_id": owner, "balance": balance})
}

// TopUpRequest 充值请求
type TopUpRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// TopUpWallet 钱包充值
// @Summary 钱包充值
// @Tags 平台运营
// @Security ApiKeyAuth
// @Param owner path string true "用户或商户ID"
// @Param request body TopUpRequest true "充值金额"
// @Success 200 {object} StandardResponse "成功"
// @Failure 400 {object} StandardResponse "参数错误"
// @Router /api/v1/wallets/{owner}/topup [post]
func (h *PlatformHandler) TopUpWallet(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)
	owner := c.Param("owner")

	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, requestID, "无效的请求: "+err.Error())
		return
	}

	if err := h.repo.TopUpWallet(ctx, owner, req.Amount); err != nil {
		h.logger.Error("wallet top-up failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, requestID, "内部错误")
		return
	}

	balance, err := h.repo.Balance(ctx, owner)
	if err != nil {
		h.logger.Error("query wallet failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, requestID, "内部错误")
		return
	}

	respondOK(c, requestID, gin.H{"owner_id": owner, "balance": balance})
}

// SetTariffRequest 费率写入请求
type SetTariffRequest struct {
	Scope          string  `json:"scope" binding:"required,oneof=default vendor device"`
	RefID          string  `json:"ref_id"`
	PricePerKWh    float64 `json:"price_per_kwh" binding:"required,gt=0"`
	PlatformFeePct float64 `json:"platform_fee_pct" binding:"gte=0,lte=100"`
}

// SetTariff 写入费率
// @Summary 写入费率
// @Description default 作用域忽略 ref_id；vendor/device 必须提供 ref_id
// @Tags 平台运营
// @Security ApiKeyAuth
// @Param request body SetTariffRequest true "费率参数"
// @Success 200 {object} StandardResponse "成功"
// @Failure 400 {object} StandardResponse "参数错误"
// @Router /api/v1/tariffs [post]
func (h *PlatformHandler) SetTariff(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)

	var req SetTariffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, requestID, "无效的请求: "+err.Error())
		return
	}
	if req.Scope != gormrepo.TariffScopeDefault && req.RefID == "" {
		respondError(c, http.StatusBadRequest, requestID, "vendor/device 作用域需要 ref_id")
		return
	}
	if req.Scope == gormrepo.TariffScopeDefault {
		req.RefID = ""
	}

	err := h.repo.SetTariff(ctx, req.Scope, req.RefID, pricing.Rate{
		PricePerKWh:    req.PricePerKWh,
		PlatformFeePct: req.PlatformFeePct,
	})
	if err != nil {
		h.logger.Error("set tariff failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, requestID, "内部错误")
		return
	}

	respondOK(c, requestID, gin.H{"scope": req.Scope, "ref_id": req.RefID})
}

// RegisterDeviceRequest 设备登记请求
type RegisterDeviceRequest struct {
	DeviceID string  `json:"device_id" binding:"required"`
	VendorID string  `json:"vendor_id" binding:"required"`
	Name     *string `json:"name"`
	Location *string `json:"location"`
}

// RegisterDevice 登记设备
// @Summary 登记设备
// @Tags 平台运营
// @Security ApiKeyAuth
// @Param request body RegisterDeviceRequest true "设备参数"
// @Success 200 {object} StandardResponse "成功"
// @Failure 400 {object} StandardResponse "参数错误"
// @Router /api/v1/devices [post]
func (h *PlatformHandler) RegisterDevice(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)

	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, requestID, "无效的请求: "+err.Error())
		return
	}

	err := h.repo.UpsertDevice(ctx, &models.Device{
		DeviceID: req.DeviceID,
		VendorID: req.VendorID,
		Name:     req.Name,
		Location: req.Location,
	})
	if err != nil {
		h.logger.Error("register device failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, requestID, "内部错误")
		return
	}

	respondOK(c, requestID, gin.H{"device_id": req.DeviceID})
}

// ListDevices 设备列表
// @Summary 设备列表
// @Tags 平台运营
// @Security ApiKeyAuth
// @Success 200 {object} StandardResponse "成功"
// @Router /api/v1/devices [get]
func (h *PlatformHandler) ListDevices(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)

	devices, err := h.repo.ListDevices(ctx, 200, 0)
	if err != nil {
		h.logger.Error("list devices failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, requestID, "内部错误")
		return
	}

	respondOK(c, requestID, gin.H{"devices": devices, "count": len(devices)})
}

// GetDevice 查询设备
// @Summary 查询设备
// @Tags 平台运营
// @Security ApiKeyAuth
// @Param id path string true "设备ID"
// @Success 200 {object} StandardResponse "成功"
// @Failure 404 {object} StandardResponse "设备不存在"
// @Router /api/v1/devices/{id} [get]
func (h *PlatformHandler) GetDevice(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := requestIDOf(c)

	device, err := h.repo.GetDevice(ctx, coremodel.DeviceID(c.Param("id")))
	if err != nil {
		respondError(c, http.StatusNotFound, requestID, "设备不存在")
		return
	}

	respondOK(c, requestID, device)
}
