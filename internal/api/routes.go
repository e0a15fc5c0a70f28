// Package api 对外 HTTP 接口：会话编排、预约、平台运营。
package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/api/middleware"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/booking"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/registry"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/service"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/storage/gormrepo"
)

// RegisterRoutes 注册全部业务路由
func RegisterRoutes(
	r *gin.Engine,
	svc *service.ChargeService,
	reg *registry.Registry,
	books *booking.Coordinator,
	repo *gormrepo.Repository,
	authCfg middleware.AuthConfig,
	logger *zap.Logger,
) {
	if r == nil || svc == nil || reg == nil {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sessions := NewSessionHandler(svc, reg, repo, logger)
	bookings := NewBookingHandler(books, logger)
	platform := NewPlatformHandler(repo, logger)

	api := r.Group("/api/v1")
	if authCfg.Enabled {
		api.Use(middleware.APIKeyAuth(authCfg, logger))
		logger.Info("api authentication enabled", zap.Int("api_keys_count", len(authCfg.APIKeys)))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}

	// 会话编排
	api.POST("/sessions", sessions.StartSession)
	api.GET("/sessions", sessions.ListOpenSessions)
	api.GET("/sessions/:id", sessions.GetSession)
	api.POST("/sessions/:id/stop", sessions.StopSession)
	api.POST("/sessions/:id/force-stop", sessions.ForceStopSession)
	api.GET("/sessions/:id/telemetry", sessions.ListSessionTelemetry)
	api.GET("/users/:id/sessions", sessions.ListUserSessions)

	// 预约
	api.POST("/bookings", bookings.CreateBooking)
	api.GET("/bookings/:id", bookings.GetBooking)
	api.GET("/users/:id/bookings", bookings.ListUserBookings)
	api.POST("/bookings/expire-no-shows", bookings.ExpireNoShows)

	// 平台运营
	api.GET("/wallets/:owner", platform.GetWallet)
	api.POST("/wallets/:owner/topup", platform.TopUpWallet)
	api.POST("/tariffs", platform.SetTariff)
	api.POST("/devices", platform.RegisterDevice)
	api.GET("/devices", platform.ListDevices)
	api.GET("/devices/:id", platform.GetDevice)

	logger.Info("api routes registered", zap.Int("endpoints", 17))
}
