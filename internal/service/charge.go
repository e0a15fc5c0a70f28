// Package service 充电编排：开始会话的前置校验链与停止流程。
// 顺序固定：余额守卫 → 预约认领 → 费率锁定 → 注册会话 → 下发开电命令。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/booking"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/pricing"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/registry"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/wallet"
)

var (
	// ErrInvalidRequest 请求字段缺失或非法
	ErrInvalidRequest = errors.New("invalid request")
	// ErrBookingNotClaimable 指定的预约不可认领（不存在/窗口外/归属不符）
	ErrBookingNotClaimable = errors.New("booking not claimable")
	// ErrDeviceMismatch 停止请求的设备与会话归属设备不一致
	ErrDeviceMismatch = errors.New("device does not match session")
)

// ChargeService 充电编排服务
type ChargeService struct {
	wallet       *wallet.Guard
	bookings     *booking.Coordinator
	pricing      pricing.Provider
	registry     *registry.Registry
	commander    registry.Commander
	defaultTimer time.Duration
	log          *zap.Logger
}

// NewChargeService 创建编排服务
func NewChargeService(
	guard *wallet.Guard,
	bookings *booking.Coordinator,
	provider pricing.Provider,
	reg *registry.Registry,
	commander registry.Commander,
	defaultTimer time.Duration,
	log *zap.Logger,
) *ChargeService {
	if defaultTimer <= 0 {
		defaultTimer = 15 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ChargeService{
		wallet:       guard,
		bookings:     bookings,
		pricing:      provider,
		registry:     reg,
		commander:    commander,
		defaultTimer: defaultTimer,
		log:          log,
	}
}

// StartRequest 开始充电请求
type StartRequest struct {
	DeviceID     coremodel.DeviceID
	UserID       coremodel.UserID
	VendorID     coremodel.VendorID
	VehicleClass coremodel.VehicleClass
	TimerMinutes int
	BookingID    *string
}

// Start 开始充电。校验链必须串行：预约认领依赖余额已通过，
// 注册与下发依赖两者都成立。任何前置失败都不产生会话或命令。
func (s *ChargeService) Start(ctx context.Context, req StartRequest) (*coremodel.Session, error) {
	if req.DeviceID == "" || req.UserID == "" || req.VendorID == "" {
		return nil, fmt.Errorf("%w: device, user and vendor are required", ErrInvalidRequest)
	}
	if !req.VehicleClass.Valid() {
		return nil, fmt.Errorf("%w: unknown vehicle class %q", ErrInvalidRequest, req.VehicleClass)
	}

	if err := s.wallet.Ensure(ctx, req.UserID, req.VehicleClass); err != nil {
		return nil, err
	}

	claimed, err := s.bookings.Claim(ctx, req.UserID, req.DeviceID, req.BookingID)
	if err != nil {
		return nil, err
	}
	if req.BookingID != nil && claimed == nil {
		// 显式指定的预约必须认领成功；无预约充电仅限未指定的场景
		return nil, ErrBookingNotClaimable
	}

	// 认领之后的任何失败都要把预约退回 BOOKED：
	// Complete 只在会话停止时触发，失约清理只认 BOOKED，
	// 不回滚的 ACTIVE 预约没有任何路径能再回收
	releaseClaim := func() {
		if claimed == nil {
			return
		}
		if rerr := s.bookings.Release(ctx, claimed.ID); rerr != nil {
			s.log.Error("release claimed booking failed",
				zap.String("booking_id", claimed.ID), zap.Error(rerr))
		}
	}

	rate, err := s.pricing.RateFor(ctx, req.VendorID, req.DeviceID)
	if err != nil {
		releaseClaim()
		return nil, fmt.Errorf("resolve rate: %w", err)
	}

	init := registry.SessionInit{
		DeviceID:       req.DeviceID,
		UserID:         req.UserID,
		VendorID:       req.VendorID,
		VehicleClass:   req.VehicleClass,
		PricePerKWh:    rate.PricePerKWh,
		PlatformFeePct: rate.PlatformFeePct,
	}
	if claimed != nil {
		id := claimed.ID
		init.BookingID = &id
	}

	sess, err := s.registry.Register(ctx, init)
	if err != nil {
		releaseClaim()
		return nil, err
	}

	timer := s.defaultTimer
	if req.TimerMinutes > 0 {
		timer = time.Duration(req.TimerMinutes) * time.Minute
	}
	// 命令发布失败不回滚会话：设备未收到命令不会取电，
	// 会话停留在 PENDING，可由运维强停或重试
	if err := s.commander.TurnOn(ctx, req.DeviceID, timer, sess.ID); err != nil {
		s.log.Error("turn-on command publish failed",
			zap.String("session_id", string(sess.ID)),
			zap.String("device_id", string(req.DeviceID)),
			zap.Error(err))
	}
	return sess, nil
}

// Stop 请求停止充电：校验会话与设备归属后向设备下发断电命令，
// 返回请求时刻已知的会话快照；真正的 STOPPED 由设备 final 报文驱动。
func (s *ChargeService) Stop(ctx context.Context, sessionID coremodel.SessionID, deviceID coremodel.DeviceID, timerMinutes *int) (*coremodel.Session, error) {
	sess, err := s.registry.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if deviceID != "" && sess.DeviceID != deviceID {
		return nil, ErrDeviceMismatch
	}

	timer := time.Duration(0)
	if timerMinutes != nil && *timerMinutes > 0 {
		timer = time.Duration(*timerMinutes) * time.Minute
	}
	if err := s.commander.TurnOff(ctx, sess.DeviceID, timer, sess.ID); err != nil {
		s.log.Error("turn-off command publish failed",
			zap.String("session_id", string(sessionID)),
			zap.Error(err))
	}
	return sess, nil
}

// ForceStop 管理员强停
func (s *ChargeService) ForceStop(ctx context.Context, sessionID coremodel.SessionID) (*coremodel.Session, error) {
	return s.registry.ForceStop(ctx, sessionID)
}
