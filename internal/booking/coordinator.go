// Package booking 预约协调：时间窗冲突检测、会话开始时的预约认领、
// 完成与失约清理。认领与失约共用同一宽限期常量。
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
)

var (
	// ErrInvalidWindow 预约窗口非法（end <= start）
	ErrInvalidWindow = errors.New("booking window end must be after start")
	// ErrWindowConflict 与既有 BOOKED/ACTIVE 预约的时间窗重叠
	ErrWindowConflict = errors.New("booking window conflicts with an existing booking")
	// ErrNotFound 预约不存在
	ErrNotFound = errors.New("booking not found")
)

// Status 预约状态枚举
type Status string

const (
	StatusBooked    Status = "booked"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

// Booking 预约记录
type Booking struct {
	ID        string
	UserID    coremodel.UserID
	DeviceID  coremodel.DeviceID
	StartTime time.Time
	EndTime   time.Time
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store 预约持久化抽象
type Store interface {
	CreateBooking(ctx context.Context, b *Booking) error
	GetBooking(ctx context.Context, id string) (*Booking, error)
	// HasOverlap 判断设备在 [start, end) 内是否存在 BOOKED/ACTIVE 预约
	HasOverlap(ctx context.Context, deviceID coremodel.DeviceID, start, end time.Time) (bool, error)
	// ListOpenByUserDevice 返回某用户在某设备上的全部 BOOKED 预约
	ListOpenByUserDevice(ctx context.Context, userID coremodel.UserID, deviceID coremodel.DeviceID) ([]Booking, error)
	ListByUser(ctx context.Context, userID coremodel.UserID, limit int) ([]Booking, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	// ExpireBookedBefore 将 end_time < cutoff 的 BOOKED 预约批量置为 EXPIRED，返回影响行数
	ExpireBookedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Observer 预约操作观察钩子，接 metrics
type Observer interface {
	Record(operation, status string)
}

// ObserverFunc 函数适配器
type ObserverFunc func(operation, status string)

func (f ObserverFunc) Record(operation, status string) {
	if f != nil {
		f(operation, status)
	}
}

// NopObserver 空观察者
func NopObserver() Observer {
	return ObserverFunc(func(string, string) {})
}

const defaultGracePeriod = 5 * time.Minute

// Coordinator 预约协调器
type Coordinator struct {
	store    Store
	grace    time.Duration
	observer Observer
	log      *zap.Logger
	now      func() time.Time
}

// Option 构造选项
type Option func(*Coordinator)

// WithGracePeriod 覆盖宽限期（认领与失约判定共用）
func WithGracePeriod(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.grace = d
		}
	}
}

// WithObserver 注入观察者
func WithObserver(o Observer) Option {
	return func(c *Coordinator) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithNow 注入时钟（测试用）
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger 注入日志器
func WithLogger(log *zap.Logger) Option {
	return func(c *Coordinator) {
		if log != nil {
			c.log = log
		}
	}
}

// NewCoordinator 创建预约协调器
func NewCoordinator(store Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		grace:    defaultGracePeriod,
		observer: NopObserver(),
		log:      zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Create 创建预约。窗口非法返回 ErrInvalidWindow，
// 与既有 BOOKED/ACTIVE 预约重叠返回 ErrWindowConflict。
func (c *Coordinator) Create(ctx context.Context, userID coremodel.UserID, deviceID coremodel.DeviceID, start, end time.Time) (*Booking, error) {
	if !end.After(start) {
		c.observer.Record("create", "invalid")
		return nil, ErrInvalidWindow
	}

	overlap, err := c.store.HasOverlap(ctx, deviceID, start, end)
	if err != nil {
		return nil, fmt.Errorf("check booking overlap: %w", err)
	}
	if overlap {
		c.observer.Record("create", "conflict")
		return nil, ErrWindowConflict
	}

	now := c.now()
	b := &Booking{
		ID:        uuid.NewString(),
		UserID:    userID,
		DeviceID:  deviceID,
		StartTime: start,
		EndTime:   end,
		Status:    StatusBooked,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.CreateBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("persist booking: %w", err)
	}
	c.observer.Record("create", "ok")
	return b, nil
}

// Claim 查找用户在该设备上窗口覆盖当前时刻（窗口结束加宽限期）的 BOOKED 预约
// 并置为 ACTIVE。指定 bookingID 时必须精确匹配。无可认领预约返回 (nil, nil)，
// 缺席不是错误，是否继续无预约充电由调用方决定。
func (c *Coordinator) Claim(ctx context.Context, userID coremodel.UserID, deviceID coremodel.DeviceID, bookingID *string) (*Booking, error) {
	now := c.now()

	open, err := c.store.ListOpenByUserDevice(ctx, userID, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list open bookings: %w", err)
	}

	for i := range open {
		b := &open[i]
		if now.Before(b.StartTime) || now.After(b.EndTime.Add(c.grace)) {
			continue
		}
		if bookingID != nil && b.ID != *bookingID {
			continue
		}
		if err := c.store.UpdateStatus(ctx, b.ID, StatusActive); err != nil {
			return nil, fmt.Errorf("claim booking %s: %w", b.ID, err)
		}
		b.Status = StatusActive
		b.UpdatedAt = now
		c.observer.Record("claim", "ok")
		c.log.Debug("booking claimed",
			zap.String("booking_id", b.ID),
			zap.String("device_id", string(deviceID)))
		return b, nil
	}

	c.observer.Record("claim", "none")
	return nil, nil
}

// Release 认领回滚：已认领的预约退回 BOOKED。
// 供编排方在认领之后、会话建立之前的步骤失败时调用，
// 避免预约滞留在 ACTIVE 而永远无法完成或过期。
func (c *Coordinator) Release(ctx context.Context, bookingID string) error {
	if bookingID == "" {
		return nil
	}
	if err := c.store.UpdateStatus(ctx, bookingID, StatusBooked); err != nil {
		c.observer.Record("release", "error")
		return fmt.Errorf("release booking %s: %w", bookingID, err)
	}
	c.observer.Record("release", "ok")
	c.log.Debug("booking claim released", zap.String("booking_id", bookingID))
	return nil
}

// Complete 将预约置为 COMPLETED。bookingID 为 nil 时无操作。
func (c *Coordinator) Complete(ctx context.Context, bookingID *string) error {
	if bookingID == nil || *bookingID == "" {
		return nil
	}
	if err := c.store.UpdateStatus(ctx, *bookingID, StatusCompleted); err != nil {
		c.observer.Record("complete", "error")
		return fmt.Errorf("complete booking %s: %w", *bookingID, err)
	}
	c.observer.Record("complete", "ok")
	return nil
}

// Get 查询单个预约
func (c *Coordinator) Get(ctx context.Context, bookingID string) (*Booking, error) {
	return c.store.GetBooking(ctx, bookingID)
}

// ListMine 返回某用户的预约列表
func (c *Coordinator) ListMine(ctx context.Context, userID coremodel.UserID, limit int) ([]Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	return c.store.ListByUser(ctx, userID, limit)
}

// ExpireNoShows 将窗口结束加宽限期仍早于当前时刻的 BOOKED 预约置为 EXPIRED。
// 由外部定时触发（sweeper 或管理接口）。
func (c *Coordinator) ExpireNoShows(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.grace)
	n, err := c.store.ExpireBookedBefore(ctx, cutoff)
	if err != nil {
		c.observer.Record("expire", "error")
		return 0, fmt.Errorf("expire no-shows: %w", err)
	}
	if n > 0 {
		c.observer.Record("expire", "ok")
		c.log.Info("expired no-show bookings", zap.Int64("count", n))
	}
	return n, nil
}
