// Package registry 会话注册表与状态机：PENDING → ACTIVE → STOPPED。
// 三级解析顺序：显式会话ID > 内存索引 > 外部缓存；内存索引在进程存活期间
// 是权威来源，缓存缺失或过期不影响正确性。
package registry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
)

var (
	// ErrNotFound 未知会话
	ErrNotFound = errors.New("session not found")
	// ErrDeviceBusy 设备已有 PENDING/ACTIVE 会话
	ErrDeviceBusy = errors.New("device already has an open session")
)

// SessionStore 会话持久化。GetSession 未命中时返回 (nil, nil)。
type SessionStore interface {
	SaveSession(ctx context.Context, s *coremodel.Session) error
	GetSession(ctx context.Context, id coremodel.SessionID) (*coremodel.Session, error)
}

// TelemetryStore 遥测审计流水，只追加。sessionID 为 nil 表示未解析到会话。
type TelemetryStore interface {
	AppendTelemetry(ctx context.Context, sessionID *coremodel.SessionID, sample *coremodel.TelemetrySample) error
}

// LookupCache 设备→活动会话的快速查找缓存。
// 纯优化层：不可用或过期都必须能安全降级。
type LookupCache interface {
	PutActive(ctx context.Context, deviceID coremodel.DeviceID, sessionID coremodel.SessionID) error
	GetActive(ctx context.Context, deviceID coremodel.DeviceID) (coremodel.SessionID, bool, error)
	DeleteActive(ctx context.Context, deviceID coremodel.DeviceID) error
}

// Ledger 账本写入。实现必须保证每会话每类条目至多写入一次。
type Ledger interface {
	RecordWalletDebit(ctx context.Context, s *coremodel.Session) error
	RecordVendorCredit(ctx context.Context, s *coremodel.Session) error
}

// BookingCompleter 会话结束时完成关联预约
type BookingCompleter interface {
	Complete(ctx context.Context, bookingID *string) error
}

// Commander 下发设备控制命令
type Commander interface {
	TurnOn(ctx context.Context, deviceID coremodel.DeviceID, timer time.Duration, sessionID coremodel.SessionID) error
	TurnOff(ctx context.Context, deviceID coremodel.DeviceID, timer time.Duration, sessionID coremodel.SessionID) error
}

// EventSink 会话事件出口（实时广播）
type EventSink interface {
	SessionStarted(ctx context.Context, s *coremodel.Session)
	SessionUpdated(ctx context.Context, s *coremodel.Session)
	SessionStopped(ctx context.Context, s *coremodel.Session)
	DeviceTelemetry(ctx context.Context, s *coremodel.Session, sample *coremodel.TelemetrySample)
}

// Observer 注册表操作观察钩子，接 metrics
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

// entry 单个会话条目；mu 保护会话可变字段，
// 同一设备的遥测经由同一条目锁天然串行化。
type entry struct {
	mu   sync.Mutex
	sess *coremodel.Session
}

// Config 注册表依赖。Store/Telemetry/Ledger/Bookings 必填，其余可空。
type Config struct {
	Store     SessionStore
	Telemetry TelemetryStore
	Cache     LookupCache
	Ledger    Ledger
	Bookings  BookingCompleter
	Commander Commander
	Events    EventSink
	Observer  Observer
	Logger    *zap.Logger
	Now       func() time.Time
}

// Registry 会话注册表
type Registry struct {
	mu       sync.RWMutex
	byID     map[coremodel.SessionID]*entry
	byDevice map[coremodel.DeviceID]coremodel.SessionID

	store     SessionStore
	telemetry TelemetryStore
	cache     LookupCache
	ledger    Ledger
	bookings  BookingCompleter
	commander Commander
	events    EventSink
	observer  Observer
	log       *zap.Logger
	now       func() time.Time
}

// New 创建注册表
func New(cfg Config) *Registry {
	r := &Registry{
		byID:      make(map[coremodel.SessionID]*entry),
		byDevice:  make(map[coremodel.DeviceID]coremodel.SessionID),
		store:     cfg.Store,
		telemetry: cfg.Telemetry,
		cache:     cfg.Cache,
		ledger:    cfg.Ledger,
		bookings:  cfg.Bookings,
		commander: cfg.Commander,
		events:    cfg.Events,
		observer:  cfg.Observer,
		log:       cfg.Logger,
		now:       cfg.Now,
	}
	if r.cache == nil {
		r.cache = nopCache{}
	}
	if r.events == nil {
		r.events = nopEvents{}
	}
	if r.observer == nil {
		r.observer = ObserverFunc(func(string, string) {})
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// SessionInit 开始会话所需的初始参数（价格与费率已由编排方锁定）
type SessionInit struct {
	DeviceID       coremodel.DeviceID
	UserID         coremodel.UserID
	VendorID       coremodel.VendorID
	VehicleClass   coremodel.VehicleClass
	BookingID      *string
	PricePerKWh    float64
	PlatformFeePct float64
}

// Register 创建 PENDING 会话并建立双向索引。
// 设备已有未终结会话时返回 ErrDeviceBusy，不产生任何索引副作用。
func (r *Registry) Register(ctx context.Context, init SessionInit) (*coremodel.Session, error) {
	now := r.now()
	sess := &coremodel.Session{
		ID:             coremodel.SessionID(uuid.NewString()),
		DeviceID:       init.DeviceID,
		UserID:         init.UserID,
		VendorID:       init.VendorID,
		VehicleClass:   init.VehicleClass,
		BookingID:      init.BookingID,
		PricePerKWh:    init.PricePerKWh,
		PlatformFeePct: init.PlatformFeePct,
		Status:         coremodel.SessionStatusPending,
		StartedAt:      now,
	}

	r.mu.Lock()
	if sid, ok := r.byDevice[init.DeviceID]; ok {
		if e := r.byID[sid]; e != nil {
			r.mu.Unlock()
			r.observer.Record("register", "device_busy")
			return nil, ErrDeviceBusy
		}
	}
	e := &entry{sess: sess}
	r.byID[sess.ID] = e
	r.byDevice[sess.DeviceID] = sess.ID
	r.mu.Unlock()

	// 持久化与缓存均为尽力而为：会话活性优先于每步写入的强持久
	if err := r.store.SaveSession(ctx, sess); err != nil {
		r.observer.Record("persist", "failed")
		r.log.Error("persist new session failed",
			zap.String("session_id", string(sess.ID)), zap.Error(err))
	}
	if err := r.cache.PutActive(ctx, sess.DeviceID, sess.ID); err != nil {
		r.log.Debug("cache put failed", zap.Error(err))
	}

	r.observer.Record("register", "ok")
	r.events.SessionStarted(ctx, sess.Clone())
	return sess.Clone(), nil
}

// Get 按ID查询会话快照，内存优先，其次持久层
func (r *Registry) Get(ctx context.Context, id coremodel.SessionID) (*coremodel.Session, error) {
	if e := r.lookupByID(id); e != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.sess.Clone(), nil
	}
	s, err := r.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNotFound
	}
	return s, nil
}

// ActiveForDevice 返回设备当前未终结会话的快照
func (r *Registry) ActiveForDevice(deviceID coremodel.DeviceID) (*coremodel.Session, bool) {
	r.mu.RLock()
	sid, ok := r.byDevice[deviceID]
	var e *entry
	if ok {
		e = r.byID[sid]
	}
	r.mu.RUnlock()
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess.Clone(), true
}

// ListOpen 返回全部未终结会话快照
func (r *Registry) ListOpen() []*coremodel.Session {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.byDevice))
	for _, sid := range r.byDevice {
		if e := r.byID[sid]; e != nil {
			entries = append(entries, e)
		}
	}
	r.mu.RUnlock()

	out := make([]*coremodel.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.sess.Terminal() {
			out = append(out, e.sess.Clone())
		}
		e.mu.Unlock()
	}
	return out
}

func (r *Registry) lookupByID(id coremodel.SessionID) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

func (r *Registry) lookupByDevice(deviceID coremodel.DeviceID) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sid, ok := r.byDevice[deviceID]; ok {
		return r.byID[sid]
	}
	return nil
}

// Restore 启动时批量装载持久层中的未终结会话，重建内存索引。
// 缓存已失效也能立即按设备路由遥测。终态与重复条目跳过，返回装载数。
func (r *Registry) Restore(sessions []*coremodel.Session) int {
	n := 0
	r.mu.Lock()
	for _, s := range sessions {
		if s == nil || s.Terminal() {
			continue
		}
		if _, ok := r.byID[s.ID]; ok {
			continue
		}
		r.byID[s.ID] = &entry{sess: s.Clone()}
		r.byDevice[s.DeviceID] = s.ID
		n++
	}
	r.mu.Unlock()

	if n > 0 {
		r.observer.Record("restore", "ok")
		r.log.Info("open sessions restored", zap.Int("count", n))
	}
	return n
}

// adoptFromStore 进程重启后的恢复路径：从持久层装载未终结会话并重建索引
func (r *Registry) adoptFromStore(ctx context.Context, id coremodel.SessionID) *entry {
	s, err := r.store.GetSession(ctx, id)
	if err != nil {
		r.log.Warn("load session from store failed",
			zap.String("session_id", string(id)), zap.Error(err))
		return nil
	}
	if s == nil || s.Terminal() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.byID[s.ID]; ok {
		return e
	}
	e := &entry{sess: s}
	r.byID[s.ID] = e
	r.byDevice[s.DeviceID] = s.ID
	r.observer.Record("adopt", "ok")
	return e
}

type nopCache struct{}

func (nopCache) PutActive(context.Context, coremodel.DeviceID, coremodel.SessionID) error {
	return nil
}

func (nopCache) GetActive(context.Context, coremodel.DeviceID) (coremodel.SessionID, bool, error) {
	return "", false, nil
}

func (nopCache) DeleteActive(context.Context, coremodel.DeviceID) error { return nil }

type nopEvents struct{}

func (nopEvents) SessionStarted(context.Context, *coremodel.Session) {}
func (nopEvents) SessionUpdated(context.Context, *coremodel.Session) {}
func (nopEvents) SessionStopped(context.Context, *coremodel.Session) {}
func (nopEvents) DeviceTelemetry(context.Context, *coremodel.Session, *coremodel.TelemetrySample) {
}
