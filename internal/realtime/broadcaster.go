// Package realtime 将会话/遥测事件扇出到四类受众频道：
// 设备、会话、用户、运营商。至多一次投递，无跨频道顺序保证。
package realtime

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/pubsub"
)

// 事件名
const (
	EventSessionStarted  = "session.started"
	EventSessionUpdated  = "session.updated"
	EventSessionStopped  = "session.stopped"
	EventDeviceTelemetry = "device.telemetry"
)

// Broadcaster 无状态扇出器，实现 registry.EventSink
type Broadcaster struct {
	pub      pubsub.Publisher
	prefix   string
	observer func(event string)
	log      *zap.Logger
	now      func() time.Time
}

// New 创建广播器。prefix 为频道前缀，如 "charjee/rt"。
func New(pub pubsub.Publisher, prefix string, log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{
		pub:      pub,
		prefix:   prefix,
		observer: func(string) {},
		log:      log,
		now:      time.Now,
	}
}

// SetObserver 注入广播观测钩子
func (b *Broadcaster) SetObserver(fn func(event string)) {
	if fn != nil {
		b.observer = fn
	}
}

// sessionView 面向观察者的会话快照，时间戳人类可读（RFC3339）
type sessionView struct {
	ID              string  `json:"id"`
	DeviceID        string  `json:"deviceId"`
	UserID          string  `json:"userId"`
	VendorID        string  `json:"vendorId"`
	VehicleClass    string  `json:"vehicleClass"`
	BookingID       *string `json:"bookingId,omitempty"`
	Status          string  `json:"status"`
	PricePerKWh     float64 `json:"pricePerKwh"`
	PlatformFeePct  float64 `json:"platformFeePct"`
	EnergyKWh       float64 `json:"energyKwh"`
	Amount          float64 `json:"amount"`
	PlatformShare   float64 `json:"platformShare"`
	VendorShare     float64 `json:"vendorShare"`
	StartedAt       string  `json:"startedAt"`
	EndedAt         *string `json:"endedAt,omitempty"`
	LastTelemetryAt *string `json:"lastTelemetryAt,omitempty"`
	CloseReason     string  `json:"closeReason,omitempty"`
	Illegal         bool    `json:"illegal"`
}

type telemetryView struct {
	Report       string   `json:"report"`
	DeviceStatus int32    `json:"deviceStatus"`
	VoltageV     *float64 `json:"voltage,omitempty"`
	PowerW       *float64 `json:"power,omitempty"`
	EnergyWh     *float64 `json:"energyWh,omitempty"`
	CounterWh    *float64 `json:"counterWh,omitempty"`
	Illegal      *bool    `json:"illegal,omitempty"`
}

type envelope struct {
	Event     string         `json:"event"`
	At        string         `json:"at"`
	Session   *sessionView   `json:"session,omitempty"`
	Telemetry *telemetryView `json:"telemetry,omitempty"`
}

// SessionStarted 广播会话创建
func (b *Broadcaster) SessionStarted(ctx context.Context, s *coremodel.Session) {
	b.fanout(ctx, EventSessionStarted, s, nil)
}

// SessionUpdated 广播会话推进（激活/计费更新）
func (b *Broadcaster) SessionUpdated(ctx context.Context, s *coremodel.Session) {
	b.fanout(ctx, EventSessionUpdated, s, nil)
}

// SessionStopped 广播会话终结
func (b *Broadcaster) SessionStopped(ctx context.Context, s *coremodel.Session) {
	b.fanout(ctx, EventSessionStopped, s, nil)
}

// DeviceTelemetry 广播遥测快照
func (b *Broadcaster) DeviceTelemetry(ctx context.Context, s *coremodel.Session, sample *coremodel.TelemetrySample) {
	b.fanout(ctx, EventDeviceTelemetry, s, sample)
}

func (b *Broadcaster) fanout(ctx context.Context, event string, s *coremodel.Session, sample *coremodel.TelemetrySample) {
	env := envelope{
		Event:   event,
		At:      b.now().Format(time.RFC3339),
		Session: viewOf(s),
	}
	if sample != nil {
		env.Telemetry = &telemetryView{
			Report:       sample.Report.String(),
			DeviceStatus: int32(sample.DeviceStatus),
			VoltageV:     sample.VoltageV,
			PowerW:       sample.PowerW,
			EnergyWh:     sample.EnergyWh,
			CounterWh:    sample.CounterWh,
			Illegal:      sample.Illegal,
		}
	}

	payload, err := json.Marshal(env)
	if err != nil {
		b.log.Warn("encode realtime event failed", zap.Error(err))
		return
	}

	// 四类受众各取所需：管理端看设备/运营商，用户端看自己的会话
	channels := [4]string{
		b.prefix + "/device/" + string(s.DeviceID),
		b.prefix + "/session/" + string(s.ID),
		b.prefix + "/user/" + string(s.UserID),
		b.prefix + "/vendor/" + string(s.VendorID),
	}
	for _, ch := range channels {
		if err := b.pub.Publish(ctx, ch, payload); err != nil {
			b.log.Debug("realtime publish failed",
				zap.String("channel", ch), zap.Error(err))
		}
	}
	b.observer(event)
}

func viewOf(s *coremodel.Session) *sessionView {
	v := &sessionView{
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
		StartedAt:      s.StartedAt.Format(time.RFC3339),
		CloseReason:    string(s.CloseReason),
		Illegal:        s.Illegal,
	}
	if s.EndedAt != nil {
		t := s.EndedAt.Format(time.RFC3339)
		v.EndedAt = &t
	}
	if s.LastTelemetryAt != nil {
		t := s.LastTelemetryAt.Format(time.RFC3339)
		v.LastTelemetryAt = &t
	}
	return v
}
