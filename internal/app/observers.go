package app

import (
	"context"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/booking"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/metrics"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/registry"
)

// RegistryObserver 注册表操作计数
func RegistryObserver(appm *metrics.AppMetrics) registry.Observer {
	return registry.ObserverFunc(func(operation, status string) {
		appm.RegistryOpsTotal.WithLabelValues(operation, status).Inc()
	})
}

// BookingObserver 预约操作计数
func BookingObserver(appm *metrics.AppMetrics) booking.Observer {
	return booking.ObserverFunc(func(operation, status string) {
		appm.BookingOpsTotal.WithLabelValues(operation, status).Inc()
	})
}

// sessionEventTap 在事件出口上旁挂指标：在线会话数与累计计费量。
// 计费累计在会话终结时一次性入账，避免为每个样本维护差分状态。
type sessionEventTap struct {
	next registry.EventSink
	appm *metrics.AppMetrics
}

// NewSessionEventTap 包装事件出口，透传之余更新指标
func NewSessionEventTap(next registry.EventSink, appm *metrics.AppMetrics) registry.EventSink {
	return &sessionEventTap{next: next, appm: appm}
}

func (t *sessionEventTap) SessionStarted(ctx context.Context, s *coremodel.Session) {
	t.appm.SessionsOpen.Inc()
	t.next.SessionStarted(ctx, s)
}

func (t *sessionEventTap) SessionUpdated(ctx context.Context, s *coremodel.Session) {
	t.next.SessionUpdated(ctx, s)
}

func (t *sessionEventTap) SessionStopped(ctx context.Context, s *coremodel.Session) {
	t.appm.SessionsOpen.Dec()
	t.appm.EnergyAccruedKWh.Add(s.EnergyKWh)
	t.appm.AmountAccrued.Add(s.Amount)
	t.next.SessionStopped(ctx, s)
}

func (t *sessionEventTap) DeviceTelemetry(ctx context.Context, s *coremodel.Session, sample *coremodel.TelemetrySample) {
	t.next.DeviceTelemetry(ctx, s, sample)
}
