package models

import (
	"github.com/charjee-official/Charjee-Apk-sub000/internal/booking"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
)

// FromSession 将内存会话快照转换为持久化记录
func FromSession(s *coremodel.Session) *ChargingSession {
	rec := &ChargingSession{
		ID:              string(s.ID),
		DeviceID:        string(s.DeviceID),
		UserID:          string(s.UserID),
		VendorID:        string(s.VendorID),
		VehicleClass:    string(s.VehicleClass),
		BookingID:       s.BookingID,
		PricePerKWh:     s.PricePerKWh,
		PlatformFeePct:  s.PlatformFeePct,
		EnergyKWh:       s.EnergyKWh,
		Amount:          s.Amount,
		PlatformShare:   s.PlatformShare,
		VendorShare:     s.VendorShare,
		LastCounterWh:   s.LastCounterWh,
		LastEnergyWh:    s.LastEnergyWh,
		Status:          string(s.Status),
		Illegal:         s.Illegal,
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
		LastTelemetryAt: s.LastTelemetryAt,
	}
	if s.CloseReason != "" {
		reason := string(s.CloseReason)
		rec.CloseReason = &reason
	}
	return rec
}

// ToSession 将持久化记录还原为内存会话快照
func (m *ChargingSession) ToSession() *coremodel.Session {
	s := &coremodel.Session{
		ID:              coremodel.SessionID(m.ID),
		DeviceID:        coremodel.DeviceID(m.DeviceID),
		UserID:          coremodel.UserID(m.UserID),
		VendorID:        coremodel.VendorID(m.VendorID),
		VehicleClass:    coremodel.VehicleClass(m.VehicleClass),
		BookingID:       m.BookingID,
		PricePerKWh:     m.PricePerKWh,
		PlatformFeePct:  m.PlatformFeePct,
		EnergyKWh:       m.EnergyKWh,
		Amount:          m.Amount,
		PlatformShare:   m.PlatformShare,
		VendorShare:     m.VendorShare,
		LastCounterWh:   m.LastCounterWh,
		LastEnergyWh:    m.LastEnergyWh,
		Status:          coremodel.SessionStatus(m.Status),
		Illegal:         m.Illegal,
		StartedAt:       m.StartedAt,
		EndedAt:         m.EndedAt,
		LastTelemetryAt: m.LastTelemetryAt,
	}
	if m.CloseReason != nil {
		s.CloseReason = coremodel.CloseReason(*m.CloseReason)
	}
	return s
}

// FromBooking 预约领域对象 → 持久化记录
func FromBooking(b *booking.Booking) *Booking {
	return &Booking{
		ID:        b.ID,
		UserID:    string(b.UserID),
		DeviceID:  string(b.DeviceID),
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}

// ToBooking 持久化记录 → 预约领域对象
func (m *Booking) ToBooking() booking.Booking {
	return booking.Booking{
		ID:        m.ID,
		UserID:    coremodel.UserID(m.UserID),
		DeviceID:  coremodel.DeviceID(m.DeviceID),
		StartTime: m.StartTime,
		EndTime:   m.EndTime,
		Status:    booking.Status(m.Status),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// FromSample 遥测样本 → 审计流水记录
func FromSample(sessionID *coremodel.SessionID, sample *coremodel.TelemetrySample) *TelemetryEvent {
	rec := &TelemetryEvent{
		DeviceID:   string(sample.DeviceID),
		ReportType: sample.Report.String(),
		Voltage:    sample.VoltageV,
		Power:      sample.PowerW,
		EnergyWh:   sample.EnergyWh,
		CounterWh:  sample.CounterWh,
		UptimeSec:  sample.UptimeSec,
		ChargeType: sample.ChargeType,
		Illegal:    sample.Illegal,
		Amount:     sample.DeviceAmount,
		DeviceTime: sample.DeviceTime,
		ReceivedAt: sample.ReceivedAt,
	}
	status := int32(sample.DeviceStatus)
	rec.Status = &status
	if sessionID != nil {
		sid := string(*sessionID)
		rec.SessionID = &sid
	}
	return rec
}
