package coremodel

import "time"

// DeviceID 设备唯一标识（充电桩物理ID）
type DeviceID string

// SessionID 充电会话ID
type SessionID string

// UserID 终端用户ID
type UserID string

// VendorID 站点运营商ID
type VendorID string

// VehicleClass 车辆类别（两轮/四轮），决定开始充电的最低钱包余额
type VehicleClass string

const (
	VehicleClassTwoWheeler  VehicleClass = "2W"
	VehicleClassFourWheeler VehicleClass = "4W"
)

// Valid 判断车辆类别是否合法
func (v VehicleClass) Valid() bool {
	return v == VehicleClassTwoWheeler || v == VehicleClassFourWheeler
}

// SessionStatus 充电会话状态枚举
type SessionStatus string

const (
	SessionStatusPending SessionStatus = "pending"
	SessionStatusActive  SessionStatus = "active"
	SessionStatusStopped SessionStatus = "stopped"
)

// CloseReason 会话关闭原因。优先级：illegal > force_stop > device_stop > normal
type CloseReason string

const (
	CloseReasonNormal     CloseReason = "normal"
	CloseReasonDeviceStop CloseReason = "device_stop"
	CloseReasonForceStop  CloseReason = "force_stop"
	CloseReasonIllegal    CloseReason = "illegal_consumption"
)

// DeviceStatus 设备上报状态码
type DeviceStatus int32

const (
	DeviceStatusIdle    DeviceStatus = 0
	DeviceStatusRunning DeviceStatus = 1
	DeviceStatusStopped DeviceStatus = 2
	DeviceStatusFault   DeviceStatus = 3
)

// Session 充电会话内存快照。
// 可变字段只允许由 registry 在会话级锁内修改；
// EnergyKWh 与 Amount 在会话生命周期内单调不减。
type Session struct {
	ID           SessionID
	DeviceID     DeviceID
	UserID       UserID
	VendorID     VendorID
	VehicleClass VehicleClass
	BookingID    *string

	// 会话开始时锁定的单价与平台费率
	PricePerKWh    float64
	PlatformFeePct float64

	Status          SessionStatus
	StartedAt       time.Time
	EndedAt         *time.Time
	LastTelemetryAt *time.Time

	// 累计电量(kWh)、累计金额与分成
	EnergyKWh     float64
	Amount        float64
	PlatformShare float64
	VendorShare   float64

	// 最近一次设备原始读数，作为下一个样本的增量基线
	LastCounterWh *float64
	LastEnergyWh  *float64

	CloseReason CloseReason
	Illegal     bool
}

// Terminal 会话是否已进入终态
func (s *Session) Terminal() bool {
	return s.Status == SessionStatusStopped
}

// Clone 返回会话拷贝快照，供广播/API 返回，避免外部持有可变引用
func (s *Session) Clone() *Session {
	c := *s
	c.BookingID = clonePtr(s.BookingID)
	c.EndedAt = clonePtr(s.EndedAt)
	c.LastTelemetryAt = clonePtr(s.LastTelemetryAt)
	c.LastCounterWh = clonePtr(s.LastCounterWh)
	c.LastEnergyWh = clonePtr(s.LastEnergyWh)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
