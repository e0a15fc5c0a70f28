package models

import (
	"time"
)

// 注意：
// - 保持与 db/migrations/0001_init.sql 完全对齐
// - 不使用 gorm.Model，显式声明每个字段，避免隐式 DeletedAt

// Device 映射 devices 表（充电桩目录）
type Device struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 设备对外唯一标识
	DeviceID string `gorm:"column:device_id;type:text;not null;uniqueIndex"`
	// 归属商户
	VendorID string  `gorm:"column:vendor_id;type:text;not null;index"`
	Name     *string `gorm:"column:name;type:text"`
	Location *string `gorm:"column:location;type:text"`
	// 最近一次上报
	LastSeenAt *time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Device) TableName() string { return "devices" }

// ChargingSession 映射 charging_sessions 表
type ChargingSession struct {
	// 会话 UUID
	ID           string  `gorm:"column:id;type:text;primaryKey"`
	DeviceID     string  `gorm:"column:device_id;type:text;not null;index:idx_sessions_device_status,priority:1"`
	UserID       string  `gorm:"column:user_id;type:text;not null;index"`
	VendorID     string  `gorm:"column:vendor_id;type:text;not null;index"`
	VehicleClass string  `gorm:"column:vehicle_class;type:text;not null"`
	BookingID    *string `gorm:"column:booking_id;type:text"`
	// 注册时锁定的费率
	PricePerKWh    float64 `gorm:"column:price_per_kwh;not null"`
	PlatformFeePct float64 `gorm:"column:platform_fee_pct;not null"`
	// 计费累计
	EnergyKWh     float64 `gorm:"column:energy_kwh;not null;default:0"`
	Amount        float64 `gorm:"column:amount;not null;default:0"`
	PlatformShare float64 `gorm:"column:platform_share;not null;default:0"`
	VendorShare   float64 `gorm:"column:vendor_share;not null;default:0"`
	// 计费基线（Wh），可空表示尚未收到对应读数
	LastCounterWh *float64 `gorm:"column:last_counter_wh"`
	LastEnergyWh  *float64 `gorm:"column:last_energy_wh"`
	// 状态机
	Status          string     `gorm:"column:status;type:text;not null;index:idx_sessions_device_status,priority:2"`
	CloseReason     *string    `gorm:"column:close_reason;type:text"`
	Illegal         bool       `gorm:"column:illegal;not null;default:false"`
	StartedAt       time.Time  `gorm:"column:started_at;not null"`
	EndedAt         *time.Time `gorm:"column:ended_at"`
	LastTelemetryAt *time.Time `gorm:"column:last_telemetry_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (ChargingSession) TableName() string { return "charging_sessions" }

// Booking 映射 bookings 表
type Booking struct {
	ID        string    `gorm:"column:id;type:text;primaryKey"`
	UserID    string    `gorm:"column:user_id;type:text;not null;index"`
	DeviceID  string    `gorm:"column:device_id;type:text;not null;index:idx_bookings_device_window,priority:1"`
	StartTime time.Time `gorm:"column:start_time;not null;index:idx_bookings_device_window,priority:2"`
	EndTime   time.Time `gorm:"column:end_time;not null"`
	Status    string    `gorm:"column:status;type:text;not null;index"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Booking) TableName() string { return "bookings" }

// TelemetryEvent 映射 telemetry_events 表（只追加审计流水）
type TelemetryEvent struct {
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// 未解析到会话时为空（孤儿报文同样入审计）
	SessionID  *string  `gorm:"column:session_id;type:text;index"`
	DeviceID   string   `gorm:"column:device_id;type:text;not null;index:idx_telemetry_device_time,priority:1"`
	ReportType string   `gorm:"column:report_type;type:text;not null"`
	Status     *int32   `gorm:"column:status"`
	Voltage    *float64 `gorm:"column:voltage"`
	Power      *float64 `gorm:"column:power"`
	EnergyWh   *float64 `gorm:"column:energy_wh"`
	CounterWh  *float64 `gorm:"column:counter_wh"`
	UptimeSec  *int64   `gorm:"column:uptime_sec"`
	ChargeType *string  `gorm:"column:charge_type;type:text"`
	Illegal    *bool    `gorm:"column:illegal"`
	Amount     *float64 `gorm:"column:amount"`
	// 设备时钟（unix秒），仅诊断用
	DeviceTime int64     `gorm:"column:device_time;not null;default:0"`
	ReceivedAt time.Time `gorm:"column:received_at;not null;index:idx_telemetry_device_time,priority:2,sort:desc"`
}

func (TelemetryEvent) TableName() string { return "telemetry_events" }

// LedgerEntry 映射 ledger_entries 表。
// (session_id, kind) 唯一约束承载账本幂等：同一会话同一类条目只落一次。
type LedgerEntry struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	SessionID string    `gorm:"column:session_id;type:text;not null;uniqueIndex:uq_ledger_session_kind,priority:1"`
	Kind      string    `gorm:"column:kind;type:text;not null;uniqueIndex:uq_ledger_session_kind,priority:2"`
	OwnerID   string    `gorm:"column:owner_id;type:text;not null;index"`
	Amount    float64   `gorm:"column:amount;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// Wallet 映射 wallets 表（用户与商户共用，owner_id 区分）
type Wallet struct {
	OwnerID   string    `gorm:"column:owner_id;type:text;primaryKey"`
	Balance   float64   `gorm:"column:balance;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Wallet) TableName() string { return "wallets" }

// Tariff 映射 tariffs 表。scope + ref_id 组合定位：
// default 一行、vendor 按商户、device 按设备。
type Tariff struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Scope          string    `gorm:"column:scope;type:text;not null;uniqueIndex:uq_tariff_scope_ref,priority:1"`
	RefID          string    `gorm:"column:ref_id;type:text;not null;uniqueIndex:uq_tariff_scope_ref,priority:2"`
	PricePerKWh    float64   `gorm:"column:price_per_kwh;not null"`
	PlatformFeePct float64   `gorm:"column:platform_fee_pct;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Tariff) TableName() string { return "tariffs" }
