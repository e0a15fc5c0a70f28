// Package gormrepo 基于 GORM 的持久化实现，同时服务会话、预约、
// 钱包、费率与设备目录。账本幂等由 (session_id, kind) 唯一约束兜底。
package gormrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/booking"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/pricing"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/storage/models"
)

// 账本条目类型
const (
	LedgerKindWalletDebit  = "wallet_debit"
	LedgerKindVendorCredit = "vendor_credit"
)

// 费率作用域
const (
	TariffScopeDefault = "default"
	TariffScopeVendor  = "vendor"
	TariffScopeDevice  = "device"
)

// Repository 聚合仓储。
// 使用 isTx 标记区分事务上下文，避免嵌套事务重复 Begin/Commit。
type Repository struct {
	db   *gorm.DB
	isTx bool
}

// New 返回使用给定 *gorm.DB 的仓储实例
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx 复用现有事务或开启新事务执行 fn
func (r *Repository) WithTx(ctx context.Context, fn func(*Repository) error) error {
	if r.isTx {
		return fn(r)
	}

	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}

	child := &Repository{db: tx, isTx: true}
	if err := fn(child); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

// ---- 会话 ----

// SaveSession 按会话 ID upsert 完整快照
func (r *Repository) SaveSession(ctx context.Context, s *coremodel.Session) error {
	rec := models.FromSession(s)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"energy_kwh", "amount", "platform_share", "vendor_share",
				"last_counter_wh", "last_energy_wh",
				"status", "close_reason", "illegal",
				"ended_at", "last_telemetry_at", "updated_at",
			}),
		}).
		Create(rec).Error
}

// GetSession 查询会话，未命中返回 (nil, nil)
func (r *Repository) GetSession(ctx context.Context, id coremodel.SessionID) (*coremodel.Session, error) {
	var rec models.ChargingSession
	err := r.db.WithContext(ctx).Where("id = ?", string(id)).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.ToSession(), nil
}

// ListSessionsByUser 返回用户会话历史，按开始时间倒序
func (r *Repository) ListSessionsByUser(ctx context.Context, userID coremodel.UserID, limit int) ([]*coremodel.Session, error) {
	var recs []models.ChargingSession
	q := r.db.WithContext(ctx).
		Where("user_id = ?", string(userID)).
		Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	out := make([]*coremodel.Session, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].ToSession())
	}
	return out, nil
}

// ListOpenSessions 返回全部非终态会话（进程重启后恢复用）
func (r *Repository) ListOpenSessions(ctx context.Context) ([]*coremodel.Session, error) {
	var recs []models.ChargingSession
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{
			string(coremodel.SessionStatusPending),
			string(coremodel.SessionStatusActive),
		}).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]*coremodel.Session, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].ToSession())
	}
	return out, nil
}

// ---- 遥测审计 ----

// AppendTelemetry 追加遥测流水，孤儿报文 sessionID 为 nil
func (r *Repository) AppendTelemetry(ctx context.Context, sessionID *coremodel.SessionID, sample *coremodel.TelemetrySample) error {
	return r.db.WithContext(ctx).Create(models.FromSample(sessionID, sample)).Error
}

// ListTelemetryBySession 返回会话的遥测流水，按接收时间升序
func (r *Repository) ListTelemetryBySession(ctx context.Context, sessionID coremodel.SessionID, limit int) ([]models.TelemetryEvent, error) {
	var recs []models.TelemetryEvent
	q := r.db.WithContext(ctx).
		Where("session_id = ?", string(sessionID)).
		Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// ---- 账本 ----

// RecordWalletDebit 写入用户扣款条目并扣减钱包。
// 唯一约束 + DoNothing 保证重复停止只入账一次。
func (r *Repository) RecordWalletDebit(ctx context.Context, s *coremodel.Session) error {
	return r.recordLedger(ctx, s, LedgerKindWalletDebit, string(s.UserID), -s.Amount)
}

// RecordVendorCredit 写入商户分成条目并增加商户钱包
func (r *Repository) RecordVendorCredit(ctx context.Context, s *coremodel.Session) error {
	return r.recordLedger(ctx, s, LedgerKindVendorCredit, string(s.VendorID), s.VendorShare)
}

func (r *Repository) recordLedger(ctx context.Context, s *coremodel.Session, kind, ownerID string, delta float64) error {
	return r.WithTx(ctx, func(tx *Repository) error {
		entry := &models.LedgerEntry{
			SessionID: string(s.ID),
			Kind:      kind,
			OwnerID:   ownerID,
			Amount:    delta,
		}
		res := tx.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "session_id"}, {Name: "kind"}},
				DoNothing: true,
			}).
			Create(entry)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 条目已存在：余额已在首次入账时调整
			return nil
		}
		return tx.adjustBalance(ctx, ownerID, delta)
	})
}

// adjustBalance 调整钱包余额，账户不存在则先建
func (r *Repository) adjustBalance(ctx context.Context, ownerID string, delta float64) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "owner_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"balance": gorm.Expr("balance + ?", delta),
			}),
		}).
		Create(&models.Wallet{OwnerID: ownerID, Balance: delta}).Error
}

// ---- 钱包 ----

// Balance 查询钱包余额，账户不存在返回 (0, nil)
func (r *Repository) Balance(ctx context.Context, ownerID string) (float64, error) {
	var w models.Wallet
	err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return w.Balance, nil
}

// TopUpWallet 钱包充值
func (r *Repository) TopUpWallet(ctx context.Context, ownerID string, amount float64) error {
	return r.adjustBalance(ctx, ownerID, amount)
}

// ---- 预约 ----

// CreateBooking 创建预约
func (r *Repository) CreateBooking(ctx context.Context, b *booking.Booking) error {
	return r.db.WithContext(ctx).Create(models.FromBooking(b)).Error
}

// GetBooking 查询预约，未命中返回 booking.ErrNotFound
func (r *Repository) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	var rec models.Booking
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b := rec.ToBooking()
	return &b, nil
}

// HasOverlap 判断设备在 [start, end) 内是否已有 BOOKED/ACTIVE 预约。
// 半开区间重叠判定：start < existing.end AND existing.start < end。
func (r *Repository) HasOverlap(ctx context.Context, deviceID coremodel.DeviceID, start, end time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("device_id = ? AND status IN ?", string(deviceID), openBookingStatuses).
		Where("? < end_time AND start_time < ?", start, end).
		Count(&count).Error
	return count > 0, err
}

var openBookingStatuses = []string{
	string(booking.StatusBooked),
	string(booking.StatusActive),
}

// ListOpenByUserDevice 返回用户在设备上的 BOOKED 预约
func (r *Repository) ListOpenByUserDevice(ctx context.Context, userID coremodel.UserID, deviceID coremodel.DeviceID) ([]booking.Booking, error) {
	var recs []models.Booking
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ? AND status = ?",
			string(userID), string(deviceID), string(booking.StatusBooked)).
		Order("start_time ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return toBookings(recs), nil
}

// ListByUser 返回用户预约列表，按开始时间倒序
func (r *Repository) ListByUser(ctx context.Context, userID coremodel.UserID, limit int) ([]booking.Booking, error) {
	var recs []models.Booking
	q := r.db.WithContext(ctx).
		Where("user_id = ?", string(userID)).
		Order("start_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return toBookings(recs), nil
}

// UpdateStatus 更新预约状态
func (r *Repository) UpdateStatus(ctx context.Context, id string, status booking.Status) error {
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id).
		Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return booking.ErrNotFound
	}
	return nil
}

// ExpireBookedBefore 将 end_time < cutoff 的 BOOKED 预约批量置为 EXPIRED
func (r *Repository) ExpireBookedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("status = ? AND end_time < ?", string(booking.StatusBooked), cutoff).
		Update("status", string(booking.StatusExpired))
	return res.RowsAffected, res.Error
}

func toBookings(recs []models.Booking) []booking.Booking {
	out := make([]booking.Booking, 0, len(recs))
	for i := range recs {
		out = append(out, recs[i].ToBooking())
	}
	return out
}

// ---- 费率 ----

// RateFor 解析生效费率：设备级 > 商户级 > 平台默认，
// 三级皆无返回 pricing.ErrNoRate。
func (r *Repository) RateFor(ctx context.Context, vendorID coremodel.VendorID, deviceID coremodel.DeviceID) (pricing.Rate, error) {
	lookups := []struct {
		scope string
		ref   string
	}{
		{TariffScopeDevice, string(deviceID)},
		{TariffScopeVendor, string(vendorID)},
		{TariffScopeDefault, ""},
	}
	for _, l := range lookups {
		var rec models.Tariff
		err := r.db.WithContext(ctx).
			Where("scope = ? AND ref_id = ?", l.scope, l.ref).
			First(&rec).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return pricing.Rate{}, err
		}
		return pricing.Rate{PricePerKWh: rec.PricePerKWh, PlatformFeePct: rec.PlatformFeePct}, nil
	}
	return pricing.Rate{}, pricing.ErrNoRate
}

// SetTariff 写入或更新费率
func (r *Repository) SetTariff(ctx context.Context, scope, refID string, rate pricing.Rate) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "scope"}, {Name: "ref_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"price_per_kwh", "platform_fee_pct", "updated_at",
			}),
		}).
		Create(&models.Tariff{
			Scope:          scope,
			RefID:          refID,
			PricePerKWh:    rate.PricePerKWh,
			PlatformFeePct: rate.PlatformFeePct,
		}).Error
}

// ---- 设备目录 ----

// UpsertDevice 注册或更新设备
func (r *Repository) UpsertDevice(ctx context.Context, d *models.Device) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"vendor_id", "name", "location", "updated_at",
			}),
		}).
		Create(d).Error
}

// TouchLastSeen 刷新设备在线时间，目录中不存在时登记占位记录
func (r *Repository) TouchLastSeen(ctx context.Context, deviceID coremodel.DeviceID, at time.Time) error {
	ts := at
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"last_seen_at": gorm.Expr("excluded.last_seen_at"),
			}),
		}).
		Create(&models.Device{
			DeviceID:   string(deviceID),
			VendorID:   "",
			LastSeenAt: &ts,
		}).Error
}

// GetDevice 通过对外标识查询设备
func (r *Repository) GetDevice(ctx context.Context, deviceID coremodel.DeviceID) (*models.Device, error) {
	var rec models.Device
	err := r.db.WithContext(ctx).Where("device_id = ?", string(deviceID)).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &rec, err
}

// ListDevices 分页返回设备列表，按 id 倒序
func (r *Repository) ListDevices(ctx context.Context, limit, offset int) ([]models.Device, error) {
	var recs []models.Device
	q := r.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
