package gormrepo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/booking"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/pricing"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/storage/models"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Device{},
		&models.ChargingSession{},
		&models.Booking{},
		&models.TelemetryEvent{},
		&models.LedgerEntry{},
		&models.Wallet{},
		&models.Tariff{},
	))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return New(db)
}

func sampleSession() *coremodel.Session {
	return &coremodel.Session{
		ID:             "sess-1",
		DeviceID:       "dev-1",
		UserID:         "user-1",
		VendorID:       "vendor-1",
		VehicleClass:   coremodel.VehicleClassFourWheeler,
		PricePerKWh:    18,
		PlatformFeePct: 20,
		Status:         coremodel.SessionStatusPending,
		StartedAt:      time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestSessionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SaveSession(ctx, sampleSession()))

	got, err := repo.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, coremodel.SessionStatusPending, got.Status)
	assert.Equal(t, 18.0, got.PricePerKWh)

	// upsert updates mutable columns in place
	sess := sampleSession()
	sess.Status = coremodel.SessionStatusActive
	sess.EnergyKWh = 2
	sess.Amount = 36
	sess.PlatformShare = 7.2
	sess.VendorShare = 28.8
	counter := 3000.0
	sess.LastCounterWh = &counter
	require.NoError(t, repo.SaveSession(ctx, sess))

	got, err = repo.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, coremodel.SessionStatusActive, got.Status)
	assert.Equal(t, 36.0, got.Amount)
	require.NotNil(t, got.LastCounterWh)
	assert.Equal(t, 3000.0, *got.LastCounterWh)
}

func TestGetSessionMissingIsNilNil(t *testing.T) {
	repo := newTestRepo(t)
	got, err := repo.GetSession(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListOpenSessionsSkipsTerminal(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	open := sampleSession()
	require.NoError(t, repo.SaveSession(ctx, open))

	done := sampleSession()
	done.ID = "sess-2"
	done.DeviceID = "dev-2"
	done.Status = coremodel.SessionStatusStopped
	done.CloseReason = coremodel.CloseReasonNormal
	require.NoError(t, repo.SaveSession(ctx, done))

	got, err := repo.ListOpenSessions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, coremodel.SessionID("sess-1"), got[0].ID)
}

func TestLedgerIdempotency(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.TopUpWallet(ctx, "user-1", 100))

	sess := sampleSession()
	sess.Status = coremodel.SessionStatusStopped
	sess.Amount = 36
	sess.PlatformShare = 7.2
	sess.VendorShare = 28.8

	// duplicate posting must not double-charge
	require.NoError(t, repo.RecordWalletDebit(ctx, sess))
	require.NoError(t, repo.RecordWalletDebit(ctx, sess))
	require.NoError(t, repo.RecordVendorCredit(ctx, sess))
	require.NoError(t, repo.RecordVendorCredit(ctx, sess))

	userBal, err := repo.Balance(ctx, "user-1")
	require.NoError(t, err)
	assert.InDelta(t, 64.0, userBal, 1e-9)

	vendorBal, err := repo.Balance(ctx, "vendor-1")
	require.NoError(t, err)
	assert.InDelta(t, 28.8, vendorBal, 1e-9)
}

func TestBalanceMissingAccountIsZero(t *testing.T) {
	repo := newTestRepo(t)
	bal, err := repo.Balance(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0.0, bal)
}

func TestBookingOverlapAndExpiry(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	b := &booking.Booking{
		ID:        "bk-1",
		UserID:    "user-1",
		DeviceID:  "dev-1",
		StartTime: base,
		EndTime:   base.Add(30 * time.Minute),
		Status:    booking.StatusBooked,
		CreatedAt: base.Add(-time.Hour),
		UpdatedAt: base.Add(-time.Hour),
	}
	require.NoError(t, repo.CreateBooking(ctx, b))

	overlap, err := repo.HasOverlap(ctx, "dev-1", base.Add(15*time.Minute), base.Add(45*time.Minute))
	require.NoError(t, err)
	assert.True(t, overlap)

	// adjacent window does not overlap under half-open semantics
	overlap, err = repo.HasOverlap(ctx, "dev-1", base.Add(30*time.Minute), base.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, overlap)

	// other devices are unaffected
	overlap, err = repo.HasOverlap(ctx, "dev-2", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, overlap)

	open, err := repo.ListOpenByUserDevice(ctx, "user-1", "dev-1")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "bk-1", open[0].ID)

	n, err := repo.ExpireBookedBefore(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.GetBooking(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusExpired, got.Status)
}

func TestUpdateStatusMissingBooking(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.UpdateStatus(context.Background(), "ghost", booking.StatusActive)
	assert.ErrorIs(t, err, booking.ErrNotFound)
}

func TestTariffResolutionOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.RateFor(ctx, "vendor-1", "dev-1")
	assert.ErrorIs(t, err, pricing.ErrNoRate)

	require.NoError(t, repo.SetTariff(ctx, TariffScopeDefault, "", pricing.Rate{PricePerKWh: 18, PlatformFeePct: 20}))
	rate, err := repo.RateFor(ctx, "vendor-1", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 18.0, rate.PricePerKWh)

	require.NoError(t, repo.SetTariff(ctx, TariffScopeVendor, "vendor-1", pricing.Rate{PricePerKWh: 15, PlatformFeePct: 22}))
	rate, err = repo.RateFor(ctx, "vendor-1", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 15.0, rate.PricePerKWh)

	require.NoError(t, repo.SetTariff(ctx, TariffScopeDevice, "dev-1", pricing.Rate{PricePerKWh: 12, PlatformFeePct: 25}))
	rate, err = repo.RateFor(ctx, "vendor-1", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 12.0, rate.PricePerKWh)
	assert.Equal(t, 25.0, rate.PlatformFeePct)

	// update in place, not duplicate
	require.NoError(t, repo.SetTariff(ctx, TariffScopeDevice, "dev-1", pricing.Rate{PricePerKWh: 13, PlatformFeePct: 25}))
	rate, err = repo.RateFor(ctx, "vendor-1", "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 13.0, rate.PricePerKWh)
}

func TestTelemetryAuditIncludesOrphans(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	power := 7200.0
	sid := coremodel.SessionID("sess-1")
	require.NoError(t, repo.AppendTelemetry(ctx, &sid, &coremodel.TelemetrySample{
		DeviceID:     "dev-1",
		Report:       coremodel.ReportInterim,
		DeviceStatus: coremodel.DeviceStatusRunning,
		PowerW:       &power,
		ReceivedAt:   now,
	}))
	// orphan report: no resolved session, still audited
	require.NoError(t, repo.AppendTelemetry(ctx, nil, &coremodel.TelemetrySample{
		DeviceID:     "dev-2",
		Report:       coremodel.ReportAmbient,
		DeviceStatus: coremodel.DeviceStatusIdle,
		ReceivedAt:   now,
	}))

	recs, err := repo.ListTelemetryBySession(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "interim", recs[0].ReportType)
	require.NotNil(t, recs[0].Power)
	assert.Equal(t, 7200.0, *recs[0].Power)
}

func TestDeviceDirectory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	name := "Gate 3 charger"
	require.NoError(t, repo.UpsertDevice(ctx, &models.Device{
		DeviceID: "dev-1",
		VendorID: "vendor-1",
		Name:     &name,
	}))

	require.NoError(t, repo.TouchLastSeen(ctx, "dev-1", now))
	got, err := repo.GetDevice(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "vendor-1", got.VendorID)
	require.NotNil(t, got.LastSeenAt)
	assert.True(t, got.LastSeenAt.Equal(now))

	// unseen devices get a placeholder row on first report
	require.NoError(t, repo.TouchLastSeen(ctx, "dev-9", now))
	got, err = repo.GetDevice(ctx, "dev-9")
	require.NoError(t, err)
	assert.Equal(t, "", got.VendorID)

	list, err := repo.ListDevices(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
