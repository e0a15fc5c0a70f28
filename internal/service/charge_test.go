package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/booking"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/pricing"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/registry"
	"github.com/charjee-official/Charjee-Apk-sub000/internal/wallet"
)

// ---- fakes ----

type fakeBalances struct {
	balances map[string]float64
}

func (f *fakeBalances) Balance(_ context.Context, ownerID string) (float64, error) {
	return f.balances[ownerID], nil
}

type memBookingStore struct {
	mu       sync.Mutex
	bookings map[string]*booking.Booking
}

func newMemBookingStore() *memBookingStore {
	return &memBookingStore{bookings: make(map[string]*booking.Booking)}
}

func (s *memBookingStore) CreateBooking(_ context.Context, b *booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *b
	s.bookings[b.ID] = &cp
	return nil
}

func (s *memBookingStore) GetBooking(_ context.Context, id string) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *memBookingStore) HasOverlap(_ context.Context, deviceID coremodel.DeviceID, start, end time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.DeviceID != deviceID {
			continue
		}
		if b.Status != booking.StatusBooked && b.Status != booking.StatusActive {
			continue
		}
		if start.Before(b.EndTime) && b.StartTime.Before(end) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memBookingStore) ListOpenByUserDevice(_ context.Context, userID coremodel.UserID, deviceID coremodel.DeviceID) ([]booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []booking.Booking
	for _, b := range s.bookings {
		if b.UserID == userID && b.DeviceID == deviceID && b.Status == booking.StatusBooked {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *memBookingStore) ListByUser(_ context.Context, userID coremodel.UserID, limit int) ([]booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []booking.Booking
	for _, b := range s.bookings {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memBookingStore) UpdateStatus(_ context.Context, id string, status booking.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return booking.ErrNotFound
	}
	b.Status = status
	return nil
}

func (s *memBookingStore) ExpireBookedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, b := range s.bookings {
		if b.Status == booking.StatusBooked && b.EndTime.Before(cutoff) {
			b.Status = booking.StatusExpired
			n++
		}
	}
	return n, nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[coremodel.SessionID]*coremodel.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[coremodel.SessionID]*coremodel.Session)}
}

func (s *memSessionStore) SaveSession(_ context.Context, sess *coremodel.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *memSessionStore) GetSession(_ context.Context, id coremodel.SessionID) (*coremodel.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return sess.Clone(), nil
}

type nopTelemetry struct{}

func (nopTelemetry) AppendTelemetry(context.Context, *coremodel.SessionID, *coremodel.TelemetrySample) error {
	return nil
}

type nopLedger struct{}

func (nopLedger) RecordWalletDebit(context.Context, *coremodel.Session) error  { return nil }
func (nopLedger) RecordVendorCredit(context.Context, *coremodel.Session) error { return nil }

type commandCall struct {
	op       string
	deviceID coremodel.DeviceID
	timer    time.Duration
	session  coremodel.SessionID
}

type recordingCommander struct {
	mu    sync.Mutex
	calls []commandCall
}

func (c *recordingCommander) TurnOn(_ context.Context, d coremodel.DeviceID, timer time.Duration, s coremodel.SessionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, commandCall{"turn_on", d, timer, s})
	return nil
}

func (c *recordingCommander) TurnOff(_ context.Context, d coremodel.DeviceID, timer time.Duration, s coremodel.SessionID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, commandCall{"turn_off", d, timer, s})
	return nil
}

func (c *recordingCommander) snapshot() []commandCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]commandCall(nil), c.calls...)
}

// ---- harness ----

type fixture struct {
	svc       *ChargeService
	balances  *fakeBalances
	bookStore *memBookingStore
	books     *booking.Coordinator
	reg       *registry.Registry
	commander *recordingCommander
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2025, 6, 1, 10, 20, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	balances := &fakeBalances{balances: map[string]float64{}}
	guard := wallet.NewGuard(balances, 50, 200, nil)

	bookStore := newMemBookingStore()
	books := booking.NewCoordinator(bookStore, booking.WithNow(clock))

	rates := pricing.NewMemory(pricing.Rate{PricePerKWh: 18, PlatformFeePct: 20})
	rates.SetVendorRate("vendor-9", pricing.Rate{PricePerKWh: 12, PlatformFeePct: 25})

	commander := &recordingCommander{}
	reg := registry.New(registry.Config{
		Store:     newMemSessionStore(),
		Telemetry: nopTelemetry{},
		Ledger:    nopLedger{},
		Bookings:  books,
		Commander: commander,
		Now:       clock,
	})

	svc := NewChargeService(guard, books, rates, reg, commander, 15*time.Minute, nil)
	return &fixture{
		svc:       svc,
		balances:  balances,
		bookStore: bookStore,
		books:     books,
		reg:       reg,
		commander: commander,
		now:       now,
	}
}

func (f *fixture) seedBooking(id string, user coremodel.UserID, device coremodel.DeviceID, start, end time.Time) {
	f.bookStore.bookings[id] = &booking.Booking{
		ID:        id,
		UserID:    user,
		DeviceID:  device,
		StartTime: start,
		EndTime:   end,
		Status:    booking.StatusBooked,
	}
}

// ---- tests ----

func TestStartHappyPath(t *testing.T) {
	f := newFixture(t)
	f.balances.balances["user-1"] = 300

	sess, err := f.svc.Start(context.Background(), StartRequest{
		DeviceID:     "dev-1",
		UserID:       "user-1",
		VendorID:     "vendor-9",
		VehicleClass: coremodel.VehicleClassFourWheeler,
	})
	require.NoError(t, err)
	require.NotNil(t, sess)

	assert.Equal(t, coremodel.SessionStatusPending, sess.Status)
	assert.Equal(t, 12.0, sess.PricePerKWh, "vendor override should win over default")
	assert.Equal(t, 25.0, sess.PlatformFeePct)
	assert.Nil(t, sess.BookingID)

	calls := f.commander.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "turn_on", calls[0].op)
	assert.Equal(t, 15*time.Minute, calls[0].timer)
	assert.Equal(t, sess.ID, calls[0].session)
}

func TestStartInsufficientBalanceProducesNothing(t *testing.T) {
	f := newFixture(t)
	f.balances.balances["user-1"] = 30 // below the 2W minimum of 50
	f.seedBooking("bk-1", "user-1", "dev-1", f.now.Add(-10*time.Minute), f.now.Add(20*time.Minute))

	_, err := f.svc.Start(context.Background(), StartRequest{
		DeviceID:     "dev-1",
		UserID:       "user-1",
		VendorID:     "vendor-9",
		VehicleClass: coremodel.VehicleClassTwoWheeler,
	})
	require.ErrorIs(t, err, wallet.ErrInsufficientBalance)

	// no session, no booking claim, no device command
	_, ok := f.reg.ActiveForDevice("dev-1")
	assert.False(t, ok)
	b, err := f.bookStore.GetBooking(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusBooked, b.Status)
	assert.Empty(t, f.commander.snapshot())
}

func TestStartClaimsBookingInWindow(t *testing.T) {
	f := newFixture(t)
	f.balances.balances["user-1"] = 100
	f.seedBooking("bk-1", "user-1", "dev-1", f.now.Add(-10*time.Minute), f.now.Add(20*time.Minute))

	sess, err := f.svc.Start(context.Background(), StartRequest{
		DeviceID:     "dev-1",
		UserID:       "user-1",
		VendorID:     "vendor-9",
		VehicleClass: coremodel.VehicleClassTwoWheeler,
		TimerMinutes: 30,
	})
	require.NoError(t, err)
	require.NotNil(t, sess.BookingID)
	assert.Equal(t, "bk-1", *sess.BookingID)

	b, err := f.bookStore.GetBooking(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusActive, b.Status)

	calls := f.commander.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, 30*time.Minute, calls[0].timer)
}

func TestStartExplicitBookingMustBeClaimable(t *testing.T) {
	f := newFixture(t)
	f.balances.balances["user-1"] = 100
	// window already past the grace period
	f.seedBooking("bk-old", "user-1", "dev-1", f.now.Add(-2*time.Hour), f.now.Add(-1*time.Hour))

	id := "bk-old"
	_, err := f.svc.Start(context.Background(), StartRequest{
		DeviceID:     "dev-1",
		UserID:       "user-1",
		VendorID:     "vendor-9",
		VehicleClass: coremodel.VehicleClassTwoWheeler,
		BookingID:    &id,
	})
	require.ErrorIs(t, err, ErrBookingNotClaimable)
	assert.Empty(t, f.commander.snapshot())
}

func TestStartRejectsBusyDevice(t *testing.T) {
	f := newFixture(t)
	f.balances.balances["user-1"] = 100
	f.balances.balances["user-2"] = 100

	req := StartRequest{
		DeviceID:     "dev-1",
		UserID:       "user-1",
		VendorID:     "vendor-9",
		VehicleClass: coremodel.VehicleClassTwoWheeler,
	}
	_, err := f.svc.Start(context.Background(), req)
	require.NoError(t, err)

	req.UserID = "user-2"
	_, err = f.svc.Start(context.Background(), req)
	require.ErrorIs(t, err, registry.ErrDeviceBusy)
}

func TestStartFailureReleasesClaimedBooking(t *testing.T) {
	f := newFixture(t)
	f.balances.balances["user-1"] = 100
	f.balances.balances["user-2"] = 100
	f.seedBooking("bk-1", "user-1", "dev-1", f.now.Add(-10*time.Minute), f.now.Add(20*time.Minute))

	// user-2 先占住设备
	_, err := f.svc.Start(context.Background(), StartRequest{
		DeviceID:     "dev-1",
		UserID:       "user-2",
		VendorID:     "vendor-9",
		VehicleClass: coremodel.VehicleClassTwoWheeler,
	})
	require.NoError(t, err)

	id := "bk-1"
	_, err = f.svc.Start(context.Background(), StartRequest{
		DeviceID:     "dev-1",
		UserID:       "user-1",
		VendorID:     "vendor-9",
		VehicleClass: coremodel.VehicleClassTwoWheeler,
		BookingID:    &id,
	})
	require.ErrorIs(t, err, registry.ErrDeviceBusy)

	// 认领必须回滚：滞留 ACTIVE 的预约既无法完成也无法被失约清理回收
	b, err := f.bookStore.GetBooking(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusBooked, b.Status)

	// 设备释放后同一预约仍可正常认领
	occupying, ok := f.reg.ActiveForDevice("dev-1")
	require.True(t, ok)
	_, err = f.svc.ForceStop(context.Background(), occupying.ID)
	require.NoError(t, err)

	sess, err := f.svc.Start(context.Background(), StartRequest{
		DeviceID:     "dev-1",
		UserID:       "user-1",
		VendorID:     "vendor-9",
		VehicleClass: coremodel.VehicleClassTwoWheeler,
		BookingID:    &id,
	})
	require.NoError(t, err)
	require.NotNil(t, sess.BookingID)
	assert.Equal(t, "bk-1", *sess.BookingID)
}

func TestStartRateFailureReleasesClaimedBooking(t *testing.T) {
	f := newFixture(t)
	f.balances.balances["user-1"] = 100
	f.seedBooking("bk-1", "user-1", "dev-1", f.now.Add(-10*time.Minute), f.now.Add(20*time.Minute))

	// 空费率表：认领成功但费率锁定失败
	guard := wallet.NewGuard(f.balances, 50, 200, nil)
	svc := NewChargeService(guard, f.books, &pricing.Memory{}, f.reg, f.commander, 15*time.Minute, nil)

	_, err := svc.Start(context.Background(), StartRequest{
		DeviceID:     "dev-1",
		UserID:       "user-1",
		VendorID:     "vendor-9",
		VehicleClass: coremodel.VehicleClassTwoWheeler,
	})
	require.ErrorIs(t, err, pricing.ErrNoRate)

	b, err := f.bookStore.GetBooking(context.Background(), "bk-1")
	require.NoError(t, err)
	assert.Equal(t, booking.StatusBooked, b.Status)
	assert.Empty(t, f.commander.snapshot())

	_, ok := f.reg.ActiveForDevice("dev-1")
	assert.False(t, ok)
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Start(context.Background(), StartRequest{
		UserID:       "user-1",
		VendorID:     "vendor-9",
		VehicleClass: coremodel.VehicleClassTwoWheeler,
	})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.Start(context.Background(), StartRequest{
		DeviceID:     "dev-1",
		UserID:       "user-1",
		VendorID:     "vendor-9",
		VehicleClass: "3W",
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestStopPublishesTurnOffAndKeepsSessionOpen(t *testing.T) {
	f := newFixture(t)
	f.balances.balances["user-1"] = 100

	sess, err := f.svc.Start(context.Background(), StartRequest{
		DeviceID:     "dev-1",
		UserID:       "user-1",
		VendorID:     "vendor-9",
		VehicleClass: coremodel.VehicleClassTwoWheeler,
	})
	require.NoError(t, err)

	snap, err := f.svc.Stop(context.Background(), sess.ID, "dev-1", nil)
	require.NoError(t, err)
	// the snapshot reflects state at request time; STOPPED arrives with
	// the device's final report, not here
	assert.Equal(t, coremodel.SessionStatusPending, snap.Status)

	calls := f.commander.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, "turn_off", calls[1].op)
	assert.Equal(t, time.Duration(0), calls[1].timer)
}

func TestStopRejectsDeviceMismatch(t *testing.T) {
	f := newFixture(t)
	f.balances.balances["user-1"] = 100

	sess, err := f.svc.Start(context.Background(), StartRequest{
		DeviceID:     "dev-1",
		UserID:       "user-1",
		VendorID:     "vendor-9",
		VehicleClass: coremodel.VehicleClassTwoWheeler,
	})
	require.NoError(t, err)

	_, err = f.svc.Stop(context.Background(), sess.ID, "dev-2", nil)
	require.ErrorIs(t, err, ErrDeviceMismatch)
}

func TestForceStopClosesSession(t *testing.T) {
	f := newFixture(t)
	f.balances.balances["user-1"] = 100

	sess, err := f.svc.Start(context.Background(), StartRequest{
		DeviceID:     "dev-1",
		UserID:       "user-1",
		VendorID:     "vendor-9",
		VehicleClass: coremodel.VehicleClassTwoWheeler,
	})
	require.NoError(t, err)

	stopped, err := f.svc.ForceStop(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, coremodel.SessionStatusStopped, stopped.Status)
	assert.Equal(t, coremodel.CloseReasonForceStop, stopped.CloseReason)

	_, ok := f.reg.ActiveForDevice("dev-1")
	assert.False(t, ok)
}
