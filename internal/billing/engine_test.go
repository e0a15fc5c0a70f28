package billing

import (
	"math"
	"testing"

	"github.com/charjee-official/Charjee-Apk-sub000/internal/coremodel"
)

func newSession(price, feePct float64) *coremodel.Session {
	return &coremodel.Session{
		ID:             "sess-1",
		DeviceID:       "dev-1",
		Status:         coremodel.SessionStatusActive,
		PricePerKWh:    price,
		PlatformFeePct: feePct,
	}
}

func counterSample(wh float64) *coremodel.TelemetrySample {
	return &coremodel.TelemetrySample{
		DeviceID:  "dev-1",
		Report:    coremodel.ReportInterim,
		CounterWh: &wh,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestApplyCounterScenario(t *testing.T) {
	// price=18/kWh fee=20%: counter 1000 -> 3000 Wh 应产生 2.0kWh / 36 元
	sess := newSession(18, 20)

	Apply(sess, counterSample(1000))
	if sess.EnergyKWh != 0 || sess.Amount != 0 {
		t.Fatalf("first sample must only record baseline, got %+v", sess)
	}
	if sess.LastCounterWh == nil || *sess.LastCounterWh != 1000 {
		t.Fatalf("baseline not recorded: %+v", sess.LastCounterWh)
	}

	Apply(sess, counterSample(2000))
	acc := Apply(sess, counterSample(3000))

	if !almostEqual(acc.EnergyKWh, 1.0) {
		t.Fatalf("last delta = %v, want 1.0", acc.EnergyKWh)
	}
	if !almostEqual(sess.EnergyKWh, 2.0) {
		t.Fatalf("energy = %v, want 2.0", sess.EnergyKWh)
	}
	if !almostEqual(sess.Amount, 36) {
		t.Fatalf("amount = %v, want 36", sess.Amount)
	}
	if !almostEqual(sess.PlatformShare, 7.2) || !almostEqual(sess.VendorShare, 28.8) {
		t.Fatalf("shares = %v / %v, want 7.2 / 28.8", sess.PlatformShare, sess.VendorShare)
	}
}

func TestApplyRollbackClampedToZero(t *testing.T) {
	sess := newSession(10, 10)
	Apply(sess, counterSample(5000))
	Apply(sess, counterSample(6000))

	acc := Apply(sess, counterSample(200)) // 设备复位
	if !acc.Rollback {
		t.Fatalf("rollback not flagged")
	}
	if acc.EnergyKWh != 0 || acc.Amount != 0 {
		t.Fatalf("rollback must not accrue: %+v", acc)
	}
	if !almostEqual(sess.EnergyKWh, 1.0) {
		t.Fatalf("energy changed on rollback: %v", sess.EnergyKWh)
	}
	// 基线应跟随回退后的读数，后续增量从新基线起算
	if *sess.LastCounterWh != 200 {
		t.Fatalf("baseline = %v, want 200", *sess.LastCounterWh)
	}

	acc = Apply(sess, counterSample(700))
	if !almostEqual(acc.EnergyKWh, 0.5) {
		t.Fatalf("post-rollback delta = %v, want 0.5", acc.EnergyKWh)
	}
}

func TestApplyMonotonicOverSequence(t *testing.T) {
	sess := newSession(18, 20)
	seq := []float64{100, 100, 350, 300, 900, 900, 1400}

	prevEnergy, prevAmount := 0.0, 0.0
	for _, wh := range seq {
		Apply(sess, counterSample(wh))
		if sess.EnergyKWh < prevEnergy || sess.Amount < prevAmount {
			t.Fatalf("accrual decreased at reading %v: %+v", wh, sess)
		}
		prevEnergy, prevAmount = sess.EnergyKWh, sess.Amount
	}
}

func TestApplyFallbackReading(t *testing.T) {
	sess := newSession(20, 25)

	e1, e2 := 500.0, 1500.0
	Apply(sess, &coremodel.TelemetrySample{DeviceID: "dev-1", EnergyWh: &e1})
	acc := Apply(sess, &coremodel.TelemetrySample{DeviceID: "dev-1", EnergyWh: &e2})

	if !almostEqual(acc.EnergyKWh, 1.0) || !almostEqual(acc.Amount, 20) {
		t.Fatalf("fallback accrual = %+v", acc)
	}
}

func TestApplyNoReadingsNoAccrual(t *testing.T) {
	sess := newSession(18, 20)
	acc := Apply(sess, &coremodel.TelemetrySample{DeviceID: "dev-1"})
	if acc.EnergyKWh != 0 || acc.Amount != 0 || acc.Rollback {
		t.Fatalf("empty sample accrued: %+v", acc)
	}
}
