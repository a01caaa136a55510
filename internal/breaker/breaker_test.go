package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexguard/dexguard/internal/market"
)

const testPair = "ETH-uniswap"

func testThresholds() AssetThresholds {
	return AssetThresholds{
		MaxSlippage:       0.10,
		MaxVolatility:     0.25,
		MinLiquidityRatio: 0.30,
		MaxFailureRate:    0.15,
	}
}

func testSystemThresholds() SystemThresholds {
	return SystemThresholds{
		MaxDrawdown:           0.15,
		MaxDailyLoss:          50000,
		MaxHourlyTransactions: 10000,
	}
}

func healthyAssetMetrics() market.AssetMetrics {
	return market.AssetMetrics{
		AvgSlippage:    0.01,
		Volatility:     0.05,
		LiquidityRatio: 0.80,
		SuccessRate:    0.99,
		ObservedAt:     time.Now(),
	}
}

// recorder collects breaker transitions on channels so tests can wait for
// the asynchronous recovery timers.
type recorder struct {
	trips          chan string
	halfOpens      chan string
	recoveries     chan string
	probationFails chan string
}

func newRecorder() *recorder {
	return &recorder{
		trips:          make(chan string, 8),
		halfOpens:      make(chan string, 8),
		recoveries:     make(chan string, 8),
		probationFails: make(chan string, 8),
	}
}

func (r *recorder) OnTrip(snap Snapshot, reason string)            { r.trips <- reason }
func (r *recorder) OnHalfOpen(snap Snapshot)                       { r.halfOpens <- snap.ID }
func (r *recorder) OnRecovered(snap Snapshot)                      { r.recoveries <- snap.ID }
func (r *recorder) OnProbationFailed(snap Snapshot, reason string) { r.probationFails <- reason }

func waitFor(t *testing.T, ch chan string, what string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return ""
	}
}

func expectQuiet(t *testing.T, ch chan string, d time.Duration, what string) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected %s: %q", what, v)
	case <-time.After(d):
	}
}

func newTestRegistry(cooldown, probation time.Duration) (*Registry, *recorder) {
	cfg := Config{SystemID: "system-wide", Cooldown: cooldown, Probation: probation}
	universe := map[market.Key]AssetThresholds{
		{Asset: "ETH", Venue: "uniswap"}: testThresholds(),
	}
	r := NewRegistry(cfg, universe, testSystemThresholds())
	rec := newRecorder()
	r.SetHandler(rec)
	return r, rec
}

func TestEvaluateWithoutMetricsNeverTrips(t *testing.T) {
	r, _ := newTestRegistry(time.Hour, time.Hour)
	defer r.Stop()

	trips := r.Evaluate()
	assert.Empty(t, trips)
	assert.Empty(t, r.OpenBreakers())
}

func TestEvaluateTripsOnSlippageBreach(t *testing.T) {
	r, rec := newTestRegistry(time.Hour, time.Hour)
	defer r.Stop()

	m := healthyAssetMetrics()
	m.AvgSlippage = 0.12
	r.UpdateAssetMetrics(market.Key{Asset: "ETH", Venue: "uniswap"}, m)

	trips := r.Evaluate()
	require.Len(t, trips, 1)
	assert.Equal(t, testPair, trips[0].ID)
	assert.Contains(t, trips[0].Reason, "slippage")

	reason := waitFor(t, rec.trips, "trip callback")
	assert.Contains(t, reason, "slippage")

	b, ok := r.Get(testPair)
	require.True(t, ok)
	assert.Equal(t, StatusOpen, b.Status())
	assert.Equal(t, 1, b.Snapshot().TriggerCount)
}

func TestRuleOrderSlippageBeforeVolatility(t *testing.T) {
	r, _ := newTestRegistry(time.Hour, time.Hour)
	defer r.Stop()

	m := healthyAssetMetrics()
	m.AvgSlippage = 0.50
	m.Volatility = 0.90
	r.UpdateAssetMetrics(market.Key{Asset: "ETH", Venue: "uniswap"}, m)

	trips := r.Evaluate()
	require.Len(t, trips, 1)
	assert.Contains(t, trips[0].Reason, "slippage")
}

func TestSystemRuleOrderDrawdownFirst(t *testing.T) {
	r, rec := newTestRegistry(time.Hour, time.Hour)
	defer r.Stop()

	r.UpdateSystemMetrics(market.SystemMetrics{
		CurrentDrawdown:    0.20,
		DailyPnL:           -90000,
		HourlyTransactions: 100,
		ObservedAt:         time.Now(),
	})

	trips := r.Evaluate()
	require.Len(t, trips, 1)
	assert.Equal(t, "system-wide", trips[0].ID)
	assert.Contains(t, trips[0].Reason, "drawdown")
	waitFor(t, rec.trips, "trip callback")
	assert.True(t, r.SystemOpen())
}

func TestTriggerIsNoOpWhenOpen(t *testing.T) {
	r, rec := newTestRegistry(time.Hour, time.Hour)
	defer r.Stop()

	require.True(t, r.Trigger(testPair, "manual"))
	waitFor(t, rec.trips, "trip callback")

	assert.False(t, r.Trigger(testPair, "manual again"))

	b, _ := r.Get(testPair)
	assert.Equal(t, 1, b.Snapshot().TriggerCount)
	expectQuiet(t, rec.trips, 50*time.Millisecond, "second trip")
}

func TestEvaluateSkipsOpenBreaker(t *testing.T) {
	r, rec := newTestRegistry(time.Hour, time.Hour)
	defer r.Stop()

	m := healthyAssetMetrics()
	m.Volatility = 0.90
	r.UpdateAssetMetrics(market.Key{Asset: "ETH", Venue: "uniswap"}, m)

	require.Len(t, r.Evaluate(), 1)
	waitFor(t, rec.trips, "trip callback")

	assert.Empty(t, r.Evaluate())
	b, _ := r.Get(testPair)
	assert.Equal(t, 1, b.Snapshot().TriggerCount)
}

func TestRecoveryRoundTrip(t *testing.T) {
	r, rec := newTestRegistry(60*time.Millisecond, 60*time.Millisecond)
	defer r.Stop()

	key := market.Key{Asset: "ETH", Venue: "uniswap"}
	m := healthyAssetMetrics()
	m.AvgSlippage = 0.12
	r.UpdateAssetMetrics(key, m)

	require.Len(t, r.Evaluate(), 1)
	waitFor(t, rec.trips, "trip callback")

	// Metrics improve before the cooldown expires.
	r.UpdateAssetMetrics(key, healthyAssetMetrics())
	waitFor(t, rec.halfOpens, "half-open callback")

	b, _ := r.Get(testPair)
	assert.Equal(t, StatusHalfOpen, b.Status())

	// A fresh healthy observation during probation closes the breaker.
	r.UpdateAssetMetrics(key, healthyAssetMetrics())
	waitFor(t, rec.recoveries, "recovery callback")

	snap := b.Snapshot()
	assert.Equal(t, StatusClosed.String(), snap.Status)
	assert.Equal(t, 1, snap.TriggerCount, "recovery must not change the trigger count")
}

func TestStaysOpenWhileMetricsStillBad(t *testing.T) {
	r, rec := newTestRegistry(40*time.Millisecond, 40*time.Millisecond)
	defer r.Stop()

	key := market.Key{Asset: "ETH", Venue: "uniswap"}
	m := healthyAssetMetrics()
	m.LiquidityRatio = 0.10
	r.UpdateAssetMetrics(key, m)

	require.Len(t, r.Evaluate(), 1)
	waitFor(t, rec.trips, "trip callback")

	// Two cooldown windows pass with bad metrics: no probation starts.
	expectQuiet(t, rec.halfOpens, 120*time.Millisecond, "half-open")
	b, _ := r.Get(testPair)
	assert.Equal(t, StatusOpen, b.Status())

	// Once metrics improve a later cooldown check moves to half-open.
	r.UpdateAssetMetrics(key, healthyAssetMetrics())
	waitFor(t, rec.halfOpens, "half-open callback")
}

func TestProbationFailsWithoutFreshMetrics(t *testing.T) {
	r, rec := newTestRegistry(40*time.Millisecond, 40*time.Millisecond)
	defer r.Stop()

	key := market.Key{Asset: "ETH", Venue: "uniswap"}
	r.UpdateAssetMetrics(key, healthyAssetMetrics())

	// Manual trip with healthy metrics: cooldown check passes immediately.
	require.True(t, r.Trigger(testPair, "operator drill"))
	waitFor(t, rec.trips, "trip callback")
	waitFor(t, rec.halfOpens, "half-open callback")

	// No new observation arrives during probation, so closing is unsafe.
	reason := waitFor(t, rec.probationFails, "probation failure")
	assert.Contains(t, reason, "no fresh metrics")

	b, _ := r.Get(testPair)
	snap := b.Snapshot()
	assert.Equal(t, StatusOpen.String(), snap.Status)
	assert.Equal(t, 1, snap.TriggerCount, "a failed probation is not a new trigger")
}

func TestProbationFailsOnRenewedViolation(t *testing.T) {
	r, rec := newTestRegistry(40*time.Millisecond, 40*time.Millisecond)
	defer r.Stop()

	key := market.Key{Asset: "ETH", Venue: "uniswap"}
	r.UpdateAssetMetrics(key, healthyAssetMetrics())

	require.True(t, r.Trigger(testPair, "operator drill"))
	waitFor(t, rec.trips, "trip callback")
	waitFor(t, rec.halfOpens, "half-open callback")

	// Conditions degrade again during probation.
	m := healthyAssetMetrics()
	m.SuccessRate = 0.50
	r.UpdateAssetMetrics(key, m)

	reason := waitFor(t, rec.probationFails, "probation failure")
	assert.Contains(t, reason, "failure rate")

	b, _ := r.Get(testPair)
	assert.Equal(t, StatusOpen, b.Status())
}

func TestStopCancelsPendingRecovery(t *testing.T) {
	r, rec := newTestRegistry(30*time.Millisecond, 30*time.Millisecond)

	key := market.Key{Asset: "ETH", Venue: "uniswap"}
	r.UpdateAssetMetrics(key, healthyAssetMetrics())

	require.True(t, r.Trigger(testPair, "shutdown test"))
	waitFor(t, rec.trips, "trip callback")

	r.Stop()
	expectQuiet(t, rec.halfOpens, 100*time.Millisecond, "half-open after Stop")
}

func TestSnapshotsSystemFirst(t *testing.T) {
	r, _ := newTestRegistry(time.Hour, time.Hour)
	defer r.Stop()

	snaps := r.Snapshots()
	require.Len(t, snaps, 2)
	assert.Equal(t, "system-wide", snaps[0].ID)
	assert.True(t, snaps[0].SystemWide)
	assert.Equal(t, testPair, snaps[1].ID)
	assert.Equal(t, "ETH", snaps[1].Asset)
}
