package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexguard/dexguard/internal/event"
)

type stubChannel struct {
	name string
	err  error

	mu        sync.Mutex
	delivered []Alert
}

func (c *stubChannel) Name() string { return c.name }
func (c *stubChannel) Kind() string { return "test" }

func (c *stubChannel) Deliver(_ context.Context, alert Alert) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivered = append(c.delivered, alert)
	return nil
}

func (c *stubChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.delivered)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.RatePerChannel = 0 // no limiting in unit tests
	return opts
}

func TestNotifyAppendsExactlyOneAlert(t *testing.T) {
	n := NewNotifier(testOptions())
	a := &stubChannel{name: "a"}
	b := &stubChannel{name: "b"}
	n.AddChannel(a, true, 1)
	n.AddChannel(b, true, 2)

	alert, delivered := n.Notify(context.Background(), "circuit-breaker-triggered", event.SeverityHigh, map[string]any{"breaker": "ETH-uniswap"})
	require.True(t, delivered)
	assert.NotEmpty(t, alert.ID)

	// One history entry regardless of channel count.
	assert.Equal(t, int64(1), n.Count())
	assert.Len(t, n.History(0), 1)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestNotifySkipsDisabledChannel(t *testing.T) {
	n := NewNotifier(testOptions())
	on := &stubChannel{name: "on"}
	off := &stubChannel{name: "off"}
	n.AddChannel(on, true, 1)
	n.AddChannel(off, false, 1)

	n.Notify(context.Background(), "threat-detected", event.SeverityMedium, nil)

	assert.Equal(t, 1, on.count())
	assert.Equal(t, 0, off.count())
}

func TestNotifyIsolatesChannelFailure(t *testing.T) {
	n := NewNotifier(testOptions())
	bad := &stubChannel{name: "bad", err: errors.New("webhook 500")}
	good := &stubChannel{name: "good"}
	n.AddChannel(bad, true, 1)
	n.AddChannel(good, true, 2)

	alert, delivered := n.Notify(context.Background(), "risk-escalation", event.SeverityCritical, nil)
	require.True(t, delivered)
	assert.NotEmpty(t, alert.ID)

	assert.Equal(t, 1, good.count(), "failure on one channel must not stop the next")
	assert.Equal(t, int64(1), n.DeliveryFailures())
	assert.Len(t, n.History(0), 1, "alert recorded even when a delivery fails")
}

type memDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDeduper) Seen(_ context.Context, key string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[key] {
		return true, nil
	}
	d.seen[key] = true
	return false, nil
}

func TestNotifySuppressesDuplicates(t *testing.T) {
	n := NewNotifier(testOptions())
	n.SetDeduper(&memDeduper{})
	ch := &stubChannel{name: "ch"}
	n.AddChannel(ch, true, 1)

	_, first := n.Notify(context.Background(), "breaker-recovered", event.SeverityLow, nil)
	_, second := n.Notify(context.Background(), "breaker-recovered", event.SeverityLow, nil)

	assert.True(t, first)
	assert.False(t, second, "identical alert inside the window is suppressed")
	assert.Equal(t, 1, ch.count())
	assert.Equal(t, int64(1), n.Count())

	// A different type is its own key.
	_, other := n.Notify(context.Background(), "breaker-probation-started", event.SeverityLow, nil)
	assert.True(t, other)
}

type failingDeduper struct{}

func (failingDeduper) Seen(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}

func TestNotifyDeliversWhenDedupUnavailable(t *testing.T) {
	n := NewNotifier(testOptions())
	n.SetDeduper(failingDeduper{})
	ch := &stubChannel{name: "ch"}
	n.AddChannel(ch, true, 1)

	_, delivered := n.Notify(context.Background(), "system-status-changed", event.SeverityMedium, nil)
	assert.True(t, delivered, "a broken de-dup cache must not drop alerts")
	assert.Equal(t, 1, ch.count())
}

func TestAcknowledge(t *testing.T) {
	n := NewNotifier(testOptions())
	alert, _ := n.Notify(context.Background(), "threat-detected", event.SeverityHigh, nil)

	require.True(t, n.Acknowledge(alert.ID))
	assert.False(t, n.Acknowledge("missing"))

	history := n.History(1)
	require.Len(t, history, 1)
	assert.True(t, history[0].Acknowledged)
}

func TestHistoryNewestFirstAndBounded(t *testing.T) {
	opts := testOptions()
	opts.MaxHistory = 3
	n := NewNotifier(opts)

	for _, typ := range []string{"one", "two", "three", "four"} {
		n.Notify(context.Background(), typ, event.SeverityLow, nil)
	}

	history := n.History(0)
	require.Len(t, history, 3)
	assert.Equal(t, "four", history[0].Type)
	assert.Equal(t, "three", history[1].Type)
	assert.Equal(t, "two", history[2].Type)

	// Counter keeps the full total across evictions.
	assert.Equal(t, int64(4), n.Count())
}

func TestSetEnabledAndChannelStates(t *testing.T) {
	n := NewNotifier(testOptions())
	n.AddChannel(&stubChannel{name: "ops"}, true, 1)

	require.True(t, n.SetEnabled("ops", false))
	assert.False(t, n.SetEnabled("missing", true))

	states := n.ChannelStates()
	require.Len(t, states, 1)
	assert.Equal(t, "ops", states[0].Name)
	assert.False(t, states[0].Enabled)
	assert.Equal(t, 1, states[0].Priority)
}

func TestCountersMirrorAlertAndFailureTotals(t *testing.T) {
	n := NewNotifier(testOptions())
	alerts := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_alerts_total"})
	failures := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_failures_total"})
	n.SetCounters(alerts, failures)

	n.AddChannel(&stubChannel{name: "bad", err: errors.New("webhook 500")}, true, 1)
	n.Notify(context.Background(), "circuit-breaker-triggered", event.SeverityHigh, nil)
	n.Notify(context.Background(), "breaker-recovered", event.SeverityLow, nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(alerts))
	assert.Equal(t, float64(2), testutil.ToFloat64(failures))
	assert.Equal(t, n.Count(), int64(testutil.ToFloat64(alerts)))
	assert.Equal(t, n.DeliveryFailures(), int64(testutil.ToFloat64(failures)))
}

func TestRateLimitDropsExcessDeliveries(t *testing.T) {
	opts := testOptions()
	opts.RatePerChannel = 1
	opts.RateBurst = 1
	n := NewNotifier(opts)
	ch := &stubChannel{name: "ch"}
	n.AddChannel(ch, true, 1)

	n.Notify(context.Background(), "a", event.SeverityLow, nil)
	n.Notify(context.Background(), "b", event.SeverityLow, nil)

	assert.Equal(t, 1, ch.count(), "second delivery exceeds the burst")
	assert.Equal(t, int64(2), n.Count(), "history still records both alerts")
	assert.Equal(t, int64(1), n.DeliveryFailures())
}
