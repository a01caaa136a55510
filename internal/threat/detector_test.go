package threat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexguard/dexguard/internal/event"
	"github.com/dexguard/dexguard/internal/market"
)

type stubActivity struct {
	snap market.ActivitySnapshot
	err  error
}

func (s stubActivity) Activity(context.Context) (market.ActivitySnapshot, error) {
	return s.snap, s.err
}

func TestScanQuietActivityDetectsNothing(t *testing.T) {
	d := NewDetector(stubActivity{snap: market.ActivitySnapshot{ObservedAt: time.Now()}}, DefaultRules())

	detections, err := d.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, detections)
}

func TestScanDetectsWashTrading(t *testing.T) {
	src := stubActivity{snap: market.ActivitySnapshot{SelfMatchRatio: 0.20, ObservedAt: time.Now()}}
	d := NewDetector(src, DefaultRules())

	detections, err := d.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, detections, 1)

	det := detections[0]
	assert.Equal(t, "wash-trading", det.Rule)
	assert.Equal(t, 0.20, det.Observed)
	assert.Equal(t, 0.15, det.Threshold)
	// 0.20/0.15 = 1.33x: above threshold but below the 1.5x severity step.
	assert.Equal(t, event.SeverityMedium, det.Severity)
}

func TestSeverityScalesWithExcess(t *testing.T) {
	src := stubActivity{snap: market.ActivitySnapshot{SelfMatchRatio: 0.45, ObservedAt: time.Now()}}
	d := NewDetector(src, DefaultRules())

	detections, err := d.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, detections, 1)

	det := detections[0]
	assert.Equal(t, event.SeverityHigh, det.Severity)
	assert.Equal(t, 1.0, det.Confidence, "3x over threshold caps confidence")
}

func TestIdenticalInputsProduceIdenticalDetections(t *testing.T) {
	src := stubActivity{snap: market.ActivitySnapshot{CancelRatio: 12, ObservedAt: time.Now()}}
	d := NewDetector(src, DefaultRules())

	first, err := d.Scan(context.Background())
	require.NoError(t, err)
	second, err := d.Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Severity, second[0].Severity)
	assert.Equal(t, first[0].Confidence, second[0].Confidence)
	assert.Equal(t, first[0].Observed, second[0].Observed)
}

func TestDisabledRuleNeverFires(t *testing.T) {
	src := stubActivity{snap: market.ActivitySnapshot{SelfMatchRatio: 0.90, ObservedAt: time.Now()}}
	d := NewDetector(src, DefaultRules())

	require.True(t, d.SetEnabled("wash-trading", false))

	detections, err := d.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, detections)

	require.True(t, d.SetEnabled("wash-trading", true))
	detections, err = d.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, detections, 1)
}

func TestSetEnabledUnknownRule(t *testing.T) {
	d := NewDetector(stubActivity{}, DefaultRules())
	assert.False(t, d.SetEnabled("no-such-rule", true))
}

func TestMultipleRulesFireIndependently(t *testing.T) {
	src := stubActivity{snap: market.ActivitySnapshot{
		SelfMatchRatio:   0.30,
		OracleDivergence: 0.10,
		ObservedAt:       time.Now(),
	}}
	d := NewDetector(src, DefaultRules())

	detections, err := d.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, detections, 2)

	names := []string{detections[0].Rule, detections[1].Rule}
	assert.Contains(t, names, "wash-trading")
	assert.Contains(t, names, "oracle-divergence")
}

func TestScanPropagatesSourceError(t *testing.T) {
	d := NewDetector(stubActivity{err: errors.New("feed down")}, DefaultRules())
	_, err := d.Scan(context.Background())
	assert.Error(t, err)
}

func TestActiveAttackFlagOnDefaults(t *testing.T) {
	d := NewDetector(stubActivity{}, DefaultRules())

	rule, ok := d.Rule("wash-trading")
	require.True(t, ok)
	assert.True(t, rule.ActiveAttack)

	rule, ok = d.Rule("spoofing")
	require.True(t, ok)
	assert.False(t, rule.ActiveAttack)
}
