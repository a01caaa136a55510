package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
	}{
		{0.0, LevelLow},
		{0.40, LevelLow},
		{0.41, LevelMedium},
		{0.60, LevelMedium},
		{0.61, LevelHigh},
		{0.80, LevelHigh},
		{0.81, LevelCritical},
		{1.0, LevelCritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.score), "score %.2f", tt.score)
	}
}

func TestMarketScoreWeights(t *testing.T) {
	// All factors at 1.0 must sum the weights to exactly 1.0.
	assert.InDelta(t, 1.0, MarketScore(MarketFactors{1, 1, 1, 1, 1}), 1e-9)

	// Volatility carries the 0.30 weight.
	assert.InDelta(t, 0.30, MarketScore(MarketFactors{Volatility: 1}), 1e-9)
	assert.InDelta(t, 0.25, MarketScore(MarketFactors{LiquidityRisk: 1}), 1e-9)
	assert.InDelta(t, 0.20, MarketScore(MarketFactors{CorrelationRisk: 1}), 1e-9)
	assert.InDelta(t, 0.15, MarketScore(MarketFactors{SlippageRisk: 1}), 1e-9)
	assert.InDelta(t, 0.10, MarketScore(MarketFactors{DepthRisk: 1}), 1e-9)
}

func TestOperationalScoreUsesDowntime(t *testing.T) {
	// Perfect uptime and no other signals scores zero.
	assert.InDelta(t, 0.0, OperationalScore(OperationalFactors{Uptime: 1}), 1e-9)

	// Total downtime alone contributes the 0.25 weight.
	assert.InDelta(t, 0.25, OperationalScore(OperationalFactors{Uptime: 0}), 1e-9)

	full := OperationalFactors{Uptime: 0, Congestion: 1, ContractRisk: 1, BridgeRisk: 1, KeyManagementRisk: 1, OracleRisk: 1}
	assert.InDelta(t, 1.0, OperationalScore(full), 1e-9)
}

func TestExternalScoreWeights(t *testing.T) {
	assert.InDelta(t, 1.0, ExternalScore(ExternalFactors{1, 1, 1, 1, 1}), 1e-9)
	assert.InDelta(t, 0.30, ExternalScore(ExternalFactors{RegulatoryRisk: 1}), 1e-9)
	assert.InDelta(t, 0.25, ExternalScore(ExternalFactors{ManipulationRisk: 1}), 1e-9)
}

func TestOverallScoreCombination(t *testing.T) {
	f := Factors{
		Market:      MarketFactors{1, 1, 1, 1, 1},
		Operational: OperationalFactors{Uptime: 1},
		External:    ExternalFactors{},
	}
	// Market 1.0 * 0.40, operational 0, external 0.
	a := Score(f)
	assert.InDelta(t, 0.40, a.OverallScore, 1e-9)
	assert.Equal(t, LevelLow, a.Level)
	assert.InDelta(t, 1.0, a.MarketScore, 1e-9)
}

func TestScoreMonotonicInFactors(t *testing.T) {
	base := Factors{Operational: OperationalFactors{Uptime: 0.99}}
	worse := base
	worse.Market.Volatility = 0.9
	worse.External.ManipulationRisk = 0.8

	assert.Greater(t, Score(worse).OverallScore, Score(base).OverallScore)
}

func TestScoreClamped(t *testing.T) {
	f := Factors{
		Market:      MarketFactors{5, 5, 5, 5, 5},
		Operational: OperationalFactors{Uptime: -4, Congestion: 5, ContractRisk: 5, BridgeRisk: 5, KeyManagementRisk: 5, OracleRisk: 5},
		External:    ExternalFactors{5, 5, 5, 5, 5},
	}
	a := Score(f)
	assert.InDelta(t, 1.0, a.OverallScore, 1e-9)
	assert.Equal(t, LevelCritical, a.Level)
}

func TestAssessStoresLatest(t *testing.T) {
	src := NewStaticSource()
	src.SetFactors(Factors{
		Market:      MarketFactors{Volatility: 1, LiquidityRisk: 1, CorrelationRisk: 1, SlippageRisk: 1, DepthRisk: 1},
		Operational: OperationalFactors{Uptime: 0, Congestion: 1, ContractRisk: 1, BridgeRisk: 1, KeyManagementRisk: 1, OracleRisk: 1},
		External:    ExternalFactors{1, 1, 1, 1, 1},
	})
	a := NewAssessor(src)

	_, ok := a.Latest()
	assert.False(t, ok, "no assessment before the first cycle")

	got, err := a.Assess(context.Background())
	require.NoError(t, err)
	assert.Equal(t, LevelCritical, got.Level)
	assert.InDelta(t, 1.0, got.OverallScore, 1e-9)

	latest, ok := a.Latest()
	require.True(t, ok)
	assert.Equal(t, got.OverallScore, latest.OverallScore)
}

type failingSource struct{}

func (failingSource) Factors(context.Context) (Factors, error) {
	return Factors{}, errors.New("feed down")
}

func TestAssessPropagatesSourceError(t *testing.T) {
	a := NewAssessor(failingSource{})
	_, err := a.Assess(context.Background())
	require.Error(t, err)

	_, ok := a.Latest()
	assert.False(t, ok, "a failed cycle must not store an assessment")
}
