package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dexguard/dexguard/internal/config"
)

func floatPtr(v float64) *float64 { return &v }

func TestMergeThresholdsKeepsDefaultsWhenUnset(t *testing.T) {
	def := config.Default().DefaultThresholds

	got := mergeThresholds(def, nil)
	assert.Equal(t, def.MaxSlippage, got.MaxSlippage)
	assert.Equal(t, def.MinLiquidityRatio, got.MinLiquidityRatio)

	got = mergeThresholds(def, &config.ThresholdOverrides{MaxSlippage: floatPtr(0.05)})
	assert.Equal(t, 0.05, got.MaxSlippage)
	assert.Equal(t, def.MaxVolatility, got.MaxVolatility, "untouched fields keep the default")
}

func TestMergeThresholdsHonorsExplicitZero(t *testing.T) {
	def := config.Default().DefaultThresholds

	got := mergeThresholds(def, &config.ThresholdOverrides{
		MinLiquidityRatio: floatPtr(0),
		MaxFailureRate:    floatPtr(0),
	})
	assert.Equal(t, 0.0, got.MinLiquidityRatio, "a pair can disable the liquidity floor")
	assert.Equal(t, 0.0, got.MaxFailureRate)
	assert.Equal(t, def.MaxSlippage, got.MaxSlippage)
}
