package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Level grades an overall risk score.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// LevelFor maps an overall score to its level.
func LevelFor(score float64) Level {
	switch {
	case score > 0.8:
		return LevelCritical
	case score > 0.6:
		return LevelHigh
	case score > 0.4:
		return LevelMedium
	default:
		return LevelLow
	}
}

// MarketFactors are the market-risk sub-factors, each in [0,1].
type MarketFactors struct {
	Volatility      float64 `json:"volatility"`
	LiquidityRisk   float64 `json:"liquidity_risk"`
	CorrelationRisk float64 `json:"correlation_risk"`
	SlippageRisk    float64 `json:"slippage_risk"`
	DepthRisk       float64 `json:"depth_risk"`
}

// OperationalFactors are the operational-risk sub-factors. Uptime is the
// fraction of time the platform was available; the rest are risk signals in
// [0,1].
type OperationalFactors struct {
	Uptime            float64 `json:"uptime"`
	Congestion        float64 `json:"congestion"`
	ContractRisk      float64 `json:"contract_risk"`
	BridgeRisk        float64 `json:"bridge_risk"`
	KeyManagementRisk float64 `json:"key_management_risk"`
	OracleRisk        float64 `json:"oracle_risk"`
}

// ExternalFactors are the environment-risk sub-factors in [0,1].
type ExternalFactors struct {
	RegulatoryRisk   float64 `json:"regulatory_risk"`
	CompetitorRisk   float64 `json:"competitor_risk"`
	ManipulationRisk float64 `json:"manipulation_risk"`
	BlackSwanRisk    float64 `json:"black_swan_risk"`
	EcosystemRisk    float64 `json:"ecosystem_risk"`
}

// Factors bundles every externally supplied risk signal for one assessment.
type Factors struct {
	Market      MarketFactors      `json:"market"`
	Operational OperationalFactors `json:"operational"`
	External    ExternalFactors    `json:"external"`
}

// FactorSource supplies the current sub-factor readings.
type FactorSource interface {
	Factors(ctx context.Context) (Factors, error)
}

// Assessment is one risk scoring cycle's output. Only the latest is
// retained.
type Assessment struct {
	Timestamp        time.Time `json:"timestamp"`
	OverallScore     float64   `json:"overall_score"`
	Level            Level     `json:"level"`
	MarketScore      float64   `json:"market_score"`
	OperationalScore float64   `json:"operational_score"`
	ExternalScore    float64   `json:"external_score"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// MarketScore is the weighted market category score, clamped to [0,1].
func MarketScore(f MarketFactors) float64 {
	return clamp01(0.30*f.Volatility + 0.25*f.LiquidityRisk + 0.20*f.CorrelationRisk +
		0.15*f.SlippageRisk + 0.10*f.DepthRisk)
}

// OperationalScore is the weighted operational category score, clamped to
// [0,1]. Downtime (1-uptime) is the leading term.
func OperationalScore(f OperationalFactors) float64 {
	return clamp01(0.25*(1-f.Uptime) + 0.20*f.Congestion + 0.20*f.ContractRisk +
		0.15*f.BridgeRisk + 0.10*f.KeyManagementRisk + 0.10*f.OracleRisk)
}

// ExternalScore is the weighted external category score, clamped to [0,1].
func ExternalScore(f ExternalFactors) float64 {
	return clamp01(0.30*f.RegulatoryRisk + 0.20*f.CompetitorRisk + 0.25*f.ManipulationRisk +
		0.15*f.BlackSwanRisk + 0.10*f.EcosystemRisk)
}

// Score combines the category scores: market 0.40, operational 0.35,
// external 0.25.
func Score(f Factors) Assessment {
	m := MarketScore(f.Market)
	o := OperationalScore(f.Operational)
	e := ExternalScore(f.External)
	overall := clamp01(0.40*m + 0.35*o + 0.25*e)

	return Assessment{
		Timestamp:        time.Now(),
		OverallScore:     overall,
		Level:            LevelFor(overall),
		MarketScore:      m,
		OperationalScore: o,
		ExternalScore:    e,
	}
}

// Assessor runs risk scoring cycles against a factor source and retains the
// latest assessment.
type Assessor struct {
	src FactorSource

	mu        sync.RWMutex
	latest    Assessment
	hasLatest bool
}

// NewAssessor creates an assessor over src.
func NewAssessor(src FactorSource) *Assessor {
	return &Assessor{src: src}
}

// Assess fetches factors, scores them and stores the result as the latest
// assessment.
func (a *Assessor) Assess(ctx context.Context) (Assessment, error) {
	factors, err := a.src.Factors(ctx)
	if err != nil {
		return Assessment{}, fmt.Errorf("fetch risk factors: %w", err)
	}

	assessment := Score(factors)

	a.mu.Lock()
	a.latest = assessment
	a.hasLatest = true
	a.mu.Unlock()

	log.Debug().
		Float64("overall", assessment.OverallScore).
		Str("level", string(assessment.Level)).
		Float64("market", assessment.MarketScore).
		Float64("operational", assessment.OperationalScore).
		Float64("external", assessment.ExternalScore).
		Msg("Risk assessment completed")

	return assessment, nil
}

// Latest returns the most recent assessment, if any cycle has completed.
func (a *Assessor) Latest() (Assessment, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest, a.hasLatest
}
