package threat

import (
	"time"

	"github.com/dexguard/dexguard/internal/event"
	"github.com/dexguard/dexguard/internal/market"
)

// Rule is one named adversarial-pattern detector. Threshold and Window are
// static configuration; only Enabled is mutable at runtime. ActiveAttack
// marks patterns that indicate an attack in progress rather than a
// structural anomaly, which escalates the response protocol.
type Rule struct {
	Name         string        `yaml:"name" json:"name"`
	Pattern      string        `yaml:"pattern" json:"pattern"`
	Threshold    float64       `yaml:"threshold" json:"threshold"`
	Window       time.Duration `yaml:"window" json:"window"`
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	ActiveAttack bool          `yaml:"active_attack" json:"active_attack"`
}

// Detection is one positive rule evaluation.
type Detection struct {
	Rule       string         `json:"rule"`
	Severity   event.Severity `json:"severity"`
	Confidence float64        `json:"confidence"`
	Observed   float64        `json:"observed"`
	Threshold  float64        `json:"threshold"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Evaluator decides whether a rule fires against recent activity. Production
// evaluators match real order-flow data; the built-ins compare activity
// aggregates against the rule threshold.
type Evaluator interface {
	Evaluate(rule Rule, activity market.ActivitySnapshot) (Detection, bool)
}

// EvaluatorFunc adapts a function to the Evaluator interface.
type EvaluatorFunc func(rule Rule, activity market.ActivitySnapshot) (Detection, bool)

// Evaluate implements Evaluator.
func (f EvaluatorFunc) Evaluate(rule Rule, activity market.ActivitySnapshot) (Detection, bool) {
	return f(rule, activity)
}

// thresholdDetection grades a single observed value against the rule
// threshold. Severity and confidence scale with how far the observation
// exceeds the threshold, so identical inputs always produce identical
// detections.
func thresholdDetection(rule Rule, observed float64) (Detection, bool) {
	if observed <= rule.Threshold || rule.Threshold <= 0 {
		return Detection{}, false
	}

	excess := observed / rule.Threshold
	severity := event.SeverityMedium
	if excess >= 1.5 {
		severity = event.SeverityHigh
	}
	confidence := 0.5 + (excess-1)/2
	if confidence > 1 {
		confidence = 1
	}

	return Detection{
		Rule:       rule.Name,
		Severity:   severity,
		Confidence: confidence,
		Observed:   observed,
		Threshold:  rule.Threshold,
		Timestamp:  time.Now(),
	}, true
}

// Built-in evaluators, one per default rule. Each reads a single activity
// aggregate.
var (
	washTradingEvaluator = EvaluatorFunc(func(r Rule, a market.ActivitySnapshot) (Detection, bool) {
		return thresholdDetection(r, a.SelfMatchRatio)
	})
	spoofingEvaluator = EvaluatorFunc(func(r Rule, a market.ActivitySnapshot) (Detection, bool) {
		return thresholdDetection(r, a.CancelRatio)
	})
	flashCrowdingEvaluator = EvaluatorFunc(func(r Rule, a market.ActivitySnapshot) (Detection, bool) {
		return thresholdDetection(r, a.BurstRate)
	})
	oracleDivergenceEvaluator = EvaluatorFunc(func(r Rule, a market.ActivitySnapshot) (Detection, bool) {
		return thresholdDetection(r, a.OracleDivergence)
	})
	sandwichFlowEvaluator = EvaluatorFunc(func(r Rule, a market.ActivitySnapshot) (Detection, bool) {
		return thresholdDetection(r, a.SandwichScore)
	})
)

// DefaultRules returns the standard rule set with its built-in evaluators.
func DefaultRules() []RuleSpec {
	return []RuleSpec{
		{
			Rule: Rule{
				Name:         "wash-trading",
				Pattern:      "self-matched volume above tolerated ratio",
				Threshold:    0.15,
				Window:       10 * time.Minute,
				Enabled:      true,
				ActiveAttack: true,
			},
			Evaluator: washTradingEvaluator,
		},
		{
			Rule: Rule{
				Name:      "spoofing",
				Pattern:   "cancel-to-fill ratio above tolerated level",
				Threshold: 8,
				Window:    5 * time.Minute,
				Enabled:   true,
			},
			Evaluator: spoofingEvaluator,
		},
		{
			Rule: Rule{
				Name:         "flash-crowding",
				Pattern:      "order burst rate above sustainable level",
				Threshold:    200,
				Window:       time.Minute,
				Enabled:      true,
				ActiveAttack: true,
			},
			Evaluator: flashCrowdingEvaluator,
		},
		{
			Rule: Rule{
				Name:      "oracle-divergence",
				Pattern:   "price feeds diverging beyond tolerance",
				Threshold: 0.05,
				Window:    5 * time.Minute,
				Enabled:   true,
			},
			Evaluator: oracleDivergenceEvaluator,
		},
		{
			Rule: Rule{
				Name:         "sandwich-flow",
				Pattern:      "front/back-run adjacency above tolerated score",
				Threshold:    0.6,
				Window:       10 * time.Minute,
				Enabled:      true,
				ActiveAttack: true,
			},
			Evaluator: sandwichFlowEvaluator,
		},
	}
}

// RuleSpec pairs a rule with its evaluator for registration.
type RuleSpec struct {
	Rule      Rule
	Evaluator Evaluator
}
