package threat

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dexguard/dexguard/internal/market"
)

// Detector evaluates the registered rules against recent activity. Rule
// bodies are pluggable; the detector only guarantees the detection wiring
// and the per-rule enable gate.
type Detector struct {
	src market.ActivitySource

	mu    sync.RWMutex
	rules map[string]*entry
	order []string
}

type entry struct {
	rule Rule
	eval Evaluator
}

// NewDetector creates a detector over src with the given rule set.
func NewDetector(src market.ActivitySource, specs []RuleSpec) *Detector {
	d := &Detector{
		src:   src,
		rules: make(map[string]*entry, len(specs)),
	}
	for _, spec := range specs {
		d.Register(spec.Rule, spec.Evaluator)
	}
	return d
}

// Register adds or replaces a rule and its evaluator.
func (d *Detector) Register(rule Rule, eval Evaluator) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.rules[rule.Name]; !exists {
		d.order = append(d.order, rule.Name)
	}
	d.rules[rule.Name] = &entry{rule: rule, eval: eval}
}

// SetEnabled toggles a rule. Returns false for unknown rule names.
func (d *Detector) SetEnabled(name string, enabled bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.rules[name]
	if !ok {
		return false
	}
	e.rule.Enabled = enabled
	log.Info().Str("rule", name).Bool("enabled", enabled).Msg("Threat rule toggled")
	return true
}

// Rule returns a copy of one rule's current configuration.
func (d *Detector) Rule(name string) (Rule, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.rules[name]
	if !ok {
		return Rule{}, false
	}
	return e.rule, true
}

// Rules returns copies of every rule in registration order.
func (d *Detector) Rules() []Rule {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Rule, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.rules[name].rule)
	}
	return out
}

// Scan fetches one activity snapshot and evaluates every enabled rule
// against it. A disabled rule is never invoked.
func (d *Detector) Scan(ctx context.Context) ([]Detection, error) {
	activity, err := d.src.Activity(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch activity snapshot: %w", err)
	}

	d.mu.RLock()
	entries := make([]entry, 0, len(d.order))
	for _, name := range d.order {
		e := d.rules[name]
		if e.rule.Enabled {
			entries = append(entries, *e)
		}
	}
	d.mu.RUnlock()

	var detections []Detection
	for _, e := range entries {
		det, hit := e.eval.Evaluate(e.rule, activity)
		if !hit {
			continue
		}
		log.Warn().
			Str("rule", det.Rule).
			Str("severity", string(det.Severity)).
			Float64("observed", det.Observed).
			Float64("threshold", det.Threshold).
			Float64("confidence", det.Confidence).
			Msg("Threat pattern detected")
		detections = append(detections, det)
	}
	return detections, nil
}
