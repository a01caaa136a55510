package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dexguard/dexguard/internal/event"
	"github.com/dexguard/dexguard/internal/protocol"
	"github.com/dexguard/dexguard/internal/risk"
	"github.com/dexguard/dexguard/internal/threat"
)

// CompositeCheck is the main containment cycle: risk assessment, breaker
// evaluation, threat scan and status recompute. Safe to run concurrently
// with the metric refreshers; breaker state is serialized per breaker.
func (e *Engine) CompositeCheck(ctx context.Context) {
	start := time.Now()
	defer func() {
		e.metrics.CheckDuration.WithLabelValues("composite").Observe(time.Since(start).Seconds())
	}()

	e.runRiskAssessment(ctx)
	e.registry.Evaluate()
	e.runThreatScan(ctx)
	e.RecomputeStatus(ctx)
}

// runRiskAssessment scores risk and escalates on level transitions into
// high or critical. Re-escalating every cycle while the level holds would
// re-run the same playbook each time, so only the transition escalates.
func (e *Engine) runRiskAssessment(ctx context.Context) {
	if e.assessor == nil {
		return
	}

	assessment, err := e.assessor.Assess(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Risk assessment skipped, factor source unavailable")
		return
	}

	e.metrics.RiskScore.Set(assessment.OverallScore)
	e.metrics.SetRiskLevel(string(assessment.Level))

	e.mu.Lock()
	previous := e.lastLevel
	e.lastLevel = assessment.Level
	e.mu.Unlock()

	if assessment.Level == previous {
		return
	}

	switch assessment.Level {
	case risk.LevelCritical:
		e.escalateRisk(ctx, assessment, protocol.EmergencyPause, event.SeverityCritical)
	case risk.LevelHigh:
		e.escalateRisk(ctx, assessment, protocol.RiskContainment, event.SeverityHigh)
	}
}

// escalateRisk executes the protocol a risk level demands, independent of
// any individual breaker.
func (e *Engine) escalateRisk(ctx context.Context, assessment risk.Assessment, protoName string, severity event.Severity) {
	ev := e.history.New(event.KindRiskEscalation, severity, "", "", "overall risk level "+string(assessment.Level))

	log.Warn().
		Str("level", string(assessment.Level)).
		Float64("score", assessment.OverallScore).
		Str("protocol", protoName).
		Msg("Risk level escalation")

	rec, err := e.executor.Execute(ctx, protoName, ev)
	if err != nil {
		log.Error().Err(err).Str("protocol", protoName).Msg("Risk escalation protocol not executed")
	} else {
		e.history.AppendResponse(ev.ID, rec)
		e.recordExecution(protoName, rec)
	}

	e.notifier.Notify(ctx, "risk-escalation", severity, map[string]any{
		"level":    string(assessment.Level),
		"score":    assessment.OverallScore,
		"protocol": protoName,
		"event_id": ev.ID,
	})
}

// runThreatScan evaluates the threat rules and responds to each detection.
func (e *Engine) runThreatScan(ctx context.Context) {
	if e.detector == nil {
		return
	}

	detections, err := e.detector.Scan(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Threat scan skipped, activity source unavailable")
		return
	}

	for _, det := range detections {
		e.respondToThreat(ctx, det)
	}
}

// respondToThreat wires one detection into the event history, a playbook
// and a notification. An active attack at high severity pauses the
// platform; everything else is contained.
func (e *Engine) respondToThreat(ctx context.Context, det threat.Detection) {
	e.metrics.ThreatDetections.WithLabelValues(det.Rule).Inc()

	ev := e.history.New(event.KindThreatDetection, det.Severity, "", det.Rule, "threat pattern detected")

	protoName := protocol.RiskContainment
	if rule, ok := e.detector.Rule(det.Rule); ok && rule.ActiveAttack && det.Severity == event.SeverityHigh {
		protoName = protocol.EmergencyPause
	}

	rec, err := e.executor.Execute(ctx, protoName, ev)
	if err != nil {
		log.Error().Err(err).Str("protocol", protoName).Str("rule", det.Rule).Msg("Threat response protocol not executed")
	} else {
		e.history.AppendResponse(ev.ID, rec)
		e.recordExecution(protoName, rec)
	}

	e.notifier.Notify(ctx, "threat-detected", det.Severity, map[string]any{
		"rule":       det.Rule,
		"observed":   det.Observed,
		"threshold":  det.Threshold,
		"confidence": det.Confidence,
		"protocol":   protoName,
		"event_id":   ev.ID,
	})
}

// RefreshVolatility pulls fresh per-asset metrics for every configured
// pair. A source failure leaves the previous observation in place; stale
// data never trips a breaker on its own.
func (e *Engine) RefreshVolatility(ctx context.Context) {
	start := time.Now()
	defer func() {
		e.metrics.CheckDuration.WithLabelValues("volatility").Observe(time.Since(start).Seconds())
	}()
	e.refreshAssets(ctx)
}

// RefreshLiquidity pulls per-asset and system metrics on the liquidity
// health cadence.
func (e *Engine) RefreshLiquidity(ctx context.Context) {
	start := time.Now()
	defer func() {
		e.metrics.CheckDuration.WithLabelValues("liquidity").Observe(time.Since(start).Seconds())
	}()
	e.refreshAssets(ctx)
	e.refreshSystem(ctx)
}

// RefreshTransactions pulls system metrics on the transaction pattern
// cadence.
func (e *Engine) RefreshTransactions(ctx context.Context) {
	start := time.Now()
	defer func() {
		e.metrics.CheckDuration.WithLabelValues("transactions").Observe(time.Since(start).Seconds())
	}()
	e.refreshSystem(ctx)
}

func (e *Engine) refreshAssets(ctx context.Context) {
	if e.assetSource == nil {
		return
	}
	for _, key := range e.universe {
		m, err := e.assetSource.AssetMetrics(ctx, key.Asset, key.Venue)
		if err != nil {
			log.Warn().Err(err).Str("pair", key.String()).Msg("Asset metric fetch failed, keeping stale metrics")
			continue
		}
		e.registry.UpdateAssetMetrics(key, m)
	}
}

func (e *Engine) refreshSystem(ctx context.Context) {
	if e.systemSource == nil {
		return
	}
	m, err := e.systemSource.SystemMetrics(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("System metric fetch failed, keeping stale metrics")
		return
	}
	e.registry.UpdateSystemMetrics(m)
}
