package engine

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dexguard/dexguard/internal/breaker"
	"github.com/dexguard/dexguard/internal/event"
	"github.com/dexguard/dexguard/internal/protocol"
)

// selectProtocol maps a breaker trip to its playbook: the system breaker
// pauses the platform, liquidity trouble protects the pools, everything
// else is contained.
func selectProtocol(snap breaker.Snapshot, reason string) string {
	switch {
	case snap.SystemWide:
		return protocol.EmergencyPause
	case strings.Contains(strings.ToLower(reason), "liquidity"):
		return protocol.LiquidityProtection
	default:
		return protocol.RiskContainment
	}
}

// OnTrip implements breaker.Handler. Runs synchronously relative to the
// trigger: the event is appended, the playbook executed and the alert
// fanned out before the trigger call returns.
func (e *Engine) OnTrip(snap breaker.Snapshot, reason string) {
	severity := event.SeverityHigh
	if snap.SystemWide {
		severity = event.SeverityCritical
	}

	ev := e.history.New(event.KindCircuitBreaker, severity, snap.ID, "", reason)

	e.mu.Lock()
	e.tripEvents[snap.ID] = ev.ID
	e.mu.Unlock()

	e.metrics.BreakerTrips.WithLabelValues(snap.ID).Inc()

	protoName := selectProtocol(snap, reason)
	rec, err := e.executor.Execute(context.Background(), protoName, ev)
	if err != nil {
		log.Error().Err(err).Str("protocol", protoName).Str("breaker", snap.ID).Msg("Trip response protocol not executed")
	} else {
		e.history.AppendResponse(ev.ID, rec)
		e.recordExecution(protoName, rec)
	}

	e.notifier.Notify(context.Background(), "circuit-breaker-triggered", severity, map[string]any{
		"breaker":  snap.ID,
		"reason":   reason,
		"protocol": protoName,
		"event_id": ev.ID,
	})

	e.RecomputeStatus(context.Background())
}

// OnHalfOpen implements breaker.Handler.
func (e *Engine) OnHalfOpen(snap breaker.Snapshot) {
	e.notifier.Notify(context.Background(), "breaker-probation-started", event.SeverityMedium, map[string]any{
		"breaker": snap.ID,
	})
	e.RecomputeStatus(context.Background())
}

// OnRecovered implements breaker.Handler. Resolves the trip event that
// opened the breaker.
func (e *Engine) OnRecovered(snap breaker.Snapshot) {
	e.mu.Lock()
	evID, ok := e.tripEvents[snap.ID]
	delete(e.tripEvents, snap.ID)
	e.mu.Unlock()

	if ok {
		e.history.Resolve(evID)
	}
	e.metrics.BreakerRecoveries.WithLabelValues(snap.ID).Inc()

	e.notifier.Notify(context.Background(), "breaker-recovered", event.SeverityLow, map[string]any{
		"breaker":  snap.ID,
		"event_id": evID,
	})
	e.RecomputeStatus(context.Background())
}

// OnProbationFailed implements breaker.Handler.
func (e *Engine) OnProbationFailed(snap breaker.Snapshot, reason string) {
	e.notifier.Notify(context.Background(), "breaker-probation-failed", event.SeverityHigh, map[string]any{
		"breaker": snap.ID,
		"reason":  reason,
	})
	e.RecomputeStatus(context.Background())
}
