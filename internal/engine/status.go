package engine

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dexguard/dexguard/internal/breaker"
	"github.com/dexguard/dexguard/internal/event"
	"github.com/dexguard/dexguard/internal/notify"
	"github.com/dexguard/dexguard/internal/protocol"
	"github.com/dexguard/dexguard/internal/risk"
	"github.com/dexguard/dexguard/internal/threat"
)

// RecomputeStatus derives the system status: system breaker open means
// emergency, any open breaker means warning, then critical/high risk decide.
// A transition emits exactly one notification.
func (e *Engine) RecomputeStatus(ctx context.Context) SystemStatus {
	open := e.registry.OpenBreakers()

	next := StatusOperational
	switch {
	case e.registry.SystemOpen():
		next = StatusEmergency
	case len(open) > 0:
		next = StatusWarning
	default:
		if e.assessor != nil {
			if assessment, ok := e.assessor.Latest(); ok {
				switch assessment.Level {
				case risk.LevelCritical:
					next = StatusEmergency
				case risk.LevelHigh:
					next = StatusWarning
				}
			}
		}
	}

	e.mu.Lock()
	prev := e.status
	e.status = next
	e.mu.Unlock()

	e.metrics.SystemStatus.Set(statusRank(next))
	e.metrics.OpenBreakers.Set(float64(len(open)))

	if next == prev {
		return next
	}

	log.Info().
		Str("from", string(prev)).
		Str("to", string(next)).
		Int("open_breakers", len(open)).
		Msg("System status changed")

	severity := event.SeverityLow
	switch next {
	case StatusWarning:
		severity = event.SeverityMedium
	case StatusEmergency:
		severity = event.SeverityCritical
	}
	e.notifier.Notify(ctx, "system-status-changed", severity, map[string]any{
		"from":          string(prev),
		"to":            string(next),
		"open_breakers": open,
	})
	return next
}

// Snapshot is the read-only view exposed to dashboards and the API layer.
type Snapshot struct {
	SystemStatus    SystemStatus          `json:"system_status"`
	OpenBreakers    []string              `json:"open_breakers"`
	OpenCount       int                   `json:"open_count"`
	Breakers        []breaker.Snapshot    `json:"breakers"`
	RiskAssessment  *risk.Assessment      `json:"risk_assessment,omitempty"`
	EventCount      int                   `json:"event_count"`
	UnresolvedCount int                   `json:"unresolved_count"`
	AlertCount      int64                 `json:"alert_count"`
	Channels        []notify.ChannelState `json:"channels"`
	ThreatRules     []threat.Rule         `json:"threat_rules,omitempty"`
	ProtocolStats   protocol.Stats        `json:"protocol_stats"`
}

// Snapshot assembles the current operator-visible state.
func (e *Engine) Snapshot() Snapshot {
	open := e.registry.OpenBreakers()

	snap := Snapshot{
		SystemStatus:    e.Status(),
		OpenBreakers:    open,
		OpenCount:       len(open),
		Breakers:        e.registry.Snapshots(),
		EventCount:      e.history.Len(),
		UnresolvedCount: e.history.Unresolved(),
		AlertCount:      e.notifier.Count(),
		Channels:        e.notifier.ChannelStates(),
		ProtocolStats:   e.executor.Stats(),
	}
	if e.assessor != nil {
		if assessment, ok := e.assessor.Latest(); ok {
			snap.RiskAssessment = &assessment
		}
	}
	if e.detector != nil {
		snap.ThreatRules = e.detector.Rules()
	}
	return snap
}
