package event

import (
	"time"
)

// Kind classifies what produced an emergency event.
type Kind string

const (
	KindCircuitBreaker  Kind = "circuit-breaker"
	KindThreatDetection Kind = "threat-detection"
	KindRiskEscalation  Kind = "risk-escalation"
)

// Severity grades an event or detection.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ActionOutcome records the result of one playbook action.
type ActionOutcome struct {
	Action    string         `json:"action"`
	Status    string         `json:"status"` // "ok", "failed", "unknown-action"
	Detail    map[string]any `json:"detail,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ExecutionRecord captures one full protocol run against an event. Immutable
// once complete.
type ExecutionRecord struct {
	Protocol          string          `json:"protocol"`
	StartTime         time.Time       `json:"start_time"`
	EndTime           time.Time       `json:"end_time"`
	RequiredApprovals int             `json:"required_approvals"` // advisory, recorded for audit
	Outcomes          []ActionOutcome `json:"outcomes"`
}

// Failed reports how many actions in the record did not succeed.
func (r ExecutionRecord) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status != "ok" {
			n++
		}
	}
	return n
}

// Event is one entry in the emergency history. BreakerID is set for
// circuit-breaker events, ThreatType for threat detections.
type Event struct {
	ID         string            `json:"id"`
	Kind       Kind              `json:"kind"`
	Severity   Severity          `json:"severity"`
	BreakerID  string            `json:"breaker_id,omitempty"`
	ThreatType string            `json:"threat_type,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Responses  []ExecutionRecord `json:"responses"`
	Resolved   bool              `json:"resolved"`
}
