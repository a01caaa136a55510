package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dexguard/dexguard/internal/breaker"
	"github.com/dexguard/dexguard/internal/event"
	"github.com/dexguard/dexguard/internal/market"
	"github.com/dexguard/dexguard/internal/notify"
	"github.com/dexguard/dexguard/internal/protocol"
	"github.com/dexguard/dexguard/internal/risk"
	"github.com/dexguard/dexguard/internal/telemetry"
	"github.com/dexguard/dexguard/internal/threat"
)

// SystemStatus is the single derived health value other subsystems read.
type SystemStatus string

const (
	StatusOperational SystemStatus = "operational"
	StatusWarning     SystemStatus = "warning"
	StatusEmergency   SystemStatus = "emergency"
)

var (
	// ErrUnknownBreaker is returned for a trigger against an id not in the registry.
	ErrUnknownBreaker = errors.New("unknown breaker")
	// ErrBreakerOpen is returned for a trigger against an already-open breaker.
	ErrBreakerOpen = errors.New("breaker already open")
)

func statusRank(s SystemStatus) float64 {
	switch s {
	case StatusWarning:
		return 1
	case StatusEmergency:
		return 2
	default:
		return 0
	}
}

// Deps bundles everything the engine coordinates.
type Deps struct {
	Registry *breaker.Registry
	Assessor *risk.Assessor
	Detector *threat.Detector
	Executor *protocol.Executor
	Notifier *notify.Notifier
	History  *event.History
	Metrics  *telemetry.Metrics

	AssetSource  market.AssetSource
	SystemSource market.SystemSource
	Universe     []market.Key
}

// Engine is the emergency risk containment core: it owns the system status,
// routes breaker trips and threat detections into protocol executions and
// notifications, and runs the scheduled checks the monitor drives.
type Engine struct {
	registry *breaker.Registry
	assessor *risk.Assessor
	detector *threat.Detector
	executor *protocol.Executor
	notifier *notify.Notifier
	history  *event.History
	metrics  *telemetry.Metrics

	assetSource  market.AssetSource
	systemSource market.SystemSource
	universe     []market.Key

	mu         sync.RWMutex
	status     SystemStatus
	lastLevel  risk.Level
	tripEvents map[string]string // breaker id -> unresolved trip event id
}

// New wires an engine and registers it as the breaker transition handler.
func New(deps Deps) (*Engine, error) {
	if deps.Registry == nil || deps.Executor == nil || deps.Notifier == nil || deps.History == nil {
		return nil, fmt.Errorf("engine requires registry, executor, notifier and history")
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.NewMetrics()
	}
	deps.Notifier.SetCounters(deps.Metrics.AlertsSent, deps.Metrics.DeliveryFailures)

	e := &Engine{
		registry:     deps.Registry,
		assessor:     deps.Assessor,
		detector:     deps.Detector,
		executor:     deps.Executor,
		notifier:     deps.Notifier,
		history:      deps.History,
		metrics:      deps.Metrics,
		assetSource:  deps.AssetSource,
		systemSource: deps.SystemSource,
		universe:     deps.Universe,
		status:       StatusOperational,
		lastLevel:    risk.LevelLow,
		tripEvents:   make(map[string]string),
	}
	e.registry.SetHandler(e)
	return e, nil
}

// Status returns the current derived system status.
func (e *Engine) Status() SystemStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Metrics exposes the telemetry registry for the HTTP layer.
func (e *Engine) Metrics() *telemetry.Metrics { return e.metrics }

// Notifier exposes the notifier for channel administration.
func (e *Engine) Notifier() *notify.Notifier { return e.notifier }

// History exposes the emergency event history.
func (e *Engine) History() *event.History { return e.history }

// Registry exposes the breaker registry for status queries.
func (e *Engine) Registry() *breaker.Registry { return e.registry }

// TriggerBreaker manually trips a breaker. Operator tooling only.
func (e *Engine) TriggerBreaker(id, reason string) error {
	if reason == "" {
		reason = "manual trigger requested by operator"
	}
	if _, ok := e.registry.Get(id); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBreaker, id)
	}
	if !e.registry.Trigger(id, reason) {
		return fmt.Errorf("%w: %q", ErrBreakerOpen, id)
	}
	return nil
}

// ExecuteProtocol manually runs a playbook against a fresh operator event.
func (e *Engine) ExecuteProtocol(ctx context.Context, name string) (event.ExecutionRecord, error) {
	ev := e.history.New(event.KindRiskEscalation, event.SeverityHigh, "", "", "manual protocol execution requested by operator")
	rec, err := e.executor.Execute(ctx, name, ev)
	if err != nil {
		return event.ExecutionRecord{}, err
	}
	e.history.AppendResponse(ev.ID, rec)
	e.recordExecution(name, rec)
	return rec, nil
}

// SetRuleEnabled toggles a threat rule.
func (e *Engine) SetRuleEnabled(name string, enabled bool) error {
	if e.detector == nil || !e.detector.SetEnabled(name, enabled) {
		return fmt.Errorf("unknown threat rule %q", name)
	}
	return nil
}

// SetChannelEnabled toggles a notification channel.
func (e *Engine) SetChannelEnabled(name string, enabled bool) error {
	if !e.notifier.SetEnabled(name, enabled) {
		return fmt.Errorf("unknown channel %q", name)
	}
	return nil
}

// recordExecution updates telemetry for one protocol run.
func (e *Engine) recordExecution(name string, rec event.ExecutionRecord) {
	e.metrics.ProtocolExecutions.WithLabelValues(name).Inc()
	for _, o := range rec.Outcomes {
		e.metrics.ActionOutcomes.WithLabelValues(o.Action, o.Status).Inc()
	}
}
