package protocol

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dexguard/dexguard/internal/event"
)

var (
	// ErrUnknownProtocol is returned when no protocol carries the requested name.
	ErrUnknownProtocol = errors.New("unknown protocol")
	// ErrProtocolDisabled is returned when the protocol exists but is switched off.
	ErrProtocolDisabled = errors.New("protocol disabled")
)

// ActionFunc is one mitigation callback into the trading engine. It returns
// a status payload on success. Implementations should honor ctx; the
// executor bounds every call regardless.
type ActionFunc func(ctx context.Context, ev event.Event) (map[string]any, error)

// Executor resolves trigger events to playbooks and runs them. Playbooks
// are best-effort: an action failure or timeout is recorded and the
// remaining actions still run. Executions for different events may run
// concurrently; the action sequence within one execution never interleaves.
type Executor struct {
	mu        sync.RWMutex
	protocols map[string]Protocol
	actions   map[string]ActionFunc

	executions     atomic.Int64
	actionFailures atomic.Int64
}

// NewExecutor creates an executor with the given playbooks and action
// callbacks.
func NewExecutor(protocols []Protocol, actions map[string]ActionFunc) *Executor {
	e := &Executor{
		protocols: make(map[string]Protocol, len(protocols)),
		actions:   make(map[string]ActionFunc, len(actions)),
	}
	for _, p := range protocols {
		e.protocols[p.Name] = p
	}
	for name, fn := range actions {
		e.actions[name] = fn
	}
	return e
}

// Protocols returns a copy of every configured playbook.
func (e *Executor) Protocols() []Protocol {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Protocol, 0, len(e.protocols))
	for _, p := range e.protocols {
		out = append(out, p)
	}
	return out
}

// Get returns one playbook by name.
func (e *Executor) Get(name string) (Protocol, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.protocols[name]
	return p, ok
}

// Execute runs the named playbook against an event and returns the
// execution record: exactly one outcome per declared action, in declared
// order. Missing or disabled protocols execute nothing and report why.
func (e *Executor) Execute(ctx context.Context, name string, ev event.Event) (event.ExecutionRecord, error) {
	e.mu.RLock()
	p, ok := e.protocols[name]
	e.mu.RUnlock()

	if !ok {
		log.Error().Str("protocol", name).Msg("Protocol not found, nothing executed")
		return event.ExecutionRecord{}, ErrUnknownProtocol
	}
	if !p.Enabled {
		log.Warn().Str("protocol", name).Msg("Protocol disabled, nothing executed")
		return event.ExecutionRecord{}, ErrProtocolDisabled
	}

	rec := event.ExecutionRecord{
		Protocol:          p.Name,
		StartTime:         time.Now(),
		RequiredApprovals: p.RequiredApprovals,
		Outcomes:          make([]event.ActionOutcome, 0, len(p.Actions)),
	}
	e.executions.Add(1)

	actionTimeout := p.Budget
	if n := len(p.Actions); n > 0 && actionTimeout > 0 {
		actionTimeout = p.Budget / time.Duration(n)
	}

	log.Info().
		Str("protocol", p.Name).
		Str("event_id", ev.ID).
		Int("actions", len(p.Actions)).
		Int("required_approvals", p.RequiredApprovals).
		Msg("Executing emergency protocol")

	for _, actionName := range p.Actions {
		rec.Outcomes = append(rec.Outcomes, e.runAction(ctx, actionName, actionTimeout, ev))
	}

	rec.EndTime = time.Now()

	log.Info().
		Str("protocol", p.Name).
		Str("event_id", ev.ID).
		Int("failed", rec.Failed()).
		Dur("elapsed", rec.EndTime.Sub(rec.StartTime)).
		Msg("Protocol execution finished")

	return rec, nil
}

// runAction executes a single playbook step with its timeout. Failures are
// captured, never propagated: the playbook is best-effort.
func (e *Executor) runAction(ctx context.Context, name string, timeout time.Duration, ev event.Event) event.ActionOutcome {
	e.mu.RLock()
	fn, known := e.actions[name]
	e.mu.RUnlock()

	if !known {
		log.Warn().Str("action", name).Msg("Unknown action in playbook")
		return event.ActionOutcome{
			Action:    name,
			Status:    "unknown-action",
			Timestamp: time.Now(),
		}
	}

	actx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		detail map[string]any
		err    error
	}
	done := make(chan result, 1)
	go func() {
		detail, err := fn(actx, ev)
		done <- result{detail: detail, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			e.actionFailures.Add(1)
			log.Error().Err(res.err).Str("action", name).Msg("Protocol action failed")
			return event.ActionOutcome{
				Action:    name,
				Status:    "failed",
				Error:     res.err.Error(),
				Timestamp: time.Now(),
			}
		}
		return event.ActionOutcome{
			Action:    name,
			Status:    "ok",
			Detail:    res.detail,
			Timestamp: time.Now(),
		}
	case <-actx.Done():
		e.actionFailures.Add(1)
		log.Error().Str("action", name).Dur("timeout", timeout).Msg("Protocol action timed out")
		return event.ActionOutcome{
			Action:    name,
			Status:    "failed",
			Error:     "action timed out: " + actx.Err().Error(),
			Timestamp: time.Now(),
		}
	}
}

// Stats reports execution counters for the status snapshot.
type Stats struct {
	Executions     int64 `json:"executions"`
	ActionFailures int64 `json:"action_failures"`
}

// Stats returns the running counters.
func (e *Executor) Stats() Stats {
	return Stats{
		Executions:     e.executions.Load(),
		ActionFailures: e.actionFailures.Load(),
	}
}
