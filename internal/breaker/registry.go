package breaker

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dexguard/dexguard/internal/market"
)

// Handler receives breaker transitions. Every transition is reported;
// recovery is automatic but never silent.
type Handler interface {
	OnTrip(snap Snapshot, reason string)
	OnHalfOpen(snap Snapshot)
	OnRecovered(snap Snapshot)
	OnProbationFailed(snap Snapshot, reason string)
}

// Config holds registry-wide recovery settings.
type Config struct {
	SystemID  string        `yaml:"system_id"`
	Cooldown  time.Duration `yaml:"cooldown"`  // open -> recovery attempt
	Probation time.Duration `yaml:"probation"` // half-open trial window
}

// DefaultConfig returns the standard recovery windows.
func DefaultConfig() Config {
	return Config{
		SystemID:  "system-wide",
		Cooldown:  5 * time.Minute,
		Probation: 2 * time.Minute,
	}
}

// Trip reports one breaker tripped during an Evaluate pass.
type Trip struct {
	ID     string
	Reason string
}

// Registry owns every breaker: one per configured asset-venue pair plus the
// single system-wide breaker. All state transitions go through it.
type Registry struct {
	cfg      Config
	breakers map[string]*Breaker
	order    []string
	handler  Handler
}

// NewRegistry creates a registry containing the system breaker and one
// breaker per universe entry. The breaker set is fixed for the process
// lifetime, so lookups after construction are lock-free.
func NewRegistry(cfg Config, universe map[market.Key]AssetThresholds, system SystemThresholds) *Registry {
	r := &Registry{
		cfg:      cfg,
		breakers: make(map[string]*Breaker, len(universe)+1),
	}

	sys := NewSystemBreaker(cfg.SystemID, system)
	r.breakers[sys.ID()] = sys
	r.order = append(r.order, sys.ID())

	for key, thresholds := range universe {
		b := NewAssetBreaker(key.Asset, key.Venue, thresholds)
		r.breakers[b.ID()] = b
		r.order = append(r.order, b.ID())
	}
	return r
}

// SetHandler attaches the transition handler. Must be called before the
// first Evaluate.
func (r *Registry) SetHandler(h Handler) { r.handler = h }

// Get returns a breaker by id.
func (r *Registry) Get(id string) (*Breaker, bool) {
	b, ok := r.breakers[id]
	return b, ok
}

// SystemID returns the system-wide breaker id.
func (r *Registry) SystemID() string { return r.cfg.SystemID }

// UpdateAssetMetrics refreshes the stored observation for one pair.
func (r *Registry) UpdateAssetMetrics(key market.Key, m market.AssetMetrics) {
	if b, ok := r.breakers[key.String()]; ok {
		b.UpdateAssetMetrics(m)
	}
}

// UpdateSystemMetrics refreshes the system-wide observation.
func (r *Registry) UpdateSystemMetrics(m market.SystemMetrics) {
	if b, ok := r.breakers[r.cfg.SystemID]; ok {
		b.UpdateSystemMetrics(m)
	}
}

// Evaluate checks every breaker that is not already open against its
// thresholds in the fixed rule order and trips the first violation found
// per breaker. Returns the trips performed.
func (r *Registry) Evaluate() []Trip {
	var trips []Trip
	for _, id := range r.order {
		b := r.breakers[id]

		b.mu.Lock()
		if b.status == StatusOpen {
			b.mu.Unlock()
			continue
		}
		reason, violated := b.check()
		b.mu.Unlock()

		if !violated {
			continue
		}
		if r.Trigger(id, reason) {
			trips = append(trips, Trip{ID: id, Reason: reason})
		}
	}
	return trips
}

// Trigger opens a breaker. No-op when already open. On success the trigger
// count and timestamp are stamped, the handler is invoked synchronously, and
// a recovery attempt is scheduled after the cooldown.
func (r *Registry) Trigger(id, reason string) bool {
	b, ok := r.breakers[id]
	if !ok {
		return false
	}

	b.mu.Lock()
	if b.status == StatusOpen {
		b.mu.Unlock()
		return false
	}
	b.setStatusLocked(StatusOpen)
	b.triggerCount++
	now := time.Now()
	b.lastTriggerTime = &now
	r.scheduleLocked(b, r.cfg.Cooldown, r.attemptRecovery)
	snap := b.snapshotLocked()
	b.mu.Unlock()

	log.Warn().
		Str("breaker", id).
		Str("reason", reason).
		Int("trigger_count", snap.TriggerCount).
		Msg("Circuit breaker tripped")

	if r.handler != nil {
		r.handler.OnTrip(snap, reason)
	}
	return true
}

// attemptRecovery runs after the cooldown. It re-validates the breaker is
// still open under the generation it was scheduled for, then deterministically
// re-checks current metrics: improved metrics move the breaker to half-open
// probation, otherwise another cooldown is scheduled.
func (r *Registry) attemptRecovery(b *Breaker, gen uint64) {
	b.mu.Lock()
	if b.status != StatusOpen || b.generation != gen {
		b.mu.Unlock()
		return
	}

	if reason, violated := b.check(); violated {
		r.rescheduleLocked(b, r.cfg.Cooldown, r.attemptRecovery)
		b.mu.Unlock()
		log.Info().Str("breaker", b.id).Str("reason", reason).Msg("Recovery check failed, staying open")
		return
	}

	b.setStatusLocked(StatusHalfOpen)
	b.halfOpenAt = time.Now()
	r.scheduleLocked(b, r.cfg.Probation, r.finishProbation)
	snap := b.snapshotLocked()
	b.mu.Unlock()

	log.Info().Str("breaker", snap.ID).Msg("Circuit breaker entering half-open probation")
	if r.handler != nil {
		r.handler.OnHalfOpen(snap)
	}
}

// finishProbation runs at the end of the probation window. Closing requires
// metrics captured strictly after the half-open transition that still pass
// every threshold; anything else reopens the breaker and schedules another
// cooldown.
func (r *Registry) finishProbation(b *Breaker, gen uint64) {
	b.mu.Lock()
	if b.status != StatusHalfOpen || b.generation != gen {
		b.mu.Unlock()
		return
	}

	reason, violated := b.check()
	fresh := b.metricsObservedAt().After(b.halfOpenAt)
	if !violated && fresh {
		b.setStatusLocked(StatusClosed)
		snap := b.snapshotLocked()
		b.mu.Unlock()

		log.Info().Str("breaker", snap.ID).Msg("Circuit breaker recovered")
		if r.handler != nil {
			r.handler.OnRecovered(snap)
		}
		return
	}

	if reason == "" {
		reason = "no fresh metrics observed during probation"
	}
	b.setStatusLocked(StatusOpen)
	r.scheduleLocked(b, r.cfg.Cooldown, r.attemptRecovery)
	snap := b.snapshotLocked()
	b.mu.Unlock()

	log.Warn().Str("breaker", snap.ID).Str("reason", reason).Msg("Probation failed, breaker reopened")
	if r.handler != nil {
		r.handler.OnProbationFailed(snap, reason)
	}
}

// scheduleLocked arms the breaker's single pending timer for the current
// generation. Callers hold b.mu.
func (r *Registry) scheduleLocked(b *Breaker, d time.Duration, fn func(*Breaker, uint64)) {
	gen := b.generation
	b.pendingTimer = time.AfterFunc(d, func() { fn(b, gen) })
}

// rescheduleLocked re-arms the timer without a state transition, keeping the
// current generation valid. Callers hold b.mu.
func (r *Registry) rescheduleLocked(b *Breaker, d time.Duration, fn func(*Breaker, uint64)) {
	if b.pendingTimer != nil {
		b.pendingTimer.Stop()
	}
	r.scheduleLocked(b, d, fn)
}

// Snapshots returns read-only copies of every breaker, system breaker first.
func (r *Registry) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.breakers[id].Snapshot())
	}
	return out
}

// OpenBreakers returns the ids of currently open breakers.
func (r *Registry) OpenBreakers() []string {
	var open []string
	for _, id := range r.order {
		if r.breakers[id].Status() == StatusOpen {
			open = append(open, id)
		}
	}
	return open
}

// SystemOpen reports whether the system-wide breaker is open.
func (r *Registry) SystemOpen() bool {
	return r.breakers[r.cfg.SystemID].Status() == StatusOpen
}

// Stop cancels all pending recovery timers. Used on shutdown.
func (r *Registry) Stop() {
	for _, id := range r.order {
		b := r.breakers[id]
		b.mu.Lock()
		if b.pendingTimer != nil {
			b.pendingTimer.Stop()
			b.pendingTimer = nil
		}
		b.generation++
		b.mu.Unlock()
	}
}
