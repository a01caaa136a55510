package breaker

import (
	"fmt"
	"sync"
	"time"

	"github.com/dexguard/dexguard/internal/market"
)

// Status represents the breaker state machine position.
type Status int

const (
	StatusClosed   Status = iota // trading allowed
	StatusOpen                   // tripped, activity halted for this scope
	StatusHalfOpen               // probation after an apparent recovery
)

func (s Status) String() string {
	switch s {
	case StatusClosed:
		return "closed"
	case StatusOpen:
		return "open"
	case StatusHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// AssetThresholds configures a per-asset-per-venue breaker.
type AssetThresholds struct {
	MaxSlippage       float64 `yaml:"max_slippage"`
	MaxVolatility     float64 `yaml:"max_volatility"`
	MinLiquidityRatio float64 `yaml:"min_liquidity_ratio"`
	MaxFailureRate    float64 `yaml:"max_failure_rate"`
}

// SystemThresholds configures the single system-wide breaker.
type SystemThresholds struct {
	MaxDrawdown           float64 `yaml:"max_drawdown"`
	MaxDailyLoss          float64 `yaml:"max_daily_loss"`
	MaxHourlyTransactions float64 `yaml:"max_hourly_transactions"`
}

// Breaker guards one scope: an asset-venue pair, or the whole system. Each
// breaker carries its own lock so independent scopes evaluate and recover
// without contention.
type Breaker struct {
	mu sync.Mutex

	id         string
	systemWide bool
	asset      string
	venue      string

	assetThresholds  AssetThresholds
	systemThresholds SystemThresholds

	status          Status
	triggerCount    int
	lastTriggerTime *time.Time
	halfOpenAt      time.Time

	assetMetrics     market.AssetMetrics
	systemMetrics    market.SystemMetrics
	hasAssetMetrics  bool
	hasSystemMetrics bool

	// generation invalidates pending cooldown/probation timers after any
	// state transition; a stale timer re-validates before acting.
	generation   uint64
	pendingTimer *time.Timer
}

// NewAssetBreaker creates a closed breaker for one asset-venue pair.
func NewAssetBreaker(asset, venue string, t AssetThresholds) *Breaker {
	return &Breaker{
		id:              market.Key{Asset: asset, Venue: venue}.String(),
		asset:           asset,
		venue:           venue,
		assetThresholds: t,
		status:          StatusClosed,
	}
}

// NewSystemBreaker creates the closed system-wide breaker.
func NewSystemBreaker(id string, t SystemThresholds) *Breaker {
	return &Breaker{
		id:               id,
		systemWide:       true,
		systemThresholds: t,
		status:           StatusClosed,
	}
}

// ID returns the breaker identity ("<asset>-<venue>" or the system id).
func (b *Breaker) ID() string { return b.id }

// SystemWide reports whether this is the platform-level breaker.
func (b *Breaker) SystemWide() bool { return b.systemWide }

// Status returns the current state.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// UpdateAssetMetrics stores the latest asset observation.
func (b *Breaker) UpdateAssetMetrics(m market.AssetMetrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.assetMetrics = m
	b.hasAssetMetrics = true
}

// UpdateSystemMetrics stores the latest system observation.
func (b *Breaker) UpdateSystemMetrics(m market.SystemMetrics) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.systemMetrics = m
	b.hasSystemMetrics = true
}

// check compares the stored metrics against thresholds in the fixed rule
// order and returns the first violation. Callers hold b.mu. A breaker with
// no observation yet never violates: stale or missing data is fail-safe.
func (b *Breaker) check() (string, bool) {
	if b.systemWide {
		if !b.hasSystemMetrics {
			return "", false
		}
		m, t := b.systemMetrics, b.systemThresholds
		switch {
		case m.CurrentDrawdown > t.MaxDrawdown:
			return fmt.Sprintf("drawdown %.4f exceeds maximum %.4f", m.CurrentDrawdown, t.MaxDrawdown), true
		case m.DailyPnL < -t.MaxDailyLoss:
			return fmt.Sprintf("daily loss %.2f exceeds maximum %.2f", -m.DailyPnL, t.MaxDailyLoss), true
		case m.HourlyTransactions > t.MaxHourlyTransactions:
			return fmt.Sprintf("hourly transaction rate %.0f exceeds maximum %.0f", m.HourlyTransactions, t.MaxHourlyTransactions), true
		}
		return "", false
	}

	if !b.hasAssetMetrics {
		return "", false
	}
	m, t := b.assetMetrics, b.assetThresholds
	switch {
	case m.AvgSlippage > t.MaxSlippage:
		return fmt.Sprintf("slippage %.4f exceeds threshold %.4f", m.AvgSlippage, t.MaxSlippage), true
	case m.Volatility > t.MaxVolatility:
		return fmt.Sprintf("volatility %.4f exceeds threshold %.4f", m.Volatility, t.MaxVolatility), true
	case m.LiquidityRatio < t.MinLiquidityRatio:
		return fmt.Sprintf("liquidity ratio %.4f below minimum %.4f", m.LiquidityRatio, t.MinLiquidityRatio), true
	case 1-m.SuccessRate > t.MaxFailureRate:
		return fmt.Sprintf("failure rate %.4f exceeds maximum %.4f", 1-m.SuccessRate, t.MaxFailureRate), true
	}
	return "", false
}

// metricsObservedAt reports when the breaker's relevant metrics were last
// refreshed. Callers hold b.mu.
func (b *Breaker) metricsObservedAt() time.Time {
	if b.systemWide {
		return b.systemMetrics.ObservedAt
	}
	return b.assetMetrics.ObservedAt
}

// Snapshot is a read-only copy of breaker state for status queries.
type Snapshot struct {
	ID              string               `json:"id"`
	SystemWide      bool                 `json:"system_wide"`
	Asset           string               `json:"asset,omitempty"`
	Venue           string               `json:"venue,omitempty"`
	Status          string               `json:"status"`
	TriggerCount    int                  `json:"trigger_count"`
	LastTriggerTime *time.Time           `json:"last_trigger_time,omitempty"`
	AssetMetrics    market.AssetMetrics  `json:"asset_metrics,omitempty"`
	SystemMetrics   market.SystemMetrics `json:"system_metrics,omitempty"`
}

// setStatusLocked transitions state, cancels any pending recovery timer and
// bumps the generation so stale timers become no-ops. Callers hold b.mu.
func (b *Breaker) setStatusLocked(s Status) {
	if b.pendingTimer != nil {
		b.pendingTimer.Stop()
		b.pendingTimer = nil
	}
	b.generation++
	b.status = s
}

// Snapshot returns a copy of the breaker's observable state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Breaker) snapshotLocked() Snapshot {
	snap := Snapshot{
		ID:           b.id,
		SystemWide:   b.systemWide,
		Asset:        b.asset,
		Venue:        b.venue,
		Status:       b.status.String(),
		TriggerCount: b.triggerCount,
	}
	if b.lastTriggerTime != nil {
		t := *b.lastTriggerTime
		snap.LastTriggerTime = &t
	}
	if b.systemWide {
		snap.SystemMetrics = b.systemMetrics
	} else {
		snap.AssetMetrics = b.assetMetrics
	}
	return snap
}
