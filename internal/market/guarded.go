package market

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// GuardConfig bounds calls into an external metric source.
type GuardConfig struct {
	Name             string        `yaml:"name"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	FailureThreshold uint32        `yaml:"failure_threshold"` // consecutive failures to open the guard
	OpenTimeout      time.Duration `yaml:"open_timeout"`      // how long the guard stays open
}

// DefaultGuardConfig returns guard settings suitable for in-process or
// local-network metric providers.
func DefaultGuardConfig(name string) GuardConfig {
	return GuardConfig{
		Name:             name,
		RequestTimeout:   3 * time.Second,
		FailureThreshold: 3,
		OpenTimeout:      30 * time.Second,
	}
}

// boundCtx applies the guard's request timeout. A non-positive timeout
// leaves the caller's context untouched rather than expiring it instantly.
func boundCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func newGuard(cfg GuardConfig) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{Name: cfg.Name}
	st.Timeout = cfg.OpenTimeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= cfg.FailureThreshold
	}
	return gobreaker.NewCircuitBreaker(st)
}

// GuardedAssetSource wraps an AssetSource with a request timeout and a
// gobreaker guard. A fetch past its bound fails like any other error; the
// caller keeps its last metrics (absence of new data never trips a domain
// breaker).
type GuardedAssetSource struct {
	src     AssetSource
	guard   *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewGuardedAssetSource wraps src with cfg.
func NewGuardedAssetSource(src AssetSource, cfg GuardConfig) *GuardedAssetSource {
	return &GuardedAssetSource{src: src, guard: newGuard(cfg), timeout: cfg.RequestTimeout}
}

func (g *GuardedAssetSource) AssetMetrics(ctx context.Context, asset, venue string) (AssetMetrics, error) {
	out, err := g.guard.Execute(func() (interface{}, error) {
		ctx, cancel := boundCtx(ctx, g.timeout)
		defer cancel()
		return g.src.AssetMetrics(ctx, asset, venue)
	})
	if err != nil {
		return AssetMetrics{}, err
	}
	return out.(AssetMetrics), nil
}

// GuardedSystemSource wraps a SystemSource the same way.
type GuardedSystemSource struct {
	src     SystemSource
	guard   *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewGuardedSystemSource wraps src with cfg.
func NewGuardedSystemSource(src SystemSource, cfg GuardConfig) *GuardedSystemSource {
	return &GuardedSystemSource{src: src, guard: newGuard(cfg), timeout: cfg.RequestTimeout}
}

func (g *GuardedSystemSource) SystemMetrics(ctx context.Context) (SystemMetrics, error) {
	out, err := g.guard.Execute(func() (interface{}, error) {
		ctx, cancel := boundCtx(ctx, g.timeout)
		defer cancel()
		return g.src.SystemMetrics(ctx)
	})
	if err != nil {
		return SystemMetrics{}, err
	}
	return out.(SystemMetrics), nil
}

// GuardedActivitySource wraps an ActivitySource the same way.
type GuardedActivitySource struct {
	src     ActivitySource
	guard   *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewGuardedActivitySource wraps src with cfg.
func NewGuardedActivitySource(src ActivitySource, cfg GuardConfig) *GuardedActivitySource {
	return &GuardedActivitySource{src: src, guard: newGuard(cfg), timeout: cfg.RequestTimeout}
}

func (g *GuardedActivitySource) Activity(ctx context.Context) (ActivitySnapshot, error) {
	out, err := g.guard.Execute(func() (interface{}, error) {
		ctx, cancel := boundCtx(ctx, g.timeout)
		defer cancel()
		return g.src.Activity(ctx)
	})
	if err != nil {
		return ActivitySnapshot{}, err
	}
	return out.(ActivitySnapshot), nil
}
