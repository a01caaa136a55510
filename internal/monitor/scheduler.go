package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Target is the set of scheduled operations the engine exposes to the
// monitor.
type Target interface {
	CompositeCheck(ctx context.Context)
	RefreshVolatility(ctx context.Context)
	RefreshLiquidity(ctx context.Context)
	RefreshTransactions(ctx context.Context)
}

// Intervals configures the four independent cadences.
type Intervals struct {
	Composite    time.Duration `yaml:"composite"`
	Volatility   time.Duration `yaml:"volatility"`
	Liquidity    time.Duration `yaml:"liquidity"`
	Transactions time.Duration `yaml:"transactions"`
}

// DefaultIntervals returns the standard monitoring cadences.
func DefaultIntervals() Intervals {
	return Intervals{
		Composite:    30 * time.Second,
		Volatility:   15 * time.Second,
		Liquidity:    45 * time.Second,
		Transactions: 10 * time.Second,
	}
}

// Scheduler drives the containment engine on independent periodic tasks.
// The loops share no state of their own; all serialization happens inside
// the engine and its breakers.
type Scheduler struct {
	target    Target
	intervals Intervals

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewScheduler creates a scheduler for target.
func NewScheduler(target Target, intervals Intervals) *Scheduler {
	return &Scheduler{target: target, intervals: intervals}
}

// Start launches the four loops. Returns immediately; Stop or ctx
// cancellation ends them.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	var wg sync.WaitGroup
	run := func(name string, interval time.Duration, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(ctx, name, interval, fn)
		}()
	}

	run("composite", s.intervals.Composite, s.target.CompositeCheck)
	run("volatility", s.intervals.Volatility, s.target.RefreshVolatility)
	run("liquidity", s.intervals.Liquidity, s.target.RefreshLiquidity)
	run("transactions", s.intervals.Transactions, s.target.RefreshTransactions)

	go func() {
		wg.Wait()
		close(s.done)
	}()

	log.Info().
		Dur("composite", s.intervals.Composite).
		Dur("volatility", s.intervals.Volatility).
		Dur("liquidity", s.intervals.Liquidity).
		Dur("transactions", s.intervals.Transactions).
		Msg("Monitor scheduler started")
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		log.Warn().Str("task", name).Msg("Monitor task disabled, non-positive interval")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("task", name).Msg("Monitor task stopped")
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// Stop cancels the loops and waits for them to drain.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	log.Info().Msg("Monitor scheduler stopped")
}
