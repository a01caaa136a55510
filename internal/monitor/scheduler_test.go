package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingTarget struct {
	composite    atomic.Int64
	volatility   atomic.Int64
	liquidity    atomic.Int64
	transactions atomic.Int64
}

func (c *countingTarget) CompositeCheck(context.Context)      { c.composite.Add(1) }
func (c *countingTarget) RefreshVolatility(context.Context)   { c.volatility.Add(1) }
func (c *countingTarget) RefreshLiquidity(context.Context)    { c.liquidity.Add(1) }
func (c *countingTarget) RefreshTransactions(context.Context) { c.transactions.Add(1) }

func TestSchedulerRunsEveryLoop(t *testing.T) {
	target := &countingTarget{}
	s := NewScheduler(target, Intervals{
		Composite:    10 * time.Millisecond,
		Volatility:   10 * time.Millisecond,
		Liquidity:    10 * time.Millisecond,
		Transactions: 10 * time.Millisecond,
	})

	s.Start(context.Background())
	time.Sleep(120 * time.Millisecond)
	s.Stop()

	assert.Greater(t, target.composite.Load(), int64(0))
	assert.Greater(t, target.volatility.Load(), int64(0))
	assert.Greater(t, target.liquidity.Load(), int64(0))
	assert.Greater(t, target.transactions.Load(), int64(0))
}

func TestSchedulerStopHaltsTicks(t *testing.T) {
	target := &countingTarget{}
	s := NewScheduler(target, Intervals{
		Composite:    10 * time.Millisecond,
		Volatility:   10 * time.Millisecond,
		Liquidity:    10 * time.Millisecond,
		Transactions: 10 * time.Millisecond,
	})

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	after := target.composite.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, target.composite.Load(), "no ticks after Stop")
}

func TestSchedulerDisablesNonPositiveInterval(t *testing.T) {
	target := &countingTarget{}
	s := NewScheduler(target, Intervals{
		Composite:    10 * time.Millisecond,
		Volatility:   0, // disabled
		Liquidity:    10 * time.Millisecond,
		Transactions: 10 * time.Millisecond,
	})

	s.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	assert.Equal(t, int64(0), target.volatility.Load())
	assert.Greater(t, target.composite.Load(), int64(0))
}

func TestSchedulerContextCancellation(t *testing.T) {
	target := &countingTarget{}
	s := NewScheduler(target, DefaultIntervals())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	// Stop still returns promptly after external cancellation.
	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	target := &countingTarget{}
	s := NewScheduler(target, DefaultIntervals())

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx) // second call is a no-op
	s.Stop()
	s.Stop() // second stop is a no-op too
}
