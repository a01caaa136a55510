package market

import (
	"context"
	"sync"
	"time"
)

// StaticSource serves fixed metric readings for every pair. It stands in
// for a live market-data integration and is handy in tests; the readings
// can be swapped at runtime.
type StaticSource struct {
	mu       sync.RWMutex
	asset    AssetMetrics
	system   SystemMetrics
	activity ActivitySnapshot
}

// NewStaticSource returns a source reporting a healthy venue.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		asset: AssetMetrics{
			AvgSlippage:    0.01,
			Volatility:     0.05,
			LiquidityRatio: 0.80,
			SuccessRate:    0.99,
		},
		system: SystemMetrics{
			CurrentDrawdown:    0.01,
			DailyPnL:           0,
			HourlyTransactions: 100,
			Uptime:             0.999,
		},
		activity: ActivitySnapshot{},
	}
}

// SetAsset replaces the reading served for all pairs.
func (s *StaticSource) SetAsset(m AssetMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asset = m
}

// SetSystem replaces the system reading.
func (s *StaticSource) SetSystem(m SystemMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.system = m
}

// SetActivity replaces the activity reading.
func (s *StaticSource) SetActivity(a ActivitySnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = a
}

// AssetMetrics implements AssetSource.
func (s *StaticSource) AssetMetrics(_ context.Context, _, _ string) (AssetMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.asset
	m.ObservedAt = time.Now()
	return m, nil
}

// SystemMetrics implements SystemSource.
func (s *StaticSource) SystemMetrics(_ context.Context) (SystemMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.system
	m.ObservedAt = time.Now()
	return m, nil
}

// Activity implements ActivitySource.
func (s *StaticSource) Activity(_ context.Context) (ActivitySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.activity
	a.ObservedAt = time.Now()
	return a, nil
}
