package risk

import (
	"context"
	"sync"
)

// StaticSource serves a fixed set of risk factors, replaceable at runtime.
// It stands in for a live risk-signal integration and backs tests.
type StaticSource struct {
	mu sync.RWMutex
	f  Factors
}

// NewStaticSource returns a source reporting a quiet environment.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		f: Factors{
			Operational: OperationalFactors{Uptime: 0.999},
		},
	}
}

// SetFactors replaces the served factors.
func (s *StaticSource) SetFactors(f Factors) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.f = f
}

// Factors implements FactorSource.
func (s *StaticSource) Factors(_ context.Context) (Factors, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.f, nil
}
