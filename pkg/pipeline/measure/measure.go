package measure

import (
	"maps"
	"sync"
)

type DefaultMeasure struct {
	mu    sync.Mutex
	Steps map[string]Metric
}

func NewDefaultMeasure() *DefaultMeasure {
	return &DefaultMeasure{
		Steps: make(map[string]Metric),
	}
}

// AddMetric returns the metric of transition, creating it on first use.
func (m *DefaultMeasure) AddMetric(transition string) Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mt, ok := m.Steps[transition]; ok {
		return mt
	}

	mt := &DefaultMetric{mu: &sync.Mutex{}}
	m.Steps[transition] = mt

	return mt
}

func (m *DefaultMeasure) GetMetric(transition string) Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.Steps[transition]
}

// AllMetrics returns a copy of the metrics keyed by transition.
func (m *DefaultMeasure) AllMetrics() map[string]Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	return maps.Clone(m.Steps)
}

var _ Measure = (*DefaultMeasure)(nil)
