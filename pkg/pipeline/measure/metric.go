package measure

import (
	"sync"
	"time"
)

type DefaultMetric struct {
	mu         *sync.Mutex
	elapsed    time.Duration
	applied    int64
	confirmed  int64
	rolledBack int64
}

func (mt *DefaultMetric) AddApplied() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.applied++
}

func (mt *DefaultMetric) AddSettled(elapsed time.Duration, rolledBack bool) {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.elapsed += elapsed
	if rolledBack {
		mt.rolledBack++

		return
	}
	mt.confirmed++
}

func (mt *DefaultMetric) Applied() int64 {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.applied
}

func (mt *DefaultMetric) Confirmed() int64 {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.confirmed
}

func (mt *DefaultMetric) RolledBack() int64 {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.rolledBack
}

// AVGDuration is the mean confirmation latency of the settled moves.
func (mt *DefaultMetric) AVGDuration() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	settled := mt.confirmed + mt.rolledBack
	if settled == 0 {
		return time.Duration(0)
	}

	return round(time.Duration(float64(mt.elapsed) / float64(settled)))
}

// RollbackRatio is the share of settled moves that were rolled back, in [0, 1].
func (mt *DefaultMetric) RollbackRatio() float64 {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	settled := mt.confirmed + mt.rolledBack
	if settled == 0 {
		return 0
	}

	return float64(mt.rolledBack) / float64(settled)
}

func round(d time.Duration) time.Duration {
	switch {
	case d > time.Hour:
		d = d.Round(time.Minute)
	case d > time.Second:
		d = d.Round(time.Millisecond)
	case d > time.Millisecond:
		d = d.Round(time.Microsecond)
	}

	return d
}

var _ Metric = (*DefaultMetric)(nil)
