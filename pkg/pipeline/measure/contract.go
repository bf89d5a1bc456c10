package measure

import "time"

// Measure collects one metric per stage transition.
type Measure interface {
	AddMetric(transition string) Metric
	GetMetric(transition string) Metric
	AllMetrics() map[string]Metric
}

// Metric accumulates the outcome of the moves of one transition.
type Metric interface {
	AddApplied()
	AddSettled(elapsed time.Duration, rolledBack bool)
	Applied() int64
	Confirmed() int64
	RolledBack() int64
	AVGDuration() time.Duration
	RollbackRatio() float64
}
