package metrics

import "context"

// Metrics defines the interface for collecting application metrics.
// This decouples the application from the specific metrics implementation (e.g., Prometheus).
type Metrics interface {
	IncMovesApplied()
	IncTurnsPassed()
	IncMatchesFinished(outcome string)
	IncChallengesResolved(status string)
	IncRematchesResolved(outcome string)
	IncSeriesFinished()
	IncGuardedWritesSkipped(operation string)
	IncStoreErrors(operation string)
	SetActiveSessions(n int)
	ObserveWriteDuration(duration float64)
	SetStartupTime(duration float64)
}

// MetricsStore keeps lifetime counters that survive restarts.
type MetricsStore interface {
	Increment(key string)
	LifetimeReader
}

// LifetimeReader lists the persisted lifetime counters.
type LifetimeReader interface {
	Totals(ctx context.Context) ([]Total, error)
}
