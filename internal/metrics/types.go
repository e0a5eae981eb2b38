package metrics

import "github.com/prometheus/client_golang/prometheus"

// Service holds all the Prometheus metrics for the application.
// By defining them all in one place, we ensure consistency in naming and labeling.
type Service struct {
	MovesApplied         prometheus.Counter
	TurnsPassed          prometheus.Counter
	MatchesFinished      *prometheus.CounterVec
	ChallengesResolved   *prometheus.CounterVec
	RematchesResolved    *prometheus.CounterVec
	SeriesFinished       prometheus.Counter
	GuardedWritesSkipped *prometheus.CounterVec
	StoreErrors          *prometheus.CounterVec
	ActiveSessions       prometheus.Gauge
	WriteDuration        prometheus.Histogram
	StartupTimeSeconds   prometheus.Gauge

	// tally mirrors outcome counters into the database when set.
	tally MetricsStore
}
