package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ Metrics = (*Service)(nil)

// NewMetricsHandler returns an http.Handler for the given Gatherer.
// If no gatherer is provided, it uses the default one.
func NewMetricsHandler(gatherer ...prometheus.Gatherer) http.Handler {
	gath := prometheus.DefaultGatherer
	if len(gatherer) > 0 {
		gath = gatherer[0]
	}
	return promhttp.HandlerFor(gath, promhttp.HandlerOpts{})
}

// NewService creates and registers the Prometheus metrics.
// If no registerer is provided, it uses the default Prometheus registerer.
func NewService(registerer ...prometheus.Registerer) *Service {
	reg := prometheus.DefaultRegisterer
	if len(registerer) > 0 {
		reg = registerer[0]
	}

	s := &Service{
		MovesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duel_moves_applied_total",
			Help: "The total number of moves written to matches.",
		}),
		TurnsPassed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duel_turns_passed_total",
			Help: "The total number of turns passed by an expired turn clock.",
		}),
		MatchesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duel_matches_finished_total",
			Help: "The total number of finished matches, by outcome.",
		}, []string{"outcome"}),
		ChallengesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duel_challenges_resolved_total",
			Help: "The total number of challenges leaving pending, by final status.",
		}, []string{"status"}),
		RematchesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duel_rematches_resolved_total",
			Help: "The total number of rematch offers resolved, by outcome.",
		}, []string{"outcome"}),
		SeriesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "duel_series_finished_total",
			Help: "The total number of finished series.",
		}),
		GuardedWritesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duel_guarded_writes_skipped_total",
			Help: "The total number of guarded writes that found their precondition gone.",
		}, []string{"operation"}),
		StoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "duel_store_errors_total",
			Help: "The total number of record store failures surfaced to sessions.",
		}, []string{"operation"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "duel_active_sessions",
			Help: "The number of live client sessions.",
		}),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "duel_write_duration_seconds",
			Help:    "The duration of session-driven record store writes.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		StartupTimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "duel_startup_duration_seconds",
			Help: "The duration of the application startup in seconds.",
		}),
	}

	reg.MustRegister(
		s.MovesApplied,
		s.TurnsPassed,
		s.MatchesFinished,
		s.ChallengesResolved,
		s.RematchesResolved,
		s.SeriesFinished,
		s.GuardedWritesSkipped,
		s.StoreErrors,
		s.ActiveSessions,
		s.WriteDuration,
		s.StartupTimeSeconds,
	)

	return s
}

// PersistTo mirrors lifetime outcome counters into store.
func (s *Service) PersistTo(store MetricsStore) *Service {
	s.tally = store
	return s
}

func (s *Service) persist(key string) {
	if s.tally != nil {
		s.tally.Increment(key)
	}
}

func (s *Service) IncMovesApplied() {
	s.MovesApplied.Inc()
}

func (s *Service) IncTurnsPassed() {
	s.TurnsPassed.Inc()
	s.persist("turns_passed")
}

func (s *Service) IncMatchesFinished(outcome string) {
	s.MatchesFinished.WithLabelValues(outcome).Inc()
	s.persist("matches_finished")
}

func (s *Service) IncChallengesResolved(status string) {
	s.ChallengesResolved.WithLabelValues(status).Inc()
	s.persist("challenges_" + status)
}

func (s *Service) IncRematchesResolved(outcome string) {
	s.RematchesResolved.WithLabelValues(outcome).Inc()
	s.persist("rematches_" + outcome)
}

func (s *Service) IncSeriesFinished() {
	s.SeriesFinished.Inc()
	s.persist("series_finished")
}

func (s *Service) IncGuardedWritesSkipped(operation string) {
	s.GuardedWritesSkipped.WithLabelValues(operation).Inc()
}

func (s *Service) IncStoreErrors(operation string) {
	s.StoreErrors.WithLabelValues(operation).Inc()
}

func (s *Service) SetActiveSessions(n int) {
	s.ActiveSessions.Set(float64(n))
}

func (s *Service) ObserveWriteDuration(duration float64) {
	s.WriteDuration.Observe(duration)
}

func (s *Service) SetStartupTime(duration float64) {
	s.StartupTimeSeconds.Set(duration)
}
