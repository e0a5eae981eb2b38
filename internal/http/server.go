package http

import (
	"net/http"

	"github.com/mauv0809/tictac-duel/internal/metrics"
	"github.com/mauv0809/tictac-duel/internal/pubsub"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
	"github.com/mauv0809/tictac-duel/internal/sessions"
)

func NewServer(registry sessions.Registry, metricsSvc metrics.Metrics, metricsHandler http.Handler, refresher recordstore.Refresher, feed *pubsub.ChangeFeed) *Server {
	server := &Server{
		Sessions:       registry,
		Metrics:        metricsSvc,
		MetricsHandler: metricsHandler,
		Refresher:      refresher,
		Feed:           feed,
		Router:         http.NewServeMux(),
	}

	server.routes()
	return server
}

func (s *Server) routes() {
	// All handlers are wrapped with middleware using the Chain helper.
	// Player endpoints also resolve the caller's session from ?user=.
	s.Router.Handle("GET /metrics", s.MetricsHandler)
	s.Router.Handle("GET /metrics/lifetime", Chain(s.LifetimeHandler(), paramsMiddleware))
	s.Router.Handle("GET /health", Chain(s.HealthCheckHandler(), paramsMiddleware))
	s.Router.Handle("POST /pubsub/record-changes", Chain(s.RecordChangesHandler(), paramsMiddleware))

	player := func(h sessionHandler) http.Handler {
		return Chain(s.withSession(h), paramsMiddleware)
	}
	s.Router.Handle("GET /view", player(s.ViewHandler()))
	s.Router.Handle("POST /challenges", player(s.SendChallengeHandler()))
	s.Router.Handle("POST /challenges/respond", player(s.RespondChallengeHandler()))
	s.Router.Handle("POST /challenges/open", player(s.OpenChallengeHandler()))
	s.Router.Handle("POST /move", player(s.MoveHandler()))
	s.Router.Handle("POST /rematch/request", player(s.RematchHandler(rematchRequest)))
	s.Router.Handle("POST /rematch/accept", player(s.RematchHandler(rematchAccept)))
	s.Router.Handle("POST /rematch/decline", player(s.RematchHandler(rematchDecline)))
	s.Router.Handle("POST /series/ready", player(s.ReadyHandler(true)))
	s.Router.Handle("POST /series/unready", player(s.ReadyHandler(false)))
	s.Router.Handle("POST /spectators/toggle", player(s.SpectatorsHandler()))
	s.Router.Handle("POST /spectate", player(s.SpectateHandler()))
	s.Router.Handle("POST /lobby", player(s.LobbyHandler()))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}
