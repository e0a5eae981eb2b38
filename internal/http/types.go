package http

import (
	"net/http"

	"github.com/mauv0809/tictac-duel/internal/metrics"
	"github.com/mauv0809/tictac-duel/internal/pubsub"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
	"github.com/mauv0809/tictac-duel/internal/sessions"
)

type Server struct {
	Sessions       sessions.Registry
	Metrics        metrics.Metrics
	MetricsHandler http.Handler
	// Lifetime is nil when no counters are persisted.
	Lifetime metrics.LifetimeReader
	// Refresher and Feed are nil unless record changes are shared between
	// instances.
	Refresher recordstore.Refresher
	Feed      *pubsub.ChangeFeed
	Router    *http.ServeMux
}

type challengeRequest struct {
	To     string `json:"to"`
	ToName string `json:"toName"`
	Kind   string `json:"kind"`
	BestOf int    `json:"bestOf"`
}

type respondRequest struct {
	ID     string `json:"id"`
	Accept bool   `json:"accept"`
}

type idRequest struct {
	ID string `json:"id"`
}

type moveRequest struct {
	Index *int `json:"index"`
}

type spectatorsRequest struct {
	Allow bool `json:"allow"`
}

// pushEnvelope is the body of a Pub/Sub push delivery.
type pushEnvelope struct {
	Subscription string `json:"subscription"`
	Message      struct {
		Data string `json:"data"`
	} `json:"message"`
}
