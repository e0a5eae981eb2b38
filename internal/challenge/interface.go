package challenge

import (
	"context"

	"github.com/mauv0809/tictac-duel/internal/model"
)

// Negotiator turns challenges into matches or series.
type Negotiator interface {
	// Send creates a pending challenge.
	Send(ctx context.Context, req SendRequest) (model.Challenge, error)

	// Get returns the decoded challenge.
	Get(ctx context.Context, id string) (model.Challenge, error)

	// Respond accepts or declines a pending challenge addressed to uid. An
	// accept creates the match, or the series with its first match, before the
	// challenge is marked accepted. Replaying an accept is a no-op.
	Respond(ctx context.Context, id, uid string, accept bool) (model.Challenge, error)

	// Expire moves a pending challenge to expired and reports whether it
	// did. A challenge that was answered first keeps its answer.
	Expire(ctx context.Context, id string) (bool, error)
}
