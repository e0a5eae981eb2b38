package match

import (
	"context"

	"github.com/mauv0809/tictac-duel/internal/engine"
	"github.com/mauv0809/tictac-duel/internal/model"
)

// MatchService reads and writes match documents. Every write is a guarded
// update against the latest snapshot.
type MatchService interface {
	// Create stores a new match under id. Creating an existing id is a no-op.
	Create(ctx context.Context, id string, players [2]string, opts CreateOptions) error

	// Get returns the decoded match.
	Get(ctx context.Context, id string) (model.Match, error)

	// Move places the mover's symbol at index and flips the turn.
	Move(ctx context.Context, id, uid string, index int) (model.Match, error)

	// PassTurn hands the turn to the opponent without touching the board. It
	// only applies while the match is ongoing, symbol still holds the turn and
	// the board still equals observed.
	PassTurn(ctx context.Context, id string, symbol engine.Symbol, observed engine.Board) (model.Match, error)

	// Activate moves a waiting match to ongoing.
	Activate(ctx context.Context, id string) error

	// SetSpectators toggles whether others may watch the match.
	SetSpectators(ctx context.Context, id, uid string, allow bool) error

	// Watch adds uid to the spectators of a match that allows them.
	Watch(ctx context.Context, id, uid string) (model.Match, error)
}
