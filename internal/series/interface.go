package series

import (
	"context"

	"github.com/mauv0809/tictac-duel/internal/model"
)

// Coordinator tracks best-of-N series: scoring, completion and the readiness
// handshake that starts the next game. Both players' clients call it for the
// same transitions; every write converges when applied twice.
type Coordinator interface {
	// Create stores the series and its first game. Replays are no-ops.
	Create(ctx context.Context, id string, players [2]string, bestOf int) (model.Series, error)

	// Get returns the series, repairing missing readiness or score entries.
	Get(ctx context.Context, id string) (model.Series, error)

	// RecordResult counts a finished game of the series once.
	RecordResult(ctx context.Context, m model.Match) (model.Series, error)

	// SetReady sets uid's readiness to continue after the game at gameIndex.
	SetReady(ctx context.Context, id, uid string, gameIndex int, ready bool) (model.Series, error)

	// Advance starts the game after gameIndex once both players are ready.
	// It reports whether this call performed the transition.
	Advance(ctx context.Context, id string, gameIndex int) (model.Series, bool, error)
}
