package sessions

import (
	"context"
	"time"

	"github.com/mauv0809/tictac-duel/internal/session"
)

// Registry hosts one live session per user for the HTTP surface.
type Registry interface {
	// Open returns the user's session, starting one in the lobby if needed.
	Open(ctx context.Context, userID, userName string) (*session.Session, error)
	// Get returns the user's running session.
	Get(userID string) (*session.Session, bool)
	// Close stops and forgets the user's session.
	Close(userID string)
	// CloseAll stops every session.
	CloseAll()
	// Len is the number of live sessions.
	Len() int
	// EvictIdle closes sessions nobody opened for longer than maxIdle and
	// returns how many it closed.
	EvictIdle(maxIdle time.Duration) int
	// StartEviction runs EvictIdle every interval until ctx is done.
	StartEviction(ctx context.Context, maxIdle, interval time.Duration) error
}
