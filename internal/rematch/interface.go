package rematch

import "context"

// Negotiator runs the offer, accept, decline and timeout protocol that follows
// a finished single match. Series games continue through the series
// coordinator instead.
type Negotiator interface {
	// Request offers a rematch. Only allowed while no offer is open; a new
	// offer after a decline clears the decline.
	Request(ctx context.Context, matchID, uid string) error

	// Accept creates the successor match and points the old match at it. It
	// returns the successor's id.
	Accept(ctx context.Context, matchID, uid string) (string, error)

	// Decline closes an open offer on behalf of uid.
	Decline(ctx context.Context, matchID, uid string) error

	// Timeout closes an open offer that nobody answered in time. It is a
	// no-op once the offer was answered.
	Timeout(ctx context.Context, matchID string) error
}
