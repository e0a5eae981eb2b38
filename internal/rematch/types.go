package rematch

import (
	"errors"
	"time"
)

// DefaultTimeout is how long a rematch offer stays open.
const DefaultTimeout = 30 * time.Second

var ErrNotAllowed = errors.New("rematch not allowed in this state")

// State is one client's view of the rematch negotiation.
type State int

const (
	// Idle means no offer is open.
	Idle State = iota
	// Waiting means the local player offered and awaits an answer.
	Waiting
	// Requested means the opponent offered.
	Requested
	// Declined means the offer was declined or timed out.
	Declined
	// Accepted means a successor match exists.
	Accepted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Waiting:
		return "waiting"
	case Requested:
		return "requested"
	case Declined:
		return "declined"
	case Accepted:
		return "accepted"
	}
	return "unknown"
}
