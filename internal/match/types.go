package match

import (
	"errors"

	"github.com/mauv0809/tictac-duel/internal/model"
)

var (
	ErrNotYourTurn       = errors.New("not your turn")
	ErrMatchNotActive    = errors.New("match is not ongoing")
	ErrNotAPlayer        = errors.New("user does not play in this match")
	ErrSpectatorsBlocked = errors.New("match does not allow spectators")
)

// CreateOptions carries the optional fields of a new match. A zero Status
// creates an ongoing match.
type CreateOptions struct {
	Status     model.MatchStatus
	SeriesID   string
	GameNumber int
}
