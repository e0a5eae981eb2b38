package challenge

import (
	"errors"

	"github.com/mauv0809/tictac-duel/internal/model"
)

var (
	ErrNotRecipient  = errors.New("challenge is not addressed to this user")
	ErrInvalidBestOf = errors.New("series length must be an odd number of games")
	ErrSelfChallenge = errors.New("cannot challenge yourself")
	ErrNotPending    = errors.New("challenge is no longer pending")
)

// SendRequest describes a new challenge.
type SendRequest struct {
	FromUserID   string
	FromUserName string
	ToUserID     string
	ToUserName   string
	Kind         model.MatchKind
	BestOf       int
}
