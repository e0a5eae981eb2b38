package rematch

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/mauv0809/tictac-duel/internal/match"
	"github.com/mauv0809/tictac-duel/internal/metrics"
	"github.com/mauv0809/tictac-duel/internal/model"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
)

// Eligible reports whether a match can be followed by a rematch.
func Eligible(m model.Match) bool {
	return m.Status == model.MatchFinished && m.SeriesID == ""
}

// Derive computes the negotiation state from the match document as seen by
// self. A successor match wins over a decline, and a decline over an offer.
func Derive(m model.Match, self string) State {
	switch {
	case !Eligible(m):
		return Idle
	case m.RematchGameID != "":
		return Accepted
	case m.RematchDeclinedBy != "":
		return Declined
	case m.RematchRequestedBy == "":
		return Idle
	case m.RematchRequestedBy == self:
		return Waiting
	default:
		return Requested
	}
}

type negotiator struct {
	store   recordstore.Store
	matches match.MatchService
	metrics metrics.Metrics
}

// NewNegotiator creates a new rematch negotiator
func NewNegotiator(store recordstore.Store, matches match.MatchService, metrics metrics.Metrics) Negotiator {
	return &negotiator{
		store:   store,
		matches: matches,
		metrics: metrics,
	}
}

func (n *negotiator) Request(ctx context.Context, matchID, uid string) error {
	_, err := n.mutate(ctx, matchID, func(m model.Match) (recordstore.Fields, error) {
		if !Eligible(m) {
			return nil, ErrNotAllowed
		}
		if !m.IsPlayer(uid) {
			return nil, match.ErrNotAPlayer
		}
		fields := recordstore.Fields{
			"rematchRequestedBy": uid,
			"rematchRequestedAt": recordstore.ServerTimestamp,
			"updatedAt":          recordstore.ServerTimestamp,
		}
		switch Derive(m, uid) {
		case Waiting:
			return nil, recordstore.ErrSkip
		case Idle:
		case Declined:
			// A fresh offer replaces an earlier refusal.
			fields["rematchDeclinedBy"] = recordstore.Delete
		default:
			return nil, fmt.Errorf("rematch is %s: %w", Derive(m, uid), ErrNotAllowed)
		}
		return fields, nil
	})
	if errors.Is(err, recordstore.ErrSkip) {
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("Rematch requested", "matchID", matchID, "by", uid)
	return nil
}

func (n *negotiator) Accept(ctx context.Context, matchID, uid string) (string, error) {
	m, err := n.matches.Get(ctx, matchID)
	if err != nil {
		return "", err
	}
	if !m.IsPlayer(uid) {
		return "", match.ErrNotAPlayer
	}
	switch Derive(m, uid) {
	case Accepted:
		return m.RematchGameID, nil
	case Requested:
	default:
		return "", fmt.Errorf("rematch is %s: %w", Derive(m, uid), ErrNotAllowed)
	}

	// The successor stays waiting until it is claimed, so a lost race leaves
	// an unplayed match rather than a live one.
	next := model.RematchID(matchID)
	players := [2]string{uid, m.Opponent(uid)}
	if err := n.matches.Create(ctx, next, players, match.CreateOptions{Status: model.MatchWaiting}); err != nil {
		return "", err
	}

	claimed, err := n.mutate(ctx, matchID, func(m model.Match) (recordstore.Fields, error) {
		if Derive(m, uid) != Requested {
			return nil, recordstore.ErrSkip
		}
		return recordstore.Fields{
			"rematchGameId": next,
			"updatedAt":     recordstore.ServerTimestamp,
		}, nil
	})
	if errors.Is(err, recordstore.ErrSkip) {
		if claimed.RematchGameID == "" {
			n.metrics.IncGuardedWritesSkipped("accept_rematch")
			return "", fmt.Errorf("rematch is %s: %w", Derive(claimed, uid), ErrNotAllowed)
		}
		next = claimed.RematchGameID
	} else if err != nil {
		return "", err
	} else {
		log.Info("Rematch accepted", "matchID", matchID, "rematchID", next, "by", uid)
		n.metrics.IncRematchesResolved("accepted")
	}

	if err := n.matches.Activate(ctx, next); err != nil {
		return next, err
	}
	return next, nil
}

func (n *negotiator) Decline(ctx context.Context, matchID, uid string) error {
	_, err := n.mutate(ctx, matchID, func(m model.Match) (recordstore.Fields, error) {
		if !m.IsPlayer(uid) {
			return nil, match.ErrNotAPlayer
		}
		switch Derive(m, uid) {
		case Waiting, Requested:
		case Declined, Accepted:
			return nil, recordstore.ErrSkip
		default:
			return nil, fmt.Errorf("no open rematch offer: %w", ErrNotAllowed)
		}
		return closeOffer(uid), nil
	})
	if errors.Is(err, recordstore.ErrSkip) {
		n.metrics.IncGuardedWritesSkipped("decline_rematch")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("Rematch declined", "matchID", matchID, "by", uid)
	n.metrics.IncRematchesResolved("declined")
	return nil
}

func (n *negotiator) Timeout(ctx context.Context, matchID string) error {
	_, err := n.mutate(ctx, matchID, func(m model.Match) (recordstore.Fields, error) {
		if Derive(m, "") != Requested {
			return nil, recordstore.ErrSkip
		}
		return closeOffer(model.TimeoutDecliner), nil
	})
	if errors.Is(err, recordstore.ErrSkip) {
		log.Debug("Rematch offer already answered, timeout skipped", "matchID", matchID)
		n.metrics.IncGuardedWritesSkipped("timeout_rematch")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("Rematch offer timed out", "matchID", matchID)
	n.metrics.IncRematchesResolved("timeout")
	return nil
}

func closeOffer(by string) recordstore.Fields {
	return recordstore.Fields{
		"rematchDeclinedBy":  by,
		"rematchRequestedBy": recordstore.Delete,
		"rematchRequestedAt": recordstore.Delete,
		"updatedAt":          recordstore.ServerTimestamp,
	}
}

// mutate runs a guarded write against the decoded match and returns the
// resulting match, or the unchanged one when the write was skipped.
func (n *negotiator) mutate(ctx context.Context, matchID string, fn func(model.Match) (recordstore.Fields, error)) (model.Match, error) {
	doc, err := n.store.Mutate(ctx, model.CollectionMatches, matchID, func(cur recordstore.Document) (recordstore.Fields, error) {
		m, err := model.MatchFromDocument(cur)
		if err != nil {
			return nil, err
		}
		return fn(m)
	})
	if err != nil && !errors.Is(err, recordstore.ErrSkip) {
		return model.Match{}, err
	}
	m, decodeErr := model.MatchFromDocument(doc)
	if decodeErr != nil {
		return m, decodeErr
	}
	return m, err
}
