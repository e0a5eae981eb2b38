package challenge

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/mauv0809/tictac-duel/internal/match"
	"github.com/mauv0809/tictac-duel/internal/metrics"
	"github.com/mauv0809/tictac-duel/internal/model"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
	"github.com/mauv0809/tictac-duel/internal/series"
)

type negotiator struct {
	store   recordstore.Store
	matches match.MatchService
	series  series.Coordinator
	metrics metrics.Metrics
}

// NewNegotiator creates a new challenge negotiator
func NewNegotiator(store recordstore.Store, matches match.MatchService, coordinator series.Coordinator, metrics metrics.Metrics) Negotiator {
	return &negotiator{
		store:   store,
		matches: matches,
		series:  coordinator,
		metrics: metrics,
	}
}

func (n *negotiator) Send(ctx context.Context, req SendRequest) (model.Challenge, error) {
	if req.FromUserID == "" || req.ToUserID == "" {
		return model.Challenge{}, fmt.Errorf("challenge needs both users: %w", ErrNotRecipient)
	}
	if req.FromUserID == req.ToUserID {
		return model.Challenge{}, ErrSelfChallenge
	}
	if req.Kind == "" {
		req.Kind = model.KindSingle
	}
	if req.Kind == model.KindSeries && !model.ValidBestOf(req.BestOf) {
		return model.Challenge{}, fmt.Errorf("bestOf %d: %w", req.BestOf, ErrInvalidBestOf)
	}

	c := model.Challenge{
		FromUserID:   req.FromUserID,
		FromUserName: req.FromUserName,
		ToUserID:     req.ToUserID,
		ToUserName:   req.ToUserName,
		Status:       model.ChallengePending,
		Kind:         req.Kind,
		BestOf:       req.BestOf,
	}
	id, err := n.store.Create(ctx, model.CollectionChallenges, model.ChallengeFields(c))
	if err != nil {
		return model.Challenge{}, fmt.Errorf("failed to create challenge: %w", err)
	}
	log.Info("Challenge sent", "challengeID", id, "from", req.FromUserID, "to", req.ToUserID, "kind", req.Kind, "bestOf", req.BestOf)
	return n.Get(ctx, id)
}

func (n *negotiator) Get(ctx context.Context, id string) (model.Challenge, error) {
	doc, err := n.store.Get(ctx, model.CollectionChallenges, id)
	if err != nil {
		return model.Challenge{}, err
	}
	return model.ChallengeFromDocument(doc)
}

func (n *negotiator) Respond(ctx context.Context, id, uid string, accept bool) (model.Challenge, error) {
	c, err := n.Get(ctx, id)
	if err != nil {
		return c, err
	}
	if c.ToUserID != uid {
		return c, ErrNotRecipient
	}

	switch {
	case c.Status == model.ChallengePending:
	case c.Status == model.ChallengeAccepted && accept:
		// Replayed accept: make sure the side effects exist, write nothing else.
		if _, err := n.createGame(ctx, c); err != nil {
			return c, err
		}
		return c, nil
	case c.Status == model.ChallengeDeclined && !accept:
		return c, nil
	default:
		return c, fmt.Errorf("challenge %s is %s: %w", id, c.Status, ErrNotPending)
	}

	if !accept {
		return n.resolve(ctx, id, model.ChallengeDeclined, recordstore.Fields{})
	}

	fields, err := n.createGame(ctx, c)
	if err != nil {
		return c, err
	}
	return n.resolve(ctx, id, model.ChallengeAccepted, fields)
}

func (n *negotiator) Expire(ctx context.Context, id string) (bool, error) {
	_, err := n.resolve(ctx, id, model.ChallengeExpired, recordstore.Fields{})
	if errors.Is(err, ErrNotPending) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// createGame creates what an accepted challenge leads to and returns the
// fields that point the challenge at it.
func (n *negotiator) createGame(ctx context.Context, c model.Challenge) (recordstore.Fields, error) {
	players := [2]string{c.FromUserID, c.ToUserID}
	if c.Kind == model.KindSeries {
		s, err := n.series.Create(ctx, c.ID, players, c.BestOf)
		if err != nil {
			return nil, err
		}
		return recordstore.Fields{"seriesId": s.ID, "matchId": s.Games[0]}, nil
	}
	if err := n.matches.Create(ctx, c.ID, players, match.CreateOptions{}); err != nil {
		return nil, err
	}
	return recordstore.Fields{"matchId": c.ID}, nil
}

// resolve moves a pending challenge to status. Only the first resolution is
// written; a challenge that left pending meanwhile yields ErrNotPending.
func (n *negotiator) resolve(ctx context.Context, id string, status model.ChallengeStatus, fields recordstore.Fields) (model.Challenge, error) {
	doc, err := n.store.Mutate(ctx, model.CollectionChallenges, id, func(cur recordstore.Document) (recordstore.Fields, error) {
		if model.ChallengeStatus(cur.String("status")) != model.ChallengePending {
			return nil, recordstore.ErrSkip
		}
		changes := recordstore.Fields{
			"status":      status,
			"respondedAt": recordstore.ServerTimestamp,
		}
		for k, v := range fields {
			changes[k] = v
		}
		return changes, nil
	})
	if errors.Is(err, recordstore.ErrSkip) {
		c, decodeErr := model.ChallengeFromDocument(doc)
		if decodeErr != nil {
			return c, decodeErr
		}
		if c.Status == status {
			return c, nil
		}
		log.Warn("Challenge resolved concurrently", "challengeID", id, "wanted", status, "status", c.Status)
		n.metrics.IncGuardedWritesSkipped("resolve_challenge")
		return c, fmt.Errorf("challenge %s is %s: %w", id, c.Status, ErrNotPending)
	}
	if err != nil {
		return model.Challenge{}, err
	}

	log.Info("Challenge resolved", "challengeID", id, "status", status)
	n.metrics.IncChallengesResolved(string(status))
	return model.ChallengeFromDocument(doc)
}
