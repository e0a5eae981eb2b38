package match

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mauv0809/tictac-duel/internal/engine"
	"github.com/mauv0809/tictac-duel/internal/metrics"
	"github.com/mauv0809/tictac-duel/internal/model"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
)

// service implements MatchService on a record store.
type service struct {
	store   recordstore.Store
	metrics metrics.Metrics
}

// NewService creates a new match service
func NewService(store recordstore.Store, metrics metrics.Metrics) MatchService {
	return &service{
		store:   store,
		metrics: metrics,
	}
}

func (s *service) Create(ctx context.Context, id string, players [2]string, opts CreateOptions) error {
	status := opts.Status
	if status == "" {
		status = model.MatchOngoing
	}
	fields := model.NewMatchFields(players, status)
	if opts.SeriesID != "" {
		fields["seriesId"] = opts.SeriesID
		fields["gameNumber"] = opts.GameNumber
	}

	err := s.store.CreateWithID(ctx, model.CollectionMatches, id, fields)
	if errors.Is(err, recordstore.ErrAlreadyExists) {
		log.Debug("Match already exists, not creating again", "matchID", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create match %s: %w", id, err)
	}
	log.Info("Created match", "matchID", id, "x", players[0], "o", players[1], "status", status)
	return nil
}

func (s *service) Get(ctx context.Context, id string) (model.Match, error) {
	doc, err := s.store.Get(ctx, model.CollectionMatches, id)
	if err != nil {
		return model.Match{}, err
	}
	return model.MatchFromDocument(doc)
}

func (s *service) Move(ctx context.Context, id, uid string, index int) (model.Match, error) {
	var outcome engine.Outcome
	start := time.Now()
	doc, err := s.store.Mutate(ctx, model.CollectionMatches, id, func(cur recordstore.Document) (recordstore.Fields, error) {
		m, err := model.MatchFromDocument(cur)
		if err != nil {
			return nil, err
		}
		if m.Status != model.MatchOngoing {
			return nil, ErrMatchNotActive
		}
		symbol := m.SymbolOf(uid)
		if symbol == engine.Empty {
			return nil, ErrNotAPlayer
		}
		if symbol != m.CurrentTurn {
			return nil, ErrNotYourTurn
		}
		board, err := engine.ApplyMove(m.Board, index, symbol)
		if err != nil {
			return nil, err
		}

		outcome = engine.Evaluate(board)
		fields := recordstore.Fields{
			"board":       board.Strings(),
			"currentTurn": symbol.Opponent(),
			"updatedAt":   recordstore.ServerTimestamp,
		}
		if outcome != engine.OutcomeNone {
			fields["winner"] = outcome
			fields["status"] = model.MatchFinished
		}
		return fields, nil
	})
	s.metrics.ObserveWriteDuration(time.Since(start).Seconds())
	if err != nil {
		return model.Match{}, err
	}

	s.metrics.IncMovesApplied()
	if outcome != engine.OutcomeNone {
		log.Info("Match finished", "matchID", id, "outcome", outcome)
		s.metrics.IncMatchesFinished(string(outcome))
	}
	return model.MatchFromDocument(doc)
}

func (s *service) PassTurn(ctx context.Context, id string, symbol engine.Symbol, observed engine.Board) (model.Match, error) {
	doc, err := s.store.Mutate(ctx, model.CollectionMatches, id, func(cur recordstore.Document) (recordstore.Fields, error) {
		m, err := model.MatchFromDocument(cur)
		if err != nil {
			return nil, err
		}
		if m.Status != model.MatchOngoing || m.CurrentTurn != symbol || m.Board != observed {
			return nil, recordstore.ErrSkip
		}
		return recordstore.Fields{
			"currentTurn": symbol.Opponent(),
			"updatedAt":   recordstore.ServerTimestamp,
		}, nil
	})
	if errors.Is(err, recordstore.ErrSkip) {
		log.Debug("Turn already moved on, pass skipped", "matchID", id, "symbol", symbol)
		s.metrics.IncGuardedWritesSkipped("pass_turn")
		m, decodeErr := model.MatchFromDocument(doc)
		if decodeErr != nil {
			return m, decodeErr
		}
		return m, err
	}
	if err != nil {
		return model.Match{}, err
	}
	log.Info("Turn passed after timeout", "matchID", id, "from", symbol)
	s.metrics.IncTurnsPassed()
	return model.MatchFromDocument(doc)
}

func (s *service) Activate(ctx context.Context, id string) error {
	_, err := s.store.Mutate(ctx, model.CollectionMatches, id, func(cur recordstore.Document) (recordstore.Fields, error) {
		if model.MatchStatus(cur.String("status")) != model.MatchWaiting {
			return nil, recordstore.ErrSkip
		}
		return recordstore.Fields{
			"status":    model.MatchOngoing,
			"updatedAt": recordstore.ServerTimestamp,
		}, nil
	})
	if errors.Is(err, recordstore.ErrSkip) {
		log.Debug("Match already active", "matchID", id)
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("Activated waiting match", "matchID", id)
	return nil
}

func (s *service) SetSpectators(ctx context.Context, id, uid string, allow bool) error {
	_, err := s.store.Mutate(ctx, model.CollectionMatches, id, func(cur recordstore.Document) (recordstore.Fields, error) {
		m, err := model.MatchFromDocument(cur)
		if err != nil {
			return nil, err
		}
		if !m.IsPlayer(uid) {
			return nil, ErrNotAPlayer
		}
		if m.AllowSpectators == allow {
			return nil, recordstore.ErrSkip
		}
		return recordstore.Fields{
			"allowSpectators": allow,
			"updatedAt":       recordstore.ServerTimestamp,
		}, nil
	})
	if errors.Is(err, recordstore.ErrSkip) {
		return nil
	}
	return err
}

func (s *service) Watch(ctx context.Context, id, uid string) (model.Match, error) {
	doc, err := s.store.Mutate(ctx, model.CollectionMatches, id, func(cur recordstore.Document) (recordstore.Fields, error) {
		m, err := model.MatchFromDocument(cur)
		if err != nil {
			return nil, err
		}
		if m.IsPlayer(uid) || slices.Contains(m.Spectators, uid) {
			return nil, recordstore.ErrSkip
		}
		if !m.AllowSpectators {
			return nil, ErrSpectatorsBlocked
		}
		return recordstore.Fields{"spectators": append(slices.Clone(m.Spectators), uid)}, nil
	})
	if err != nil && !errors.Is(err, recordstore.ErrSkip) {
		return model.Match{}, err
	}
	return model.MatchFromDocument(doc)
}
