package series

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/mauv0809/tictac-duel/internal/match"
	"github.com/mauv0809/tictac-duel/internal/metrics"
	"github.com/mauv0809/tictac-duel/internal/model"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
)

type coordinator struct {
	store   recordstore.Store
	matches match.MatchService
	metrics metrics.Metrics
}

// NewCoordinator creates a new series coordinator
func NewCoordinator(store recordstore.Store, matches match.MatchService, metrics metrics.Metrics) Coordinator {
	return &coordinator{
		store:   store,
		matches: matches,
		metrics: metrics,
	}
}

func (c *coordinator) Create(ctx context.Context, id string, players [2]string, bestOf int) (model.Series, error) {
	if !model.ValidBestOf(bestOf) {
		return model.Series{}, fmt.Errorf("series %s bestOf %d: %w", id, bestOf, model.ErrInconsistentState)
	}

	first := model.SeriesGameID(id, 0)
	err := c.matches.Create(ctx, first, players, match.CreateOptions{SeriesID: id, GameNumber: 1})
	if err != nil {
		return model.Series{}, err
	}

	err = c.store.CreateWithID(ctx, model.CollectionSeries, id, model.NewSeriesFields(players, bestOf, first))
	switch {
	case errors.Is(err, recordstore.ErrAlreadyExists):
		log.Debug("Series already exists, not creating again", "seriesID", id)
	case err != nil:
		return model.Series{}, fmt.Errorf("failed to create series %s: %w", id, err)
	default:
		log.Info("Created series", "seriesID", id, "bestOf", bestOf, "firstMatchID", first)
	}
	return c.Get(ctx, id)
}

func (c *coordinator) Get(ctx context.Context, id string) (model.Series, error) {
	doc, err := c.store.Get(ctx, model.CollectionSeries, id)
	if err != nil {
		return model.Series{}, err
	}
	s, repairs, err := model.SeriesFromDocument(doc)
	if err != nil || repairs == nil {
		return s, err
	}

	log.Warn("Series is missing fields, repairing", "seriesID", id, "fields", len(repairs))
	doc, err = c.store.Mutate(ctx, model.CollectionSeries, id, func(cur recordstore.Document) (recordstore.Fields, error) {
		_, repairs, err := model.SeriesFromDocument(cur)
		if err != nil {
			return nil, err
		}
		if repairs == nil {
			return nil, recordstore.ErrSkip
		}
		return repairs, nil
	})
	if err != nil && !errors.Is(err, recordstore.ErrSkip) {
		return s, err
	}
	s, _, err = model.SeriesFromDocument(doc)
	return s, err
}

func (c *coordinator) RecordResult(ctx context.Context, m model.Match) (model.Series, error) {
	if m.SeriesID == "" {
		return model.Series{}, fmt.Errorf("match %s: %w", m.ID, ErrNotSeriesGame)
	}
	if m.Status != model.MatchFinished {
		return model.Series{}, fmt.Errorf("match %s is %s: %w", m.ID, m.Status, match.ErrMatchNotActive)
	}

	finished := false
	doc, err := c.store.Mutate(ctx, model.CollectionSeries, m.SeriesID, func(cur recordstore.Document) (recordstore.Fields, error) {
		finished = false
		s, repairs, err := model.SeriesFromDocument(cur)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(s.Games, m.ID) {
			return nil, fmt.Errorf("match %s: %w", m.ID, ErrNotSeriesGame)
		}
		if s.Status == model.SeriesFinished || s.Scored(m.ID) {
			return nil, recordstore.ErrSkip
		}

		changes := recordstore.Fields{}
		for k, v := range repairs {
			changes[k] = v
		}
		changes["scoredGames"] = append(slices.Clone(s.ScoredGames), m.ID)
		changes["updatedAt"] = recordstore.ServerTimestamp

		if winner := m.WinnerID(); winner != "" && s.IsPlayer(winner) {
			score := s.Scores[winner] + 1
			changes["scores."+winner] = score
			if score >= s.RequiredWins() {
				changes["status"] = model.SeriesFinished
				changes["winner"] = winner
				finished = true
			}
		}
		return changes, nil
	})
	if errors.Is(err, recordstore.ErrSkip) {
		log.Debug("Series result already recorded", "seriesID", m.SeriesID, "matchID", m.ID)
		c.metrics.IncGuardedWritesSkipped("record_result")
		s, _, decodeErr := model.SeriesFromDocument(doc)
		return s, decodeErr
	}
	if err != nil {
		return model.Series{}, err
	}

	s, _, err := model.SeriesFromDocument(doc)
	if err != nil {
		return s, err
	}
	log.Info("Recorded series result", "seriesID", s.ID, "matchID", m.ID, "winner", m.WinnerID(), "scores", s.Scores)
	if finished {
		log.Info("Series finished", "seriesID", s.ID, "winner", s.Winner)
		c.metrics.IncSeriesFinished()
	}
	return s, nil
}

func (c *coordinator) SetReady(ctx context.Context, id, uid string, gameIndex int, ready bool) (model.Series, error) {
	doc, err := c.store.Mutate(ctx, model.CollectionSeries, id, func(cur recordstore.Document) (recordstore.Fields, error) {
		s, repairs, err := model.SeriesFromDocument(cur)
		if err != nil {
			return nil, err
		}
		if !s.IsPlayer(uid) {
			return nil, ErrNotAPlayer
		}
		if s.Status == model.SeriesFinished {
			return nil, ErrSeriesFinished
		}
		if s.CurrentGameIndex != gameIndex || s.NextGameReady[uid] == ready {
			return nil, recordstore.ErrSkip
		}
		changes := recordstore.Fields{}
		for k, v := range repairs {
			changes[k] = v
		}
		changes["nextGameReady."+uid] = ready
		changes["updatedAt"] = recordstore.ServerTimestamp
		return changes, nil
	})
	if err != nil && !errors.Is(err, recordstore.ErrSkip) {
		return model.Series{}, err
	}
	s, _, err := model.SeriesFromDocument(doc)
	if err != nil {
		return s, err
	}
	log.Debug("Series readiness", "seriesID", id, "user", uid, "gameIndex", gameIndex, "ready", s.NextGameReady[uid])
	return s, nil
}

func (c *coordinator) Advance(ctx context.Context, id string, gameIndex int) (model.Series, bool, error) {
	s, err := c.Get(ctx, id)
	if err != nil {
		return s, false, err
	}
	if s.Status == model.SeriesFinished || s.CurrentGameIndex != gameIndex || !s.BothReady() {
		return s, false, nil
	}

	next := gameIndex + 1
	target := model.SeriesGameID(id, next)
	if next < len(s.Games) {
		// Pre-created game: reuse it.
		target = s.Games[next]
		if err := c.matches.Activate(ctx, target); err != nil {
			return s, false, err
		}
	} else {
		opts := match.CreateOptions{SeriesID: id, GameNumber: next + 1}
		if err := c.matches.Create(ctx, target, s.GamePlayers(next), opts); err != nil {
			return s, false, err
		}
	}

	doc, err := c.store.Mutate(ctx, model.CollectionSeries, id, func(cur recordstore.Document) (recordstore.Fields, error) {
		s, repairs, err := model.SeriesFromDocument(cur)
		if err != nil {
			return nil, err
		}
		if s.Status == model.SeriesFinished || s.CurrentGameIndex != gameIndex || !s.BothReady() {
			return nil, recordstore.ErrSkip
		}
		changes := recordstore.Fields{}
		for k, v := range repairs {
			changes[k] = v
		}
		switch {
		case len(s.Games) == next:
			changes["games"] = append(slices.Clone(s.Games), target)
		case len(s.Games) > next && s.Games[next] == target:
		default:
			return nil, fmt.Errorf("series %s has %d games at index %d: %w", id, len(s.Games), gameIndex, model.ErrInconsistentState)
		}
		for _, p := range s.Players {
			changes["nextGameReady."+p] = false
		}
		changes["currentGameIndex"] = next
		changes["updatedAt"] = recordstore.ServerTimestamp
		return changes, nil
	})
	if errors.Is(err, recordstore.ErrSkip) {
		log.Debug("Series already advanced", "seriesID", id, "gameIndex", gameIndex)
		c.metrics.IncGuardedWritesSkipped("advance_series")
		s, _, decodeErr := model.SeriesFromDocument(doc)
		return s, false, decodeErr
	}
	if err != nil {
		return s, false, err
	}

	s, _, err = model.SeriesFromDocument(doc)
	if err != nil {
		return s, false, err
	}
	log.Info("Series advanced to next game", "seriesID", id, "gameIndex", next, "matchID", target, "x", s.GamePlayers(next)[0])
	return s, true, nil
}

// CurrentGame returns the id of the game in play.
func CurrentGame(s model.Series) (string, bool) {
	if s.CurrentGameIndex < 0 || s.CurrentGameIndex >= len(s.Games) {
		return "", false
	}
	return s.Games[s.CurrentGameIndex], true
}
