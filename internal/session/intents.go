package session

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/mauv0809/tictac-duel/internal/challenge"
	"github.com/mauv0809/tictac-duel/internal/model"
)

// SendChallenge invites another player and follows the challenge until it
// is answered.
func (s *Session) SendChallenge(ctx context.Context, toUserID, toUserName string, kind model.MatchKind, bestOf int) (model.Challenge, error) {
	var c model.Challenge
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.deps.Challenges.Send(ctx, challenge.SendRequest{
			FromUserID:   s.cfg.UserID,
			FromUserName: s.cfg.UserName,
			ToUserID:     toUserID,
			ToUserName:   toUserName,
			Kind:         kind,
			BestOf:       bestOf,
		})
		if err != nil {
			return s.storeFailed("send_challenge", err)
		}
		return s.enterChallenge(c.ID)
	})
	return c, err
}

// OpenChallenge follows an existing challenge.
func (s *Session) OpenChallenge(ctx context.Context, id string) error {
	return s.do(ctx, func(context.Context) error {
		return s.enterChallenge(id)
	})
}

// RespondToChallenge answers an incoming challenge. Accepting opens the new
// match right away.
func (s *Session) RespondToChallenge(ctx context.Context, id string, accept bool) error {
	return s.do(ctx, func(ctx context.Context) error {
		c, err := s.deps.Challenges.Respond(ctx, id, s.cfg.UserID, accept)
		if err != nil {
			if errors.Is(err, challenge.ErrNotPending) {
				delete(s.incoming, id)
				s.notice = "Challenge is no longer pending"
			}
			return s.storeFailed("respond_challenge", err)
		}
		delete(s.incoming, id)
		if c.Status != model.ChallengeAccepted {
			return nil
		}
		s.guards.navigated["challenge/"+c.ID] = true
		return s.enterMatch(c.MatchID, false)
	})
}

// MakeMove places the local player's symbol on the open match.
func (s *Session) MakeMove(ctx context.Context, index int) error {
	return s.do(ctx, func(ctx context.Context) error {
		id, err := s.playing()
		if err != nil {
			return err
		}
		m, err := s.deps.Matches.Move(ctx, id, s.cfg.UserID, index)
		if err != nil {
			return s.storeFailed("move", err)
		}
		s.match = &m
		s.turnClock.Observe(m, s.cfg.UserID)
		return nil
	})
}

// RequestRematch offers a rematch after a finished single match.
func (s *Session) RequestRematch(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		id, err := s.playing()
		if err != nil {
			return err
		}
		if err := s.deps.Rematches.Request(ctx, id, s.cfg.UserID); err != nil {
			return s.storeFailed("request_rematch", err)
		}
		return nil
	})
}

// AcceptRematch accepts the opponent's offer and opens the new match.
func (s *Session) AcceptRematch(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		id, err := s.playing()
		if err != nil {
			return err
		}
		next, err := s.deps.Rematches.Accept(ctx, id, s.cfg.UserID)
		if err != nil {
			return s.storeFailed("accept_rematch", err)
		}
		s.navigateOnce("rematch/"+id, func() error {
			return s.enterMatch(next, false)
		})
		return nil
	})
}

// DeclineRematch turns the opponent's offer down.
func (s *Session) DeclineRematch(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		id, err := s.playing()
		if err != nil {
			return err
		}
		if err := s.deps.Rematches.Decline(ctx, id, s.cfg.UserID); err != nil {
			return s.storeFailed("decline_rematch", err)
		}
		return nil
	})
}

// MarkReady signals that the local player wants the next series game.
func (s *Session) MarkReady(ctx context.Context) error {
	return s.setReady(ctx, true)
}

// CancelReady withdraws a readiness signal.
func (s *Session) CancelReady(ctx context.Context) error {
	return s.setReady(ctx, false)
}

func (s *Session) setReady(ctx context.Context, ready bool) error {
	return s.do(ctx, func(ctx context.Context) error {
		if _, err := s.playing(); err != nil {
			return err
		}
		if s.series == nil {
			return ErrNoSeries
		}
		if s.match.Status != model.MatchFinished {
			return ErrGameNotOver
		}
		sr, err := s.deps.Series.SetReady(ctx, s.series.ID, s.cfg.UserID, s.gameIndex(), ready)
		if err != nil {
			return s.storeFailed("set_ready", err)
		}
		s.series = &sr
		s.followSeries()
		return nil
	})
}

// ToggleSpectators allows or blocks spectators on the open match.
func (s *Session) ToggleSpectators(ctx context.Context, allow bool) error {
	return s.do(ctx, func(ctx context.Context) error {
		id, err := s.playing()
		if err != nil {
			return err
		}
		if err := s.deps.Matches.SetSpectators(ctx, id, s.cfg.UserID, allow); err != nil {
			return s.storeFailed("set_spectators", err)
		}
		return nil
	})
}

// Spectate opens another players' match read-only.
func (s *Session) Spectate(ctx context.Context, matchID string) error {
	return s.do(ctx, func(ctx context.Context) error {
		if _, err := s.deps.Matches.Watch(ctx, matchID, s.cfg.UserID); err != nil {
			return s.storeFailed("watch", err)
		}
		return s.enterMatch(matchID, true)
	})
}

// BackToLobby leaves whatever is open. A rematch offer left open is closed
// by the countdown of whichever client is still watching it.
func (s *Session) BackToLobby(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		log.Debug("Returning to lobby", "user", s.cfg.UserID, "from", s.screen)
		return s.enterLobby("")
	})
}

// playing returns the open match id when the local player may act on it.
func (s *Session) playing() (string, error) {
	if s.match == nil {
		return "", ErrNoMatch
	}
	if s.spectating {
		return "", ErrSpectating
	}
	return s.match.ID, nil
}
