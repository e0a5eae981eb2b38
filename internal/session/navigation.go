package session

import (
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mauv0809/tictac-duel/internal/model"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
)

// resubscribeDelay spaces out attempts to reopen a failed listener.
const resubscribeDelay = time.Second

// Listener kinds, used for resubscription and notices.
const (
	listenIncoming    = "incoming"
	listenSpectatable = "spectatable"
	listenChallenge   = "challenge"
	listenMatch       = "match"
	listenSeries      = "series"
)

// leave tears down everything tied to the current screen.
func (s *Session) leave() {
	s.turnClock.Stop()
	s.rematchClock.Stop()
	for _, sub := range []*recordstore.Subscription{&s.lobbyIncoming, &s.lobbySpectatable, &s.challengeSub, &s.matchSub} {
		closeSub(sub)
	}
	s.incoming = make(map[string]model.Challenge)
	s.spectatable = make(map[string]model.Match)
	s.challengeID = ""
	s.challenge = nil
	s.matchID = ""
	s.match = nil
	s.spectating = false
	s.guards.processingResult = make(map[string]bool)
	s.guards.navigationInProgress = false
}

func (s *Session) leaveSeries() {
	closeSub(&s.seriesSub)
	s.seriesID = ""
	s.series = nil
}

func closeSub(sub *recordstore.Subscription) {
	if *sub != nil {
		(*sub).Close()
		*sub = nil
	}
}

// enterLobby opens the lobby queries: challenges addressed to the local
// player and matches that accept spectators. Subscriptions opened by the
// enter helpers live as long as the session, not the intent that caused them.
func (s *Session) enterLobby(notice string) error {
	s.leave()
	s.leaveSeries()
	s.guards = newGuards()
	s.screen = ScreenLobby
	s.notice = notice

	if err := s.openIncoming(); err != nil {
		return s.storeFailed("lobby", err)
	}
	if err := s.openSpectatable(); err != nil {
		return s.storeFailed("lobby", err)
	}
	log.Debug("Entered lobby", "user", s.cfg.UserID, "incoming", len(s.incoming), "spectatable", len(s.spectatable))
	return nil
}

func (s *Session) openIncoming() error {
	docs, sub, err := s.deps.Store.Query(s.ctx, model.CollectionChallenges,
		recordstore.Eq("toUserId", s.cfg.UserID),
		recordstore.Eq("status", model.ChallengePending),
	)
	if err != nil {
		return err
	}
	s.lobbyIncoming = sub
	s.incoming = make(map[string]model.Challenge, len(docs))
	for _, doc := range docs {
		s.upsertIncoming(doc)
	}
	s.watch(sub)
	return nil
}

func (s *Session) openSpectatable() error {
	docs, sub, err := s.deps.Store.Query(s.ctx, model.CollectionMatches,
		recordstore.Eq("allowSpectators", true),
		recordstore.Eq("status", model.MatchOngoing),
	)
	if err != nil {
		return err
	}
	s.lobbySpectatable = sub
	s.spectatable = make(map[string]model.Match, len(docs))
	for _, doc := range docs {
		s.upsertSpectatable(doc)
	}
	s.watch(sub)
	return nil
}

// enterChallenge follows one challenge until it is answered.
func (s *Session) enterChallenge(id string) error {
	s.leave()
	s.leaveSeries()
	s.screen = ScreenChallenge
	s.notice = ""
	s.challengeID = id

	sub, err := s.subscribe(model.CollectionChallenges, id)
	if err != nil {
		return s.storeFailed("open_challenge", err)
	}
	s.challengeSub = sub
	return nil
}

// enterMatch opens a match as a player, or as a spectator. A series
// subscription survives when the match belongs to the same series.
func (s *Session) enterMatch(id string, spectate bool) error {
	if s.matchID == id && s.spectating == spectate && s.matchSub != nil {
		return nil
	}
	s.leave()
	s.spectating = spectate
	s.screen = ScreenMatch
	if spectate {
		s.screen = ScreenSpectate
	}
	s.notice = ""
	s.matchID = id

	sub, err := s.subscribe(model.CollectionMatches, id)
	if err != nil {
		return s.storeFailed("open_match", err)
	}
	s.matchSub = sub
	log.Info("Entered match", "user", s.cfg.UserID, "matchID", id, "spectating", spectate)
	return nil
}

// subscribe follows one document for the lifetime of the session.
func (s *Session) subscribe(collection, id string) (recordstore.Subscription, error) {
	sub, err := s.deps.Store.Subscribe(s.ctx, collection, id)
	if err != nil {
		return nil, err
	}
	s.watch(sub)
	return sub, nil
}

// listenFailed reports a broken listener and schedules a new one. The
// current screen stays.
func (s *Session) listenFailed(kind, id string, err error) {
	_ = s.storeFailed("listen_"+kind, err)
	s.cfg.Clock.AfterFunc(resubscribeDelay, func() {
		s.post(resubscribe{kind: kind, id: id})
	})
}

// onResubscribe reopens a failed listener if the session still needs it.
func (s *Session) onResubscribe(r resubscribe) {
	var err error
	switch r.kind {
	case listenIncoming:
		if s.screen != ScreenLobby || s.lobbyIncoming != nil {
			return
		}
		err = s.openIncoming()
	case listenSpectatable:
		if s.screen != ScreenLobby || s.lobbySpectatable != nil {
			return
		}
		err = s.openSpectatable()
	case listenChallenge:
		if s.screen != ScreenChallenge || s.challengeID != r.id || s.challengeSub != nil {
			return
		}
		s.challengeSub, err = s.subscribe(model.CollectionChallenges, r.id)
	case listenMatch:
		if s.matchID != r.id || s.matchSub != nil {
			return
		}
		s.matchSub, err = s.subscribe(model.CollectionMatches, r.id)
	case listenSeries:
		if s.seriesID != r.id || s.seriesSub != nil {
			return
		}
		s.seriesSub, err = s.subscribe(model.CollectionSeries, r.id)
	default:
		return
	}
	if err != nil {
		s.listenFailed(r.kind, r.id, err)
		return
	}
	log.Info("Listener reopened", "user", s.cfg.UserID, "kind", r.kind, "id", r.id)
	s.notice = ""
}

// navigateOnce runs enter the first time key is seen.
func (s *Session) navigateOnce(key string, enter func() error) {
	if s.guards.navigated[key] {
		return
	}
	s.guards.navigated[key] = true
	if err := enter(); err != nil {
		log.Error("Navigation failed", "user", s.cfg.UserID, "key", key, "error", err)
	}
}

// storeFailed records a store failure as a retryable notice and returns it.
func (s *Session) storeFailed(op string, err error) error {
	if errors.Is(err, recordstore.ErrNotFound) {
		return err
	}
	if recordstore.IsStoreError(err) {
		log.Error("Record store failure", "user", s.cfg.UserID, "op", op, "error", err)
		s.deps.Metrics.IncStoreErrors(op)
		s.notice = "Connection problem, please retry: " + err.Error()
	}
	return err
}
