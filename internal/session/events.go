package session

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/mauv0809/tictac-duel/internal/clock"
	"github.com/mauv0809/tictac-duel/internal/model"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
	"github.com/mauv0809/tictac-duel/internal/rematch"
	"github.com/mauv0809/tictac-duel/internal/series"
)

func (s *Session) onStoreEvent(m storeEvent) {
	switch {
	case m.sub == nil:
	case m.sub == s.lobbyIncoming:
		s.onIncoming(m.ev)
	case m.sub == s.lobbySpectatable:
		s.onSpectatable(m.ev)
	case m.sub == s.challengeSub:
		s.onChallenge(m.ev)
	case m.sub == s.matchSub:
		s.onMatch(m.ev)
	case m.sub == s.seriesSub:
		s.onSeries(m.ev)
	default:
		// Event from a subscription closed by an earlier navigation.
	}
}

func (s *Session) onIncoming(ev recordstore.Event) {
	if ev.Err != nil {
		closeSub(&s.lobbyIncoming)
		s.listenFailed(listenIncoming, "", ev.Err)
		return
	}
	if ev.Kind == recordstore.ChangeRemoved {
		delete(s.incoming, ev.ID)
		return
	}
	s.upsertIncoming(ev.Document)
}

func (s *Session) upsertIncoming(doc recordstore.Document) {
	c, err := model.ChallengeFromDocument(doc)
	if err != nil {
		log.Warn("Ignoring malformed challenge", "challengeID", doc.ID, "error", err)
		return
	}
	s.incoming[c.ID] = c
}

func (s *Session) onSpectatable(ev recordstore.Event) {
	if ev.Err != nil {
		closeSub(&s.lobbySpectatable)
		s.listenFailed(listenSpectatable, "", ev.Err)
		return
	}
	if ev.Kind == recordstore.ChangeRemoved {
		delete(s.spectatable, ev.ID)
		return
	}
	s.upsertSpectatable(ev.Document)
}

func (s *Session) upsertSpectatable(doc recordstore.Document) {
	m, err := model.MatchFromDocument(doc)
	if err != nil {
		log.Warn("Ignoring malformed match", "matchID", doc.ID, "error", err)
		return
	}
	if m.IsPlayer(s.cfg.UserID) {
		return
	}
	s.spectatable[m.ID] = m
}

func (s *Session) onChallenge(ev recordstore.Event) {
	if s.listenerBroken(listenChallenge, &s.challengeSub, ev) {
		return
	}
	if ev.Err != nil || ev.Kind == recordstore.ChangeRemoved {
		s.lostDocument(listenChallenge, ev)
		return
	}
	c, err := model.ChallengeFromDocument(ev.Document)
	if err != nil {
		log.Warn("Ignoring malformed challenge", "challengeID", ev.ID, "error", err)
		return
	}
	s.challenge = &c

	switch c.Status {
	case model.ChallengeAccepted:
		if c.MatchID == "" {
			return
		}
		s.navigateOnce("challenge/"+c.ID, func() error {
			return s.enterMatch(c.MatchID, false)
		})
	case model.ChallengeDeclined, model.ChallengeExpired:
		s.navigateOnce("challenge/"+c.ID, func() error {
			return s.enterLobby("Challenge "+string(c.Status))
		})
	}
}

func (s *Session) onMatch(ev recordstore.Event) {
	if s.listenerBroken(listenMatch, &s.matchSub, ev) {
		return
	}
	if ev.Err != nil || ev.Kind == recordstore.ChangeRemoved {
		s.lostDocument(listenMatch, ev)
		return
	}
	m, err := model.MatchFromDocument(ev.Document)
	if err != nil {
		log.Warn("Ignoring malformed match", "matchID", ev.ID, "error", err)
		return
	}
	if s.match != nil && isPass(*s.match, m) {
		s.notice = fmt.Sprintf("%s ran out of time, turn passed to %s", m.CurrentTurn.Opponent(), m.CurrentTurn)
	}
	s.match = &m

	if m.SeriesID != "" && (s.seriesSub == nil || s.seriesID != m.SeriesID) {
		s.openSeries(m.SeriesID)
	}
	if s.spectating || !m.IsPlayer(s.cfg.UserID) {
		return
	}

	s.turnClock.Observe(m, s.cfg.UserID)
	if m.Status != model.MatchFinished {
		return
	}
	if m.SeriesID != "" {
		s.recordSeriesResult(m)
		s.followSeries()
		return
	}
	s.followRematch(m)
}

// isPass reports whether the step from prev to cur was a turn pass.
func isPass(prev, cur model.Match) bool {
	return prev.ID == cur.ID && prev.Board == cur.Board && prev.CurrentTurn != cur.CurrentTurn &&
		cur.Status == model.MatchOngoing
}

func (s *Session) openSeries(id string) {
	s.leaveSeries()
	s.seriesID = id
	sub, err := s.subscribe(model.CollectionSeries, id)
	if err != nil {
		_ = s.storeFailed("open_series", err)
		return
	}
	s.seriesSub = sub
}

// recordSeriesResult counts a finished series game once per client; the
// coordinator's guard makes the second client's write a no-op.
func (s *Session) recordSeriesResult(m model.Match) {
	if s.guards.processingResult[m.ID] {
		return
	}
	s.guards.processingResult[m.ID] = true
	if _, err := s.deps.Series.RecordResult(s.ctx, m); err != nil {
		s.guards.processingResult[m.ID] = false
		_ = s.storeFailed("record_result", err)
		log.Error("Failed to record series result", "matchID", m.ID, "error", err)
	}
}

// followRematch keeps the rematch countdown and navigation in step with the
// match document.
func (s *Session) followRematch(m model.Match) {
	switch rematch.Derive(m, s.cfg.UserID) {
	case rematch.Waiting, rematch.Requested:
		key := m.ID + "/" + m.RematchRequestedBy
		if running, ok := s.rematchClock.Running(); ok && running == key {
			return
		}
		matchID := m.ID
		s.rematchClock.Start(key, s.cfg.RematchTimeout, func() {
			s.post(rematchExpired{matchID: matchID})
		})
	case rematch.Declined:
		s.rematchClock.Stop()
		notice := "Rematch declined"
		if m.RematchDeclinedBy == model.TimeoutDecliner {
			notice = "Rematch offer timed out"
		}
		s.navigateOnce("rematch/"+m.ID, func() error {
			return s.enterLobby(notice)
		})
	case rematch.Accepted:
		s.rematchClock.Stop()
		next := m.RematchGameID
		s.navigateOnce("rematch/"+m.ID, func() error {
			return s.enterMatch(next, false)
		})
	default:
		s.rematchClock.Stop()
	}
}

func (s *Session) onSeries(ev recordstore.Event) {
	if s.listenerBroken(listenSeries, &s.seriesSub, ev) {
		return
	}
	if ev.Err != nil || ev.Kind == recordstore.ChangeRemoved {
		s.lostDocument(listenSeries, ev)
		return
	}
	sr, repairs, err := model.SeriesFromDocument(ev.Document)
	if err != nil {
		log.Warn("Ignoring malformed series", "seriesID", ev.ID, "error", err)
		return
	}
	s.series = &sr

	if repairs != nil && !s.guards.repairing[sr.ID] {
		s.guards.repairing[sr.ID] = true
		if _, err := s.deps.Series.Get(s.ctx, sr.ID); err != nil {
			_ = s.storeFailed("repair_series", err)
		}
	}
	s.followSeries()
}

// followSeries moves this client to the series' current game once the peer
// advanced, or runs the handshake when both players are ready.
func (s *Session) followSeries() {
	sr := s.series
	if sr == nil || s.match == nil || s.spectating || !sr.IsPlayer(s.cfg.UserID) {
		return
	}
	mine := s.gameIndex()
	if mine < 0 {
		return
	}
	if sr.CurrentGameIndex > mine {
		if next, ok := series.CurrentGame(*sr); ok {
			s.navigateOnce("series/"+next, func() error {
				return s.enterMatch(next, false)
			})
		}
		return
	}
	if s.match.Status == model.MatchFinished && sr.Status == model.SeriesOngoing && sr.BothReady() {
		s.advanceSeries(*sr, mine)
	}
}

// advanceSeries runs the readiness handshake from this client. Both clients
// may run it; the coordinator appends at most one game.
func (s *Session) advanceSeries(sr model.Series, from int) {
	if s.guards.navigationInProgress {
		return
	}
	s.guards.navigationInProgress = true
	defer func() { s.guards.navigationInProgress = false }()

	next, advanced, err := s.deps.Series.Advance(s.ctx, sr.ID, from)
	if err != nil {
		_ = s.storeFailed("advance_series", err)
		log.Error("Failed to advance series", "seriesID", sr.ID, "error", err)
		return
	}
	if next.CurrentGameIndex <= from {
		return
	}
	log.Debug("Series moved on", "seriesID", sr.ID, "advancedHere", advanced, "gameIndex", next.CurrentGameIndex)
	if id, ok := series.CurrentGame(next); ok {
		s.navigateOnce("series/"+id, func() error {
			return s.enterMatch(id, false)
		})
	}
}

// gameIndex is the position of the open match in its series, or -1.
func (s *Session) gameIndex() int {
	if s.series == nil || s.match == nil {
		return -1
	}
	for i, id := range s.series.Games {
		if id == s.match.ID {
			return i
		}
	}
	return -1
}

// listenerBroken handles a listener failure on a document subscription.
// NotFound falls through to lostDocument; any other failure closes the
// listener and schedules a new one while the session stays where it is.
func (s *Session) listenerBroken(kind string, sub *recordstore.Subscription, ev recordstore.Event) bool {
	if ev.Err == nil || errors.Is(ev.Err, recordstore.ErrNotFound) {
		return false
	}
	closeSub(sub)
	s.listenFailed(kind, ev.ID, ev.Err)
	return true
}

// lostDocument handles a vanished document: the session cannot continue
// and returns to the lobby.
func (s *Session) lostDocument(kind string, ev recordstore.Event) {
	log.Warn("Document disappeared, returning to lobby", "user", s.cfg.UserID, "kind", kind, "id", ev.ID)
	s.navigateOnce("lost/"+kind+"/"+ev.ID, func() error {
		return s.enterLobby("The "+kind+" is no longer available")
	})
}

func (s *Session) onTurnExpired(e clock.Expiry) {
	if s.match == nil || s.match.ID != e.MatchID || s.spectating {
		return
	}
	_, err := s.deps.Matches.PassTurn(s.ctx, e.MatchID, e.Symbol, e.Board)
	if err != nil && !errors.Is(err, recordstore.ErrSkip) {
		_ = s.storeFailed("pass_turn", err)
		log.Error("Failed to pass turn", "matchID", e.MatchID, "error", err)
	}
}

func (s *Session) onRematchExpired(matchID string) {
	if s.match == nil || s.match.ID != matchID {
		return
	}
	if err := s.deps.Rematches.Timeout(s.ctx, matchID); err != nil {
		_ = s.storeFailed("timeout_rematch", err)
		log.Error("Failed to time out rematch", "matchID", matchID, "error", err)
	}
}
