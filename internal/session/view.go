package session

import (
	"reflect"
	"slices"
	"strings"

	"github.com/mauv0809/tictac-duel/internal/engine"
	"github.com/mauv0809/tictac-duel/internal/model"
	"github.com/mauv0809/tictac-duel/internal/rematch"
)

// project derives the view from the loop-owned state. Must run on the loop.
func (s *Session) project() View {
	v := View{
		UserID: s.cfg.UserID,
		Screen: s.screen,
		Notice: s.notice,
	}
	switch s.screen {
	case ScreenLobby:
		v.Lobby = s.projectLobby()
	case ScreenChallenge:
		if s.challenge != nil {
			c := *s.challenge
			v.Challenge = &c
		}
	case ScreenMatch, ScreenSpectate:
		if s.match != nil {
			v.Match = s.projectMatch(*s.match)
		}
		if s.series != nil {
			v.Series = s.projectSeries(*s.series)
		}
	}
	return v
}

func (s *Session) projectLobby() *LobbyView {
	lv := &LobbyView{
		Incoming:    make([]model.Challenge, 0, len(s.incoming)),
		Spectatable: make([]MatchSummary, 0, len(s.spectatable)),
	}
	for _, c := range s.incoming {
		lv.Incoming = append(lv.Incoming, c)
	}
	slices.SortFunc(lv.Incoming, func(a, b model.Challenge) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	for _, m := range s.spectatable {
		lv.Spectatable = append(lv.Spectatable, MatchSummary{ID: m.ID, Players: m.Players})
	}
	slices.SortFunc(lv.Spectatable, func(a, b MatchSummary) int {
		return strings.Compare(a.ID, b.ID)
	})
	return lv
}

func (s *Session) projectMatch(m model.Match) *MatchView {
	mv := &MatchView{
		ID:              m.ID,
		Board:           m.Board.Strings(),
		CurrentTurn:     string(m.CurrentTurn),
		Players:         m.Players,
		Status:          string(m.Status),
		Winner:          string(m.Winner),
		AllowSpectators: m.AllowSpectators,
		Spectators:      slices.Clone(m.Spectators),
		GameNumber:      m.GameNumber,
		Rematch:         rematch.Idle.String(),
	}
	if s.spectating {
		return mv
	}

	symbol := m.SymbolOf(s.cfg.UserID)
	mv.Symbol = string(symbol)
	mv.MyTurn = m.Status == model.MatchOngoing && symbol != engine.Empty && m.CurrentTurn == symbol
	if mv.MyTurn {
		mv.TurnRemaining = s.turnClock.Remaining().Seconds()
	}
	if m.Status == model.MatchFinished {
		mv.Result = matchResult(m, s.cfg.UserID)
		state := rematch.Derive(m, s.cfg.UserID)
		mv.Rematch = state.String()
		if state == rematch.Waiting || state == rematch.Requested {
			mv.RematchRemaining = s.rematchClock.Remaining().Seconds()
		}
	}
	return mv
}

func (s *Session) projectSeries(sr model.Series) *SeriesView {
	sv := &SeriesView{
		ID:               sr.ID,
		BestOf:           sr.BestOf,
		Scores:           make(map[string]int, len(sr.Scores)),
		Status:           string(sr.Status),
		Winner:           sr.Winner,
		CurrentGameIndex: sr.CurrentGameIndex,
		Games:            len(sr.Games),
		Ready:            make(map[string]bool, len(sr.NextGameReady)),
	}
	for k, n := range sr.Scores {
		sv.Scores[k] = n
	}
	for k, r := range sr.NextGameReady {
		sv.Ready[k] = r
	}
	if sr.Status == model.SeriesFinished && sr.IsPlayer(s.cfg.UserID) && !s.spectating {
		if sr.Winner == s.cfg.UserID {
			sv.Result = ResultWin
		} else {
			sv.Result = ResultLose
		}
	}
	return sv
}

func matchResult(m model.Match, uid string) Result {
	switch {
	case m.Winner == engine.OutcomeDraw:
		return ResultDraw
	case m.WinnerID() == uid:
		return ResultWin
	case m.WinnerID() != "":
		return ResultLose
	default:
		return ResultNone
	}
}

// sameView compares two projections, ignoring countdowns and the revision.
func sameView(a, b View) bool {
	return reflect.DeepEqual(withoutTimers(a), withoutTimers(b))
}

func withoutTimers(v View) View {
	v.Revision = 0
	if v.Match != nil {
		m := *v.Match
		m.TurnRemaining = 0
		m.RematchRemaining = 0
		v.Match = &m
	}
	return v
}
