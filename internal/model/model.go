package model

import (
	"fmt"
	"slices"

	"github.com/mauv0809/tictac-duel/internal/engine"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
)

// IsPlayer reports whether uid plays in the match.
func (m Match) IsPlayer(uid string) bool {
	return uid != "" && (m.Players[0] == uid || m.Players[1] == uid)
}

// SymbolOf returns the symbol uid plays, or engine.Empty for non-players.
func (m Match) SymbolOf(uid string) engine.Symbol {
	switch uid {
	case "":
		return engine.Empty
	case m.Players[0]:
		return engine.X
	case m.Players[1]:
		return engine.O
	}
	return engine.Empty
}

// PlayerFor returns the user playing symbol.
func (m Match) PlayerFor(symbol engine.Symbol) string {
	switch symbol {
	case engine.X:
		return m.Players[0]
	case engine.O:
		return m.Players[1]
	}
	return ""
}

// Opponent returns the other player of the match.
func (m Match) Opponent(uid string) string {
	return opponent(m.Players, uid)
}

// WinnerID returns the winning user, or "" for draws and unfinished matches.
func (m Match) WinnerID() string {
	if !m.Winner.Decisive() {
		return ""
	}
	return m.PlayerFor(m.Winner.Symbol())
}

// IsPlayer reports whether uid plays in the series.
func (s Series) IsPlayer(uid string) bool {
	return uid != "" && (s.Players[0] == uid || s.Players[1] == uid)
}

// Opponent returns the other player of the series.
func (s Series) Opponent(uid string) string {
	return opponent(s.Players, uid)
}

// RequiredWins is the score that decides the series.
func (s Series) RequiredWins() int {
	return RequiredWins(s.BestOf)
}

// RequiredWins returns ceil(bestOf/2).
func RequiredWins(bestOf int) int {
	return (bestOf + 1) / 2
}

// BothReady reports whether both players asked for the next game.
func (s Series) BothReady() bool {
	return s.NextGameReady[s.Players[0]] && s.NextGameReady[s.Players[1]]
}

// Scored reports whether the result of matchID is already counted.
func (s Series) Scored(matchID string) bool {
	return slices.Contains(s.ScoredGames, matchID)
}

// GamePlayers returns the ordered players (X first) of the game at index.
// Even games are started by the challenger.
func (s Series) GamePlayers(index int) [2]string {
	if index%2 == 0 {
		return s.Players
	}
	return [2]string{s.Players[1], s.Players[0]}
}

func opponent(players [2]string, uid string) string {
	switch uid {
	case players[0]:
		return players[1]
	case players[1]:
		return players[0]
	}
	return ""
}

// ValidBestOf reports whether n is an odd positive series length.
func ValidBestOf(n int) bool {
	return n >= 1 && n%2 == 1
}

// ChallengeFromDocument decodes a challenge document.
func ChallengeFromDocument(doc recordstore.Document) (Challenge, error) {
	c := Challenge{
		ID:           doc.ID,
		FromUserID:   doc.String("fromUserId"),
		FromUserName: doc.String("fromUserName"),
		ToUserID:     doc.String("toUserId"),
		ToUserName:   doc.String("toUserName"),
		Status:       ChallengeStatus(doc.String("status")),
		Kind:         MatchKind(doc.String("matchKind")),
		BestOf:       doc.Int("bestOf"),
		SeriesID:     doc.String("seriesId"),
		MatchID:      doc.String("matchId"),
		CreatedAt:    doc.Time("createdAt"),
		RespondedAt:  doc.Time("respondedAt"),
	}
	if c.Kind == "" {
		c.Kind = KindSingle
	}
	if c.FromUserID == "" || c.ToUserID == "" {
		return c, fmt.Errorf("challenge %s has no players: %w", doc.ID, ErrInconsistentState)
	}
	return c, nil
}

// ChallengeFields encodes a new challenge.
func ChallengeFields(c Challenge) recordstore.Fields {
	f := recordstore.Fields{
		"fromUserId":   c.FromUserID,
		"fromUserName": c.FromUserName,
		"toUserId":     c.ToUserID,
		"toUserName":   c.ToUserName,
		"status":       c.Status,
		"matchKind":    c.Kind,
		"createdAt":    recordstore.ServerTimestamp,
	}
	if c.Kind == KindSeries {
		f["bestOf"] = c.BestOf
	}
	return f
}

// MatchFromDocument decodes a match document. A board without nine slots or a
// match without two players is reported as ErrInconsistentState.
func MatchFromDocument(doc recordstore.Document) (Match, error) {
	m := Match{
		ID:                 doc.ID,
		CurrentTurn:        engine.Symbol(doc.String("currentTurn")),
		Winner:             engine.Outcome(doc.String("winner")),
		Status:             MatchStatus(doc.String("status")),
		AllowSpectators:    doc.Bool("allowSpectators"),
		SeriesID:           doc.String("seriesId"),
		GameNumber:         doc.Int("gameNumber"),
		RematchRequestedBy: doc.String("rematchRequestedBy"),
		RematchRequestedAt: doc.Time("rematchRequestedAt"),
		RematchDeclinedBy:  doc.String("rematchDeclinedBy"),
		RematchGameID:      doc.String("rematchGameId"),
		CreatedAt:          doc.Time("createdAt"),
		UpdatedAt:          doc.Time("updatedAt"),
		Version:            doc.Version,
	}
	m.Spectators, _ = doc.Strings("spectators")

	players, _ := doc.Strings("players")
	if len(players) != 2 || players[0] == "" || players[1] == "" {
		return m, fmt.Errorf("match %s players %v: %w", doc.ID, players, ErrInconsistentState)
	}
	m.Players = [2]string{players[0], players[1]}

	cells, ok := doc.Strings("board")
	if !ok {
		return m, fmt.Errorf("match %s has no board: %w", doc.ID, ErrInconsistentState)
	}
	board, err := engine.BoardFromStrings(cells)
	if err != nil {
		return m, fmt.Errorf("match %s: %v: %w", doc.ID, err, ErrInconsistentState)
	}
	m.Board = board
	if !m.CurrentTurn.Valid() {
		m.CurrentTurn = engine.X
	}
	return m, nil
}

// NewMatchFields encodes a fresh match with an empty board and X to move.
// Matches start open to spectators; players can close them.
func NewMatchFields(players [2]string, status MatchStatus) recordstore.Fields {
	return recordstore.Fields{
		"board":           engine.Board{}.Strings(),
		"currentTurn":     engine.X,
		"winner":          nil,
		"players":         []string{players[0], players[1]},
		"status":          status,
		"allowSpectators": true,
		"spectators":      []string{},
		"createdAt":       recordstore.ServerTimestamp,
		"updatedAt":       recordstore.ServerTimestamp,
	}
}

// SeriesFromDocument decodes a series document. Missing nextGameReady or
// scores are filled with defaults and returned as repair fields that the
// caller may persist; a series without two players is ErrInconsistentState.
func SeriesFromDocument(doc recordstore.Document) (Series, recordstore.Fields, error) {
	s := Series{
		ID:               doc.ID,
		BestOf:           doc.Int("bestOf"),
		Status:           SeriesStatus(doc.String("status")),
		Winner:           doc.String("winner"),
		CurrentGameIndex: doc.Int("currentGameIndex"),
		CreatedAt:        doc.Time("createdAt"),
		UpdatedAt:        doc.Time("updatedAt"),
		Version:          doc.Version,
	}
	s.Games, _ = doc.Strings("games")
	s.ScoredGames, _ = doc.Strings("scoredGames")

	players, _ := doc.Strings("players")
	if len(players) != 2 || players[0] == "" || players[1] == "" {
		return s, nil, fmt.Errorf("series %s players %v: %w", doc.ID, players, ErrInconsistentState)
	}
	s.Players = [2]string{players[0], players[1]}
	if s.Status == "" {
		s.Status = SeriesOngoing
	}
	if !ValidBestOf(s.BestOf) {
		return s, nil, fmt.Errorf("series %s bestOf %d: %w", doc.ID, s.BestOf, ErrInconsistentState)
	}

	repairs := recordstore.Fields{}
	ready, ok := doc.BoolMap("nextGameReady")
	if !ok {
		ready = map[string]bool{}
	}
	for _, p := range s.Players {
		if _, ok := ready[p]; !ok {
			ready[p] = false
			repairs["nextGameReady."+p] = false
		}
	}
	s.NextGameReady = ready

	scores, ok := doc.IntMap("scores")
	if !ok {
		scores = map[string]int{}
	}
	for _, p := range s.Players {
		if _, ok := scores[p]; !ok {
			scores[p] = 0
			repairs["scores."+p] = 0
		}
	}
	s.Scores = scores

	if len(repairs) == 0 {
		repairs = nil
	}
	return s, repairs, nil
}

// NewSeriesFields encodes a fresh series whose first game is firstMatchID.
func NewSeriesFields(players [2]string, bestOf int, firstMatchID string) recordstore.Fields {
	return recordstore.Fields{
		"players":          []string{players[0], players[1]},
		"bestOf":           bestOf,
		"games":            []string{firstMatchID},
		"scores":           map[string]int{players[0]: 0, players[1]: 0},
		"scoredGames":      []string{},
		"status":           SeriesOngoing,
		"winner":           nil,
		"currentGameIndex": 0,
		"nextGameReady":    map[string]bool{players[0]: false, players[1]: false},
		"createdAt":        recordstore.ServerTimestamp,
		"updatedAt":        recordstore.ServerTimestamp,
	}
}
