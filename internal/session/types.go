package session

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mauv0809/tictac-duel/internal/challenge"
	"github.com/mauv0809/tictac-duel/internal/match"
	"github.com/mauv0809/tictac-duel/internal/metrics"
	"github.com/mauv0809/tictac-duel/internal/model"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
	"github.com/mauv0809/tictac-duel/internal/rematch"
	"github.com/mauv0809/tictac-duel/internal/series"
)

var (
	ErrClosed      = errors.New("session is closed")
	ErrNoMatch     = errors.New("no match is open")
	ErrNoSeries    = errors.New("the open match is not part of a series")
	ErrSpectating  = errors.New("spectators cannot change the match")
	ErrGameNotOver = errors.New("the current game is still being played")
)

// Config identifies the local player and tunes the session's countdowns.
type Config struct {
	UserID         string
	UserName       string
	TurnTimeout    time.Duration
	RematchTimeout time.Duration
	Clock          clockwork.Clock
}

// Deps are the collaborators a session drives.
type Deps struct {
	Store      recordstore.Store
	Matches    match.MatchService
	Challenges challenge.Negotiator
	Rematches  rematch.Negotiator
	Series     series.Coordinator
	Metrics    metrics.Metrics
}

// Screen is where the session currently is.
type Screen string

const (
	ScreenLobby     Screen = "lobby"
	ScreenChallenge Screen = "challenge"
	ScreenMatch     Screen = "match"
	ScreenSpectate  Screen = "spectate"
)

// Result is a finished match or series from the local player's side.
type Result string

const (
	ResultNone Result = ""
	ResultWin  Result = "win"
	ResultLose Result = "lose"
	ResultDraw Result = "draw"
)

// View is the read-only projection of a session handed to the UI.
type View struct {
	UserID    string           `json:"userId"`
	Screen    Screen           `json:"screen"`
	Lobby     *LobbyView       `json:"lobby,omitempty"`
	Challenge *model.Challenge `json:"challenge,omitempty"`
	Match     *MatchView       `json:"match,omitempty"`
	Series    *SeriesView      `json:"series,omitempty"`
	// Notice is the last store failure or navigation reason worth showing.
	Notice string `json:"notice,omitempty"`
	// Revision increases whenever the projected state changes.
	Revision uint64 `json:"revision"`
}

// LobbyView lists what the local player can act on from the lobby.
type LobbyView struct {
	Incoming    []model.Challenge `json:"incoming"`
	Spectatable []MatchSummary    `json:"spectatable"`
}

// MatchSummary is a watchable match.
type MatchSummary struct {
	ID      string    `json:"id"`
	Players [2]string `json:"players"`
}

// MatchView is the open match as the local player sees it.
type MatchView struct {
	ID               string    `json:"id"`
	Board            []string  `json:"board"`
	CurrentTurn      string    `json:"currentTurn"`
	Players          [2]string `json:"players"`
	Symbol           string    `json:"symbol,omitempty"`
	MyTurn           bool      `json:"myTurn"`
	Status           string    `json:"status"`
	Winner           string    `json:"winner,omitempty"`
	Result           Result    `json:"result,omitempty"`
	TurnRemaining    float64   `json:"turnRemaining"`
	AllowSpectators  bool      `json:"allowSpectators"`
	Spectators       []string  `json:"spectators,omitempty"`
	GameNumber       int       `json:"gameNumber,omitempty"`
	Rematch          string    `json:"rematch"`
	RematchRemaining float64   `json:"rematchRemaining"`
}

// SeriesView is the series the open match belongs to.
type SeriesView struct {
	ID               string          `json:"id"`
	BestOf           int             `json:"bestOf"`
	Scores           map[string]int  `json:"scores"`
	Status           string          `json:"status"`
	Winner           string          `json:"winner,omitempty"`
	Result           Result          `json:"result,omitempty"`
	CurrentGameIndex int             `json:"currentGameIndex"`
	Games            int             `json:"games"`
	Ready            map[string]bool `json:"ready"`
}
