package model

import (
	"errors"
	"time"

	"github.com/mauv0809/tictac-duel/internal/engine"
)

// Collections holding the shared session documents.
const (
	CollectionChallenges = "challenges"
	CollectionMatches    = "matches"
	CollectionSeries     = "series"
)

// ErrInconsistentState is returned for documents that are missing required shape.
var ErrInconsistentState = errors.New("inconsistent document state")

// TimeoutDecliner is written to rematchDeclinedBy when a rematch offer expires.
const TimeoutDecliner = "timeout"

// ChallengeStatus represents the status of a challenge
type ChallengeStatus string

const (
	ChallengePending  ChallengeStatus = "pending"
	ChallengeAccepted ChallengeStatus = "accepted"
	ChallengeDeclined ChallengeStatus = "declined"
	ChallengeExpired  ChallengeStatus = "expired"
)

// MatchKind is what an accepted challenge turns into.
type MatchKind string

const (
	KindSingle MatchKind = "single"
	KindSeries MatchKind = "series"
)

// MatchStatus represents the status of a match
type MatchStatus string

const (
	MatchWaiting  MatchStatus = "waiting"
	MatchOngoing  MatchStatus = "ongoing"
	MatchFinished MatchStatus = "finished"
)

// SeriesStatus represents the status of a series
type SeriesStatus string

const (
	SeriesOngoing  SeriesStatus = "ongoing"
	SeriesFinished SeriesStatus = "finished"
)

// Challenge is an invitation from one player to another.
type Challenge struct {
	ID           string          `json:"id"`
	FromUserID   string          `json:"fromUserId"`
	FromUserName string          `json:"fromUserName"`
	ToUserID     string          `json:"toUserId"`
	ToUserName   string          `json:"toUserName"`
	Status       ChallengeStatus `json:"status"`
	Kind         MatchKind       `json:"matchKind"`
	BestOf       int             `json:"bestOf,omitempty"`
	SeriesID     string          `json:"seriesId,omitempty"`
	MatchID      string          `json:"matchId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	RespondedAt  time.Time       `json:"respondedAt,omitempty"`
}

// Match is one game of tic-tac-toe. Players[0] plays X.
type Match struct {
	ID                 string         `json:"id"`
	Board              engine.Board   `json:"board"`
	CurrentTurn        engine.Symbol  `json:"currentTurn"`
	Winner             engine.Outcome `json:"winner,omitempty"`
	Players            [2]string      `json:"players"`
	Status             MatchStatus    `json:"status"`
	AllowSpectators    bool           `json:"allowSpectators"`
	SeriesID           string         `json:"seriesId,omitempty"`
	GameNumber         int            `json:"gameNumber,omitempty"`
	RematchRequestedBy string         `json:"rematchRequestedBy,omitempty"`
	RematchRequestedAt time.Time      `json:"rematchRequestedAt,omitempty"`
	RematchDeclinedBy  string         `json:"rematchDeclinedBy,omitempty"`
	RematchGameID      string         `json:"rematchGameId,omitempty"`
	Spectators         []string       `json:"spectators,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	Version            int64          `json:"version"`
}

// Series is a best-of-N sequence of matches between the same two players.
// Players[0] is the challenger.
type Series struct {
	ID               string          `json:"id"`
	Players          [2]string       `json:"players"`
	BestOf           int             `json:"bestOf"`
	Games            []string        `json:"games"`
	Scores           map[string]int  `json:"scores"`
	ScoredGames      []string        `json:"scoredGames,omitempty"`
	Status           SeriesStatus    `json:"status"`
	Winner           string          `json:"winner,omitempty"`
	CurrentGameIndex int             `json:"currentGameIndex"`
	NextGameReady    map[string]bool `json:"nextGameReady"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	Version          int64           `json:"version"`
}
