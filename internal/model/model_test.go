package model

import (
	"testing"

	"github.com/mauv0809/tictac-duel/internal/engine"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiredWins(t *testing.T) {
	tests := []struct {
		bestOf int
		want   int
	}{
		{1, 1},
		{3, 2},
		{5, 3},
		{7, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RequiredWins(tt.bestOf), "bestOf %d", tt.bestOf)
	}
}

func TestValidBestOf(t *testing.T) {
	assert.True(t, ValidBestOf(1))
	assert.True(t, ValidBestOf(5))
	assert.False(t, ValidBestOf(0))
	assert.False(t, ValidBestOf(4))
	assert.False(t, ValidBestOf(-3))
}

func TestMatchFromDocument(t *testing.T) {
	t.Run("decodes a fresh match", func(t *testing.T) {
		doc := recordstore.Document{ID: "m1", Version: 3, Fields: map[string]any{
			"board":       []any{"", "", "", "", "X", "", "", "", ""},
			"currentTurn": "O",
			"players":     []any{"alice", "bob"},
			"status":      "ongoing",
			"winner":      nil,
		}}
		m, err := MatchFromDocument(doc)
		require.NoError(t, err)
		assert.Equal(t, engine.X, m.Board[4])
		assert.Equal(t, engine.O, m.CurrentTurn)
		assert.Equal(t, engine.OutcomeNone, m.Winner)
		assert.Equal(t, MatchOngoing, m.Status)
		assert.Equal(t, int64(3), m.Version)
		assert.Equal(t, engine.X, m.SymbolOf("alice"))
		assert.Equal(t, engine.O, m.SymbolOf("bob"))
		assert.Equal(t, engine.Empty, m.SymbolOf("carol"))
		assert.Equal(t, "bob", m.Opponent("alice"))
		assert.Equal(t, "", m.WinnerID())
	})

	t.Run("short board is inconsistent", func(t *testing.T) {
		doc := recordstore.Document{ID: "m2", Fields: map[string]any{
			"board":   []any{"", ""},
			"players": []any{"alice", "bob"},
		}}
		_, err := MatchFromDocument(doc)
		assert.ErrorIs(t, err, ErrInconsistentState)
	})

	t.Run("missing players is inconsistent", func(t *testing.T) {
		doc := recordstore.Document{ID: "m3", Fields: map[string]any{
			"board": engine.Board{}.Strings(),
		}}
		_, err := MatchFromDocument(doc)
		assert.ErrorIs(t, err, ErrInconsistentState)
	})
}

func TestSeriesFromDocument_RepairsMissingShape(t *testing.T) {
	doc := recordstore.Document{ID: "s1", Fields: map[string]any{
		"players":          []any{"alice", "bob"},
		"bestOf":           int64(3),
		"games":            []any{"g0"},
		"currentGameIndex": int64(0),
		"scores":           map[string]any{"alice": int64(1)},
	}}

	s, repairs, err := SeriesFromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"alice": false, "bob": false}, s.NextGameReady)
	assert.Equal(t, map[string]int{"alice": 1, "bob": 0}, s.Scores)
	assert.Equal(t, SeriesOngoing, s.Status)
	assert.Equal(t, recordstore.Fields{
		"nextGameReady.alice": false,
		"nextGameReady.bob":   false,
		"scores.bob":          0,
	}, repairs)
}

func TestSeriesFromDocument_CompleteShapeNeedsNoRepair(t *testing.T) {
	doc := recordstore.Document{ID: "s1", Fields: map[string]any{
		"players":       []any{"alice", "bob"},
		"bestOf":        int64(5),
		"scores":        map[string]any{"alice": int64(0), "bob": int64(2)},
		"nextGameReady": map[string]any{"alice": true, "bob": true},
	}}
	s, repairs, err := SeriesFromDocument(doc)
	require.NoError(t, err)
	assert.Nil(t, repairs)
	assert.True(t, s.BothReady())
	assert.Equal(t, 3, s.RequiredWins())
}

func TestSeriesFromDocument_InvalidBestOf(t *testing.T) {
	doc := recordstore.Document{ID: "s1", Fields: map[string]any{
		"players": []any{"alice", "bob"},
		"bestOf":  int64(4),
	}}
	_, _, err := SeriesFromDocument(doc)
	assert.ErrorIs(t, err, ErrInconsistentState)
}

func TestSeriesGamePlayers_AlternatesStarter(t *testing.T) {
	s := Series{Players: [2]string{"alice", "bob"}}
	assert.Equal(t, [2]string{"alice", "bob"}, s.GamePlayers(0))
	assert.Equal(t, [2]string{"bob", "alice"}, s.GamePlayers(1))
	assert.Equal(t, [2]string{"alice", "bob"}, s.GamePlayers(2))
}

func TestChallengeRoundTripThroughFields(t *testing.T) {
	fields := ChallengeFields(Challenge{
		FromUserID: "alice",
		ToUserID:   "bob",
		Status:     ChallengePending,
		Kind:       KindSeries,
		BestOf:     3,
	})
	assert.Equal(t, recordstore.ServerTimestamp, fields["createdAt"])
	assert.Equal(t, 3, fields["bestOf"])

	c, err := ChallengeFromDocument(recordstore.Document{ID: "c1", Fields: map[string]any{
		"fromUserId": "alice",
		"toUserId":   "bob",
		"status":     "pending",
	}})
	require.NoError(t, err)
	assert.Equal(t, KindSingle, c.Kind, "kind defaults to single")
	assert.Equal(t, ChallengePending, c.Status)
}

func TestSuccessorIDsAreDeterministic(t *testing.T) {
	assert.Equal(t, SeriesGameID("s1", 2), SeriesGameID("s1", 2))
	assert.NotEqual(t, SeriesGameID("s1", 1), SeriesGameID("s1", 2))
	assert.NotEqual(t, SeriesGameID("s1", 1), SeriesGameID("s2", 1))
	assert.Equal(t, RematchID("m1"), RematchID("m1"))
	assert.NotEqual(t, RematchID("m1"), RematchID("m2"))
}

func TestNewMatchFields_OpenToSpectators(t *testing.T) {
	for _, status := range []MatchStatus{MatchOngoing, MatchWaiting} {
		t.Run(string(status), func(t *testing.T) {
			fields := NewMatchFields([2]string{"alice", "bob"}, status)
			assert.Equal(t, true, fields["allowSpectators"])
			assert.Equal(t, []string{}, fields["spectators"])
			assert.Equal(t, status, fields["status"])
			assert.Equal(t, engine.X, fields["currentTurn"])
		})
	}
}
