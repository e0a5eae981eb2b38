package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mauv0809/tictac-duel/internal/challenge"
	"github.com/mauv0809/tictac-duel/internal/clock"
	"github.com/mauv0809/tictac-duel/internal/database"
	"github.com/mauv0809/tictac-duel/internal/match"
	"github.com/mauv0809/tictac-duel/internal/metrics"
	"github.com/mauv0809/tictac-duel/internal/model"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
	"github.com/mauv0809/tictac-duel/internal/rematch"
	"github.com/mauv0809/tictac-duel/internal/series"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

type fixture struct {
	deps    Deps
	clock   *clockwork.FakeClock
	metrics *metrics.Mock
}

func setupFixture(t *testing.T) (*fixture, func()) {
	t.Helper()

	db, teardown, err := database.InitDB(":memory:", "", "", "../../migrations")
	require.NoError(t, err)

	store := recordstore.NewSQL(db)
	m := metrics.NewMock()
	matches := match.NewService(store, m)
	coordinator := series.NewCoordinator(store, matches, m)
	f := &fixture{
		deps: Deps{
			Store:      store,
			Matches:    matches,
			Challenges: challenge.NewNegotiator(store, matches, coordinator, m),
			Rematches:  rematch.NewNegotiator(store, matches, m),
			Series:     coordinator,
			Metrics:    m,
		},
		clock:   clockwork.NewFakeClock(),
		metrics: m,
	}
	return f, teardown
}

func (f *fixture) open(t *testing.T, uid string) *Session {
	t.Helper()
	s, err := New(context.Background(), Config{
		UserID:   uid,
		UserName: uid,
		Clock:    f.clock,
	}, f.deps)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, s *Session, what string, pred func(View) bool) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	v, err := s.WaitFor(ctx, pred)
	require.NoError(t, err, "%s: waiting for %s, last view %+v", s.UserID(), what, v)
	return v
}

func inMatch(id string) func(View) bool {
	return func(v View) bool {
		return v.Match != nil && v.Match.ID == id && v.Match.Status == string(model.MatchOngoing)
	}
}

func finished(v View) bool {
	return v.Match != nil && v.Match.Status == string(model.MatchFinished)
}

type move struct {
	s     *Session
	index int
}

func play(t *testing.T, moves ...move) {
	t.Helper()
	for _, mv := range moves {
		require.NoError(t, mv.s.MakeMove(context.Background(), mv.index), "%s plays %d", mv.s.UserID(), mv.index)
	}
}

// startSingle has alice challenge bob and both enter the match.
func startSingle(t *testing.T, f *fixture) (alice, bob *Session, matchID string) {
	t.Helper()
	ctx := context.Background()
	alice, bob = f.open(t, "alice"), f.open(t, "bob")

	c, err := alice.SendChallenge(ctx, "bob", "Bob", model.KindSingle, 0)
	require.NoError(t, err)
	waitFor(t, alice, "challenge screen", func(v View) bool { return v.Screen == ScreenChallenge })
	waitFor(t, bob, "incoming challenge", func(v View) bool { return v.Lobby != nil && len(v.Lobby.Incoming) == 1 })

	require.NoError(t, bob.RespondToChallenge(ctx, c.ID, true))
	waitFor(t, alice, "match", inMatch(c.ID))
	waitFor(t, bob, "match", inMatch(c.ID))
	return alice, bob, c.ID
}

func TestSingleMatchAndRematch(t *testing.T) {
	f, teardown := setupFixture(t)
	defer teardown()
	ctx := context.Background()

	alice, bob, matchID := startSingle(t, f)

	v := waitFor(t, alice, "own turn", func(v View) bool { return v.Match.MyTurn })
	assert.Equal(t, "X", v.Match.Symbol)
	assert.ErrorIs(t, bob.MakeMove(ctx, 4), match.ErrNotYourTurn)

	play(t, move{alice, 0}, move{bob, 3}, move{alice, 1}, move{bob, 4}, move{alice, 2})

	v = waitFor(t, alice, "win", finished)
	assert.Equal(t, ResultWin, v.Match.Result)
	assert.Equal(t, []string{"X", "X", "X", "O", "O", "", "", "", ""}, v.Match.Board)
	v = waitFor(t, bob, "loss", finished)
	assert.Equal(t, ResultLose, v.Match.Result)
	assert.Equal(t, rematch.Idle.String(), v.Match.Rematch)

	require.NoError(t, bob.RequestRematch(ctx))
	waitFor(t, alice, "rematch offer", func(v View) bool { return v.Match.Rematch == rematch.Requested.String() })
	waitFor(t, bob, "own offer", func(v View) bool { return v.Match.Rematch == rematch.Waiting.String() })

	require.NoError(t, alice.AcceptRematch(ctx))
	next := model.RematchID(matchID)
	v = waitFor(t, alice, "rematch", inMatch(next))
	assert.Equal(t, "X", v.Match.Symbol, "the acceptor starts")
	v = waitFor(t, bob, "rematch", inMatch(next))
	assert.Equal(t, "O", v.Match.Symbol)
	assert.Equal(t, 1, f.metrics.RematchesResolved("accepted"))
}

func TestRematchTimeoutReturnsBothToLobby(t *testing.T) {
	f, teardown := setupFixture(t)
	defer teardown()
	ctx := context.Background()

	alice, bob, _ := startSingle(t, f)
	play(t, move{alice, 0}, move{bob, 3}, move{alice, 1}, move{bob, 4}, move{alice, 2})
	waitFor(t, bob, "finished", finished)

	require.NoError(t, alice.RequestRematch(ctx))
	counting := func(state rematch.State) func(View) bool {
		return func(v View) bool {
			return v.Match != nil && v.Match.Rematch == state.String() && v.Match.RematchRemaining > 0
		}
	}
	waitFor(t, alice, "waiting countdown", counting(rematch.Waiting))
	waitFor(t, bob, "offer countdown", counting(rematch.Requested))

	f.clock.Advance(rematch.DefaultTimeout)

	for _, s := range []*Session{alice, bob} {
		v := waitFor(t, s, "lobby", func(v View) bool { return v.Screen == ScreenLobby })
		assert.Equal(t, "Rematch offer timed out", v.Notice)
	}
	assert.Equal(t, 1, f.metrics.RematchesResolved("timeout"))
}

func TestDeclinedChallengeReturnsChallengerToLobby(t *testing.T) {
	f, teardown := setupFixture(t)
	defer teardown()
	ctx := context.Background()

	alice, bob := f.open(t, "alice"), f.open(t, "bob")
	c, err := alice.SendChallenge(ctx, "bob", "Bob", model.KindSingle, 0)
	require.NoError(t, err)
	waitFor(t, bob, "incoming challenge", func(v View) bool { return v.Lobby != nil && len(v.Lobby.Incoming) == 1 })

	require.NoError(t, bob.RespondToChallenge(ctx, c.ID, false))
	v := waitFor(t, alice, "lobby", func(v View) bool { return v.Screen == ScreenLobby })
	assert.Equal(t, "Challenge declined", v.Notice)
	waitFor(t, bob, "empty lobby", func(v View) bool { return v.Lobby != nil && len(v.Lobby.Incoming) == 0 })

	assert.ErrorIs(t, bob.RespondToChallenge(ctx, c.ID, true), challenge.ErrNotPending)
}

func TestTurnPassesWhenClockRunsOut(t *testing.T) {
	f, teardown := setupFixture(t)
	defer teardown()

	alice, bob, _ := startSingle(t, f)
	waitFor(t, alice, "running turn clock", func(v View) bool { return v.Match.MyTurn && v.Match.TurnRemaining > 0 })
	v := waitFor(t, bob, "opponent's turn", func(v View) bool { return v.Match != nil && !v.Match.MyTurn })
	assert.Zero(t, v.Match.TurnRemaining, "only the player holding the turn runs a clock")

	f.clock.Advance(clock.DefaultTurnTimeout)

	v = waitFor(t, bob, "own turn", func(v View) bool { return v.Match.MyTurn })
	assert.Equal(t, "O", v.Match.CurrentTurn)
	assert.Equal(t, "X ran out of time, turn passed to O", v.Notice)
	assert.Equal(t, make([]string, 9), v.Match.Board)
	assert.Equal(t, 1, f.metrics.TurnsPassed())
}

func TestSeriesHandshake(t *testing.T) {
	f, teardown := setupFixture(t)
	defer teardown()
	ctx := context.Background()

	alice, bob := f.open(t, "alice"), f.open(t, "bob")
	c, err := alice.SendChallenge(ctx, "bob", "Bob", model.KindSeries, 3)
	require.NoError(t, err)
	waitFor(t, bob, "incoming challenge", func(v View) bool { return v.Lobby != nil && len(v.Lobby.Incoming) == 1 })
	require.NoError(t, bob.RespondToChallenge(ctx, c.ID, true))

	seriesID := c.ID
	scored := func(alice, bob int) func(View) bool {
		return func(v View) bool {
			return finished(v) && v.Series != nil && v.Series.Scores["alice"] == alice && v.Series.Scores["bob"] == bob
		}
	}
	readyUp := func(next string) {
		t.Helper()
		assert.ErrorIs(t, alice.MakeMove(ctx, 8), match.ErrMatchNotActive)
		require.NoError(t, bob.MarkReady(ctx))
		v := waitFor(t, alice, "peer ready", func(v View) bool { return v.Series.Ready["bob"] })
		assert.Equal(t, 0, v.Series.Games-1-v.Series.CurrentGameIndex, "no game starts on one ready flag")
		require.NoError(t, alice.MarkReady(ctx))
		waitFor(t, alice, "next game", inMatch(next))
		waitFor(t, bob, "next game", inMatch(next))
	}

	// Game 1: alice is X.
	game1 := model.SeriesGameID(seriesID, 0)
	waitFor(t, alice, "game 1", inMatch(game1))
	waitFor(t, bob, "game 1", inMatch(game1))
	assert.ErrorIs(t, alice.MarkReady(ctx), ErrGameNotOver)
	play(t, move{alice, 0}, move{bob, 3}, move{alice, 1}, move{bob, 4}, move{alice, 2})
	waitFor(t, alice, "1-0", scored(1, 0))
	waitFor(t, bob, "1-0", scored(1, 0))

	// Game 2: bob is X.
	game2 := model.SeriesGameID(seriesID, 1)
	readyUp(game2)
	v := waitFor(t, bob, "game 2 turn", func(v View) bool { return v.Match.MyTurn })
	assert.Equal(t, 2, v.Match.GameNumber)
	assert.Equal(t, "X", v.Match.Symbol)
	play(t, move{bob, 0}, move{alice, 3}, move{bob, 1}, move{alice, 4}, move{bob, 2})
	waitFor(t, alice, "1-1", scored(1, 1))
	waitFor(t, bob, "1-1", scored(1, 1))

	// Game 3: alice is X again and wins the series.
	readyUp(model.SeriesGameID(seriesID, 2))
	play(t, move{alice, 4}, move{bob, 0}, move{alice, 2}, move{bob, 1}, move{alice, 6})

	v = waitFor(t, alice, "series won", func(v View) bool {
		return v.Series != nil && v.Series.Status == string(model.SeriesFinished)
	})
	assert.Equal(t, ResultWin, v.Series.Result)
	assert.Equal(t, 3, v.Series.Games)
	v = waitFor(t, bob, "series lost", func(v View) bool {
		return v.Series != nil && v.Series.Status == string(model.SeriesFinished)
	})
	assert.Equal(t, ResultLose, v.Series.Result)
	assert.Equal(t, map[string]int{"alice": 2, "bob": 1}, v.Series.Scores)
	assert.Equal(t, 1, f.metrics.SeriesFinished())

	assert.ErrorIs(t, bob.RequestRematch(ctx), rematch.ErrNotAllowed, "series games have no rematch")
}

func TestSpectatorFollowsMatchFromLobby(t *testing.T) {
	f, teardown := setupFixture(t)
	defer teardown()
	ctx := context.Background()

	alice, bob, matchID := startSingle(t, f)
	carol := f.open(t, "carol")

	waitFor(t, carol, "spectatable match", func(v View) bool {
		return v.Lobby != nil && len(v.Lobby.Spectatable) == 1 && v.Lobby.Spectatable[0].ID == matchID
	})
	require.NoError(t, alice.ToggleSpectators(ctx, false))
	waitFor(t, carol, "match closed to spectators", func(v View) bool {
		return v.Lobby != nil && len(v.Lobby.Spectatable) == 0
	})
	assert.ErrorIs(t, carol.Spectate(ctx, matchID), match.ErrSpectatorsBlocked)
	require.NoError(t, alice.ToggleSpectators(ctx, true))
	waitFor(t, carol, "match reopened to spectators", func(v View) bool {
		return v.Lobby != nil && len(v.Lobby.Spectatable) == 1 && v.Lobby.Spectatable[0].ID == matchID
	})

	require.NoError(t, carol.Spectate(ctx, matchID))
	play(t, move{alice, 4})

	v := waitFor(t, carol, "spectated move", func(v View) bool {
		return v.Match != nil && v.Match.Board[4] == "X"
	})
	assert.Equal(t, ScreenSpectate, v.Screen)
	assert.Empty(t, v.Match.Symbol)
	assert.False(t, v.Match.MyTurn)
	assert.ErrorIs(t, carol.MakeMove(ctx, 0), ErrSpectating)

	v = waitFor(t, bob, "spectator listed", func(v View) bool {
		return v.Match != nil && len(v.Match.Spectators) == 1
	})
	assert.Equal(t, []string{"carol"}, v.Match.Spectators)

	require.NoError(t, carol.BackToLobby(ctx))
	waitFor(t, carol, "lobby", func(v View) bool { return v.Screen == ScreenLobby })
}

func TestClosedSessionRejectsIntents(t *testing.T) {
	f, teardown := setupFixture(t)
	defer teardown()

	s, err := New(context.Background(), Config{UserID: "alice", Clock: f.clock}, f.deps)
	require.NoError(t, err)
	s.Close()

	assert.ErrorIs(t, s.MakeMove(context.Background(), 0), ErrClosed)
	_, err = s.View(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSubscriptionsOutliveIntentContext(t *testing.T) {
	f, teardown := setupFixture(t)
	defer teardown()

	alice, bob := f.open(t, "alice"), f.open(t, "bob")
	// intent runs an intent with a context that ends as soon as it returns,
	// like an HTTP request.
	intent := func(fn func(ctx context.Context) error) {
		t.Helper()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		require.NoError(t, fn(ctx))
	}

	var c model.Challenge
	intent(func(ctx context.Context) error {
		var err error
		c, err = alice.SendChallenge(ctx, "bob", "Bob", model.KindSingle, 0)
		return err
	})
	waitFor(t, bob, "incoming challenge", func(v View) bool { return v.Lobby != nil && len(v.Lobby.Incoming) == 1 })

	intent(func(ctx context.Context) error { return bob.RespondToChallenge(ctx, c.ID, true) })
	waitFor(t, alice, "match", inMatch(c.ID))

	play(t, move{alice, 4})
	v := waitFor(t, bob, "alice's move", func(v View) bool {
		return v.Match != nil && v.Match.Board[4] == "X" && v.Match.MyTurn
	})
	assert.Greater(t, v.Match.TurnRemaining, float64(0), "bob's turn clock runs")

	intent(func(ctx context.Context) error { return bob.BackToLobby(ctx) })
	_, err := alice.SendChallenge(context.Background(), "bob", "Bob", model.KindSingle, 0)
	require.NoError(t, err)
	waitFor(t, bob, "second challenge", func(v View) bool { return v.Lobby != nil && len(v.Lobby.Incoming) == 1 })
}

func TestListenerFailures(t *testing.T) {
	connectionProblem := func(v View) bool { return strings.HasPrefix(v.Notice, "Connection problem") }

	t.Run("store error keeps the match open and reconnects", func(t *testing.T) {
		f, teardown := setupFixture(t)
		defer teardown()
		store := newFlakyStore(f.deps.Store)
		f.deps.Store = store

		alice, bob, matchID := startSingle(t, f)
		store.fail(model.CollectionMatches, matchID, &recordstore.StoreError{
			Op: "listen", Collection: model.CollectionMatches, ID: matchID, Err: errors.New("unavailable"),
		})

		for _, s := range []*Session{alice, bob} {
			v := waitFor(t, s, "connection notice", connectionProblem)
			assert.Equal(t, ScreenMatch, v.Screen)
			assert.Equal(t, matchID, v.Match.ID)
		}
		assert.Equal(t, 2, f.metrics.StoreErrors("listen_match"))

		play(t, move{alice, 4})
		f.clock.Advance(resubscribeDelay)

		v := waitFor(t, bob, "move after reconnect", func(v View) bool {
			return v.Match != nil && v.Match.Board[4] == "X" && v.Notice == ""
		})
		assert.Equal(t, ScreenMatch, v.Screen)
		assert.True(t, v.Match.MyTurn)
	})

	t.Run("not found returns to the lobby", func(t *testing.T) {
		f, teardown := setupFixture(t)
		defer teardown()
		store := newFlakyStore(f.deps.Store)
		f.deps.Store = store

		_, bob, matchID := startSingle(t, f)
		store.fail(model.CollectionMatches, matchID, fmt.Errorf("%s/%s: %w", model.CollectionMatches, matchID, recordstore.ErrNotFound))

		v := waitFor(t, bob, "lobby", func(v View) bool { return v.Screen == ScreenLobby })
		assert.Equal(t, "The match is no longer available", v.Notice)
		assert.Zero(t, f.metrics.StoreErrors("listen_match"))
	})
}
