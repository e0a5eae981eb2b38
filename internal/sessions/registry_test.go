package sessions

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mauv0809/tictac-duel/internal/challenge"
	"github.com/mauv0809/tictac-duel/internal/database"
	"github.com/mauv0809/tictac-duel/internal/match"
	"github.com/mauv0809/tictac-duel/internal/metrics"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
	"github.com/mauv0809/tictac-duel/internal/rematch"
	"github.com/mauv0809/tictac-duel/internal/series"
	"github.com/mauv0809/tictac-duel/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRegistry(t *testing.T) (Registry, *metrics.Mock, *clockwork.FakeClock, func()) {
	t.Helper()

	db, dbTeardown, err := database.InitDB(":memory:", "", "", "../../migrations")
	require.NoError(t, err)

	store := recordstore.NewSQL(db)
	m := metrics.NewMock()
	matches := match.NewService(store, m)
	coordinator := series.NewCoordinator(store, matches, m)
	deps := session.Deps{
		Store:      store,
		Matches:    matches,
		Challenges: challenge.NewNegotiator(store, matches, coordinator, m),
		Rematches:  rematch.NewNegotiator(store, matches, m),
		Series:     coordinator,
		Metrics:    m,
	}

	fc := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	r := New(ctx, session.Config{Clock: fc}, deps)
	teardown := func() {
		r.CloseAll()
		cancel()
		dbTeardown()
	}
	return r, m, fc, teardown
}

func TestOpenReusesLiveSession(t *testing.T) {
	r, m, _, teardown := setupTestRegistry(t)
	defer teardown()
	ctx := context.Background()

	alice, err := r.Open(ctx, "alice", "Alice")
	require.NoError(t, err)
	again, err := r.Open(ctx, "alice", "")
	require.NoError(t, err)
	assert.Same(t, alice, again)

	_, err = r.Open(ctx, "bob", "")
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 2, m.ActiveSessions())

	v, err := alice.View(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", v.UserID)
	assert.Equal(t, session.ScreenLobby, v.Screen)
}

func TestCloseForgetsSession(t *testing.T) {
	r, m, _, teardown := setupTestRegistry(t)
	defer teardown()
	ctx := context.Background()

	alice, err := r.Open(ctx, "alice", "")
	require.NoError(t, err)

	r.Close("alice")
	<-alice.Done()
	_, ok := r.Get("alice")
	assert.False(t, ok)
	assert.Equal(t, 0, m.ActiveSessions())

	r.Close("nobody")

	reopened, err := r.Open(ctx, "alice", "")
	require.NoError(t, err)
	assert.NotSame(t, alice, reopened)
}

func TestOpenReplacesStoppedSession(t *testing.T) {
	r, _, _, teardown := setupTestRegistry(t)
	defer teardown()
	ctx := context.Background()

	alice, err := r.Open(ctx, "alice", "")
	require.NoError(t, err)
	alice.Close()

	reopened, err := r.Open(ctx, "alice", "")
	require.NoError(t, err)
	assert.NotSame(t, alice, reopened)
	assert.Equal(t, 1, r.Len())
}

func TestOpen_ConcurrentCallsShareOneSession(t *testing.T) {
	r, m, _, teardown := setupTestRegistry(t)
	defer teardown()

	const callers = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		got   = make([]*session.Session, callers)
		errs  = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			got[i], errs[i] = r.Open(context.Background(), "alice", "")
		}(i)
	}
	close(start)
	wg.Wait()

	for i := range got {
		require.NoError(t, errs[i])
		assert.Same(t, got[0], got[i], "every caller must get the registered session")
	}
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, 1, m.ActiveSessions())

	v, err := got[0].View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.ScreenLobby, v.Screen)
}

func TestEvictIdle(t *testing.T) {
	tests := []struct {
		name        string
		touchBobAt  time.Duration
		advance     time.Duration
		wantEvicted int
		wantLeft    []string
	}{
		{name: "nothing idle yet", advance: 10 * time.Minute, wantEvicted: 0, wantLeft: []string{"alice", "bob"}},
		{name: "both idle", advance: 31 * time.Minute, wantEvicted: 2},
		{name: "recent open keeps a session", touchBobAt: 20 * time.Minute, advance: 31 * time.Minute, wantEvicted: 1, wantLeft: []string{"bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, m, fc, teardown := setupTestRegistry(t)
			defer teardown()
			ctx := context.Background()

			alice, err := r.Open(ctx, "alice", "")
			require.NoError(t, err)
			_, err = r.Open(ctx, "bob", "")
			require.NoError(t, err)

			if tt.touchBobAt > 0 {
				fc.Advance(tt.touchBobAt)
				_, err = r.Open(ctx, "bob", "")
				require.NoError(t, err)
				fc.Advance(tt.advance - tt.touchBobAt)
			} else {
				fc.Advance(tt.advance)
			}

			assert.Equal(t, tt.wantEvicted, r.EvictIdle(30*time.Minute))
			assert.Equal(t, len(tt.wantLeft), r.Len())
			assert.Equal(t, len(tt.wantLeft), m.ActiveSessions())
			for _, user := range tt.wantLeft {
				_, ok := r.Get(user)
				assert.True(t, ok, user)
			}
			if tt.wantEvicted > 0 {
				<-alice.Done()
			}
		})
	}
}

func TestStartEvictionClosesIdleSessions(t *testing.T) {
	r, _, fc, teardown := setupTestRegistry(t)
	defer teardown()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	alice, err := r.Open(ctx, "alice", "")
	require.NoError(t, err)
	require.NoError(t, r.StartEviction(ctx, time.Minute, 10*time.Second))

	require.Eventually(t, func() bool {
		fc.Advance(10 * time.Second)
		return r.Len() == 0
	}, 5*time.Second, 20*time.Millisecond)
	<-alice.Done()
}
