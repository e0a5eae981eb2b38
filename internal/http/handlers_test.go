package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mauv0809/tictac-duel/internal/challenge"
	"github.com/mauv0809/tictac-duel/internal/database"
	"github.com/mauv0809/tictac-duel/internal/match"
	"github.com/mauv0809/tictac-duel/internal/metrics"
	"github.com/mauv0809/tictac-duel/internal/model"
	"github.com/mauv0809/tictac-duel/internal/pubsub"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
	"github.com/mauv0809/tictac-duel/internal/rematch"
	"github.com/mauv0809/tictac-duel/internal/series"
	"github.com/mauv0809/tictac-duel/internal/session"
	"github.com/mauv0809/tictac-duel/internal/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type refresherSpy struct {
	mu    sync.Mutex
	calls []string
}

func (r *refresherSpy) Refresh(_ context.Context, collection, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, collection+"/"+id)
	return nil
}

// setupTestServer initializes a new server with a test database and a mock
// change feed.
func setupTestServer(t *testing.T) (*Server, *refresherSpy, *pubsub.MockPubSubClient, func()) {
	t.Helper()

	db, dbTeardown, err := database.InitDB(":memory:", "", "", "../../migrations")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	lifetime := metrics.New(db)
	metricsSvc := metrics.NewService(reg).PersistTo(lifetime)
	metricsHandler := metrics.NewMetricsHandler(reg)

	store := recordstore.NewSQL(db)
	matches := match.NewService(store, metricsSvc)
	coordinator := series.NewCoordinator(store, matches, metricsSvc)
	deps := session.Deps{
		Store:      store,
		Matches:    matches,
		Challenges: challenge.NewNegotiator(store, matches, coordinator, metricsSvc),
		Rematches:  rematch.NewNegotiator(store, matches, metricsSvc),
		Series:     coordinator,
		Metrics:    metricsSvc,
	}
	ctx, cancel := context.WithCancel(context.Background())
	registry := sessions.New(ctx, session.Config{Clock: clockwork.NewFakeClock()}, deps)

	client := pubsub.NewMock("TEST")
	feed := pubsub.NewChangeFeed(client, "record-changes", "instance-a")
	refresher := &refresherSpy{}
	server := NewServer(registry, metricsSvc, metricsHandler, refresher, feed)
	server.Lifetime = lifetime

	teardown := func() {
		registry.CloseAll()
		cancel()
		dbTeardown()
	}
	return server, refresher, client, teardown
}

func do(t *testing.T, server *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, target, &buf)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	server.Router.ServeHTTP(rr, req)
	return rr
}

func decodeView(t *testing.T, rr *httptest.ResponseRecorder) session.View {
	t.Helper()
	var v session.View
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func awaitView(t *testing.T, server *Server, user string, pred func(session.View) bool) session.View {
	t.Helper()
	var v session.View
	require.Eventually(t, func() bool {
		rr := do(t, server, "GET", "/view?user="+user, nil)
		if rr.Code != http.StatusOK {
			return false
		}
		v = decodeView(t, rr)
		return pred(v)
	}, 5*time.Second, 10*time.Millisecond)
	return v
}

func TestHealthCheckHandler(t *testing.T) {
	server, _, _, teardown := setupTestServer(t)
	defer teardown()

	rr := do(t, server, "GET", "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code, "handler returned wrong status code")
	assert.Equal(t, "OK!", rr.Body.String(), "handler returned unexpected body")
}

func TestPlayerEndpointsRequireUser(t *testing.T) {
	server, _, _, teardown := setupTestServer(t)
	defer teardown()

	rr := do(t, server, "GET", "/view", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, server, "GET", "/view?user=alice", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	v := decodeView(t, rr)
	assert.Equal(t, "alice", v.UserID)
	assert.Equal(t, session.ScreenLobby, v.Screen)
	assert.Equal(t, 1, server.Sessions.Len())
}

func TestMatchOverHTTP(t *testing.T) {
	server, _, _, teardown := setupTestServer(t)
	defer teardown()

	rr := do(t, server, "POST", "/challenges?user=alice", challengeRequest{To: "bob", ToName: "Bob"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var c model.Challenge
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))
	assert.Equal(t, model.ChallengePending, c.Status)

	awaitView(t, server, "bob", func(v session.View) bool { return v.Lobby != nil && len(v.Lobby.Incoming) == 1 })
	rr = do(t, server, "POST", "/challenges/respond?user=bob", respondRequest{ID: c.ID, Accept: true})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	v := awaitView(t, server, "alice", func(v session.View) bool { return v.Match != nil && v.Match.MyTurn })
	assert.Equal(t, c.ID, v.Match.ID)

	t.Run("rejects out of turn move", func(t *testing.T) {
		rr := do(t, server, "POST", "/move?user=bob", map[string]int{"index": 4})
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("rejects move without index", func(t *testing.T) {
		rr := do(t, server, "POST", "/move?user=alice", map[string]int{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rejects occupied slot", func(t *testing.T) {
		rr := do(t, server, "POST", "/move?user=alice", map[string]int{"index": 4})
		require.Equal(t, http.StatusOK, rr.Code)
		awaitView(t, server, "bob", func(v session.View) bool { return v.Match != nil && v.Match.MyTurn })
		rr = do(t, server, "POST", "/move?user=bob", map[string]int{"index": 4})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("rematch before the end is a conflict", func(t *testing.T) {
		rr := do(t, server, "POST", "/rematch/request?user=alice", nil)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("lobby", func(t *testing.T) {
		rr := do(t, server, "POST", "/lobby?user=alice", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, session.ScreenLobby, decodeView(t, rr).Screen)
	})
}

func TestViewLongPoll(t *testing.T) {
	server, _, _, teardown := setupTestServer(t)
	defer teardown()

	v := decodeView(t, do(t, server, "GET", "/view?user=bob", nil))

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		req := httptest.NewRequest("GET", "/view?user=bob&wait=5&after="+strconv.FormatUint(v.Revision, 10), nil)
		rr := httptest.NewRecorder()
		server.Router.ServeHTTP(rr, req)
		done <- rr
	}()

	rr := do(t, server, "POST", "/challenges?user=alice", challengeRequest{To: "bob"})
	require.Equal(t, http.StatusCreated, rr.Code)

	select {
	case rr := <-done:
		next := decodeView(t, rr)
		assert.Greater(t, next.Revision, v.Revision)
		require.NotNil(t, next.Lobby)
		assert.Len(t, next.Lobby.Incoming, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("long poll did not return")
	}

	rr = do(t, server, "GET", "/view?user=bob&after=x", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRecordChangesHandler(t *testing.T) {
	server, refresher, client, teardown := setupTestServer(t)
	defer teardown()

	push := func(origin string) *httptest.ResponseRecorder {
		other := pubsub.NewChangeFeed(client, "record-changes", origin)
		require.NoError(t, other.PublishChange(context.Background(), "matches", "m1", 3))
		sent := client.Sent()
		var env pushEnvelope
		env.Subscription = "projects/test/subscriptions/record-changes"
		env.Message.Data = base64.StdEncoding.EncodeToString(sent[len(sent)-1].Payload)
		return do(t, server, "POST", "/pubsub/record-changes", env)
	}

	rr := push("instance-b")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"matches/m1"}, refresher.calls)

	rr = push("instance-a")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, refresher.calls, 1, "own notices are ignored")

	rr = do(t, server, "POST", "/pubsub/record-changes", map[string]any{"message": map[string]string{"data": "%%%"}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", recordstore.ErrNotFound, http.StatusNotFound},
		{"invalid best of", challenge.ErrInvalidBestOf, http.StatusBadRequest},
		{"not a player", match.ErrNotAPlayer, http.StatusForbidden},
		{"not your turn", match.ErrNotYourTurn, http.StatusConflict},
		{"rematch not allowed", rematch.ErrNotAllowed, http.StatusConflict},
		{"store failure", &recordstore.StoreError{Op: "get", Collection: "matches", Err: context.DeadlineExceeded}, http.StatusServiceUnavailable},
		{"closed session", session.ErrClosed, http.StatusServiceUnavailable},
		{"unknown", assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestLifetimeHandler(t *testing.T) {
	server, _, _, teardown := setupTestServer(t)
	defer teardown()

	totals := func(t *testing.T) []metrics.Total {
		t.Helper()
		rr := do(t, server, "GET", "/metrics/lifetime", nil)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var body struct {
			Totals []metrics.Total `json:"totals"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		return body.Totals
	}

	t.Run("starts empty", func(t *testing.T) {
		assert.Empty(t, totals(t))
	})

	t.Run("counts a declined challenge", func(t *testing.T) {
		rr := do(t, server, "POST", "/challenges?user=alice", challengeRequest{To: "bob"})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var c model.Challenge
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &c))

		awaitView(t, server, "bob", func(v session.View) bool { return v.Lobby != nil && len(v.Lobby.Incoming) == 1 })
		rr = do(t, server, "POST", "/challenges/respond?user=bob", respondRequest{ID: c.ID, Accept: false})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		assert.Equal(t, []metrics.Total{{Key: "challenges_declined", Value: 1}}, totals(t))
	})

	t.Run("not persisted", func(t *testing.T) {
		server.Lifetime = nil
		rr := do(t, server, "GET", "/metrics/lifetime", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}
