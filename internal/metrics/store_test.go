package metrics

import (
	"context"
	"sync"
	"testing"

	"github.com/mauv0809/tictac-duel/internal/database"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) (MetricsStore, func()) {
	t.Helper()

	db, teardown, err := database.InitDB(":memory:", "", "", "../../migrations")
	require.NoError(t, err)

	return New(db), teardown
}

func TestIncrementAndTotals(t *testing.T) {
	store, teardown := setupTestDB(t)
	defer teardown()
	ctx := context.Background()

	tests := []struct {
		name      string
		increment []string
		want      []Total
	}{
		{name: "empty", want: []Total{}},
		{name: "new key", increment: []string{"matches_finished"}, want: []Total{{"matches_finished", 1}}},
		{name: "same key", increment: []string{"matches_finished"}, want: []Total{{"matches_finished", 2}}},
		{
			name:      "ordered by key",
			increment: []string{"turns_passed", "challenges_accepted"},
			want:      []Total{{"challenges_accepted", 1}, {"matches_finished", 2}, {"turns_passed", 1}},
		},
	}
	// Steps build on each other.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, key := range tt.increment {
				store.Increment(key)
			}
			totals, err := store.Totals(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, totals)
		})
	}
}

func TestIncrement_ConcurrentWritersAreCounted(t *testing.T) {
	store, teardown := setupTestDB(t)
	defer teardown()

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Increment("rematches_accepted")
		}()
	}
	wg.Wait()

	totals, err := store.Totals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Total{{"rematches_accepted", writers}}, totals)
}

func TestServicePersistsOutcomeCounters(t *testing.T) {
	store, teardown := setupTestDB(t)
	defer teardown()

	svc := NewService(prometheus.NewRegistry()).PersistTo(store)
	svc.IncMatchesFinished("X")
	svc.IncMatchesFinished("draw")
	svc.IncChallengesResolved("declined")
	svc.IncMovesApplied()

	totals, err := store.Totals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Total{
		{"challenges_declined", 1},
		{"matches_finished", 2},
	}, totals)
}
