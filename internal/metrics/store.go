package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// incrementTimeout bounds a single counter write. Counters are best effort
// and must not hold up the write that triggered them.
const incrementTimeout = 2 * time.Second

// Total is one lifetime counter.
type Total struct {
	Key   string `json:"key"`
	Value int    `json:"value"`
}

// lifetimeStore keeps outcome counters in the metrics table so they survive
// restarts, unlike the Prometheus series.
type lifetimeStore struct {
	db *sql.DB
}

// New returns a MetricsStore backed by the metrics table.
func New(db *sql.DB) MetricsStore {
	return &lifetimeStore{db: db}
}

func (s *lifetimeStore) Increment(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), incrementTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metrics (key, value) VALUES (?, 1)
		ON CONFLICT(key) DO UPDATE SET value = value + 1`, key)
	if err != nil {
		log.Error("Failed to increment lifetime counter", "key", key, "error", err)
		return
	}
	log.Debug("Incremented lifetime counter", "key", key)
}

// Totals returns every lifetime counter ordered by key.
func (s *lifetimeStore) Totals(ctx context.Context) ([]Total, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key, value FROM metrics ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to query lifetime counters: %w", err)
	}
	defer rows.Close()

	totals := []Total{}
	for rows.Next() {
		var t Total
		if err := rows.Scan(&t.Key, &t.Value); err != nil {
			return nil, fmt.Errorf("failed to scan lifetime counter: %w", err)
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}
