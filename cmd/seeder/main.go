package main

import (
	"context"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mauv0809/tictac-duel/internal/database"
	"github.com/mauv0809/tictac-duel/internal/match"
	"github.com/mauv0809/tictac-duel/internal/metrics"
	"github.com/mauv0809/tictac-duel/internal/model"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
	"github.com/mauv0809/tictac-duel/internal/series"
)

// Simplified config loading for the script
func loadConfig() map[string]string {
	err := godotenv.Load()
	if err != nil {
		log.Warn("No .env file found, reading from environment variables")
	}

	config := map[string]string{
		"DB_NAME":           "duel.db",
		"MIGRATIONS_DIR":    "./migrations",
		"TURSO_PRIMARY_URL": "",
		"TURSO_AUTH_TOKEN":  "",
		"SEED_CHALLENGES":   "5",
	}
	for key := range config {
		if value, ok := os.LookupEnv(key); ok {
			config[key] = value
		}
	}
	return config
}

var demoPlayers = []string{"ada", "grace", "linus", "ken"}

func main() {
	log.Info("Starting record seeder...")
	cfg := loadConfig()
	ctx := context.Background()

	db, teardown, err := database.InitDB(cfg["DB_NAME"], cfg["TURSO_PRIMARY_URL"], cfg["TURSO_AUTH_TOKEN"], cfg["MIGRATIONS_DIR"])
	if err != nil {
		log.Fatalf("Failed to open database: %s", err)
	}
	defer teardown()

	store := recordstore.NewSQL(db)
	m := metrics.NewMock()
	matches := match.NewService(store, m)
	coordinator := series.NewCoordinator(store, matches, m)
	startTime := time.Now()

	numChallenges, err := strconv.Atoi(cfg["SEED_CHALLENGES"])
	if err != nil || numChallenges < 0 {
		log.Fatalf("SEED_CHALLENGES must be a non-negative number, got %q", cfg["SEED_CHALLENGES"])
	}
	for i := 0; i < numChallenges; i++ {
		from, to := pickPair()
		c := model.Challenge{
			FromUserID:   from,
			FromUserName: from,
			ToUserID:     to,
			ToUserName:   to,
			Status:       model.ChallengePending,
			Kind:         model.KindSingle,
		}
		if rand.Intn(2) == 0 {
			c.Kind = model.KindSeries
			c.BestOf = []int{3, 5, 7}[rand.Intn(3)]
		}
		id, err := store.Create(ctx, model.CollectionChallenges, model.ChallengeFields(c))
		if err != nil {
			log.Fatalf("Failed to seed challenge: %s", err)
		}
		log.Debug("Seeded challenge", "challengeID", id, "from", from, "to", to, "kind", c.Kind)
	}

	// A match in progress; new matches are open to spectators.
	live := uuid.NewString()
	if err := matches.Create(ctx, live, [2]string{demoPlayers[0], demoPlayers[1]}, match.CreateOptions{}); err != nil {
		log.Fatalf("Failed to seed match: %s", err)
	}
	for i, slot := range []int{4, 0, 8} {
		if _, err := matches.Move(ctx, live, [2]string{demoPlayers[0], demoPlayers[1]}[i%2], slot); err != nil {
			log.Fatalf("Failed to seed move: %s", err)
		}
	}

	// A best-of-5 series whose later games already exist and wait to be
	// activated by the readiness handshake.
	seriesID := uuid.NewString()
	players := [2]string{demoPlayers[2], demoPlayers[3]}
	s, err := coordinator.Create(ctx, seriesID, players, 5)
	if err != nil {
		log.Fatalf("Failed to seed series: %s", err)
	}
	games := []string{s.Games[0]}
	for i := 1; i < 3; i++ {
		id := model.SeriesGameID(seriesID, i)
		err := matches.Create(ctx, id, s.GamePlayers(i), match.CreateOptions{
			Status:     model.MatchWaiting,
			SeriesID:   seriesID,
			GameNumber: i + 1,
		})
		if err != nil {
			log.Fatalf("Failed to seed series game: %s", err)
		}
		games = append(games, id)
	}
	if err := store.Update(ctx, model.CollectionSeries, seriesID, recordstore.Fields{"games": games}); err != nil {
		log.Fatalf("Failed to register series games: %s", err)
	}

	log.Info("Seeding complete",
		"challenges", numChallenges,
		"liveMatch", live,
		"seriesID", seriesID,
		"seriesPlayers", players,
		"duration", time.Since(startTime))
}

func pickPair() (string, string) {
	i := rand.Intn(len(demoPlayers))
	j := (i + 1 + rand.Intn(len(demoPlayers)-1)) % len(demoPlayers)
	return demoPlayers[i], demoPlayers[j]
}
