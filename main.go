package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mauv0809/tictac-duel/internal/challenge"
	"github.com/mauv0809/tictac-duel/internal/config"
	"github.com/mauv0809/tictac-duel/internal/database"
	"github.com/mauv0809/tictac-duel/internal/expiry"
	server "github.com/mauv0809/tictac-duel/internal/http"
	"github.com/mauv0809/tictac-duel/internal/match"
	"github.com/mauv0809/tictac-duel/internal/metrics"
	"github.com/mauv0809/tictac-duel/internal/pubsub"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
	"github.com/mauv0809/tictac-duel/internal/rematch"
	"github.com/mauv0809/tictac-duel/internal/series"
	"github.com/mauv0809/tictac-duel/internal/session"
	"github.com/mauv0809/tictac-duel/internal/sessions"
)

func main() {
	// Start profiling timer
	startTime := time.Now()
	log.SetFormatter(log.JSONFormatter)
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsSvc := metrics.NewService()
	metricsHandler := metrics.NewMetricsHandler()

	var (
		store     recordstore.Store
		refresher recordstore.Refresher
		feed      *pubsub.ChangeFeed
		lifetime  metrics.LifetimeReader
	)
	switch cfg.Store.Backend {
	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %s", err)
		}
		defer client.Close()
		store = recordstore.NewFirestore(client)
		log.Info("Using Firestore record store", "project", cfg.ProjectID)

	default:
		db, dbTeardown, err := database.InitDB(cfg.DBName, cfg.Turso.PrimaryURL, cfg.Turso.AuthToken, cfg.MigrationsDir)
		dbInitDuration := time.Since(startTime)
		log.Info("Database initialization time recorded", "duration_ms", dbInitDuration.Milliseconds())
		if err != nil {
			log.Fatalf("Failed to initialize database: %s", err)
		}
		defer func() {
			log.Info("Closing database connection")
			dbTeardown()
		}()
		lifetimeStore := metrics.New(db)
		metricsSvc.PersistTo(lifetimeStore)
		lifetime = lifetimeStore

		var opts []recordstore.SQLOption
		if cfg.ChangeFeedTopic != "" {
			client := pubsub.New(cfg.ProjectID)
			defer client.Close()
			feed = pubsub.NewChangeFeed(client, cfg.ChangeFeedTopic, uuid.NewString())
			opts = append(opts, recordstore.WithChangePublisher(feed))
			log.Info("Publishing record changes", "topic", cfg.ChangeFeedTopic, "origin", feed.Origin())
		}
		sqlStore := recordstore.NewSQL(db, opts...)
		store, refresher = sqlStore, sqlStore
	}

	matches := match.NewService(store, metricsSvc)
	coordinator := series.NewCoordinator(store, matches, metricsSvc)
	challenges := challenge.NewNegotiator(store, matches, coordinator, metricsSvc)
	deps := session.Deps{
		Store:      store,
		Matches:    matches,
		Challenges: challenges,
		Rematches:  rematch.NewNegotiator(store, matches, metricsSvc),
		Series:     coordinator,
		Metrics:    metricsSvc,
	}

	clock := clockwork.NewRealClock()
	sweeper := expiry.New(store, challenges, expiry.Config{
		TTL:      cfg.Timeouts.ChallengeTTL,
		Interval: cfg.Timeouts.ExpiryInterval,
		Clock:    clock,
	})
	if err := sweeper.Start(ctx); err != nil {
		log.Fatalf("Failed to start challenge expiry: %s", err)
	}

	registry := sessions.New(ctx, session.Config{
		TurnTimeout:    cfg.Timeouts.Turn,
		RematchTimeout: cfg.Timeouts.Rematch,
		Clock:          clock,
	}, deps)
	if err := registry.StartEviction(ctx, cfg.Timeouts.SessionIdle, cfg.Timeouts.ExpiryInterval); err != nil {
		log.Fatalf("Failed to start idle session eviction: %s", err)
	}

	s := server.NewServer(registry, metricsSvc, metricsHandler, refresher, feed)
	s.Lifetime = lifetime

	// --- Record startup time ---
	startupDuration := time.Since(startTime)
	metricsSvc.SetStartupTime(startupDuration.Seconds())
	log.Info("Startup time recorded", "duration_ms", startupDuration.Milliseconds())

	// --- Graceful shutdown setup ---
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: s,
	}

	// Channel to listen for errors coming from the server
	serverErrors := make(chan error, 1)

	// Start the server in a goroutine
	go func() {
		log.Info("Server started", "port", cfg.Port, "backend", cfg.Store.Backend)
		serverErrors <- srv.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", "signal", sig)

		// Create a context with a timeout for the shutdown.
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Attempt to gracefully shut down the server.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown failed", "error", err)
		} else {
			log.Info("Server gracefully stopped")
		}
	}

	sweeper.Stop()
	registry.CloseAll()
	log.Info("Server process shutting down")
}
