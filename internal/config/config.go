package config

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables and .env file.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Info("No .env file found, reading from environment variables")
	}

	// A helper function to get a required env var. It will fail if the env var is not set.
	getEnv := func(key string) string {
		if value, ok := os.LookupEnv(key); ok {
			return value
		}
		log.Fatalf("Error: Required environment variable %s is not set.", key)
		return "" // This line is never reached
	}

	cfg := Config{
		DBName:        getEnvOr("DB_NAME", "duel.db"),
		MigrationsDir: getEnvOr("MIGRATIONS_DIR", "./migrations"),
		Port:          getEnv("PORT"),
		Turso: TursoConfig{
			PrimaryURL: getEnvOr("TURSO_PRIMARY_URL", ""),
			AuthToken:  getEnvOr("TURSO_AUTH_TOKEN", ""),
		},
		Store: StoreConfig{
			Backend: StoreBackend(getEnvOr("STORE_BACKEND", string(BackendSQL))),
		},
		ProjectID:       getEnvOr("GCP_PROJECT", ""),
		ChangeFeedTopic: getEnvOr("CHANGE_FEED_TOPIC", ""),
		Timeouts: TimeoutConfig{
			Turn:           getDuration("TURN_TIMEOUT", 25*time.Second),
			Rematch:        getDuration("REMATCH_TIMEOUT", 30*time.Second),
			ChallengeTTL:   getDuration("CHALLENGE_TTL", 10*time.Minute),
			ExpiryInterval: getDuration("EXPIRY_INTERVAL", time.Minute),
			SessionIdle:    getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		},
	}

	switch cfg.Store.Backend {
	case BackendSQL:
	case BackendFirestore:
		if cfg.ProjectID == "" {
			log.Fatalf("Error: GCP_PROJECT is required for the %s backend.", cfg.Store.Backend)
		}
	default:
		log.Fatalf("Error: Unknown STORE_BACKEND %q.", cfg.Store.Backend)
	}
	if cfg.ChangeFeedTopic != "" && cfg.ProjectID == "" {
		log.Fatalf("Error: GCP_PROJECT is required when CHANGE_FEED_TOPIC is set.")
	}
	return cfg
}

// getEnvOr returns the variable or fallback when it is unset.
func getEnvOr(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getDuration parses a Go duration such as "25s", keeping fallback when the
// variable is unset or invalid.
func getDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Warn("Invalid duration, using default", "key", key, "value", value, "default", fallback)
		return fallback
	}
	return d
}
