package config

import "time"

// Config holds all configuration for the application.
type Config struct {
	DBName        string
	MigrationsDir string
	Port          string
	Turso         TursoConfig
	Store         StoreConfig
	ProjectID     string
	// ChangeFeedTopic is the Pub/Sub topic record changes are announced on.
	// Empty disables the feed.
	ChangeFeedTopic string
	Timeouts        TimeoutConfig
}

type TursoConfig struct {
	PrimaryURL string
	AuthToken  string
}

// StoreBackend selects where records live.
type StoreBackend string

const (
	BackendSQL       StoreBackend = "sql"
	BackendFirestore StoreBackend = "firestore"
)

type StoreConfig struct {
	Backend StoreBackend
}

type TimeoutConfig struct {
	Turn           time.Duration
	Rematch        time.Duration
	ChallengeTTL   time.Duration
	ExpiryInterval time.Duration
	// SessionIdle is how long a session may go without requests before it
	// is closed.
	SessionIdle time.Duration
}
