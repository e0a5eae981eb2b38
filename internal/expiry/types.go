package expiry

import (
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/mauv0809/tictac-duel/internal/challenge"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
)

const (
	DefaultTTL      = 10 * time.Minute
	DefaultInterval = time.Minute
)

// Config tunes the sweeper.
type Config struct {
	// TTL is how long a challenge may stay pending.
	TTL time.Duration
	// Interval is the time between sweeps.
	Interval time.Duration
	Clock    clockwork.Clock
}

// Sweeper expires challenges nobody answered in time.
type Sweeper struct {
	store      recordstore.Store
	challenges challenge.Negotiator
	cfg        Config
	scheduler  gocron.Scheduler
	stopOnce   sync.Once
}
