package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/mauv0809/tictac-duel/internal/metrics"
	"github.com/mauv0809/tictac-duel/internal/session"
)

type registry struct {
	base    context.Context
	cfg     session.Config
	deps    session.Deps
	metrics metrics.Metrics
	clock   clockwork.Clock

	mu       sync.Mutex
	sessions map[string]*session.Session
	lastSeen map[string]time.Time

	scheduler gocron.Scheduler
	stopOnce  sync.Once
}
