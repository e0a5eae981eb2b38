package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/mauv0809/tictac-duel/internal/session"
)

// New creates a registry. Sessions outlive the requests that open them and
// stop when base is cancelled. cfg is the template for every session; its
// user fields are filled in per user.
func New(base context.Context, cfg session.Config, deps session.Deps) Registry {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &registry{
		base:     base,
		cfg:      cfg,
		deps:     deps,
		metrics:  deps.Metrics,
		clock:    clock,
		sessions: make(map[string]*session.Session),
		lastSeen: make(map[string]time.Time),
	}
}

// Open is called on every request, so it also marks the user as active.
// Sessions are built outside the lock; when two requests race, the first
// session registered wins and the other is closed.
func (r *registry) Open(ctx context.Context, userID, userName string) (*session.Session, error) {
	if s, ok := r.live(userID); ok {
		return s, nil
	}

	cfg := r.cfg
	cfg.UserID = userID
	cfg.UserName = userName
	if cfg.UserName == "" {
		cfg.UserName = userID
	}
	s, err := session.New(r.base, cfg, r.deps)
	if err != nil {
		log.Error("Failed to open session", "user", userID, "error", err)
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.liveLocked(userID); ok {
		r.mu.Unlock()
		s.Close()
		log.Debug("Concurrent open lost, reusing session", "user", userID)
		return existing, nil
	}
	r.sessions[userID] = s
	r.lastSeen[userID] = r.clock.Now()
	active := len(r.sessions)
	r.metrics.SetActiveSessions(active)
	r.mu.Unlock()

	log.Info("Opened session", "user", userID, "active", active)
	return s, nil
}

func (r *registry) live(userID string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.liveLocked(userID)
}

// liveLocked returns the user's running session and drops a stopped one.
func (r *registry) liveLocked(userID string) (*session.Session, bool) {
	s, ok := r.sessions[userID]
	if !ok {
		return nil, false
	}
	select {
	case <-s.Done():
		delete(r.sessions, userID)
		delete(r.lastSeen, userID)
		r.metrics.SetActiveSessions(len(r.sessions))
		return nil, false
	default:
		r.lastSeen[userID] = r.clock.Now()
		return s, true
	}
}

func (r *registry) Get(userID string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

func (r *registry) Close(userID string) {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	delete(r.sessions, userID)
	delete(r.lastSeen, userID)
	r.metrics.SetActiveSessions(len(r.sessions))
	r.mu.Unlock()

	if ok {
		s.Close()
	}
}

func (r *registry) CloseAll() {
	r.stopEviction()

	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*session.Session)
	r.lastSeen = make(map[string]time.Time)
	r.metrics.SetActiveSessions(0)
	r.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	log.Info("Closed all sessions", "count", len(all))
}

func (r *registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *registry) EvictIdle(maxIdle time.Duration) int {
	cutoff := r.clock.Now().Add(-maxIdle)

	r.mu.Lock()
	var idle []*session.Session
	for userID, s := range r.sessions {
		if r.lastSeen[userID].After(cutoff) {
			continue
		}
		idle = append(idle, s)
		delete(r.sessions, userID)
		delete(r.lastSeen, userID)
		log.Info("Evicting idle session", "user", userID)
	}
	r.metrics.SetActiveSessions(len(r.sessions))
	r.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	return len(idle)
}

func (r *registry) StartEviction(ctx context.Context, maxIdle, interval time.Duration) error {
	sched, err := gocron.NewScheduler(gocron.WithClock(r.clock))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			if n := r.EvictIdle(maxIdle); n > 0 {
				log.Debug("Idle session sweep finished", "evicted", n)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("evict-idle-sessions"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule session eviction: %w", err)
	}
	r.mu.Lock()
	r.scheduler = sched
	r.mu.Unlock()
	sched.Start()
	log.Info("Idle session eviction scheduled", "interval", interval, "maxIdle", maxIdle)

	go func() {
		<-ctx.Done()
		r.stopEviction()
	}()
	return nil
}

func (r *registry) stopEviction() {
	r.mu.Lock()
	sched := r.scheduler
	r.mu.Unlock()
	if sched == nil {
		return
	}
	r.stopOnce.Do(func() {
		if err := sched.Shutdown(); err != nil {
			log.Debug("Scheduler shutdown", "error", err)
		}
	})
}
