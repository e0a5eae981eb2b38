package expiry

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/mauv0809/tictac-duel/internal/challenge"
	"github.com/mauv0809/tictac-duel/internal/model"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
)

func New(store recordstore.Store, challenges challenge.Negotiator, cfg Config) *Sweeper {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Sweeper{store: store, challenges: challenges, cfg: cfg}
}

// Start schedules a sweep every interval until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler(gocron.WithClock(s.cfg.Clock))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.cfg.Interval),
		gocron.NewTask(func() {
			if _, err := s.Sweep(ctx); err != nil {
				log.Error("Challenge expiry sweep failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("expire-challenges"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}
	s.scheduler = sched
	sched.Start()
	log.Info("Challenge expiry scheduled", "interval", s.cfg.Interval, "ttl", s.cfg.TTL)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop shuts the scheduler down. Safe to call more than once.
func (s *Sweeper) Stop() {
	if s.scheduler == nil {
		return
	}
	s.stopOnce.Do(func() {
		if err := s.scheduler.Shutdown(); err != nil {
			log.Debug("Scheduler shutdown", "error", err)
		}
	})
}

// Sweep expires every pending challenge older than the TTL and returns how
// many it moved. Expire is guarded, so a challenge answered meanwhile keeps
// its answer and is not counted.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	docs, sub, err := s.store.Query(ctx, model.CollectionChallenges, recordstore.Eq("status", model.ChallengePending))
	if err != nil {
		return 0, err
	}
	sub.Close()

	cutoff := s.cfg.Clock.Now().Add(-s.cfg.TTL)
	expired := 0
	for _, doc := range docs {
		c, err := model.ChallengeFromDocument(doc)
		if err != nil {
			log.Warn("Skipping malformed challenge", "challengeID", doc.ID, "error", err)
			continue
		}
		if c.CreatedAt.After(cutoff) {
			continue
		}
		moved, err := s.challenges.Expire(ctx, c.ID)
		if err != nil {
			return expired, fmt.Errorf("failed to expire challenge %s: %w", c.ID, err)
		}
		if !moved {
			log.Debug("Challenge answered before expiry", "challengeID", c.ID)
			continue
		}
		expired++
		log.Info("Expired challenge", "challengeID", c.ID, "from", c.FromUserID, "to", c.ToUserID)
	}
	log.Debug("Challenge expiry sweep finished", "pending", len(docs), "expired", expired)
	return expired, nil
}
