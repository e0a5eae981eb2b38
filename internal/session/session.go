package session

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"github.com/mauv0809/tictac-duel/internal/clock"
	"github.com/mauv0809/tictac-duel/internal/model"
	"github.com/mauv0809/tictac-duel/internal/recordstore"
	"github.com/mauv0809/tictac-duel/internal/rematch"
)

const inboxSize = 64

type msg interface{ isSessionMsg() }

// storeEvent is a change delivered by one of the session's subscriptions.
type storeEvent struct {
	sub recordstore.Subscription
	ev  recordstore.Event
}

func (storeEvent) isSessionMsg() {}

type turnExpired struct{ expiry clock.Expiry }

func (turnExpired) isSessionMsg() {}

type rematchExpired struct{ matchID string }

func (rematchExpired) isSessionMsg() {}

// resubscribe asks the loop to reopen a listener that failed.
type resubscribe struct{ kind, id string }

func (resubscribe) isSessionMsg() {}

// call runs fn on the session loop.
type call struct {
	fn    func(ctx context.Context) error
	ctx   context.Context
	reply chan error
}

func (call) isSessionMsg() {}

// Session is one client's observer loop. All state below the mutex is owned
// by the loop goroutine; the outside talks to it through the inbox only.
type Session struct {
	cfg  Config
	deps Deps

	inbox  chan msg
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	turnClock    *clock.TurnClock
	rematchClock *clock.Countdown

	screen     Screen
	spectating bool
	notice     string

	lobbyIncoming    recordstore.Subscription
	lobbySpectatable recordstore.Subscription
	incoming         map[string]model.Challenge
	spectatable      map[string]model.Match

	challengeSub recordstore.Subscription
	challengeID  string
	challenge    *model.Challenge

	matchSub recordstore.Subscription
	matchID  string
	match    *model.Match

	seriesSub recordstore.Subscription
	seriesID  string
	series    *model.Series

	guards guards

	mu       sync.Mutex
	latest   View
	revision uint64
	changed  chan struct{}
}

// guards keep one-shot transitions from firing twice for this client. They
// are reset whenever the session navigates.
type guards struct {
	// navigated holds the documents this client already navigated away from.
	navigated map[string]bool
	// processingResult holds the series games whose result this client recorded.
	processingResult map[string]bool
	// navigationInProgress is set while the readiness handshake is running.
	navigationInProgress bool
	// repairing holds the series whose missing fields are being repaired.
	repairing map[string]bool
}

func newGuards() guards {
	return guards{
		navigated:        make(map[string]bool),
		processingResult: make(map[string]bool),
		repairing:        make(map[string]bool),
	}
}

// New starts a session for cfg.UserID in the lobby.
func New(parent context.Context, cfg Config, deps Deps) (*Session, error) {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.RematchTimeout <= 0 {
		cfg.RematchTimeout = rematch.DefaultTimeout
	}

	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		cfg:          cfg,
		deps:         deps,
		inbox:        make(chan msg, inboxSize),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		rematchClock: clock.NewCountdown(cfg.Clock),
		incoming:     make(map[string]model.Challenge),
		spectatable:  make(map[string]model.Match),
		guards:       newGuards(),
		changed:      make(chan struct{}),
	}
	s.turnClock = clock.NewTurnClock(cfg.Clock, cfg.TurnTimeout, func(e clock.Expiry) {
		s.post(turnExpired{expiry: e})
	})

	if err := s.enterLobby(""); err != nil {
		cancel()
		return nil, err
	}
	s.publish()

	go s.loop()
	log.Info("Session started", "user", cfg.UserID)
	return s, nil
}

// UserID returns the local player.
func (s *Session) UserID() string {
	return s.cfg.UserID
}

// Close stops the loop, its countdowns and its subscriptions.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

// Done is closed when the session stopped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch m := m.(type) {
			case storeEvent:
				s.onStoreEvent(m)
			case turnExpired:
				s.onTurnExpired(m.expiry)
			case rematchExpired:
				s.onRematchExpired(m.matchID)
			case resubscribe:
				s.onResubscribe(m)
			case call:
				m.reply <- m.fn(m.ctx)
			}
			s.publish()
		}
	}
}

func (s *Session) shutdown() {
	s.turnClock.Stop()
	s.rematchClock.Stop()
	for _, sub := range []recordstore.Subscription{s.lobbyIncoming, s.lobbySpectatable, s.challengeSub, s.matchSub, s.seriesSub} {
		if sub != nil {
			sub.Close()
		}
	}
	log.Info("Session closed", "user", s.cfg.UserID)
}

// post delivers m to the loop unless the session is closing.
func (s *Session) post(m msg) {
	select {
	case s.inbox <- m:
	case <-s.ctx.Done():
	}
}

// do runs fn on the loop and waits for its result.
func (s *Session) do(ctx context.Context, fn func(ctx context.Context) error) error {
	reply := make(chan error, 1)
	select {
	case s.inbox <- call{fn: fn, ctx: ctx, reply: reply}:
	case <-s.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watch forwards sub's events to the loop until sub closes.
func (s *Session) watch(sub recordstore.Subscription) {
	go func() {
		for ev := range sub.Events() {
			select {
			case s.inbox <- storeEvent{sub: sub, ev: ev}:
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

// View returns the current projection with live countdowns.
func (s *Session) View(ctx context.Context) (View, error) {
	var v View
	err := s.do(ctx, func(context.Context) error {
		v = s.project()
		s.mu.Lock()
		v.Revision = s.revision
		s.mu.Unlock()
		return nil
	})
	return v, err
}

// WaitFor blocks until the projection satisfies pred and returns it.
func (s *Session) WaitFor(ctx context.Context, pred func(View) bool) (View, error) {
	for {
		s.mu.Lock()
		v, changed := s.latest, s.changed
		s.mu.Unlock()
		if pred(v) {
			return v, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return v, ctx.Err()
		case <-s.done:
			return v, ErrClosed
		}
	}
}

// publish stores the projection when it changed and wakes waiters.
func (s *Session) publish() {
	v := s.project()
	s.mu.Lock()
	defer s.mu.Unlock()
	v.Revision = s.revision
	if sameView(v, s.latest) {
		return
	}
	s.revision++
	v.Revision = s.revision
	s.latest = v
	close(s.changed)
	s.changed = make(chan struct{})
}
