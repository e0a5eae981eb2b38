package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"github.com/mauv0809/tictac-duel/internal/engine"
	"github.com/mauv0809/tictac-duel/internal/model"
)

// DefaultTurnTimeout is how long a player may hold the turn.
const DefaultTurnTimeout = 25 * time.Second

// Expiry describes the turn a TurnClock gave up on.
type Expiry struct {
	MatchID string
	Symbol  engine.Symbol
	Board   engine.Board
}

// TurnClock runs the local player's countdown for one match. Only the player
// holding the turn runs a clock, so the opponent never races the pass.
type TurnClock struct {
	countdown *Countdown
	timeout   time.Duration
	expire    func(Expiry)

	mu      sync.Mutex
	running *Expiry
}

// NewTurnClock creates a turn clock that calls expire when the local player
// runs out of time.
func NewTurnClock(clock clockwork.Clock, timeout time.Duration, expire func(Expiry)) *TurnClock {
	if timeout <= 0 {
		timeout = DefaultTurnTimeout
	}
	return &TurnClock{
		countdown: NewCountdown(clock),
		timeout:   timeout,
		expire:    expire,
	}
}

// Observe feeds the latest snapshot of a match to the clock. The clock starts
// when self holds the turn of an ongoing match and no countdown is running for
// that turn, and stops when the turn moves away or the match ends.
func (t *TurnClock) Observe(m model.Match, self string) {
	symbol := m.SymbolOf(self)
	if m.Status != model.MatchOngoing || symbol == engine.Empty || m.CurrentTurn != symbol {
		t.Stop()
		return
	}

	turn := Expiry{MatchID: m.ID, Symbol: symbol, Board: m.Board}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running != nil && *t.running == turn {
		if _, ok := t.countdown.Running(); ok {
			return
		}
	}
	t.running = &turn
	log.Debug("Starting turn clock", "matchID", m.ID, "symbol", symbol, "timeout", t.timeout)
	t.countdown.Start(turnKey(turn), t.timeout, func() {
		t.mu.Lock()
		t.running = nil
		t.mu.Unlock()
		t.expire(turn)
	})
}

// Stop cancels any running countdown.
func (t *TurnClock) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = nil
	t.countdown.Stop()
}

// Remaining is the time left on the running turn, or zero.
func (t *TurnClock) Remaining() time.Duration {
	return t.countdown.Remaining()
}

func turnKey(e Expiry) string {
	return fmt.Sprintf("%s/%s/%v", e.MatchID, e.Symbol, e.Board.Strings())
}
