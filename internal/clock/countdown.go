package clock

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Countdown runs at most one timer at a time. Starting it again replaces the
// running timer, and a replaced or stopped timer never fires.
type Countdown struct {
	clock clockwork.Clock

	mu       sync.Mutex
	timer    clockwork.Timer
	gen      uint64
	key      string
	deadline time.Time
}

// NewCountdown creates a stopped countdown on clock.
func NewCountdown(clock clockwork.Clock) *Countdown {
	return &Countdown{clock: clock}
}

// Start (re)starts the countdown for key. fire runs once, on its own
// goroutine, when d elapses unless the countdown is stopped or restarted first.
func (c *Countdown) Start(key string, d time.Duration, fire func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.gen++
	gen := c.gen
	c.key = key
	c.deadline = c.clock.Now().Add(d)
	c.timer = c.clock.AfterFunc(d, func() {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		c.key = ""
		c.mu.Unlock()
		fire()
	})
}

// Stop cancels the running countdown. Stopping a stopped countdown is a no-op.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Countdown) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	// Invalidate a fire that is already waiting for the lock.
	c.gen++
	c.key = ""
}

// Running returns the key of the running countdown.
func (c *Countdown) Running() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key, c.timer != nil
}

// Remaining is the time left, or zero when stopped.
func (c *Countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer == nil {
		return 0
	}
	left := c.deadline.Sub(c.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}
