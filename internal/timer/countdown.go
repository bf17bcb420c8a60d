// Package timer implements the exam countdown as an explicit state machine.
package timer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stemsi/exstem-exam-engine/internal/clock"
)

// State is the countdown phase.
type State int

const (
	Idle State = iota
	Counting
	Expired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Counting:
		return "counting"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TickInterval is the countdown granularity.
const TickInterval = time.Second

var (
	ErrNotIdle           = errors.New("countdown already started")
	ErrNegativeRemaining = errors.New("remaining seconds must not be negative")
)

// Options configures a Countdown. Both callbacks run on the tick goroutine; they
// must not block and must not call Stop.
type Options struct {
	// OnTick receives every new remaining value, including the final 0.
	OnTick func(remaining int)
	// OnExpire runs exactly once when Counting reaches 0.
	OnExpire func()
}

// Countdown owns a single tick source and moves Idle -> Counting -> Expired.
type Countdown struct {
	clock clock.Clock
	opts  Options

	mu        sync.Mutex
	state     State
	remaining int
	stop      chan struct{}
	done      chan struct{}
}

// New creates an idle Countdown.
func New(c clock.Clock, opts Options) *Countdown {
	return &Countdown{clock: c, opts: opts}
}

// Start begins counting down from remaining seconds. Zero moves straight to
// Expired without ticking and without OnExpire.
func (c *Countdown) Start(remaining int) error {
	if remaining < 0 {
		return ErrNegativeRemaining
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		return ErrNotIdle
	}

	c.remaining = remaining
	if remaining == 0 {
		c.state = Expired
		return nil
	}

	c.state = Counting
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(c.clock.NewTicker(TickInterval), c.stop, c.done)
	return nil
}

// Stop cancels the tick source. It is safe to call any number of times and
// returns once no further tick can be observed.
func (c *Countdown) Stop() {
	c.mu.Lock()
	if c.state == Counting {
		c.state = Idle
	}
	stop, done := c.stop, c.done
	c.stop = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}
}

// State returns the current phase.
func (c *Countdown) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining returns the seconds left, never negative.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) run(tk clock.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer tk.Stop()

	for {
		select {
		case <-stop:
			return
		case <-tk.C():
			if c.tick(tk, stop) {
				return
			}
		}
	}
}

// tick applies one decrement and reports whether the loop should end.
func (c *Countdown) tick(tk clock.Ticker, stop <-chan struct{}) bool {
	c.mu.Lock()
	select {
	case <-stop:
		c.mu.Unlock()
		return true
	default:
	}
	if c.state != Counting {
		c.mu.Unlock()
		return true
	}

	c.remaining--
	if c.remaining < 0 {
		c.remaining = 0
	}
	remaining := c.remaining
	expired := remaining == 0
	if expired {
		tk.Stop()
		c.state = Expired
	}
	c.mu.Unlock()

	if c.opts.OnTick != nil {
		c.opts.OnTick(remaining)
	}
	if expired && c.opts.OnExpire != nil {
		c.opts.OnExpire()
	}
	return expired
}
