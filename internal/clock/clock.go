// Package clock provides the session timecode source: a 1 Hz wall-clock
// tick for display and a fixed-rate software frame counter used to tag
// scan events and overlay text. The counter is a deterministic proxy, not
// derived from captured video frames.
package clock

import (
	"sync"
	"time"

	"github.com/xowhq/boothcore/internal/errs"
)

// DefaultFrameRate is the nominal frame counter rate in increments/second.
const DefaultFrameRate = 30

// Clock measures elapsed time and frames for one recording session. Both
// restart from zero on Start.
type Clock struct {
	rate int
	now  func() time.Time

	mu      sync.Mutex
	running bool
	started time.Time
	final   time.Duration
	ticks   chan int
	done    chan struct{}
}

// New creates a stopped clock. rate <= 0 selects DefaultFrameRate; now ==
// nil selects time.Now (tests inject a fake time source).
func New(rate int, now func() time.Time) *Clock {
	if rate <= 0 {
		rate = DefaultFrameRate
	}
	if now == nil {
		now = time.Now
	}
	return &Clock{rate: rate, now: now}
}

// Rate returns the nominal frame rate.
func (c *Clock) Rate() int { return c.rate }

// Start resets elapsed time and the frame counter to zero and begins
// ticking. Returns ErrAlreadyRunning if the clock is active.
func (c *Clock) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errs.ErrAlreadyRunning
	}
	c.running = true
	c.started = c.now()
	c.final = 0
	c.ticks = make(chan int, 8)
	c.done = make(chan struct{})
	go c.tickLoop(c.ticks, c.done)
	return nil
}

// Stop halts the clock and returns the final elapsed seconds and frame
// counter. Idempotent: stopping a stopped clock returns the last known
// values without side effects.
func (c *Clock) Stop() (float64, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.final = c.now().Sub(c.started)
		c.running = false
		close(c.done)
	}
	return c.final.Seconds(), c.frameAt(c.final)
}

// ElapsedSeconds returns the seconds elapsed since Start, or the final
// value once stopped.
func (c *Clock) ElapsedSeconds() float64 {
	return c.elapsed().Seconds()
}

// Frame returns the current frame counter value, valid whether running or
// stopped. Monotonically non-decreasing while running.
func (c *Clock) Frame() int {
	return c.frameAt(c.elapsed())
}

// Running reports whether the clock is active.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Ticks returns the 1 Hz elapsed-seconds channel of the current run. The
// channel is closed when the clock stops. Nil before the first Start.
func (c *Clock) Ticks() <-chan int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

func (c *Clock) elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return c.now().Sub(c.started)
	}
	return c.final
}

func (c *Clock) frameAt(d time.Duration) int {
	return int(d.Seconds() * float64(c.rate))
}

// tickLoop emits whole elapsed seconds once per second until the clock
// stops. Display-only; scan timestamps read the clock directly.
func (c *Clock) tickLoop(ticks chan<- int, done <-chan struct{}) {
	defer close(ticks)
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			select {
			case ticks <- int(c.ElapsedSeconds()):
			default: // slow UI consumer drops a tick rather than stalling the clock
			}
		}
	}
}
