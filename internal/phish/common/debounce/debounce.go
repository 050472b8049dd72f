// Package debounce coalesces bursts of triggers into single callback
// invocations, driven by an injected clock so tests never sleep.
package debounce

import (
	"sync"
	"time"

	"github.com/mengguiyouziyi/phish-aggregator/internal/phish/common/clock"
)

// Debouncer invokes fn once delay has elapsed since the most recent Trigger.
// fn runs on the debouncer's own goroutine; a Trigger arriving while fn runs
// schedules the next invocation instead of being lost. Safe for concurrent
// use.
type Debouncer struct {
	clk   clock.Clock
	delay time.Duration
	fn    func()
	quit  chan struct{}

	mu      sync.Mutex
	timer   clock.Timer
	last    time.Time
	pending bool
	closed  bool
}

// New returns an idle Debouncer; the first Trigger arms it. A nil clk falls
// back to the real clock.
func New(clk clock.Clock, delay time.Duration, fn func()) *Debouncer {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Debouncer{
		clk:   clk,
		delay: delay,
		fn:    fn,
		quit:  make(chan struct{}),
	}
}

// Trigger requests an fn invocation delay from now, superseding any
// invocation already scheduled.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.last = d.clk.Now()
	d.pending = true
	if d.timer == nil {
		d.timer = d.clk.NewTimer(d.delay)
		go d.loop(d.timer)
	} else {
		d.timer.Reset(d.delay)
	}
}

// Stop disarms the debouncer. A pending invocation is dropped and later
// Triggers are ignored. Stop is idempotent.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	t := d.timer
	d.mu.Unlock()

	if t != nil {
		t.Stop()
	}
	close(d.quit)
}

func (d *Debouncer) loop(t clock.Timer) {
	for {
		select {
		case <-t.C():
			if fn := d.due(t); fn != nil {
				fn()
			}
		case <-d.quit:
			return
		}
	}
}

// due decides whether a timer fire pays out. A stale fire racing a Reset
// re-arms for the remaining window instead of firing early.
func (d *Debouncer) due(t clock.Timer) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || !d.pending {
		return nil
	}
	remaining := d.delay - d.clk.Now().Sub(d.last)
	if remaining > 0 {
		t.Reset(remaining)
		return nil
	}
	d.pending = false
	return d.fn
}
