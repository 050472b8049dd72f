package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall time and timers so scheduling components can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer is a single-shot, resettable timer.
type Timer interface {
	// C returns the channel the timer fires on.
	C() <-chan time.Time
	// Reset re-arms the timer to fire after d.
	Reset(d time.Duration)
	// Stop disarms the timer. Returns false if it already fired.
	Stop() bool
}

// RealClock delegates to the time package.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

func (RealClock) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (rt *realTimer) C() <-chan time.Time  { return rt.t.C }
func (rt *realTimer) Reset(d time.Duration) { rt.t.Reset(d) }
func (rt *realTimer) Stop() bool           { return rt.t.Stop() }

// MockClock is a manually advanced clock. Advance moves the current time and
// fires any timers whose deadline has passed. The zero value is usable.
type MockClock struct {
	mu          sync.Mutex
	currentTime time.Time
	timers      []*mockTimer
}

// NewMockClock returns a MockClock starting at the given time.
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{currentTime: start}
}

// Set jumps the clock to an absolute time without firing timers.
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = t
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime
}

// Advance moves the clock forward and fires due timers.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.currentTime = c.currentTime.Add(d)
	now := c.currentTime
	var due []*mockTimer
	for _, t := range c.timers {
		if t.armed && !t.deadline.After(now) {
			t.armed = false
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		select {
		case t.c <- now:
		default:
		}
	}
}

func (c *MockClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &mockTimer{
		clk:      c,
		c:        make(chan time.Time, 1),
		deadline: c.currentTime.Add(d),
		armed:    true,
	}
	c.timers = append(c.timers, t)
	return t
}

type mockTimer struct {
	clk      *MockClock
	c        chan time.Time
	deadline time.Time
	armed    bool
}

func (t *mockTimer) C() <-chan time.Time { return t.c }

func (t *mockTimer) Reset(d time.Duration) {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	t.deadline = t.clk.currentTime.Add(d)
	t.armed = true
}

func (t *mockTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	was := t.armed
	t.armed = false
	return was
}
