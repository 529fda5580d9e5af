// Package clock provides a time abstraction so pollers and timeouts can be
// driven by tests. Use RealClock in production and MockClock in tests.
package clock

import (
	"sync"
	"time"
)

// Clock is an interface for time operations, allowing time to be mocked in tests.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// AfterFunc waits for the duration to elapse and then calls f in its own goroutine.
	// It returns a Timer that can be used to cancel the call using its Stop method.
	AfterFunc(d time.Duration, f func()) Timer

	// Since returns the time elapsed since t
	Since(t time.Time) time.Duration
}

// Timer represents a single event that can be stopped or re-armed
type Timer interface {
	// Stop prevents the Timer from firing. Returns true if the call stops the timer,
	// false if the timer has already expired or been stopped.
	Stop() bool

	// Reset changes the timer to expire after duration d.
	// Returns true if the timer had been active, false if the timer had expired or been stopped.
	Reset(d time.Duration) bool
}

// RealClock implements Clock using the standard time package
type RealClock struct{}

type realTimer struct {
	timer *time.Timer
}

// NewRealClock creates a new RealClock instance
func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

func (c *RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return &realTimer{timer: time.AfterFunc(d, f)}
}

func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (t *realTimer) Stop() bool {
	return t.timer.Stop()
}

func (t *realTimer) Reset(d time.Duration) bool {
	return t.timer.Reset(d)
}

// MockClock is a Clock whose time only moves when Advance or Set is called.
// Expired timers fire synchronously on the goroutine that advanced the clock.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
	timers  []*mockTimer
}

type mockTimer struct {
	clock    *MockClock
	deadline time.Time
	f        func()
	stopped  bool
	mu       sync.Mutex
}

// NewMockClock creates a new MockClock starting at the given time
func NewMockClock(start time.Time) *MockClock {
	return &MockClock{
		current: start,
		timers:  make([]*mockTimer, 0),
	}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *MockClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &mockTimer{
		clock:    c,
		deadline: c.current.Add(d),
		f:        f,
	}
	c.timers = append(c.timers, timer)
	return timer
}

func (c *MockClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Sub(t)
}

// Pending returns the number of armed timers that have not fired yet
func (c *MockClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, timer := range c.timers {
		timer.mu.Lock()
		if !timer.stopped {
			n++
		}
		timer.mu.Unlock()
	}
	return n
}

// Advance moves the clock forward by d and fires every timer whose deadline has passed
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	now := c.current.Add(d)
	c.current = now

	var due, remaining []*mockTimer
	for _, timer := range c.timers {
		timer.mu.Lock()
		switch {
		case timer.stopped:
		case !timer.deadline.After(now):
			due = append(due, timer)
		default:
			remaining = append(remaining, timer)
		}
		timer.mu.Unlock()
	}
	c.timers = remaining
	c.mu.Unlock()

	// Callbacks may re-arm their timer, so they run without the clock lock held.
	for _, timer := range due {
		timer.mu.Lock()
		if timer.stopped {
			timer.mu.Unlock()
			continue
		}
		timer.stopped = true
		f := timer.f
		timer.mu.Unlock()
		f()
	}
}

// Set moves the clock to t, firing expired timers when t is in the future
func (c *MockClock) Set(t time.Time) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if t.After(current) {
		c.Advance(t.Sub(current))
		return
	}

	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

func (t *mockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

func (t *mockTimer) Reset(d time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasActive := !t.stopped
	t.stopped = false

	t.clock.mu.Lock()
	t.deadline = t.clock.current.Add(d)
	if !wasActive {
		t.clock.timers = append(t.clock.timers, t)
	}
	t.clock.mu.Unlock()

	return wasActive
}
