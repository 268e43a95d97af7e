// Package ratelimit implements a fail-fast sliding-log rate limiter. The
// window is process-local; each replica owns its own quota.
package ratelimit

import (
	"sync"
	"time"
)

// Window admits at most limit calls in any rolling period of length window.
type Window struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	calls  []time.Time
	now    func() time.Time
}

// Option customizes a Window.
type Option func(*Window)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Window) { w.now = now }
}

// NewWindow builds a limiter admitting limit calls per window.
func NewWindow(limit int, window time.Duration, opts ...Option) *Window {
	if limit < 1 {
		limit = 1
	}
	w := &Window{
		limit:  limit,
		window: window,
		calls:  make([]time.Time, 0, limit),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Allow records a call and returns true when the window has room. When it
// is full nothing is recorded and wait is the time until the oldest call
// ages out, always positive.
func (w *Window) Allow() (wait time.Duration, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)

	if len(w.calls) >= w.limit {
		wait = w.calls[0].Add(w.window).Sub(now)
		if wait <= 0 {
			wait = time.Millisecond
		}
		return wait, false
	}

	w.calls = append(w.calls, now)
	return 0, true
}

// InFlight returns the number of calls counted in the current window.
func (w *Window) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(w.now())
	return len(w.calls)
}

func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.calls) && !w.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.calls = append(w.calls[:0], w.calls[i:]...)
	}
}
