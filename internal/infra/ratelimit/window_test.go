package ratelimit_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestWindow_ThirtyFirstCallIsRejected(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	w := ratelimit.NewWindow(30, time.Minute, ratelimit.WithClock(clock.Now))

	for i := 0; i < 30; i++ {
		_, ok := w.Allow()
		require.True(t, ok, "call %d should be admitted", i+1)
		clock.Advance(time.Second)
	}

	wait, ok := w.Allow()
	assert.False(t, ok)
	assert.True(t, wait > 0)
	assert.Equal(t, 30*time.Second, wait)
	assert.Equal(t, 30, w.InFlight())
}

func TestWindow_AdmitsAfterOldestAgesOut(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	w := ratelimit.NewWindow(30, time.Minute, ratelimit.WithClock(clock.Now))

	for i := 0; i < 30; i++ {
		_, ok := w.Allow()
		require.True(t, ok)
	}
	_, ok := w.Allow()
	require.False(t, ok)

	clock.Advance(59 * time.Second)
	wait, ok := w.Allow()
	require.False(t, ok)
	assert.Equal(t, time.Second, wait)

	clock.Advance(time.Second)
	_, ok = w.Allow()
	assert.True(t, ok)
	assert.Equal(t, 1, w.InFlight())
}

func TestWindow_RejectedCallsDoNotConsumeSlots(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	w := ratelimit.NewWindow(2, time.Minute, ratelimit.WithClock(clock.Now))

	w.Allow()
	w.Allow()
	for i := 0; i < 10; i++ {
		_, ok := w.Allow()
		require.False(t, ok)
	}
	assert.Equal(t, 2, w.InFlight())
}

func TestWindow_ConcurrentCallers(t *testing.T) {
	w := ratelimit.NewWindow(30, time.Minute)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := w.Allow(); ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 30, admitted)
}
