package tasks_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/observability"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/tasks"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/port"
)

func TestDispatcher_ReturnsBeforeTaskCompletes(t *testing.T) {
	d := tasks.NewDispatcher(4, time.Second, observability.NewMetrics(), zaptest.NewLogger(t))

	release := make(chan struct{})
	var ran atomic.Bool
	d.Dispatch(port.BackgroundTask{
		Name: "detached",
		Run: func(ctx context.Context) error {
			<-release
			ran.Store(true)
			return nil
		},
	})

	assert.False(t, ran.Load())
	close(release)
	d.Wait()
	assert.True(t, ran.Load())
}

func TestDispatcher_FallbackOnErrorAndPanic(t *testing.T) {
	metrics := observability.NewMetrics()
	d := tasks.NewDispatcher(4, time.Second, metrics, zaptest.NewLogger(t))

	var (
		mu     sync.Mutex
		causes []error
	)
	record := func(_ context.Context, cause error) {
		mu.Lock()
		defer mu.Unlock()
		causes = append(causes, cause)
	}

	boom := errors.New("registry down")
	d.Dispatch(port.BackgroundTask{Name: "fails", Run: func(context.Context) error { return boom }, Fallback: record})
	d.Dispatch(port.BackgroundTask{Name: "panics", Run: func(context.Context) error { panic("nil map") }, Fallback: record})
	d.Dispatch(port.BackgroundTask{Name: "succeeds", Run: func(context.Context) error { return nil }, Fallback: record})
	d.Wait()

	require.Len(t, causes, 2)

	expected := `
# HELP shop_background_tasks_total Background task executions by result.
# TYPE shop_background_tasks_total counter
shop_background_tasks_total{result="error",task="fails"} 1
shop_background_tasks_total{result="ok",task="succeeds"} 1
shop_background_tasks_total{result="panic",task="panics"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry, strings.NewReader(expected), "shop_background_tasks_total"))
}

func TestDispatcher_TimeoutBoundsTask(t *testing.T) {
	d := tasks.NewDispatcher(1, 20*time.Millisecond, observability.NewMetrics(), zaptest.NewLogger(t))

	var cause atomic.Value
	d.Dispatch(port.BackgroundTask{
		Name: "slow",
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Fallback: func(_ context.Context, err error) { cause.Store(err) },
	})
	d.Wait()

	err, _ := cause.Load().(error)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcher_RejectsAfterShutdown(t *testing.T) {
	d := tasks.NewDispatcher(1, time.Second, observability.NewMetrics(), zaptest.NewLogger(t))
	require.NoError(t, d.Shutdown(context.Background()))

	var ran atomic.Bool
	var cause error
	d.Dispatch(port.BackgroundTask{
		Name:     "late",
		Run:      func(context.Context) error { ran.Store(true); return nil },
		Fallback: func(_ context.Context, err error) { cause = err },
	})

	assert.False(t, ran.Load())
	assert.ErrorIs(t, cause, tasks.ErrShuttingDown)
}

func TestDispatcher_BoundedConcurrency(t *testing.T) {
	d := tasks.NewDispatcher(2, time.Second, observability.NewMetrics(), zaptest.NewLogger(t))

	var current, peak atomic.Int32
	for i := 0; i < 10; i++ {
		d.Dispatch(port.BackgroundTask{
			Name: "bounded",
			Run: func(context.Context) error {
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
				return nil
			},
		})
	}
	d.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
}
