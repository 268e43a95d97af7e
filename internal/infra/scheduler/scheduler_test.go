package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/observability"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/scheduler"
)

func TestScheduler_RunsJobAndStops(t *testing.T) {
	s := scheduler.New(observability.NewMetrics(), zaptest.NewLogger(t))

	var runs atomic.Int32
	require.NoError(t, s.Add(scheduler.Job{
		Name: "sweep",
		Spec: "@every 1s",
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	}))

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestScheduler_FailingJobKeepsRunning(t *testing.T) {
	s := scheduler.New(observability.NewMetrics(), zaptest.NewLogger(t))

	var runs atomic.Int32
	require.NoError(t, s.Add(scheduler.Job{
		Name: "flaky",
		Spec: "@every 1s",
		Run: func(context.Context) error {
			runs.Add(1)
			return errors.New("store unavailable")
		},
	}))

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 4*time.Second, 50*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_RejectsInvalidSpec(t *testing.T) {
	s := scheduler.New(observability.NewMetrics(), zaptest.NewLogger(t))

	err := s.Add(scheduler.Job{Name: "bad", Spec: "not a schedule", Run: func(context.Context) error { return nil }})
	assert.Error(t, err)
}
