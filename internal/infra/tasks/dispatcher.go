// Package tasks runs detached background work with bounded concurrency.
// Every task either completes or has its fallback invoked; nothing is left
// as an unobserved failure.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/observability"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/infra/resilience"
	"github.com/DoomZyx/MAFRASHOP-Backend-sub000/internal/port"
)

// ErrShuttingDown is passed to a task's fallback when it is dispatched after
// Shutdown started.
var ErrShuttingDown = errors.New("dispatcher shutting down")

// Dispatcher runs port.BackgroundTask values in supervised goroutines.
type Dispatcher struct {
	bulkhead *resilience.Bulkhead
	timeout  time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu       sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	baseCtx  context.Context
	cancelFn context.CancelFunc
}

// NewDispatcher creates a dispatcher running at most maxConcurrent tasks at
// once, each bounded by timeout.
func NewDispatcher(maxConcurrent int, timeout time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		bulkhead: resilience.NewBulkhead(maxConcurrent),
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
		baseCtx:  ctx,
		cancelFn: cancel,
	}
}

// Dispatch schedules task and returns immediately. The task does not inherit
// any request context; it only stops at its own timeout.
func (d *Dispatcher) Dispatch(task port.BackgroundTask) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.metrics.IncrTask(task.Name, "rejected")
		d.logger.Warn("background task rejected",
			zap.String("task", task.Name),
			zap.String("account_id", task.AccountID),
		)
		d.fallback(context.Background(), task, ErrShuttingDown)
		return
	}

	d.wg.Add(1)
	go d.run(task)
}

func (d *Dispatcher) run(task port.BackgroundTask) {
	defer d.wg.Done()

	if err := d.bulkhead.Acquire(d.baseCtx); err != nil {
		d.metrics.IncrTask(task.Name, "rejected")
		d.fallback(context.Background(), task, ErrShuttingDown)
		return
	}
	defer d.bulkhead.Release()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()
	err := d.safeRun(ctx, task)
	d.metrics.RecordRequestDuration("task."+task.Name, time.Since(start))

	if err == nil {
		d.metrics.IncrTask(task.Name, "ok")
		return
	}

	fields := []zap.Field{
		zap.String("task", task.Name),
		zap.String("account_id", task.AccountID),
		zap.Error(err),
	}
	result := "error"
	var pe *panicError
	if errors.As(err, &pe) {
		result = "panic"
		fields = append(fields, zap.ByteString("stack", pe.stack))
	}
	d.metrics.IncrTask(task.Name, result)
	d.logger.Error("background task failed", append(fields, zap.String("result", result))...)

	// The task context may already be exhausted; the fallback write gets
	// its own budget.
	fbCtx, fbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer fbCancel()
	d.fallback(fbCtx, task, err)
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func (d *Dispatcher) safeRun(ctx context.Context, task port.BackgroundTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return task.Run(ctx)
}

func (d *Dispatcher) fallback(ctx context.Context, task port.BackgroundTask, cause error) {
	if task.Fallback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("background task fallback panicked",
				zap.String("task", task.Name),
				zap.String("account_id", task.AccountID),
				zap.Any("panic", r),
			)
		}
	}()
	task.Fallback(ctx, cause)
}

// Wait blocks until every dispatched task has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown stops accepting tasks and waits for running ones until ctx ends.
// Tasks still waiting for a slot when ctx ends are handed to their fallback.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancelFn()
		return nil
	case <-ctx.Done():
		d.cancelFn()
		return ctx.Err()
	}
}
