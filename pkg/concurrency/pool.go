// Package concurrency provides a bounded worker pool for background side effects
package concurrency

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"signal_gateway/internal/core"

	"github.com/alitto/pond"
)

var (
	// ErrPoolFull is returned by a non-blocking pool when its queue is at capacity
	ErrPoolFull = errors.New("worker pool is full")
	// ErrPoolStopped is returned by Submit once Stop or Drain has been called
	ErrPoolStopped = errors.New("worker pool is stopped")
)

const (
	defaultMaxWorkers  = 4
	defaultMaxCapacity = 100
	defaultIdleTimeout = time.Minute
)

// PoolConfig holds configuration for a worker pool
type PoolConfig struct {
	Name        string
	MaxWorkers  int
	MaxCapacity int
	IdleTimeout time.Duration
	NonBlocking bool // Submit fails fast instead of blocking when full
}

// PoolStats is a point-in-time view of the pool's counters
type PoolStats struct {
	Running    int
	Idle       int
	Waiting    uint64
	Submitted  uint64
	Successful uint64
	Failed     uint64
}

// WorkerPool runs fire-and-forget tasks on alitto/pond and logs recovered panics
type WorkerPool struct {
	pool    *pond.WorkerPool
	config  PoolConfig
	logger  core.ILogger
	stopped atomic.Bool
}

func NewWorkerPool(cfg PoolConfig, logger core.ILogger) *WorkerPool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = defaultMaxWorkers
	}
	if cfg.MaxCapacity <= 0 {
		cfg.MaxCapacity = defaultMaxCapacity
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}

	wp := &WorkerPool{
		config: cfg,
		logger: logger.WithFields(map[string]interface{}{"component": "worker_pool", "pool": cfg.Name}),
	}
	wp.pool = pond.New(cfg.MaxWorkers, cfg.MaxCapacity,
		pond.MinWorkers(1),
		pond.IdleTimeout(cfg.IdleTimeout),
		pond.Strategy(pond.Balanced()),
		pond.PanicHandler(func(p interface{}) {
			wp.logger.Error("Task panic recovered", "panic", p)
		}),
	)
	return wp
}

// Submit queues task. A non-blocking pool returns ErrPoolFull instead of waiting for room.
func (wp *WorkerPool) Submit(task func()) error {
	if wp.stopped.Load() {
		return fmt.Errorf("%w: %s", ErrPoolStopped, wp.config.Name)
	}
	if !wp.config.NonBlocking {
		wp.pool.Submit(task)
		return nil
	}
	if !wp.pool.TrySubmit(task) {
		return fmt.Errorf("%w: %s (capacity %d)", ErrPoolFull, wp.config.Name, wp.config.MaxCapacity)
	}
	return nil
}

// Stop rejects new tasks and waits for queued ones to finish
func (wp *WorkerPool) Stop() {
	if wp.stopped.Swap(true) {
		return
	}
	wp.pool.StopAndWait()
}

// Drain is Stop bounded by timeout. It reports whether the queue emptied in time;
// tasks still running are abandoned.
func (wp *WorkerPool) Drain(timeout time.Duration) bool {
	if wp.stopped.Swap(true) {
		return true
	}
	wp.pool.StopAndWaitFor(timeout)
	stats := wp.Stats()
	if stats.Waiting > 0 || stats.Running > 0 {
		wp.logger.Warn("Pool drain timed out", "waiting", stats.Waiting, "running", stats.Running)
		return false
	}
	return true
}

func (wp *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Running:    wp.pool.RunningWorkers(),
		Idle:       wp.pool.IdleWorkers(),
		Waiting:    wp.pool.WaitingTasks(),
		Submitted:  wp.pool.SubmittedTasks(),
		Successful: wp.pool.SuccessfulTasks(),
		Failed:     wp.pool.FailedTasks(),
	}
}
