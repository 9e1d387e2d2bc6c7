package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Common errors returned by the Runner
var (
	ErrQueueClosed = errors.New("work queue is closed")
	ErrQueueFull   = errors.New("work queue is full")
)

// Runnable is one unit of queued work. It receives the runner's lifecycle
// context so in-flight work observes shutdown.
type Runnable func(ctx context.Context)

// RunnerConfig holds configuration for the work runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process work items
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory work queue
	QueueSize int
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount: 8,
		QueueSize:   256,
	}
}

// Runner manages a pool of worker goroutines draining a bounded in-memory
// queue. The scheduler fans a job's tasks out through it.
type Runner struct {
	work       chan Runnable
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     RunnerConfig
	logger     *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewRunner creates a new Runner with the specified configuration
func NewRunner(config RunnerConfig, logger *slog.Logger) *Runner {
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		config.WorkerCount = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultRunnerConfig().QueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		work:       make(chan Runnable, config.QueueSize),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger.With("component", "task_runner"),
	}
}

// Start launches the worker goroutines
func (r *Runner) Start() {
	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.logger.Info("task runner started", "worker_count", r.config.WorkerCount)
}

// Stop gracefully shuts down the runner. In-flight work observes the
// cancelled lifecycle context; queued-but-unstarted work is dropped.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.cancelFunc()
	r.wg.Wait()
	close(r.work)
	r.logger.Info("task runner stopped")
}

// Enqueue adds a work item to the queue.
// Returns ErrQueueFull if the queue is at capacity, ErrQueueClosed after Stop.
func (r *Runner) Enqueue(fn Runnable) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrQueueClosed
	}

	select {
	case r.work <- fn:
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(r.work))
	}
}

// worker drains the queue until shutdown
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case fn, ok := <-r.work:
			if !ok {
				r.logger.Debug("work channel closed, stopping worker", "worker_id", id)
				return
			}
			fn(r.ctx)
		}
	}
}
