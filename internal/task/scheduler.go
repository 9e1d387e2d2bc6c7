package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/domain"
	"github.com/plotforge/plotforge-api/internal/events"
	"github.com/plotforge/plotforge-api/internal/store"
)

// Scheduler fans a job's pending render tasks out onto the runner's worker
// pool and arranges the join: when the last outstanding task finishes, the
// job's status is re-derived from its children. Each per-task completion
// path also reconciles, so the join-barrier pass is a redundant, idempotent
// safety net rather than the only trigger.
type Scheduler struct {
	jobs       store.JobStore
	tasks      store.RenderTaskStore
	bus        *events.Bus
	executor   *Executor
	aggregator *Aggregator
	runner     *Runner
	logger     *slog.Logger
}

// NewScheduler creates a Scheduler over the given collaborators.
func NewScheduler(
	jobs store.JobStore,
	tasks store.RenderTaskStore,
	bus *events.Bus,
	executor *Executor,
	aggregator *Aggregator,
	runner *Runner,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		jobs:       jobs,
		tasks:      tasks,
		bus:        bus,
		executor:   executor,
		aggregator: aggregator,
		runner:     runner,
		logger:     logger.With("component", "scheduler"),
	}
}

// Submit schedules every pending render task of the job for execution.
// A cancelled job is refused so its terminal status cannot be revived.
// A job with no pending tasks gets a WARN event and no scheduling. Only
// infrastructure failures (store reads, a full queue) propagate to the
// caller; individual task failures are recorded as task data and never
// surface here.
func (s *Scheduler) Submit(ctx context.Context, jobID uuid.UUID) error {
	log := s.logger.With("job_id", jobID)

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status == domain.JobStatusCancelled {
		log.Warn("refusing to schedule a cancelled job")
		return domain.ErrJobCancelled
	}

	pending, err := s.tasks.FindPendingByJobID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load pending tasks: %w", err)
	}

	if len(pending) == 0 {
		log.Warn("no pending tasks to schedule")
		return s.bus.Emit(ctx, events.JobSubject(jobID), events.TypeWarning, events.LevelWarn,
			"no pending tasks to schedule")
	}

	if err := s.bus.Emit(ctx, events.JobSubject(jobID), events.TypeStart, events.LevelInfo,
		fmt.Sprintf("scheduling %d render tasks", len(pending))); err != nil {
		return err
	}

	outstanding := int64(len(pending))

	for _, t := range pending {
		taskID := t.ID
		err := s.runner.Enqueue(func(runCtx context.Context) {
			s.executor.ExecuteRender(runCtx, taskID)

			// Per-task reconciliation keeps the job's status live while
			// siblings are still running.
			if err := s.aggregator.Reconcile(runCtx, jobID); err != nil {
				log.Error("per-task reconciliation failed",
					"task_id", taskID, "error", err)
			}

			if atomic.AddInt64(&outstanding, -1) == 0 {
				if err := s.aggregator.Reconcile(runCtx, jobID); err != nil {
					log.Error("final reconciliation failed", "error", err)
				}
			}
		})
		if err != nil {
			return fmt.Errorf("failed to enqueue render task %s: %w", taskID, err)
		}
	}

	log.Info("job scheduled", "task_count", len(pending))
	return nil
}
