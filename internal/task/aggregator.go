package task

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/cache"
	"github.com/plotforge/plotforge-api/internal/domain"
	"github.com/plotforge/plotforge-api/internal/events"
	"github.com/plotforge/plotforge-api/internal/store"
)

// Aggregator re-derives a job's status and progress from its render tasks.
// Reconcile is deterministic and idempotent: any number of concurrent or
// repeated calls converge on the same answer, because the derivation runs
// under exclusive row locks on the job and its tasks.
type Aggregator struct {
	db     store.Transactor
	jobs   store.JobStore
	tasks  store.RenderTaskStore
	bus    *events.Bus
	cache  cache.Cache
	logger *slog.Logger
}

// NewAggregator creates an Aggregator. cache may be a NoopCache when no
// redis is configured.
func NewAggregator(
	db store.Transactor,
	jobs store.JobStore,
	tasks store.RenderTaskStore,
	bus *events.Bus,
	c cache.Cache,
	logger *slog.Logger,
) *Aggregator {
	return &Aggregator{
		db:     db,
		jobs:   jobs,
		tasks:  tasks,
		bus:    bus,
		cache:  c,
		logger: logger.With("component", "aggregator"),
	}
}

// reconcileOutcome captures what one Reconcile pass decided, for the events
// emitted after the transaction commits.
type reconcileOutcome struct {
	changed   bool
	from      domain.JobStatus
	to        domain.JobStatus
	progress  int
	total     int
	success   int
	failed    int
	cancelled int
}

// Reconcile recomputes the job's status from its tasks inside one
// transaction with FOR UPDATE locks, then emits job_status_changed (and,
// on reaching a terminal status, done) only when the status actually moved.
// A terminal job whose tasks are not all terminal is healed back to RUNNING
// by the same derivation.
func (a *Aggregator) Reconcile(ctx context.Context, jobID uuid.UUID) error {
	var out reconcileOutcome

	err := a.db.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		jobs := a.jobs.WithTx(tx)
		tasks := a.tasks.WithTx(tx)

		job, err := jobs.GetByIDForUpdate(ctx, jobID)
		if err != nil {
			if store.IsNotFoundError(err) {
				// Job deleted while its tasks were in flight. Nothing to derive.
				return nil
			}
			return err
		}

		list, err := tasks.FindByJobIDForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return nil
		}

		out = derive(job, list)
		if !out.changed {
			return nil
		}

		return jobs.UpdateStatus(ctx, jobID, out.to, out.progress)
	})
	if err != nil {
		return fmt.Errorf("failed to reconcile job %s: %w", jobID, err)
	}

	if !out.changed {
		return nil
	}

	log := a.logger.With("job_id", jobID)

	if out.from == out.to {
		// Progress-only movement: the row was updated but the status did
		// not cross a boundary, so no status event fires.
		log.Debug("job progress reconciled", "status", out.to, "progress", out.progress)
		return nil
	}

	log.Info("job status reconciled",
		"from", out.from,
		"to", out.to,
		"progress", out.progress)

	// Cache and events are best-effort follow-ups; the committed row is
	// the source of truth.
	if err := a.cache.SetJobStatus(ctx, jobID, out.to); err != nil {
		log.Warn("failed to mirror job status to cache", "error", err)
	}

	payload := map[string]any{
		"from":      out.from,
		"to":        out.to,
		"total":     out.total,
		"success":   out.success,
		"failed":    out.failed,
		"cancelled": out.cancelled,
	}
	if err := a.bus.Emit(ctx, events.JobSubject(jobID), events.TypeJobStatusChanged, events.LevelInfo,
		fmt.Sprintf("job status changed from %s to %s", out.from, out.to),
		events.WithProgress(out.progress),
		events.WithPayload(payload)); err != nil {
		log.Error("failed to emit job status change event", "error", err)
	}

	if domain.IsTerminalJobStatus(out.to) {
		level := events.LevelInfo
		if out.to == domain.JobStatusFailed {
			level = events.LevelError
		}
		if err := a.bus.Emit(ctx, events.JobSubject(jobID), events.TypeDone, level,
			fmt.Sprintf("job finished with status %s", out.to),
			events.WithProgress(100),
			events.WithPayload(payload)); err != nil {
			log.Error("failed to emit job done event", "error", err)
		}
	}

	return nil
}

// derive applies the status precedence rule to the task set:
// all cancelled wins, then all success, then any success (partial), then
// failed. Until every task is terminal the job is RUNNING with averaged
// progress.
func derive(job *domain.Job, tasks []*domain.RenderTask) reconcileOutcome {
	out := reconcileOutcome{
		from:  job.Status,
		total: len(tasks),
	}

	progressSum := 0
	for _, t := range tasks {
		progressSum += t.Progress
		switch t.Status {
		case domain.TaskStatusSuccess:
			out.success++
		case domain.TaskStatusFailed:
			out.failed++
		case domain.TaskStatusCancelled:
			out.cancelled++
		}
	}

	terminal := out.success + out.failed + out.cancelled
	if terminal < out.total {
		out.to = domain.JobStatusRunning
		out.progress = progressSum / out.total
	} else {
		out.progress = 100
		switch {
		case out.cancelled == out.total:
			out.to = domain.JobStatusCancelled
		case out.success == out.total:
			out.to = domain.JobStatusSuccess
		case out.success > 0:
			out.to = domain.JobStatusPartialSuccess
		default:
			out.to = domain.JobStatusFailed
		}
	}

	out.changed = out.to != job.Status || out.progress != job.Progress
	return out
}
