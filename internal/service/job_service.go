package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/broadcast"
	"github.com/plotforge/plotforge-api/internal/cache"
	"github.com/plotforge/plotforge-api/internal/domain"
	"github.com/plotforge/plotforge-api/internal/events"
	"github.com/plotforge/plotforge-api/internal/store"
)

// Common sentinel errors for JobService
var (
	// ErrJobNotCancellable indicates cancel was requested for a job that
	// already reached a terminal state other than cancelled.
	ErrJobNotCancellable = errors.New("job is not in a cancellable state")

	// ErrNoTasks indicates a submission with an invalid task list.
	ErrNoTasks = errors.New("submission contains an invalid task list")
)

// JobScheduler submits a job's pending tasks for background execution.
type JobScheduler interface {
	Submit(ctx context.Context, jobID uuid.UUID) error
}

// JobReconciler re-derives a job's status from its tasks.
type JobReconciler interface {
	Reconcile(ctx context.Context, jobID uuid.UUID) error
}

// TaskSpec describes one render task in a submission.
type TaskSpec struct {
	Algorithm        string          `json:"algorithm"`
	AlgorithmVersion string          `json:"algorithm_version,omitempty"`
	Params           json.RawMessage `json:"params,omitempty"`
}

// SubmitJobRequest describes one job submission.
type SubmitJobRequest struct {
	OwnerID        uuid.UUID  `json:"owner_id"`
	IdempotencyKey string     `json:"idempotency_key,omitempty"`
	DatasetRef     string     `json:"dataset_ref"`
	Tasks          []TaskSpec `json:"tasks"`
}

// JobDetail is the full read model for one job: the job row, its tasks,
// their captions, and the job's event timeline.
type JobDetail struct {
	Job         *domain.Job                         `json:"job"`
	RenderTasks []*domain.RenderTask                `json:"render_tasks"`
	Captions    map[uuid.UUID][]*domain.CaptionTask `json:"captions,omitempty"`
	Events      []*domain.EventLog                  `json:"events"`
}

// JobService is the boundary surface of the pipeline. All mutation flows
// through it; reads combine the authoritative database with the status
// cache and the live event stream.
type JobService interface {
	// SubmitJob creates a job with its render tasks and schedules them.
	// A repeated submission with the same (owner, idempotency key) returns
	// the previously created job unchanged.
	SubmitJob(ctx context.Context, req SubmitJobRequest) (*domain.Job, error)

	// CancelJob cancels the job and every task of it that has not already
	// reached a terminal state. Already-terminal tasks keep their outcome.
	CancelJob(ctx context.Context, jobID uuid.UUID) error

	// CancelTask cancels one non-terminal render task.
	CancelTask(ctx context.Context, taskID uuid.UUID) error

	// RetryTask returns a failed or cancelled render task to pending state
	// under a fresh execution token and schedules it again.
	RetryTask(ctx context.Context, taskID uuid.UUID) (*domain.RenderTask, error)

	// GetJob returns the job with its tasks, captions and event timeline.
	GetJob(ctx context.Context, jobID uuid.UUID) (*JobDetail, error)

	// GetJobStatus returns the job's live status, served from the cache
	// when possible.
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (domain.JobStatus, error)

	// SubscribeJob returns a live event stream for the job. The returned
	// cancel function detaches the subscriber.
	SubscribeJob(ctx context.Context, jobID uuid.UUID) (<-chan events.Event, func(), error)
}

// jobService is the JobService implementation over postgres stores.
type jobService struct {
	db          store.Transactor
	jobs        store.JobStore
	tasks       store.RenderTaskStore
	captions    store.CaptionTaskStore
	eventLog    store.EventLogStore
	bus         *events.Bus
	scheduler   JobScheduler
	reconciler  JobReconciler
	broadcaster broadcast.Broadcaster
	cache       cache.Cache
	logger      *slog.Logger
}

// NewJobService creates the boundary service over the given collaborators.
func NewJobService(
	db store.Transactor,
	jobs store.JobStore,
	tasks store.RenderTaskStore,
	captions store.CaptionTaskStore,
	eventLog store.EventLogStore,
	bus *events.Bus,
	scheduler JobScheduler,
	reconciler JobReconciler,
	broadcaster broadcast.Broadcaster,
	c cache.Cache,
	logger *slog.Logger,
) JobService {
	return &jobService{
		db:          db,
		jobs:        jobs,
		tasks:       tasks,
		captions:    captions,
		eventLog:    eventLog,
		bus:         bus,
		scheduler:   scheduler,
		reconciler:  reconciler,
		broadcaster: broadcaster,
		cache:       c,
		logger:      logger.With("component", "job_service"),
	}
}

func (s *jobService) SubmitJob(ctx context.Context, req SubmitJobRequest) (*domain.Job, error) {
	log := s.logger.With("owner_id", req.OwnerID)

	if err := validateSubmission(req); err != nil {
		return nil, err
	}

	job, err := domain.NewJob(req.OwnerID, req.DatasetRef, req.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	err = s.db.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		jobs := s.jobs.WithTx(tx)
		tasks := s.tasks.WithTx(tx)

		if err := jobs.Create(ctx, job); err != nil {
			return err
		}

		for _, spec := range req.Tasks {
			task, err := domain.NewRenderTask(job.ID, spec.Algorithm, spec.AlgorithmVersion, spec.Params)
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrValidation, err)
			}
			if err := tasks.Create(ctx, task); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// The unique constraint is the idempotency mechanism: losing the
		// insert race means the job already exists, so return it.
		if errors.Is(err, store.ErrIdempotencyKeyExists) {
			existing, getErr := s.jobs.GetByIdempotencyKey(ctx, req.OwnerID, req.IdempotencyKey)
			if getErr != nil {
				return nil, fmt.Errorf("failed to load existing job for idempotency key: %w", getErr)
			}
			log.Info("returning existing job for repeated idempotency key",
				"job_id", existing.ID)
			return existing, nil
		}
		return nil, err
	}

	if err := s.cache.SetJobStatus(ctx, job.ID, job.Status); err != nil {
		log.Warn("failed to mirror job status to cache", "job_id", job.ID, "error", err)
	}

	if err := s.scheduler.Submit(ctx, job.ID); err != nil {
		return nil, fmt.Errorf("job %s created but scheduling failed: %w", job.ID, err)
	}

	log.Info("job submitted", "job_id", job.ID, "task_count", len(req.Tasks))
	return job, nil
}

func (s *jobService) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	log := s.logger.With("job_id", jobID)

	var cancelledTasks []uuid.UUID

	err := s.db.RunInTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		jobs := s.jobs.WithTx(tx)
		tasks := s.tasks.WithTx(tx)

		job, err := jobs.GetByIDForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if job.IsTerminal() {
			if job.Status == domain.JobStatusCancelled {
				// Cancelling a cancelled job is a no-op.
				return nil
			}
			return ErrJobNotCancellable
		}

		list, err := tasks.FindByJobIDForUpdate(ctx, jobID)
		if err != nil {
			return err
		}

		for _, t := range list {
			if t.IsTerminal() {
				continue
			}
			if err := tasks.UpdateStatus(ctx, t.ID, domain.TaskStatusCancelled); err != nil {
				return err
			}
			cancelledTasks = append(cancelledTasks, t.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// Audit trail after commit; the status writes above are authoritative.
	for _, taskID := range cancelledTasks {
		if err := s.bus.Emit(ctx, events.TaskSubject(taskID), events.TypeCancelled, events.LevelInfo,
			"task cancelled with its job"); err != nil {
			log.Error("failed to emit task cancellation event", "task_id", taskID, "error", err)
		}
	}
	if err := s.bus.Emit(ctx, events.JobSubject(jobID), events.TypeCancelled, events.LevelInfo,
		"job cancellation requested"); err != nil {
		log.Error("failed to emit job cancellation event", "error", err)
	}

	if err := s.reconciler.Reconcile(ctx, jobID); err != nil {
		return err
	}

	log.Info("job cancelled", "cancelled_tasks", len(cancelledTasks))
	return nil
}

func (s *jobService) CancelTask(ctx context.Context, taskID uuid.UUID) error {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	if task.IsTerminal() {
		return domain.ErrTaskNotCancellable
	}

	if err := s.bus.Emit(ctx, events.TaskSubject(taskID), events.TypeCancelled, events.LevelInfo,
		"task cancellation requested"); err != nil {
		return err
	}

	return s.reconciler.Reconcile(ctx, task.JobID)
}

func (s *jobService) RetryTask(ctx context.Context, taskID uuid.UUID) (*domain.RenderTask, error) {
	log := s.logger.With("task_id", taskID)

	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.TaskStatusFailed && task.Status != domain.TaskStatusCancelled {
		return nil, domain.ErrTaskNotRetryable
	}

	job, err := s.jobs.GetByID(ctx, task.JobID)
	if err != nil {
		return nil, err
	}
	if job.Status == domain.JobStatusCancelled {
		return nil, domain.ErrJobCancelled
	}

	updated, err := s.tasks.ResetForRetry(ctx, taskID)
	if err != nil {
		return nil, err
	}

	if err := s.bus.Emit(ctx, events.TaskSubject(taskID), events.TypeRetry, events.LevelInfo,
		fmt.Sprintf("task reset for retry under execution token %d", updated.ExecutionToken)); err != nil {
		log.Error("failed to emit retry event", "error", err)
	}

	if err := s.scheduler.Submit(ctx, task.JobID); err != nil {
		return nil, fmt.Errorf("task %s reset but scheduling failed: %w", taskID, err)
	}

	log.Info("task retried",
		"job_id", task.JobID,
		"execution_token", updated.ExecutionToken)
	return updated, nil
}

func (s *jobService) GetJob(ctx context.Context, jobID uuid.UUID) (*JobDetail, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	tasks, err := s.tasks.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var captions map[uuid.UUID][]*domain.CaptionTask
	for _, t := range tasks {
		list, err := s.captions.FindByRenderTaskID(ctx, t.ID)
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			continue
		}
		if captions == nil {
			captions = make(map[uuid.UUID][]*domain.CaptionTask)
		}
		captions[t.ID] = list
	}

	eventRows, err := s.eventLog.FindByJobID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return &JobDetail{
		Job:         job,
		RenderTasks: tasks,
		Captions:    captions,
		Events:      eventRows,
	}, nil
}

func (s *jobService) GetJobStatus(ctx context.Context, jobID uuid.UUID) (domain.JobStatus, error) {
	status, ok, err := s.cache.GetJobStatus(ctx, jobID)
	if err != nil {
		s.logger.Warn("job status cache read failed, falling back to database",
			"job_id", jobID, "error", err)
	}
	if ok {
		return status, nil
	}

	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return "", err
	}

	if err := s.cache.SetJobStatus(ctx, jobID, job.Status); err != nil {
		s.logger.Warn("failed to refill job status cache", "job_id", jobID, "error", err)
	}
	return job.Status, nil
}

func (s *jobService) SubscribeJob(ctx context.Context, jobID uuid.UUID) (<-chan events.Event, func(), error) {
	// Verify the job exists before handing out a subscription.
	if _, err := s.jobs.GetByID(ctx, jobID); err != nil {
		return nil, nil, err
	}
	return s.broadcaster.Subscribe(ctx, jobID.String())
}

// validateSubmission rejects structurally invalid submissions before any
// row is written.
func validateSubmission(req SubmitJobRequest) error {
	if req.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: owner id is required", domain.ErrValidation)
	}
	if req.DatasetRef == "" {
		return fmt.Errorf("%w: dataset ref is required", domain.ErrValidation)
	}
	for i, spec := range req.Tasks {
		if spec.Algorithm == "" {
			return fmt.Errorf("%w: task %d has no algorithm", ErrNoTasks, i)
		}
	}
	return nil
}
