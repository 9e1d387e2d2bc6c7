package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/domain"
	"github.com/plotforge/plotforge-api/internal/events"
	"github.com/plotforge/plotforge-api/internal/render"
	"github.com/plotforge/plotforge-api/internal/storage"
	"github.com/plotforge/plotforge-api/internal/store"
)

// renderParams is the pipeline-recognized envelope inside a render task's
// params document. Everything else in the document belongs to the algorithm.
type renderParams struct {
	Describe       bool   `json:"describe"`
	CaptionContext string `json:"caption_context"`
}

// Executor runs one render task from PENDING to a terminal state. Failures
// are recorded as task data (typed error event plus error fields), never
// returned to the scheduler. Terminal writes are fenced on the execution
// token so a superseded run cannot clobber the state a retry produced.
type Executor struct {
	jobs        store.JobStore
	tasks       store.RenderTaskStore
	captions    store.CaptionTaskStore
	bus         *events.Bus
	registry    *render.Registry
	storage     storage.Storage
	captionExec *CaptionExecutor
	logger      *slog.Logger
}

// NewExecutor creates an Executor. captionExec may be nil, in which case
// description requests in task params are ignored.
func NewExecutor(
	jobs store.JobStore,
	tasks store.RenderTaskStore,
	captions store.CaptionTaskStore,
	bus *events.Bus,
	registry *render.Registry,
	st storage.Storage,
	captionExec *CaptionExecutor,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		jobs:        jobs,
		tasks:       tasks,
		captions:    captions,
		bus:         bus,
		registry:    registry,
		storage:     st,
		captionExec: captionExec,
		logger:      logger.With("component", "render_executor"),
	}
}

// ExecuteRender runs the render task with the given id. It never returns an
// error: every outcome is recorded on the task and in the event log.
func (e *Executor) ExecuteRender(ctx context.Context, taskID uuid.UUID) {
	log := e.logger.With("task_id", taskID)

	task, err := e.tasks.GetByID(ctx, taskID)
	if err != nil {
		log.Error("failed to load render task", "error", err)
		return
	}
	if task.Status != domain.TaskStatusPending {
		// Cancelled before a worker picked it up, or already executed.
		log.Debug("skipping task not in pending state", "status", task.Status)
		return
	}

	job, err := e.jobs.GetByID(ctx, task.JobID)
	if err != nil {
		log.Error("failed to load owning job", "job_id", task.JobID, "error", err)
		return
	}

	token := task.ExecutionToken
	correlationID := uuid.New()
	if err := e.tasks.SetCorrelationID(ctx, taskID, correlationID); err != nil {
		log.Warn("failed to record correlation id", "error", err)
	}
	log = log.With("correlation_id", correlationID)

	e.emit(ctx, task.ID, events.TypeStart, events.LevelInfo, "render started",
		events.WithCorrelationID(correlationID), events.WithProgress(0))

	alg, err := e.registry.Get(task.Algorithm)
	if err != nil {
		e.fail(ctx, task, token, correlationID, events.TypeValidationError,
			domain.ErrorCodeValidation, err)
		return
	}

	if e.abandoned(ctx, taskID, token) {
		log.Info("abandoning superseded or cancelled execution")
		return
	}
	e.emit(ctx, task.ID, events.TypeProgress, events.LevelInfo, "input prepared",
		events.WithCorrelationID(correlationID), events.WithProgress(30))

	output, err := alg.Run(ctx, render.Input{
		DatasetRef: job.DatasetRef,
		Params:     task.Params,
	})
	if err != nil {
		if ctx.Err() != nil || e.abandoned(ctx, taskID, token) {
			log.Info("abandoning execution after interrupted render", "error", err)
			return
		}
		eventType, code := classifyRenderError(err)
		e.fail(ctx, task, token, correlationID, eventType, code, err)
		return
	}

	if e.abandoned(ctx, taskID, token) {
		log.Info("abandoning superseded or cancelled execution after render")
		return
	}
	e.emit(ctx, task.ID, events.TypeProgress, events.LevelInfo, "render complete",
		events.WithCorrelationID(correlationID), events.WithProgress(60))

	artifacts, err := e.persistArtifacts(ctx, job.ID, task.ID, output.Artifacts)
	if err != nil {
		e.fail(ctx, task, token, correlationID, events.TypeStorageError,
			domain.ErrorCodeStorage, err)
		return
	}
	e.emit(ctx, task.ID, events.TypeProgress, events.LevelInfo, "artifacts persisted",
		events.WithCorrelationID(correlationID), events.WithProgress(90))

	task.Status = domain.TaskStatusSuccess
	task.Progress = 100
	task.Artifacts = artifacts
	task.ResultData = output.ResultData
	task.ErrorCode = ""
	task.ErrorMessage = ""

	if err := e.tasks.CompleteIfCurrent(ctx, task, token); err != nil {
		if errors.Is(err, store.ErrStaleExecution) {
			log.Info("discarding result of superseded execution")
		} else {
			log.Error("failed to record render success", "error", err)
		}
		return
	}

	e.emit(ctx, task.ID, events.TypeDone, events.LevelInfo, "render succeeded",
		events.WithCorrelationID(correlationID),
		events.WithProgress(100),
		events.WithPayload(output.Metadata))

	e.maybeSpawnCaption(ctx, task, correlationID)
}

// fail records a terminal failure on the task, fenced on the execution
// token, and emits the typed error event only when the fenced write won.
func (e *Executor) fail(
	ctx context.Context,
	task *domain.RenderTask,
	token int64,
	correlationID uuid.UUID,
	eventType events.Type,
	code string,
	cause error,
) {
	log := e.logger.With("task_id", task.ID, "correlation_id", correlationID)

	task.Status = domain.TaskStatusFailed
	task.ErrorCode = code
	task.ErrorMessage = cause.Error()

	if err := e.tasks.CompleteIfCurrent(ctx, task, token); err != nil {
		if errors.Is(err, store.ErrStaleExecution) {
			log.Info("discarding failure of superseded execution", "cause", cause)
		} else {
			log.Error("failed to record render failure", "error", err, "cause", cause)
		}
		return
	}

	log.Warn("render task failed", "error_code", code, "error", cause)
	e.emit(ctx, task.ID, eventType, events.LevelError, cause.Error(),
		events.WithCorrelationID(correlationID))
}

// abandoned reports whether this execution has been overtaken: the task was
// cancelled, deleted, or reset for retry under a newer execution token.
func (e *Executor) abandoned(ctx context.Context, taskID uuid.UUID, token int64) bool {
	current, err := e.tasks.GetByID(ctx, taskID)
	if err != nil {
		return true
	}
	return current.Status == domain.TaskStatusCancelled || current.ExecutionToken != token
}

// persistArtifacts writes each artifact through the storage contract and
// returns the canonical paths keyed by artifact name.
func (e *Executor) persistArtifacts(ctx context.Context, jobID, taskID uuid.UUID, blobs map[string][]byte) (map[string]string, error) {
	if len(blobs) == 0 {
		return nil, nil
	}

	paths := make(map[string]string, len(blobs))
	for name, data := range blobs {
		requested := fmt.Sprintf("jobs/%s/tasks/%s/%s", jobID, taskID, name)
		canonical, err := e.storage.Save(ctx, requested, data)
		if err != nil {
			return nil, fmt.Errorf("failed to save artifact %q: %w", name, err)
		}
		paths[name] = canonical
	}
	return paths, nil
}

// maybeSpawnCaption creates and runs a caption task when the render params
// request a description. Caption failures never affect the render task's
// terminal status.
func (e *Executor) maybeSpawnCaption(ctx context.Context, task *domain.RenderTask, correlationID uuid.UUID) {
	if e.captionExec == nil || len(task.Params) == 0 {
		return
	}

	var params renderParams
	if err := json.Unmarshal(task.Params, &params); err != nil || !params.Describe {
		return
	}

	log := e.logger.With("task_id", task.ID, "correlation_id", correlationID)

	caption, err := domain.NewCaptionTask(task.ID, params.CaptionContext)
	if err != nil {
		log.Error("failed to build caption task", "error", err)
		return
	}
	if err := e.captions.Create(ctx, caption); err != nil {
		log.Error("failed to create caption task", "error", err)
		return
	}

	e.captionExec.Execute(ctx, caption.ID)
}

// emit writes through the bus, downgrading bus infrastructure failures to a
// log line: the executor's control flow never depends on the audit write.
func (e *Executor) emit(ctx context.Context, taskID uuid.UUID, eventType events.Type, level events.Level, message string, opts ...events.EmitOption) {
	if err := e.bus.Emit(ctx, events.TaskSubject(taskID), eventType, level, message, opts...); err != nil {
		e.logger.Error("failed to emit task event",
			"task_id", taskID,
			"event_type", eventType,
			"error", err)
	}
}

// classifyRenderError maps an algorithm error onto the typed event recorded
// on the failing task.
func classifyRenderError(err error) (events.Type, string) {
	switch {
	case errors.Is(err, render.ErrValidation):
		return events.TypeValidationError, domain.ErrorCodeValidation
	case errors.Is(err, render.ErrStorage):
		return events.TypeStorageError, domain.ErrorCodeStorage
	case errors.Is(err, render.ErrRender):
		return events.TypeRenderError, domain.ErrorCodeRender
	default:
		return events.TypeAlgorithmError, domain.ErrorCodeAlgorithm
	}
}
