package task

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotforge/plotforge-api/internal/domain"
	"github.com/plotforge/plotforge-api/internal/events"
	"github.com/plotforge/plotforge-api/internal/llm"
	"github.com/plotforge/plotforge-api/internal/llm/mock"
	"github.com/plotforge/plotforge-api/internal/mocks"
	"github.com/plotforge/plotforge-api/internal/render"
	"github.com/plotforge/plotforge-api/internal/storage"
)

type executorFixture struct {
	jobs     *mocks.MemoryJobStore
	tasks    *mocks.MemoryRenderTaskStore
	captions *mocks.MemoryCaptionTaskStore
	eventLog *mocks.MemoryEventLogStore
	registry *render.Registry
	storage  *storage.MemoryStorage
	executor *Executor
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()

	f := &executorFixture{
		jobs:     mocks.NewMemoryJobStore(),
		tasks:    mocks.NewMemoryRenderTaskStore(),
		captions: mocks.NewMemoryCaptionTaskStore(),
		eventLog: mocks.NewMemoryEventLogStore(),
		registry: render.NewRegistry(),
		storage:  storage.NewMemoryStorage(),
	}

	logger := discardLogger()
	bus := events.NewBus(f.jobs, f.tasks, f.captions, f.eventLog, mocks.NewCapturePublisher(), logger)
	router := llm.NewRouter([]llm.Entry{{Name: "mock", Provider: mock.NewProvider()}}, llm.Hooks{}, logger)
	captionExec := NewCaptionExecutor(f.captions, bus, router, time.Second, 1, logger)
	f.executor = NewExecutor(f.jobs, f.tasks, f.captions, bus, f.registry, f.storage, captionExec, logger)
	return f
}

func (f *executorFixture) seedTask(t *testing.T, algorithm string, params json.RawMessage) (*domain.Job, *domain.RenderTask) {
	t.Helper()
	ctx := context.Background()

	job, err := domain.NewJob(uuid.New(), "datasets/traffic", "")
	require.NoError(t, err)
	require.NoError(t, f.jobs.Create(ctx, job))

	task, err := domain.NewRenderTask(job.ID, algorithm, "v1", params)
	require.NoError(t, err)
	require.NoError(t, f.tasks.Create(ctx, task))
	return job, task
}

func (f *executorFixture) eventTypes(t *testing.T, jobID uuid.UUID) []string {
	t.Helper()

	rows, err := f.eventLog.FindByJobID(context.Background(), jobID)
	require.NoError(t, err)

	types := make([]string, 0, len(rows))
	for _, row := range rows {
		types = append(types, row.EventType)
	}
	return types
}

func TestExecutorSuccessPath(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)
	f.registry.Register(mocks.NewStubAlgorithm("line_chart"))
	job, task := f.seedTask(t, "line_chart", nil)

	f.executor.ExecuteRender(ctx, task.ID)

	current, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusSuccess, current.Status)
	assert.Equal(t, 100, current.Progress)
	assert.Empty(t, current.ErrorCode)
	assert.NotEqual(t, uuid.Nil, current.CorrelationID)

	wantPath := fmt.Sprintf("jobs/%s/tasks/%s/chart.png", job.ID, task.ID)
	assert.Equal(t, wantPath, current.Artifacts["chart.png"])

	blob, err := f.storage.Read(ctx, wantPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), blob)

	types := f.eventTypes(t, job.ID)
	assert.Equal(t, []string{
		string(events.TypeStart),
		string(events.TypeProgress),
		string(events.TypeProgress),
		string(events.TypeProgress),
		string(events.TypeDone),
	}, types)
}

func TestExecutorUnknownAlgorithmFailsTask(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)
	job, task := f.seedTask(t, "no_such_chart", nil)

	f.executor.ExecuteRender(ctx, task.ID)

	current, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusFailed, current.Status)
	assert.Equal(t, domain.ErrorCodeValidation, current.ErrorCode)
	assert.NotEmpty(t, current.ErrorMessage)

	assert.Contains(t, f.eventTypes(t, job.ID), string(events.TypeValidationError))
}

func TestExecutorAlgorithmFailureRecordedAsData(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name      string
		err       error
		wantCode  string
		wantEvent events.Type
	}{
		{"RenderError", fmt.Errorf("%w: blank canvas", render.ErrRender), domain.ErrorCodeRender, events.TypeRenderError},
		{"ValidationError", fmt.Errorf("%w: negative axis", render.ErrValidation), domain.ErrorCodeValidation, events.TypeValidationError},
		{"StorageError", fmt.Errorf("%w: dataset missing", render.ErrStorage), domain.ErrorCodeStorage, events.TypeStorageError},
		{"UnclassifiedError", fmt.Errorf("panic in plotting"), domain.ErrorCodeAlgorithm, events.TypeAlgorithmError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newExecutorFixture(t)
			alg := mocks.NewStubAlgorithm("line_chart")
			alg.RunFn = func(ctx context.Context, input render.Input) (*render.Output, error) {
				return nil, tc.err
			}
			f.registry.Register(alg)
			job, task := f.seedTask(t, "line_chart", nil)

			f.executor.ExecuteRender(ctx, task.ID)

			current, err := f.tasks.GetByID(ctx, task.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.TaskStatusFailed, current.Status)
			assert.Equal(t, tc.wantCode, current.ErrorCode)
			assert.Contains(t, f.eventTypes(t, job.ID), string(tc.wantEvent))
		})
	}
}

func TestExecutorSkipsNonPendingTask(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)
	f.registry.Register(mocks.NewStubAlgorithm("line_chart"))
	job, task := f.seedTask(t, "line_chart", nil)
	require.NoError(t, f.tasks.UpdateStatus(ctx, task.ID, domain.TaskStatusCancelled))

	f.executor.ExecuteRender(ctx, task.ID)

	current, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, current.Status)
	assert.Empty(t, f.eventTypes(t, job.ID), "a non-pending task must produce no events")
}

func TestExecutorAbandonsCancelledMidRun(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	alg := mocks.NewStubAlgorithm("line_chart")
	_, task := f.seedTask(t, "line_chart", nil)
	alg.RunFn = func(ctx context.Context, input render.Input) (*render.Output, error) {
		// Cancellation lands while the render is in flight.
		require.NoError(t, f.tasks.UpdateStatus(ctx, task.ID, domain.TaskStatusCancelled))
		return &render.Output{Artifacts: map[string][]byte{"chart.png": []byte("late")}}, nil
	}
	f.registry.Register(alg)

	f.executor.ExecuteRender(ctx, task.ID)

	current, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCancelled, current.Status, "a cancelled task must keep its status")
	assert.Empty(t, current.Artifacts)
}

func TestExecutorDiscardsSupersededResult(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)

	alg := mocks.NewStubAlgorithm("line_chart")
	_, task := f.seedTask(t, "line_chart", nil)
	alg.RunFn = func(ctx context.Context, input render.Input) (*render.Output, error) {
		// A retry supersedes this execution while it is still rendering.
		_, err := f.tasks.ResetForRetry(ctx, task.ID)
		require.NoError(t, err)
		return &render.Output{Artifacts: map[string][]byte{"chart.png": []byte("stale")}}, nil
	}
	f.registry.Register(alg)

	f.executor.ExecuteRender(ctx, task.ID)

	current, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, current.Status, "the retried task must stay pending")
	assert.Equal(t, int64(2), current.ExecutionToken)
	assert.Empty(t, current.Artifacts)
}

func TestExecutorSpawnsCaptionWhenRequested(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)
	f.registry.Register(mocks.NewStubAlgorithm("line_chart"))

	params := json.RawMessage(`{"describe":true,"caption_context":"monthly visits"}`)
	_, task := f.seedTask(t, "line_chart", params)

	f.executor.ExecuteRender(ctx, task.ID)

	captions, err := f.captions.FindByRenderTaskID(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, captions, 1)

	caption := captions[0]
	assert.Equal(t, domain.TaskStatusSuccess, caption.Status)
	assert.Equal(t, "monthly visits", caption.ContextText)
	assert.Equal(t, "mock", caption.Provider)
	assert.Equal(t, "mock-v1", caption.Model)
	assert.NotEmpty(t, caption.ResultText)
}

func TestExecutorSkipsCaptionWhenNotRequested(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)
	f.registry.Register(mocks.NewStubAlgorithm("line_chart"))

	params := json.RawMessage(`{"bins":12}`)
	_, task := f.seedTask(t, "line_chart", params)

	f.executor.ExecuteRender(ctx, task.ID)

	captions, err := f.captions.FindByRenderTaskID(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, captions)
}

func TestExecutorCaptionFailureLeavesRenderSuccessful(t *testing.T) {
	ctx := context.Background()
	f := newExecutorFixture(t)
	f.registry.Register(mocks.NewStubAlgorithm("line_chart"))

	// Replace the chain with one that always fails, without a terminal
	// no-fail entry.
	logger := discardLogger()
	broken := mock.NewProvider()
	broken.GenerateFunc = func(ctx context.Context, prompt string) (string, error) {
		return "", llm.ErrProviderUnavailable
	}
	bus := events.NewBus(f.jobs, f.tasks, f.captions, f.eventLog, mocks.NewCapturePublisher(), logger)
	router := llm.NewRouter([]llm.Entry{{Name: "broken", Provider: broken}}, llm.Hooks{}, logger)
	captionExec := NewCaptionExecutor(f.captions, bus, router, time.Second, 1, logger)
	f.executor = NewExecutor(f.jobs, f.tasks, f.captions, bus, f.registry, f.storage, captionExec, logger)

	params := json.RawMessage(`{"describe":true}`)
	_, task := f.seedTask(t, "line_chart", params)

	f.executor.ExecuteRender(ctx, task.ID)

	current, err := f.tasks.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusSuccess, current.Status)

	captions, err := f.captions.FindByRenderTaskID(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, captions, 1)
	assert.Equal(t, domain.TaskStatusFailed, captions[0].Status)
	assert.Equal(t, domain.ErrorCodeProvider, captions[0].ErrorCode)
}
