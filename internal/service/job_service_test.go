package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plotforge/plotforge-api/internal/broadcast"
	"github.com/plotforge/plotforge-api/internal/cache"
	"github.com/plotforge/plotforge-api/internal/domain"
	"github.com/plotforge/plotforge-api/internal/events"
	"github.com/plotforge/plotforge-api/internal/mocks"
	"github.com/plotforge/plotforge-api/internal/task"
)

// stubScheduler records Submit calls without running anything, so service
// tests stay synchronous.
type stubScheduler struct {
	mu        sync.Mutex
	submitted []uuid.UUID
	err       error
}

func (s *stubScheduler) Submit(ctx context.Context, jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.submitted = append(s.submitted, jobID)
	return nil
}

func (s *stubScheduler) calls() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, len(s.submitted))
	copy(out, s.submitted)
	return out
}

// memoryCache is a map-backed cache.Cache for asserting cache interplay.
type memoryCache struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]domain.JobStatus
}

func newMemoryCache() *memoryCache {
	return &memoryCache{statuses: make(map[uuid.UUID]domain.JobStatus)}
}

func (c *memoryCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status domain.JobStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses[jobID] = status
	return nil
}

func (c *memoryCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (domain.JobStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.statuses[jobID]
	return status, ok, nil
}

func (c *memoryCache) Delete(ctx context.Context, jobID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statuses, jobID)
	return nil
}

func (c *memoryCache) Ping(ctx context.Context) error { return nil }

var _ cache.Cache = (*memoryCache)(nil)

type serviceFixture struct {
	jobs        *mocks.MemoryJobStore
	tasks       *mocks.MemoryRenderTaskStore
	captions    *mocks.MemoryCaptionTaskStore
	eventLog    *mocks.MemoryEventLogStore
	scheduler   *stubScheduler
	broadcaster *broadcast.MemoryBroadcaster
	cache       *memoryCache
	service     JobService
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &serviceFixture{
		jobs:        mocks.NewMemoryJobStore(),
		tasks:       mocks.NewMemoryRenderTaskStore(),
		captions:    mocks.NewMemoryCaptionTaskStore(),
		eventLog:    mocks.NewMemoryEventLogStore(),
		scheduler:   &stubScheduler{},
		broadcaster: broadcast.NewMemoryBroadcaster(logger),
		cache:       newMemoryCache(),
	}

	bus := events.NewBus(f.jobs, f.tasks, f.captions, f.eventLog, f.broadcaster, logger)
	reconciler := task.NewAggregator(mocks.Transactor{}, f.jobs, f.tasks, bus, f.cache, logger)
	f.service = NewJobService(
		mocks.Transactor{},
		f.jobs, f.tasks, f.captions, f.eventLog,
		bus, f.scheduler, reconciler, f.broadcaster, f.cache,
		logger,
	)
	return f
}

func submitRequest(ownerID uuid.UUID, key string, algorithms ...string) SubmitJobRequest {
	req := SubmitJobRequest{
		OwnerID:        ownerID,
		IdempotencyKey: key,
		DatasetRef:     "datasets/revenue-2026",
	}
	for _, alg := range algorithms {
		req.Tasks = append(req.Tasks, TaskSpec{Algorithm: alg, AlgorithmVersion: "v1"})
	}
	return req
}

func TestSubmitJob(t *testing.T) {
	ctx := context.Background()

	t.Run("CreatesJobWithTasksAndSchedules", func(t *testing.T) {
		f := newServiceFixture(t)

		job, err := f.service.SubmitJob(ctx, submitRequest(uuid.New(), "", "line_chart", "bar_chart"))
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusPending, job.Status)

		tasks, err := f.tasks.FindByJobID(ctx, job.ID)
		require.NoError(t, err)
		assert.Len(t, tasks, 2)

		assert.Equal(t, []uuid.UUID{job.ID}, f.scheduler.calls())

		status, ok, err := f.cache.GetJobStatus(ctx, job.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, domain.JobStatusPending, status)
	})

	t.Run("RepeatedIdempotencyKeyReturnsExistingJob", func(t *testing.T) {
		f := newServiceFixture(t)
		ownerID := uuid.New()

		first, err := f.service.SubmitJob(ctx, submitRequest(ownerID, "req-42", "line_chart"))
		require.NoError(t, err)

		second, err := f.service.SubmitJob(ctx, submitRequest(ownerID, "req-42", "line_chart"))
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		tasks, err := f.tasks.FindByJobID(ctx, first.ID)
		require.NoError(t, err)
		assert.Len(t, tasks, 1, "the duplicate submission must not add tasks")

		assert.Len(t, f.scheduler.calls(), 1, "the duplicate submission must not reschedule")
	})

	t.Run("SameKeyDifferentOwnersAreIndependent", func(t *testing.T) {
		f := newServiceFixture(t)

		first, err := f.service.SubmitJob(ctx, submitRequest(uuid.New(), "req-42", "line_chart"))
		require.NoError(t, err)

		second, err := f.service.SubmitJob(ctx, submitRequest(uuid.New(), "req-42", "line_chart"))
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("RejectsInvalidSubmissions", func(t *testing.T) {
		f := newServiceFixture(t)

		_, err := f.service.SubmitJob(ctx, SubmitJobRequest{DatasetRef: "datasets/x"})
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = f.service.SubmitJob(ctx, SubmitJobRequest{OwnerID: uuid.New()})
		assert.ErrorIs(t, err, domain.ErrValidation)

		req := submitRequest(uuid.New(), "")
		req.Tasks = []TaskSpec{{Algorithm: ""}}
		_, err = f.service.SubmitJob(ctx, req)
		assert.ErrorIs(t, err, ErrNoTasks)
	})
}

func TestCancelJob(t *testing.T) {
	ctx := context.Background()

	t.Run("CancelsNonTerminalTasksOnly", func(t *testing.T) {
		f := newServiceFixture(t)
		job, err := f.service.SubmitJob(ctx, submitRequest(uuid.New(), "", "a", "b", "c"))
		require.NoError(t, err)

		tasks, err := f.tasks.FindByJobID(ctx, job.ID)
		require.NoError(t, err)
		require.NoError(t, f.tasks.UpdateStatus(ctx, tasks[0].ID, domain.TaskStatusSuccess))
		require.NoError(t, f.tasks.UpdateProgress(ctx, tasks[0].ID, 100))

		require.NoError(t, f.service.CancelJob(ctx, job.ID))

		tasks, err = f.tasks.FindByJobID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusSuccess, tasks[0].Status, "terminal tasks keep their outcome")
		assert.Equal(t, domain.TaskStatusCancelled, tasks[1].Status)
		assert.Equal(t, domain.TaskStatusCancelled, tasks[2].Status)

		current, err := f.jobs.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusPartialSuccess, current.Status)
	})

	t.Run("AllPendingTasksYieldsCancelledJob", func(t *testing.T) {
		f := newServiceFixture(t)
		job, err := f.service.SubmitJob(ctx, submitRequest(uuid.New(), "", "a", "b"))
		require.NoError(t, err)

		require.NoError(t, f.service.CancelJob(ctx, job.ID))

		current, err := f.jobs.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusCancelled, current.Status)
	})

	t.Run("CancellingCancelledJobIsNoop", func(t *testing.T) {
		f := newServiceFixture(t)
		job, err := f.service.SubmitJob(ctx, submitRequest(uuid.New(), "", "a"))
		require.NoError(t, err)
		require.NoError(t, f.service.CancelJob(ctx, job.ID))

		assert.NoError(t, f.service.CancelJob(ctx, job.ID))
	})

	t.Run("SucceededJobIsNotCancellable", func(t *testing.T) {
		f := newServiceFixture(t)
		job, err := f.service.SubmitJob(ctx, submitRequest(uuid.New(), "", "a"))
		require.NoError(t, err)
		require.NoError(t, f.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusSuccess, 100))

		err = f.service.CancelJob(ctx, job.ID)
		assert.ErrorIs(t, err, ErrJobNotCancellable)
	})
}

func TestCancelTask(t *testing.T) {
	ctx := context.Background()

	t.Run("CancelsPendingTask", func(t *testing.T) {
		f := newServiceFixture(t)
		job, err := f.service.SubmitJob(ctx, submitRequest(uuid.New(), "", "a", "b"))
		require.NoError(t, err)

		tasks, err := f.tasks.FindByJobID(ctx, job.ID)
		require.NoError(t, err)

		require.NoError(t, f.service.CancelTask(ctx, tasks[0].ID))

		current, err := f.tasks.GetByID(ctx, tasks[0].ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCancelled, current.Status)
	})

	t.Run("TerminalTaskIsNotCancellable", func(t *testing.T) {
		f := newServiceFixture(t)
		job, err := f.service.SubmitJob(ctx, submitRequest(uuid.New(), "", "a"))
		require.NoError(t, err)

		tasks, err := f.tasks.FindByJobID(ctx, job.ID)
		require.NoError(t, err)
		require.NoError(t, f.tasks.UpdateStatus(ctx, tasks[0].ID, domain.TaskStatusFailed))

		err = f.service.CancelTask(ctx, tasks[0].ID)
		assert.ErrorIs(t, err, domain.ErrTaskNotCancellable)
	})
}

func TestRetryTask(t *testing.T) {
	ctx := context.Background()

	t.Run("ResetsFailedTaskAndReschedules", func(t *testing.T) {
		f := newServiceFixture(t)
		job, err := f.service.SubmitJob(ctx, submitRequest(uuid.New(), "", "a"))
		require.NoError(t, err)

		tasks, err := f.tasks.FindByJobID(ctx, job.ID)
		require.NoError(t, err)
		require.NoError(t, f.tasks.UpdateStatus(ctx, tasks[0].ID, domain.TaskStatusFailed))

		updated, err := f.service.RetryTask(ctx, tasks[0].ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusPending, updated.Status)
		assert.Equal(t, int64(2), updated.ExecutionToken)
		assert.Equal(t, 0, updated.Progress)
		assert.Empty(t, updated.ErrorCode)

		assert.Len(t, f.scheduler.calls(), 2, "submit once, retry once")
	})

	t.Run("RunningTaskIsNotRetryable", func(t *testing.T) {
		f := newServiceFixture(t)
		job, err := f.service.SubmitJob(ctx, submitRequest(uuid.New(), "", "a"))
		require.NoError(t, err)

		tasks, err := f.tasks.FindByJobID(ctx, job.ID)
		require.NoError(t, err)
		require.NoError(t, f.tasks.UpdateStatus(ctx, tasks[0].ID, domain.TaskStatusRunning))

		_, err = f.service.RetryTask(ctx, tasks[0].ID)
		assert.ErrorIs(t, err, domain.ErrTaskNotRetryable)
	})

	t.Run("CancelledJobBlocksRetry", func(t *testing.T) {
		f := newServiceFixture(t)
		job, err := f.service.SubmitJob(ctx, submitRequest(uuid.New(), "", "a"))
		require.NoError(t, err)
		require.NoError(t, f.service.CancelJob(ctx, job.ID))

		tasks, err := f.tasks.FindByJobID(ctx, job.ID)
		require.NoError(t, err)

		_, err = f.service.RetryTask(ctx, tasks[0].ID)
		assert.ErrorIs(t, err, domain.ErrJobCancelled)
	})
}

func TestGetJob(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t)
	job, err := f.service.SubmitJob(ctx, submitRequest(uuid.New(), "", "a", "b"))
	require.NoError(t, err)

	tasks, err := f.tasks.FindByJobID(ctx, job.ID)
	require.NoError(t, err)

	caption, err := domain.NewCaptionTask(tasks[0].ID, "weekly revenue")
	require.NoError(t, err)
	require.NoError(t, f.captions.Create(ctx, caption))

	detail, err := f.service.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, detail.Job.ID)
	assert.Len(t, detail.RenderTasks, 2)
	require.Contains(t, detail.Captions, tasks[0].ID)
	assert.Len(t, detail.Captions[tasks[0].ID], 1)
	assert.NotContains(t, detail.Captions, tasks[1].ID)
}

func TestGetJobStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("ServedFromCache", func(t *testing.T) {
		f := newServiceFixture(t)
		jobID := uuid.New()
		require.NoError(t, f.cache.SetJobStatus(ctx, jobID, domain.JobStatusRunning))

		status, err := f.service.GetJobStatus(ctx, jobID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusRunning, status)
	})

	t.Run("CacheMissFallsBackToStoreAndRefills", func(t *testing.T) {
		f := newServiceFixture(t)
		job, err := f.service.SubmitJob(ctx, submitRequest(uuid.New(), "", "a"))
		require.NoError(t, err)
		require.NoError(t, f.cache.Delete(ctx, job.ID))

		status, err := f.service.GetJobStatus(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStatusPending, status)

		cached, ok, err := f.cache.GetJobStatus(ctx, job.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, domain.JobStatusPending, cached)
	})

	t.Run("UnknownJobReturnsNotFound", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.service.GetJobStatus(ctx, uuid.New())
		assert.Error(t, err)
	})
}

func TestSubscribeJob(t *testing.T) {
	ctx := context.Background()

	t.Run("UnknownJobIsRejected", func(t *testing.T) {
		f := newServiceFixture(t)
		_, _, err := f.service.SubscribeJob(ctx, uuid.New())
		assert.Error(t, err)
	})

	t.Run("SubscriberReceivesJobEvents", func(t *testing.T) {
		f := newServiceFixture(t)
		job, err := f.service.SubmitJob(ctx, submitRequest(uuid.New(), "", "a"))
		require.NoError(t, err)

		stream, cancel, err := f.service.SubscribeJob(ctx, job.ID)
		require.NoError(t, err)
		defer cancel()

		require.NoError(t, f.service.CancelJob(ctx, job.ID))

		deadline := time.After(2 * time.Second)
		var received []events.Event
		for len(received) < 2 {
			select {
			case event := <-stream:
				received = append(received, event)
			case <-deadline:
				t.Fatalf("timed out after %d events", len(received))
			}
		}

		types := make([]events.Type, 0, len(received))
		for _, event := range received {
			types = append(types, event.EventType)
		}
		assert.Contains(t, types, events.TypeCancelled)
	})
}
