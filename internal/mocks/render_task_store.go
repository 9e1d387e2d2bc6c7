package mocks

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/domain"
	"github.com/plotforge/plotforge-api/internal/store"
)

// MemoryRenderTaskStore is an in-memory store.RenderTaskStore for tests,
// including execution-token fencing semantics.
type MemoryRenderTaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.RenderTask
}

// NewMemoryRenderTaskStore creates an empty MemoryRenderTaskStore.
func NewMemoryRenderTaskStore() *MemoryRenderTaskStore {
	return &MemoryRenderTaskStore{tasks: make(map[uuid.UUID]*domain.RenderTask)}
}

// WithTx returns the same store.
func (s *MemoryRenderTaskStore) WithTx(tx *sql.Tx) store.RenderTaskStore { return s }

func (s *MemoryRenderTaskStore) Create(ctx context.Context, task *domain.RenderTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := cloneRenderTask(task)
	s.tasks[task.ID] = clone
	return nil
}

func (s *MemoryRenderTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.RenderTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneRenderTask(task), nil
}

func (s *MemoryRenderTaskStore) FindByJobID(ctx context.Context, jobID uuid.UUID) ([]*domain.RenderTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByJobLocked(jobID, ""), nil
}

func (s *MemoryRenderTaskStore) FindByJobIDForUpdate(ctx context.Context, jobID uuid.UUID) ([]*domain.RenderTask, error) {
	return s.FindByJobID(ctx, jobID)
}

func (s *MemoryRenderTaskStore) FindPendingByJobID(ctx context.Context, jobID uuid.UUID) ([]*domain.RenderTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findByJobLocked(jobID, domain.TaskStatusPending), nil
}

func (s *MemoryRenderTaskStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	task.Status = status
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryRenderTaskStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	task.Progress = progress
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryRenderTaskStore) CompleteIfCurrent(ctx context.Context, task *domain.RenderTask, executionToken int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[task.ID]
	if !ok {
		return store.ErrTaskNotFound
	}
	if current.ExecutionToken != executionToken {
		return store.ErrStaleExecution
	}

	current.Status = task.Status
	current.Progress = task.Progress
	current.Artifacts = task.Artifacts
	current.ResultData = task.ResultData
	current.ErrorCode = task.ErrorCode
	current.ErrorMessage = task.ErrorMessage
	current.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryRenderTaskStore) ResetForRetry(ctx context.Context, id uuid.UUID) (*domain.RenderTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	task.Status = domain.TaskStatusPending
	task.Progress = 0
	task.ErrorCode = ""
	task.ErrorMessage = ""
	task.CorrelationID = uuid.Nil
	task.ExecutionToken++
	task.UpdatedAt = time.Now().UTC()
	return cloneRenderTask(task), nil
}

func (s *MemoryRenderTaskStore) SetCorrelationID(ctx context.Context, id uuid.UUID, correlationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	task.CorrelationID = correlationID
	task.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryRenderTaskStore) findByJobLocked(jobID uuid.UUID, status domain.TaskStatus) []*domain.RenderTask {
	tasks := []*domain.RenderTask{}
	for _, task := range s.tasks {
		if task.JobID != jobID {
			continue
		}
		if status != "" && task.Status != status {
			continue
		}
		tasks = append(tasks, cloneRenderTask(task))
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID.String() < tasks[j].ID.String()
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

func cloneRenderTask(task *domain.RenderTask) *domain.RenderTask {
	clone := *task
	if task.Artifacts != nil {
		clone.Artifacts = make(map[string]string, len(task.Artifacts))
		for k, v := range task.Artifacts {
			clone.Artifacts[k] = v
		}
	}
	return &clone
}

var _ store.RenderTaskStore = (*MemoryRenderTaskStore)(nil)
