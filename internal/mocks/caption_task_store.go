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

// MemoryCaptionTaskStore is an in-memory store.CaptionTaskStore for tests.
type MemoryCaptionTaskStore struct {
	mu       sync.RWMutex
	captions map[uuid.UUID]*domain.CaptionTask
}

// NewMemoryCaptionTaskStore creates an empty MemoryCaptionTaskStore.
func NewMemoryCaptionTaskStore() *MemoryCaptionTaskStore {
	return &MemoryCaptionTaskStore{captions: make(map[uuid.UUID]*domain.CaptionTask)}
}

// WithTx returns the same store.
func (s *MemoryCaptionTaskStore) WithTx(tx *sql.Tx) store.CaptionTaskStore { return s }

func (s *MemoryCaptionTaskStore) Create(ctx context.Context, task *domain.CaptionTask) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *task
	s.captions[task.ID] = &clone
	return nil
}

func (s *MemoryCaptionTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.CaptionTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	caption, ok := s.captions[id]
	if !ok {
		return nil, store.ErrCaptionTaskNotFound
	}
	clone := *caption
	return &clone, nil
}

func (s *MemoryCaptionTaskStore) FindByRenderTaskID(ctx context.Context, renderTaskID uuid.UUID) ([]*domain.CaptionTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	captions := []*domain.CaptionTask{}
	for _, caption := range s.captions {
		if caption.RenderTaskID != renderTaskID {
			continue
		}
		clone := *caption
		captions = append(captions, &clone)
	}
	sort.Slice(captions, func(i, j int) bool {
		return captions[i].CreatedAt.Before(captions[j].CreatedAt)
	})
	return captions, nil
}

func (s *MemoryCaptionTaskStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	caption, ok := s.captions[id]
	if !ok {
		return store.ErrCaptionTaskNotFound
	}
	caption.Status = status
	caption.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryCaptionTaskStore) Complete(ctx context.Context, id uuid.UUID, resultText, provider, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	caption, ok := s.captions[id]
	if !ok {
		return store.ErrCaptionTaskNotFound
	}
	caption.Status = domain.TaskStatusSuccess
	caption.ResultText = resultText
	caption.Provider = provider
	caption.Model = model
	caption.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryCaptionTaskStore) Fail(ctx context.Context, id uuid.UUID, errorCode, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	caption, ok := s.captions[id]
	if !ok {
		return store.ErrCaptionTaskNotFound
	}
	caption.Status = domain.TaskStatusFailed
	caption.ErrorCode = errorCode
	caption.ErrorMessage = errorMessage
	caption.UpdatedAt = time.Now().UTC()
	return nil
}

var _ store.CaptionTaskStore = (*MemoryCaptionTaskStore)(nil)
