package mocks

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/domain"
	"github.com/plotforge/plotforge-api/internal/store"
)

// MemoryJobStore is an in-memory store.JobStore for tests. It enforces the
// same (owner, idempotency key) uniqueness the postgres schema does.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.Job
}

// NewMemoryJobStore creates an empty MemoryJobStore.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[uuid.UUID]*domain.Job)}
}

// WithTx returns the same store; the in-memory implementation has no
// transaction isolation.
func (s *MemoryJobStore) WithTx(tx *sql.Tx) store.JobStore { return s }

func (s *MemoryJobStore) Create(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if job.IdempotencyKey != "" {
		for _, existing := range s.jobs {
			if existing.OwnerID == job.OwnerID && existing.IdempotencyKey == job.IdempotencyKey {
				return fmt.Errorf("%w: owner %s", store.ErrIdempotencyKeyExists, job.OwnerID)
			}
		}
	}

	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *MemoryJobStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	clone := *job
	return &clone, nil
}

func (s *MemoryJobStore) GetByIdempotencyKey(ctx context.Context, ownerID uuid.UUID, key string) (*domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, job := range s.jobs {
		if job.OwnerID == ownerID && job.IdempotencyKey == key {
			clone := *job
			return &clone, nil
		}
	}
	return nil, store.ErrJobNotFound
}

func (s *MemoryJobStore) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.GetByID(ctx, id)
}

func (s *MemoryJobStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	job.Status = status
	job.Progress = progress
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryJobStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return store.ErrJobNotFound
	}
	delete(s.jobs, id)
	return nil
}

var _ store.JobStore = (*MemoryJobStore)(nil)
