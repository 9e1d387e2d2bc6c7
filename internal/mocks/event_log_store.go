package mocks

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/plotforge/plotforge-api/internal/domain"
	"github.com/plotforge/plotforge-api/internal/store"
)

// MemoryEventLogStore is an in-memory append-only store.EventLogStore for
// tests. FindByJobID relies on the bus having resolved the owning job onto
// each row, which mirrors how every row is written in practice.
type MemoryEventLogStore struct {
	mu     sync.RWMutex
	events []*domain.EventLog
}

// NewMemoryEventLogStore creates an empty MemoryEventLogStore.
func NewMemoryEventLogStore() *MemoryEventLogStore {
	return &MemoryEventLogStore{}
}

// WithTx returns the same store.
func (s *MemoryEventLogStore) WithTx(tx *sql.Tx) store.EventLogStore { return s }

func (s *MemoryEventLogStore) Append(ctx context.Context, event *domain.EventLog) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *event
	s.events = append(s.events, &clone)
	return nil
}

func (s *MemoryEventLogStore) FindByJobID(ctx context.Context, jobID uuid.UUID) ([]*domain.EventLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := []*domain.EventLog{}
	for _, event := range s.events {
		if event.JobID != nil && *event.JobID == jobID {
			clone := *event
			events = append(events, &clone)
		}
	}
	return events, nil
}

func (s *MemoryEventLogStore) CountByJobID(ctx context.Context, jobID uuid.UUID) (int, error) {
	events, err := s.FindByJobID(ctx, jobID)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// All returns every appended row in order, for test assertions.
func (s *MemoryEventLogStore) All() []*domain.EventLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]*domain.EventLog, len(s.events))
	copy(events, s.events)
	return events
}

var _ store.EventLogStore = (*MemoryEventLogStore)(nil)
