package storage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStorage is an in-process Storage implementation used in tests and
// single-node development setups.
type MemoryStorage struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		blobs: make(map[string][]byte),
	}
}

func (s *MemoryStorage) Save(ctx context.Context, path string, data []byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("storage path cannot be empty")
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[path] = buf
	return path, nil
}

func (s *MemoryStorage) Read(ctx context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (s *MemoryStorage) Exists(ctx context.Context, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[path]
	return ok, nil
}

func (s *MemoryStorage) Delete(ctx context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[path]; !ok {
		return false, nil
	}
	delete(s.blobs, path)
	return true, nil
}

var _ Storage = (*MemoryStorage)(nil)
