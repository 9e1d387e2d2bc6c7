// Package storage defines the opaque-path byte storage contract the
// pipeline persists render artifacts through. Concrete backends (object
// stores, local disk) live outside the core.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when reading a path that does not exist.
var ErrNotFound = errors.New("storage path not found")

// Storage stores and retrieves byte blobs addressed by opaque string
// paths. Implementations must be safe for concurrent use.
type Storage interface {
	// Save writes the bytes and returns the canonical path they were
	// stored under (which may differ from the requested one).
	Save(ctx context.Context, path string, data []byte) (string, error)

	// Read returns the bytes at the path.
	// Returns ErrNotFound if the path does not exist.
	Read(ctx context.Context, path string) ([]byte, error)

	// Exists reports whether the path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Delete removes the path, reporting whether anything was removed.
	Delete(ctx context.Context, path string) (bool, error)
}
