// Package render defines the contract between the task pipeline and the
// chart-rendering algorithms. The algorithms themselves live outside this
// core; the pipeline treats them as opaque capabilities looked up through
// an injected Registry.
package render

import (
	"context"
	"encoding/json"
	"errors"
)

// Common errors returned by algorithm implementations. Executors map these
// onto the typed error events recorded on a failing task.
var (
	// ErrValidation is returned when the dataset or parameters are malformed.
	ErrValidation = errors.New("invalid dataset or parameters")

	// ErrRender is returned when the rendering itself fails.
	ErrRender = errors.New("rendering failed")

	// ErrStorage is returned when reading inputs or writing outputs fails.
	ErrStorage = errors.New("storage operation failed")

	// ErrUnknownAlgorithm is returned by the registry for an unregistered identifier.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
)

// Input carries everything an algorithm needs for one run.
type Input struct {
	// DatasetRef is the opaque handle of the normalized dataset.
	DatasetRef string

	// Params is the algorithm-specific parameter document.
	Params json.RawMessage
}

// Output is the result of a successful algorithm run.
type Output struct {
	// Artifacts maps artifact names (e.g. "chart.png") to raw bytes.
	// The executor persists them through the storage contract.
	Artifacts map[string][]byte

	// ResultData is structured result data to store alongside the artifacts.
	ResultData json.RawMessage

	// Metadata is free-form diagnostic information for the event payload.
	Metadata map[string]any
}

// Algorithm renders one chart from a dataset. Implementations fail with
// one of the typed errors above (possibly wrapped) on malformed input or
// rendering failure.
type Algorithm interface {
	// Name returns the algorithm identifier.
	Name() string

	// Version returns the algorithm version string.
	Version() string

	// Run executes the algorithm. It should honor ctx cancellation for
	// long renders.
	Run(ctx context.Context, input Input) (*Output, error)
}
