package mocks

import (
	"context"

	"github.com/plotforge/plotforge-api/internal/render"
)

// StubAlgorithm is a configurable render.Algorithm for tests.
type StubAlgorithm struct {
	AlgName    string
	AlgVersion string
	RunFn      func(ctx context.Context, input render.Input) (*render.Output, error)
}

// NewStubAlgorithm returns a stub that renders one fixed artifact.
func NewStubAlgorithm(name string) *StubAlgorithm {
	return &StubAlgorithm{
		AlgName:    name,
		AlgVersion: "v1",
		RunFn: func(ctx context.Context, input render.Input) (*render.Output, error) {
			return &render.Output{
				Artifacts: map[string][]byte{"chart.png": []byte("png-bytes")},
			}, nil
		},
	}
}

func (a *StubAlgorithm) Name() string    { return a.AlgName }
func (a *StubAlgorithm) Version() string { return a.AlgVersion }

func (a *StubAlgorithm) Run(ctx context.Context, input render.Input) (*render.Output, error) {
	return a.RunFn(ctx, input)
}

var _ render.Algorithm = (*StubAlgorithm)(nil)
