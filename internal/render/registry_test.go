package render

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopAlgorithm struct {
	name string
}

func (a noopAlgorithm) Name() string    { return a.name }
func (a noopAlgorithm) Version() string { return "v1" }
func (a noopAlgorithm) Run(ctx context.Context, input Input) (*Output, error) {
	return &Output{}, nil
}

func TestRegistry(t *testing.T) {
	t.Run("RegisterAndGet", func(t *testing.T) {
		r := NewRegistry()
		r.Register(noopAlgorithm{name: "line_chart"})

		alg, err := r.Get("line_chart")
		require.NoError(t, err)
		assert.Equal(t, "line_chart", alg.Name())
	})

	t.Run("UnknownAlgorithm", func(t *testing.T) {
		r := NewRegistry()
		_, err := r.Get("missing")
		assert.ErrorIs(t, err, ErrUnknownAlgorithm)
	})

	t.Run("RegisterSameNameReplaces", func(t *testing.T) {
		r := NewRegistry()
		r.Register(noopAlgorithm{name: "line_chart"})
		r.Register(noopAlgorithm{name: "line_chart"})

		assert.Len(t, r.Names(), 1)
	})

	t.Run("NamesListsRegistered", func(t *testing.T) {
		r := NewRegistry()
		r.Register(noopAlgorithm{name: "line_chart"})
		r.Register(noopAlgorithm{name: "bar_chart"})

		assert.ElementsMatch(t, []string{"line_chart", "bar_chart"}, r.Names())
	})
}
