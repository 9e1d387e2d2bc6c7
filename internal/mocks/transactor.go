package mocks

import (
	"context"

	"github.com/plotforge/plotforge-api/internal/store"
)

// Transactor satisfies store.Transactor without a database: the function
// runs with a nil transaction, which the in-memory stores ignore.
type Transactor struct{}

// RunInTransaction implements store.Transactor.
func (Transactor) RunInTransaction(ctx context.Context, fn store.TxFn) error {
	return fn(ctx, nil)
}

var _ store.Transactor = Transactor{}
