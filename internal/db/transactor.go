package db

import "context"

// Transactor runs repository calls made inside fn within a single storage
// transaction. Compound team mutations (register, unregister, transfer) rely on
// this: either every row change commits or none does.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
