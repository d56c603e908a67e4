package shared

import "context"

// TransactionManager runs a function inside a storage transaction.
// Repositories participating in the transaction pick it up from the context.
// Implemented by the postgres infrastructure layer.
type TransactionManager interface {
	// WithinTx runs fn inside a transaction, committing on nil return and
	// rolling back otherwise. Nested calls join the outer transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
