package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/edugami/edugami-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION MANAGER
// ══════════════════════════════════════════════════════════════════════════════

// txContextKey carries the active transaction through the context.
type txContextKey struct{}

// TxManager implements shared.TransactionManager on top of pgx transactions.
// The active transaction travels in the context; repositories resolve their
// Querier through QuerierFrom, so the same repository code runs unchanged
// inside and outside a transaction. A nested WithinTx joins the outer
// transaction instead of opening a new one.
type TxManager struct {
	conn *Connection
}

// NewTxManager creates a new TxManager.
func NewTxManager(conn *Connection) *TxManager {
	return &TxManager{conn: conn}
}

var _ shared.TransactionManager = (*TxManager)(nil)

// WithinTx executes fn within a transaction. The transaction commits if fn
// returns nil and rolls back otherwise.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}
	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txContextKey{}, tx))
	})
}

// txFrom returns the transaction bound to the context, if any.
func txFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(pgx.Tx)
	return tx, ok
}

// QuerierFrom returns the transaction bound to the context, or the shared
// connection pool when no transaction is active.
func (c *Connection) QuerierFrom(ctx context.Context) Querier {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return c.Pool()
}
