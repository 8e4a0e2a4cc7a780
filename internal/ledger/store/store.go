// Package store is the schema and query layer: a statement cache plus a
// serializable transaction executor over a database/sql handle. Reader
// queries and the Validator's consensus checks take the narrow Conn
// interface below, so they run unmodified whether they are looking at the
// live connection pool or a transaction in progress; the Organizer,
// Ingress and the Validator's status finalization work on the *sql.Tx
// that ExecTx hands them.
package store

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
)

// Conn is the subset of *sql.DB / *sql.Tx every query in this package
// needs. Both stdlib types already satisfy it.
type Conn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store owns the connection pool, the prepared statement cache and the
// serializable transaction executor for the blockchain persistence core.
// It is the one shared SQL resource every component depends on.
type Store struct {
	db     *sql.DB
	stmts  *StatementCache
	logger *zap.Logger
	retry  RetryPolicy
}

// New wraps an already-open *sql.DB. The caller owns the DB's lifecycle
// (opening/closing it); Store only prepares and caches statements against
// it.
func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		stmts:  NewStatementCache(db),
		logger: logger,
		retry:  DefaultRetryPolicy(),
	}
}

// DB returns the underlying connection pool for read-only queries that do
// not need transactional isolation (e.g. listing orphan candidates before
// grafting each one under its own transaction).
func (s *Store) DB() *sql.DB { return s.db }

// Stmt returns a statement bound to conn (either the pool or a
// transaction), preparing and caching it against the pool on first use.
func (s *Store) Stmt(ctx context.Context, conn Conn, query string) (*sql.Stmt, error) {
	return s.stmts.Get(ctx, conn, query)
}

// Logger returns the store's structured logger.
func (s *Store) Logger() *zap.Logger { return s.logger }
