package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// StatementCache owns prepared statements for the lifetime of a *sql.DB.
// It is an explicit value bound to the store, not a package-level global.
type StatementCache struct {
	db *sql.DB

	mu    sync.Mutex
	stmts map[string]*sql.Stmt
}

// NewStatementCache constructs an empty cache bound to db.
func NewStatementCache(db *sql.DB) *StatementCache {
	return &StatementCache{
		db:    db,
		stmts: make(map[string]*sql.Stmt),
	}
}

// Get returns a statement for query, bound to conn. The statement itself is
// prepared once against the pool and cached by query text; when conn is a
// transaction, the cached statement is rebound to that transaction via
// Tx.StmtContext, which reuses the already-parsed/planned statement rather
// than re-preparing it.
func (c *StatementCache) Get(ctx context.Context, conn Conn, query string) (*sql.Stmt, error) {
	dbStmt, err := c.prepared(ctx, query)
	if err != nil {
		return nil, err
	}

	switch typed := conn.(type) {
	case *sql.Tx:
		return typed.StmtContext(ctx, dbStmt), nil
	case *sql.DB:
		return dbStmt, nil
	default:
		return nil, fmt.Errorf("store: unsupported connection type %T", conn)
	}
}

func (c *StatementCache) prepared(ctx context.Context, query string) (*sql.Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if stmt, ok := c.stmts[query]; ok {
		return stmt, nil
	}

	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("prepare statement: %w", err)
	}
	c.stmts[query] = stmt
	return stmt, nil
}

// Close releases every prepared statement. Call it when the store itself
// is being shut down.
func (c *StatementCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for query, stmt := range c.stmts {
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close statement for %q: %w", query, err)
		}
	}
	c.stmts = make(map[string]*sql.Stmt)
	return firstErr
}
