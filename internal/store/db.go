package store

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql calls the stores issue. Both
// *sql.DB and *sql.Tx satisfy it, which is what lets a store run
// standalone or join a caller's transaction through WithTx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
