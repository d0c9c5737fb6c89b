// Package dbx provides the transactional access layer shared by all
// repositories: a minimal query interface (DBTX) implemented by both *sql.DB
// and *sql.Tx, and a pool wrapper (RWPool) that hands out read and write
// transactions with single-writer semantics.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
