// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cargohold/internal/dbx"
	"github.com/dmitrijs2005/cargohold/internal/server/migrations"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/packages"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/stats"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct{}

// Users returns a users.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

// Tokens returns a tokens.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Tokens(db dbx.DBTX) tokens.Repository {
	return tokens.NewPostgresRepository(db)
}

// Packages returns a packages.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Packages(db dbx.DBTX) packages.Repository {
	return packages.NewPostgresRepository(db)
}

// Stats returns a stats.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Stats(db dbx.DBTX) stats.Repository {
	return stats.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetDialect("pgx")
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
