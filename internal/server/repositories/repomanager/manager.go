package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cargohold/internal/dbx"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/packages"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/stats"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so that every
// repository used inside one logical operation shares the same transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Tokens(db dbx.DBTX) tokens.Repository
	Packages(db dbx.DBTX) packages.Repository
	Stats(db dbx.DBTX) stats.Repository
}
