// Package packages persists crates: the per-crate row, the per-version index
// records, ownership and download counters.
package packages

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cargohold/internal/server/models"
)

type Repository interface {
	// EnsurePackage inserts the crate row when it does not exist yet and
	// reports whether a row was created.
	EnsurePackage(ctx context.Context, name string, description string) (bool, error)
	GetPackage(ctx context.Context, name string) (*models.Package, error)
	VersionExists(ctx context.Context, name string, version string) (bool, error)
	InsertVersion(ctx context.Context, name string, version string, indexData string, uploadedBy int64, upload time.Time) error
	GetVersion(ctx context.Context, name string, version string) (*models.VersionRow, error)
	ListVersions(ctx context.Context, name string) ([]models.VersionRow, error)
	// ListIndexData returns the serialized index records of every version in
	// publication order, for building the sparse index file.
	ListIndexData(ctx context.Context, name string) ([]string, error)
	// SetYanked flips the yank flag of one version and replaces its stored
	// index record with the reserialized one.
	SetYanked(ctx context.Context, name string, version string, yanked bool, indexData string) error
	ListOwners(ctx context.Context, name string) ([]models.RegistryUser, error)
	CountOwners(ctx context.Context, name string) (int64, error)
	IsOwner(ctx context.Context, name string, userID int64) (bool, error)
	AddOwner(ctx context.Context, name string, userID int64) error
	RemoveOwner(ctx context.Context, name string, userID int64) error
	// Search matches crate names by substring, case-insensitively. It returns
	// at most limit rows plus the total number of matches.
	Search(ctx context.Context, query string, limit int) ([]models.SearchRow, int, error)
	IncrementDownloadCount(ctx context.Context, name string, version string, by int64) error
	SetDepsStatus(ctx context.Context, name string, version string, lastCheck time.Time, hasOutdated bool) error
}
