package stats

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/cargohold/internal/dbx"
	"github.com/dmitrijs2005/cargohold/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetGlobalStats gathers the totals and the three top-10 lists shown on the
// registry's landing page. All five queries run inside one read transaction,
// so the numbers are mutually consistent.
func (r *PostgresRepository) GetGlobalStats(ctx context.Context) (*models.GlobalStats, error) {
	result := &models.GlobalStats{
		CratesNewest:         []models.CrateVersion{},
		CratesMostDownloaded: []models.CrateVersion{},
		CratesLastUpdated:    []models.CrateVersion{},
	}

	countQuery :=
		`SELECT COUNT(name) FROM packages
		 `
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&result.TotalCrates); err != nil {
		return nil, fmt.Errorf("failed to count crates: %w", err)
	}

	downloadsQuery :=
		`SELECT COALESCE(SUM(download_count), 0) FROM package_versions
		 `
	if err := r.db.QueryRowContext(ctx, downloadsQuery).Scan(&result.TotalDownloads); err != nil {
		return nil, fmt.Errorf("failed to count downloads: %w", err)
	}

	// Newest crates are those with exactly one published version, so a crate
	// stops being "new" once it gets its first update.
	newestQuery :=
		`SELECT package, version FROM package_versions v
		 WHERE (SELECT COUNT(version) FROM package_versions WHERE package = v.package) = 1
		 ORDER BY upload DESC
		 LIMIT 10
		 `
	newest, err := r.listCrateVersions(ctx, newestQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to get newest crates: %w", err)
	}
	result.CratesNewest = newest

	mostDownloadedQuery :=
		`SELECT package, '' FROM package_versions
		 GROUP BY package
		 ORDER BY SUM(download_count) DESC
		 LIMIT 10
		 `
	mostDownloaded, err := r.listCrateVersions(ctx, mostDownloadedQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to get most downloaded crates: %w", err)
	}
	result.CratesMostDownloaded = mostDownloaded

	lastUpdatedQuery :=
		`SELECT package, version FROM package_versions
		 ORDER BY upload DESC
		 LIMIT 10
		 `
	lastUpdated, err := r.listCrateVersions(ctx, lastUpdatedQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to get last updated crates: %w", err)
	}
	result.CratesLastUpdated = lastUpdated

	return result, nil
}

func (r *PostgresRepository) listCrateVersions(ctx context.Context, query string) ([]models.CrateVersion, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	versions := []models.CrateVersion{}
	for rows.Next() {
		var v models.CrateVersion
		if err := rows.Scan(&v.Package, &v.Version); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return versions, nil
}
