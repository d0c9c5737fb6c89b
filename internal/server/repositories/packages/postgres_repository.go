package packages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/cargohold/internal/common"
	"github.com/dmitrijs2005/cargohold/internal/dbx"
	"github.com/dmitrijs2005/cargohold/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) EnsurePackage(ctx context.Context, name string, description string) (bool, error) {
	query :=
		`INSERT INTO packages (name, description)
         VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING
		 `

	res, err := r.db.ExecContext(ctx, query, name, description)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return affected > 0, nil
}

func (r *PostgresRepository) GetPackage(ctx context.Context, name string) (*models.Package, error) {
	query :=
		`SELECT name, description, is_deprecated FROM packages
		 WHERE name = $1
		 `

	p := &models.Package{}
	err := r.db.QueryRowContext(ctx, query, name).Scan(&p.Name, &p.Description, &p.IsDeprecated)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return p, nil
}

func (r *PostgresRepository) VersionExists(ctx context.Context, name string, version string) (bool, error) {
	query :=
		`SELECT id FROM package_versions
		 WHERE package = $1 AND version = $2
		 LIMIT 1
		 `

	var id int64
	err := r.db.QueryRowContext(ctx, query, name, version).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}

	return true, nil
}

func (r *PostgresRepository) InsertVersion(ctx context.Context, name string, version string, indexData string, uploadedBy int64, upload time.Time) error {
	query :=
		`INSERT INTO package_versions (package, version, index_data, uploaded_by, upload)
         VALUES ($1, $2, $3, $4, $5)
		 `

	if _, err := r.db.ExecContext(ctx, query, name, version, indexData, uploadedBy, upload); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetVersion(ctx context.Context, name string, version string) (*models.VersionRow, error) {
	query :=
		`SELECT v.version, v.index_data, v.upload, v.yanked, v.download_count, v.deps_last_check, v.deps_has_outdated,
		        u.id, u.is_active, u.email, u.login, u.name, u.roles
		 FROM package_versions v
		 INNER JOIN registry_users u ON u.id = v.uploaded_by
		 WHERE v.package = $1 AND v.version = $2
		 `

	row := &models.VersionRow{}
	err := r.db.QueryRowContext(ctx, query, name, version).Scan(
		&row.Version, &row.IndexData, &row.Upload, &row.Yanked, &row.DownloadCount, &row.DepsLastCheck, &row.DepsHasOutdated,
		&row.UploadedBy.ID, &row.UploadedBy.IsActive, &row.UploadedBy.Email, &row.UploadedBy.Login, &row.UploadedBy.Name, &row.UploadedBy.Roles)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return row, nil
}

func (r *PostgresRepository) ListVersions(ctx context.Context, name string) ([]models.VersionRow, error) {
	query :=
		`SELECT v.version, v.index_data, v.upload, v.yanked, v.download_count, v.deps_last_check, v.deps_has_outdated,
		        u.id, u.is_active, u.email, u.login, u.name, u.roles
		 FROM package_versions v
		 INNER JOIN registry_users u ON u.id = v.uploaded_by
		 WHERE v.package = $1
		 ORDER BY v.id
		 `

	rows, err := r.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var versions []models.VersionRow
	for rows.Next() {
		var row models.VersionRow
		if err := rows.Scan(
			&row.Version, &row.IndexData, &row.Upload, &row.Yanked, &row.DownloadCount, &row.DepsLastCheck, &row.DepsHasOutdated,
			&row.UploadedBy.ID, &row.UploadedBy.IsActive, &row.UploadedBy.Email, &row.UploadedBy.Login, &row.UploadedBy.Name, &row.UploadedBy.Roles); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		versions = append(versions, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return versions, nil
}

// ListIndexData matches the crate name case-insensitively: the sparse index
// layout lowercases names, so lookups arrive lowercased regardless of how the
// crate was published.
func (r *PostgresRepository) ListIndexData(ctx context.Context, name string) ([]string, error) {
	query :=
		`SELECT index_data FROM package_versions
		 WHERE LOWER(package) = LOWER($1)
		 ORDER BY id
		 `

	rows, err := r.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var records []string
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		records = append(records, data)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return records, nil
}

func (r *PostgresRepository) SetYanked(ctx context.Context, name string, version string, yanked bool, indexData string) error {
	query :=
		`UPDATE package_versions SET yanked = $3, index_data = $4
		 WHERE package = $1 AND version = $2
		 `

	res, err := r.db.ExecContext(ctx, query, name, version, yanked, indexData)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}

	return nil
}

func (r *PostgresRepository) ListOwners(ctx context.Context, name string) ([]models.RegistryUser, error) {
	query :=
		`SELECT u.id, u.is_active, u.email, u.login, u.name, u.roles
		 FROM package_owners o
		 INNER JOIN registry_users u ON u.id = o.owner
		 WHERE o.package = $1
		 ORDER BY u.id
		 `

	rows, err := r.db.QueryContext(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var users []models.RegistryUser
	for rows.Next() {
		var u models.RegistryUser
		if err := rows.Scan(&u.ID, &u.IsActive, &u.Email, &u.Login, &u.Name, &u.Roles); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return users, nil
}

func (r *PostgresRepository) CountOwners(ctx context.Context, name string) (int64, error) {
	query :=
		`SELECT COUNT(owner) FROM package_owners
		 WHERE package = $1
		 `

	var count int64
	if err := r.db.QueryRowContext(ctx, query, name).Scan(&count); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return count, nil
}

func (r *PostgresRepository) IsOwner(ctx context.Context, name string, userID int64) (bool, error) {
	query :=
		`SELECT owner FROM package_owners
		 WHERE package = $1 AND owner = $2
		 LIMIT 1
		 `

	var owner int64
	err := r.db.QueryRowContext(ctx, query, name, userID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}

	return true, nil
}

func (r *PostgresRepository) AddOwner(ctx context.Context, name string, userID int64) error {
	query :=
		`INSERT INTO package_owners (package, owner)
         VALUES ($1, $2)
		 ON CONFLICT (package, owner) DO NOTHING
		 `

	if _, err := r.db.ExecContext(ctx, query, name, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) RemoveOwner(ctx context.Context, name string, userID int64) error {
	query :=
		`DELETE FROM package_owners
		 WHERE package = $1 AND owner = $2
		 `

	res, err := r.db.ExecContext(ctx, query, name, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}

	return nil
}

// escapeLike neutralizes the ILIKE metacharacters in user input. Backslash is
// the default Postgres escape character.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *PostgresRepository) Search(ctx context.Context, query string, limit int) ([]models.SearchRow, int, error) {
	pattern := "%" + escapeLike(query) + "%"

	countQuery :=
		`SELECT COUNT(name) FROM packages
		 WHERE name ILIKE $1
		 `

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	selectQuery :=
		`SELECT name, description, is_deprecated FROM packages
		 WHERE name ILIKE $1
		 ORDER BY name
		 LIMIT $2
		 `

	rows, err := r.db.QueryContext(ctx, selectQuery, pattern, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var results []models.SearchRow
	for rows.Next() {
		var row models.SearchRow
		if err := rows.Scan(&row.Name, &row.Description, &row.IsDeprecated); err != nil {
			return nil, 0, fmt.Errorf("db error: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	return results, total, nil
}

func (r *PostgresRepository) IncrementDownloadCount(ctx context.Context, name string, version string, by int64) error {
	query :=
		`UPDATE package_versions SET download_count = download_count + $3
		 WHERE package = $1 AND version = $2
		 `

	if _, err := r.db.ExecContext(ctx, query, name, version, by); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) SetDepsStatus(ctx context.Context, name string, version string, lastCheck time.Time, hasOutdated bool) error {
	query :=
		`UPDATE package_versions SET deps_last_check = $3, deps_has_outdated = $4
		 WHERE package = $1 AND version = $2
		 `

	res, err := r.db.ExecContext(ctx, query, name, version, lastCheck, hasOutdated)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrorNotFound
	}

	return nil
}
