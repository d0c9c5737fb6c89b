package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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

func (r *PostgresRepository) Create(ctx context.Context, user *models.RegistryUser) (*models.RegistryUser, error) {

	query :=
		`INSERT INTO registry_users (is_active, email, login, name, roles)
         VALUES ($1, $2, $3, $4, $5)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.IsActive, user.Email, user.Login, user.Name, user.Roles).Scan(&user.ID)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.RegistryUser, error) {
	query :=
		`SELECT id, is_active, email, login, name, roles FROM registry_users
		 WHERE id = $1
		 `
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByLogin(ctx context.Context, login string) (*models.RegistryUser, error) {
	query :=
		`SELECT id, is_active, email, login, name, roles FROM registry_users
		 WHERE login = $1
		 `
	return r.scanOne(r.db.QueryRowContext(ctx, query, login))
}

// GetActiveByEmail resolves an active account by email. Deactivated accounts
// are treated as absent, so authentication fails for them.
func (r *PostgresRepository) GetActiveByEmail(ctx context.Context, email string) (*models.RegistryUser, error) {
	query :=
		`SELECT id, is_active, email, login, name, roles FROM registry_users
		 WHERE is_active = TRUE AND email = $1
		 `
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetRoles(ctx context.Context, id int64) (string, error) {
	query :=
		`SELECT roles FROM registry_users
		 WHERE id = $1
		 `

	var roles string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&roles)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}

	return roles, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]models.RegistryUser, error) {
	query :=
		`SELECT id, is_active, email, login, name, roles FROM registry_users
		 ORDER BY id
		 `

	rows, err := r.db.QueryContext(ctx, query)
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

func (r *PostgresRepository) SetActive(ctx context.Context, id int64, active bool) error {
	query :=
		`UPDATE registry_users SET is_active = $2
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, active)
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

func (r *PostgresRepository) UpdateRoles(ctx context.Context, id int64, roles string) error {
	query :=
		`UPDATE registry_users SET roles = $2
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, roles)
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

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.RegistryUser, error) {
	user := &models.RegistryUser{}
	err := row.Scan(&user.ID, &user.IsActive, &user.Email, &user.Login, &user.Name, &user.Roles)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}
