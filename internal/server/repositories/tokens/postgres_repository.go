package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cargohold/internal/auth"
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

// CreateUserToken checks for a duplicate name first so the caller gets a
// conflict instead of a constraint violation. Both queries run inside the
// caller's write transaction, so the check cannot race another insert.
func (r *PostgresRepository) CreateUserToken(ctx context.Context, userID int64, token *NewToken) (int64, error) {

	checkQuery :=
		`SELECT id FROM registry_user_tokens
		 WHERE user_id = $1 AND name = $2
		 LIMIT 1
		 `

	var existing int64
	err := r.db.QueryRowContext(ctx, checkQuery, userID, token.Name).Scan(&existing)
	if err == nil {
		return 0, common.ErrorTokenNameExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("db error: %w", err)
	}

	insertQuery :=
		`INSERT INTO registry_user_tokens (user_id, name, token_hash, token_salt, last_used, can_write, can_admin)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id
		 `

	var id int64
	err = r.db.QueryRowContext(ctx, insertQuery,
		userID, token.Name, token.Hash, token.Salt, token.LastUsed, token.CanWrite, token.CanAdmin).Scan(&id)

	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return id, nil
}

func (r *PostgresRepository) CreateGlobalToken(ctx context.Context, token *NewToken) (int64, error) {

	checkQuery :=
		`SELECT id FROM registry_global_tokens
		 WHERE name = $1
		 LIMIT 1
		 `

	var existing int64
	err := r.db.QueryRowContext(ctx, checkQuery, token.Name).Scan(&existing)
	if err == nil {
		return 0, common.ErrorTokenNameExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("db error: %w", err)
	}

	insertQuery :=
		`INSERT INTO registry_global_tokens (name, token_hash, token_salt, last_used, can_write, can_admin)
         VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id
		 `

	var id int64
	err = r.db.QueryRowContext(ctx, insertQuery,
		token.Name, token.Hash, token.Salt, token.LastUsed, token.CanWrite, token.CanAdmin).Scan(&id)

	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return id, nil
}

func (r *PostgresRepository) ListUserTokens(ctx context.Context, userID int64) ([]auth.RegistryUserToken, error) {
	query :=
		`SELECT id, name, last_used, can_write, can_admin FROM registry_user_tokens
		 WHERE user_id = $1
		 ORDER BY id
		 `
	return r.list(ctx, query, userID)
}

func (r *PostgresRepository) ListGlobalTokens(ctx context.Context) ([]auth.RegistryUserToken, error) {
	query :=
		`SELECT id, name, last_used, can_write, can_admin FROM registry_global_tokens
		 ORDER BY id
		 `
	return r.list(ctx, query)
}

func (r *PostgresRepository) GetCredentials(ctx context.Context, kind auth.TokenKind, id int64) (*models.TokenCredentials, error) {

	var query string
	switch kind {
	case auth.TokenKindUser:
		query =
			`SELECT id, user_id, token_hash, token_salt, can_write, can_admin FROM registry_user_tokens
			 WHERE id = $1
			 `
	case auth.TokenKindGlobal:
		query =
			`SELECT id, 0, token_hash, token_salt, can_write, can_admin FROM registry_global_tokens
			 WHERE id = $1
			 `
	default:
		return nil, fmt.Errorf("unknown token kind %q", kind)
	}

	creds := &models.TokenCredentials{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&creds.ID, &creds.UserID, &creds.Hash, &creds.Salt, &creds.CanWrite, &creds.CanAdmin)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return creds, nil
}

func (r *PostgresRepository) SetHash(ctx context.Context, kind auth.TokenKind, id int64, hash []byte) error {

	var query string
	switch kind {
	case auth.TokenKindUser:
		query =
			`UPDATE registry_user_tokens SET token_hash = $2
			 WHERE id = $1
			 `
	case auth.TokenKindGlobal:
		query =
			`UPDATE registry_global_tokens SET token_hash = $2
			 WHERE id = $1
			 `
	default:
		return fmt.Errorf("unknown token kind %q", kind)
	}

	res, err := r.db.ExecContext(ctx, query, id, hash)
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

// RevokeUserToken deletes a token only when it belongs to the given user, so
// one user cannot revoke another's token by id.
func (r *PostgresRepository) RevokeUserToken(ctx context.Context, userID int64, id int64) error {
	query :=
		`DELETE FROM registry_user_tokens
		 WHERE id = $1 AND user_id = $2
		 `

	res, err := r.db.ExecContext(ctx, query, id, userID)
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

func (r *PostgresRepository) RevokeGlobalToken(ctx context.Context, id int64) error {
	query :=
		`DELETE FROM registry_global_tokens
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id)
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

func (r *PostgresRepository) TouchLastUsed(ctx context.Context, kind auth.TokenKind, id int64, t time.Time) error {

	var query string
	switch kind {
	case auth.TokenKindUser:
		query =
			`UPDATE registry_user_tokens SET last_used = $2
			 WHERE id = $1
			 `
	case auth.TokenKindGlobal:
		query =
			`UPDATE registry_global_tokens SET last_used = $2
			 WHERE id = $1
			 `
	default:
		return fmt.Errorf("unknown token kind %q", kind)
	}

	if _, err := r.db.ExecContext(ctx, query, id, t); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]auth.RegistryUserToken, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var tokens []auth.RegistryUserToken
	for rows.Next() {
		var t auth.RegistryUserToken
		if err := rows.Scan(&t.ID, &t.Name, &t.LastUsed, &t.CanWrite, &t.CanAdmin); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return tokens, nil
}
