package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/cargohold/internal/apierror"
	"github.com/dmitrijs2005/cargohold/internal/auth"
	"github.com/dmitrijs2005/cargohold/internal/common"
	"github.com/dmitrijs2005/cargohold/internal/dbx"
	"github.com/dmitrijs2005/cargohold/internal/server/models"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/repomanager"
)

// UsersService provisions accounts. Identity verification (OAuth or similar)
// lives outside the registry, so accounts are created and managed by admins.
type UsersService struct {
	pool       *dbx.RWPool
	repmanager repomanager.RepositoryManager
}

func NewUsersService(pool *dbx.RWPool, m repomanager.RepositoryManager) *UsersService {
	return &UsersService{pool: pool, repmanager: m}
}

// CreateUser provisions a new active account. Admin only.
func (s *UsersService) CreateUser(ctx context.Context, authn auth.Authentication, email string, login string, name string, roles string) (*models.RegistryUser, error) {
	if err := authn.CheckCanAdmin(); err != nil {
		return nil, asAPIError(err)
	}
	if email == "" || login == "" {
		return nil, apierror.Specialize(apierror.InvalidRequest(), "email and login must not be empty")
	}

	user := &models.RegistryUser{IsActive: true, Email: email, Login: login, Name: name, Roles: roles}
	err := s.pool.RunInWriteTransaction(ctx, "create_user", func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.repmanager.Users(tx).Create(ctx, user)
		return err
	})
	if err != nil {
		return nil, asAPIError(err)
	}

	return user, nil
}

// ListUsers lists every account. Admin only.
func (s *UsersService) ListUsers(ctx context.Context, authn auth.Authentication) ([]models.RegistryUser, error) {
	if err := authn.CheckCanAdmin(); err != nil {
		return nil, asAPIError(err)
	}

	var result []models.RegistryUser
	err := s.pool.RunInReadTransaction(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		result, err = s.repmanager.Users(tx).List(ctx)
		return err
	})
	if err != nil {
		return nil, asAPIError(err)
	}
	if result == nil {
		result = []models.RegistryUser{}
	}

	return result, nil
}

// SetUserActive activates or deactivates an account. Deactivation revokes
// access immediately, since every authentication re-checks the account.
func (s *UsersService) SetUserActive(ctx context.Context, authn auth.Authentication, uid int64, active bool) error {
	if err := authn.CheckCanAdmin(); err != nil {
		return asAPIError(err)
	}
	if cur, err := authn.UID(); err == nil && cur == uid && !active {
		return apierror.Specialize(apierror.InvalidRequest(), "cannot deactivate your own account")
	}

	err := s.pool.RunInWriteTransaction(ctx, "set_user_active", func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repmanager.Users(tx).SetActive(ctx, uid, active); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apierror.Specialize(apierror.NotFound(), "this user does not exist")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return asAPIError(err)
	}

	return nil
}

// UpdateUserRoles replaces the roles list of an account. Admin only.
func (s *UsersService) UpdateUserRoles(ctx context.Context, authn auth.Authentication, uid int64, roles string) error {
	if err := authn.CheckCanAdmin(); err != nil {
		return asAPIError(err)
	}

	err := s.pool.RunInWriteTransaction(ctx, "update_user_roles", func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repmanager.Users(tx).UpdateRoles(ctx, uid, roles); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apierror.Specialize(apierror.NotFound(), "this user does not exist")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return asAPIError(err)
	}

	return nil
}
