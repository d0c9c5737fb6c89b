package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cargohold/internal/apierror"
	"github.com/dmitrijs2005/cargohold/internal/auth"
	"github.com/dmitrijs2005/cargohold/internal/cargo"
	"github.com/dmitrijs2005/cargohold/internal/common"
	"github.com/dmitrijs2005/cargohold/internal/dbx"
	"github.com/dmitrijs2005/cargohold/internal/server/models"
)

// ListOwners returns the owners of a crate. Reading the owner list only
// requires being authenticated, not ownership.
func (s *CratesService) ListOwners(ctx context.Context, name string) (*models.OwnersQueryResult, error) {
	result := &models.OwnersQueryResult{Users: []models.RegistryUser{}}
	err := s.pool.RunInReadTransaction(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		packagesRepo := s.repmanager.Packages(tx)

		if _, err := packagesRepo.GetPackage(ctx, name); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apierror.Specialize(apierror.NotFound(), "this crate does not exist")
			}
			return err
		}
		owners, err := packagesRepo.ListOwners(ctx, name)
		if err != nil {
			return err
		}
		result.Users = append(result.Users, owners...)
		return nil
	})
	if err != nil {
		return nil, asAPIError(err)
	}

	return result, nil
}

// AddOwners grants ownership of a crate to the given users, identified by
// login. The caller must be an owner or an admin.
func (s *CratesService) AddOwners(ctx context.Context, authn auth.Authentication, name string, logins []string) (*cargo.YesNoMsgResult, error) {
	if err := authn.CheckCanWrite(); err != nil {
		return nil, asAPIError(err)
	}
	uid, err := authn.UID()
	if err != nil {
		return nil, asAPIError(err)
	}

	err = s.pool.RunInWriteTransaction(ctx, "add_crate_owners", func(ctx context.Context, tx dbx.DBTX) error {
		usersRepo := s.repmanager.Users(tx)
		packagesRepo := s.repmanager.Packages(tx)

		if err := checkIsCrateManager(ctx, usersRepo, packagesRepo, uid, name); err != nil {
			return err
		}
		for _, login := range logins {
			user, err := usersRepo.GetByLogin(ctx, login)
			if err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return apierror.Specialize(apierror.InvalidRequest(), fmt.Sprintf("user %q does not exist", login))
				}
				return err
			}
			if err := packagesRepo.AddOwner(ctx, name, user.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, asAPIError(err)
	}

	return cargo.NewYesNoMsgResult(fmt.Sprintf("added %d owner(s) to crate %s", len(logins), name)), nil
}

// RemoveOwners revokes ownership from the given users. Removing the last
// owner is rejected, since an ownerless crate could never be managed again.
func (s *CratesService) RemoveOwners(ctx context.Context, authn auth.Authentication, name string, logins []string) (*cargo.YesNoMsgResult, error) {
	if err := authn.CheckCanWrite(); err != nil {
		return nil, asAPIError(err)
	}
	uid, err := authn.UID()
	if err != nil {
		return nil, asAPIError(err)
	}

	err = s.pool.RunInWriteTransaction(ctx, "remove_crate_owners", func(ctx context.Context, tx dbx.DBTX) error {
		usersRepo := s.repmanager.Users(tx)
		packagesRepo := s.repmanager.Packages(tx)

		if err := checkIsCrateManager(ctx, usersRepo, packagesRepo, uid, name); err != nil {
			return err
		}
		for _, login := range logins {
			user, err := usersRepo.GetByLogin(ctx, login)
			if err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return apierror.Specialize(apierror.InvalidRequest(), fmt.Sprintf("user %q does not exist", login))
				}
				return err
			}
			if err := packagesRepo.RemoveOwner(ctx, name, user.ID); err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return apierror.Specialize(apierror.InvalidRequest(), fmt.Sprintf("user %q is not an owner", login))
				}
				return err
			}
		}

		count, err := packagesRepo.CountOwners(ctx, name)
		if err != nil {
			return err
		}
		if count == 0 {
			return apierror.Specialize(apierror.InvalidRequest(), "cannot remove the last owner of a crate")
		}
		return nil
	})
	if err != nil {
		return nil, asAPIError(err)
	}

	return cargo.NewYesNoMsgResult(fmt.Sprintf("removed %d owner(s) from crate %s", len(logins), name)), nil
}
