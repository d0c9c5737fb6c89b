package services

import (
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/cargohold/internal/apierror"
	"github.com/dmitrijs2005/cargohold/internal/auth"
	"github.com/dmitrijs2005/cargohold/internal/common"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/packages"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/users"
)

// checkIsUser resolves an active account by email and returns its id. It
// fails Unauthorized when no active account matches, so a deactivated user
// loses access without their rows being deleted.
func checkIsUser(ctx context.Context, repo users.Repository, email string) (int64, error) {
	user, err := repo.GetActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return 0, apierror.Unauthorized()
		}
		return 0, apierror.FromBackend(err)
	}
	return user.ID, nil
}

// getIsAdmin reports whether the user holds the admin role. Role membership
// is a case-sensitive match of a whitespace-trimmed entry in the
// comma-separated roles list.
func getIsAdmin(ctx context.Context, repo users.Repository, uid int64) (bool, error) {
	roles, err := repo.GetRoles(ctx, uid)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return false, apierror.Forbidden()
		}
		return false, apierror.FromBackend(err)
	}
	for _, role := range strings.Split(roles, ",") {
		if strings.TrimSpace(role) == auth.RoleAdmin {
			return true, nil
		}
	}
	return false, nil
}

func checkIsAdmin(ctx context.Context, repo users.Repository, uid int64) error {
	isAdmin, err := getIsAdmin(ctx, repo, uid)
	if err != nil {
		return err
	}
	if !isAdmin {
		return apierror.Specialize(apierror.Forbidden(), "administration is forbidden for this user")
	}
	return nil
}

// checkIsCrateManager checks that the user may manage the given crate.
// Admins always may; everyone else needs an ownership row.
func checkIsCrateManager(ctx context.Context, usersRepo users.Repository, packagesRepo packages.Repository, uid int64, pkg string) error {
	isAdmin, err := getIsAdmin(ctx, usersRepo, uid)
	if err != nil {
		return err
	}
	if isAdmin {
		return nil
	}
	isOwner, err := packagesRepo.IsOwner(ctx, pkg, uid)
	if err != nil {
		return apierror.FromBackend(err)
	}
	if !isOwner {
		return apierror.Specialize(apierror.Forbidden(), "User is not an owner of this package")
	}
	return nil
}
