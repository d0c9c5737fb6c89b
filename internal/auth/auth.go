// Package auth defines the authentication model of the registry: who a
// request comes from and what it is allowed to do.
//
// An Authentication value is constructed once per request, is immutable, and
// carries its capability flags from the moment of construction. Capabilities
// are never re-derived from the principal later, so a token-scoped identity
// keeps the restrictions of its token for the whole request.
package auth

import (
	"github.com/dmitrijs2005/cargohold/internal/apierror"
)

// RoleAdmin is the role name that grants administration rights. Roles are
// stored as a comma-separated list on the user record.
const RoleAdmin = "admin"

// Principal is the identity behind an authenticated request. It is a closed
// set: a human user, a registry-wide service token, or the registry calling
// itself. Consumers switch over the concrete types and can rely on no other
// implementations existing.
type Principal interface {
	isPrincipal()
}

// UserPrincipal is a human user identified by uid and email.
type UserPrincipal struct {
	UID   int64
	Email string
}

// ServicePrincipal is a registry-wide token, e.g. for CI pipelines.
type ServicePrincipal struct {
	TokenID string
}

// SelfPrincipal is the registry itself, used by background jobs.
type SelfPrincipal struct{}

func (UserPrincipal) isPrincipal()    {}
func (ServicePrincipal) isPrincipal() {}
func (SelfPrincipal) isPrincipal()    {}

// Authentication is the resolved identity and capabilities of one request.
type Authentication struct {
	Principal Principal
	CanWrite  bool
	CanAdmin  bool
}

// NewSelf builds the authentication the registry uses for its own operations.
// It carries no capabilities; a background job that mutates state derives its
// rights explicitly, the way the token path does.
func NewSelf() Authentication {
	return Authentication{Principal: SelfPrincipal{}}
}

// NewService builds an authentication for a registry-wide token. The
// capability flags come from the token record.
func NewService(tokenID string, canWrite bool, canAdmin bool) Authentication {
	return Authentication{Principal: ServicePrincipal{TokenID: tokenID}, CanWrite: canWrite, CanAdmin: canAdmin}
}

// NewUser builds an authentication for an interactive user session. Sessions
// carry full capability; scoped access goes through user tokens instead.
func NewUser(uid int64, email string) Authentication {
	return Authentication{Principal: UserPrincipal{UID: uid, Email: email}, CanWrite: true, CanAdmin: true}
}

// NewUserToken builds an authentication for a user acting through one of
// their tokens, restricted to the token's capabilities.
func NewUserToken(uid int64, email string, canWrite bool, canAdmin bool) Authentication {
	return Authentication{Principal: UserPrincipal{UID: uid, Email: email}, CanWrite: canWrite, CanAdmin: canAdmin}
}

// CheckCanWrite returns a Forbidden error when the authentication does not
// allow mutating operations.
func (a Authentication) CheckCanWrite() error {
	if a.CanWrite {
		return nil
	}
	return apierror.Specialize(apierror.Forbidden(), "writing is forbidden for this authentication")
}

// CheckCanAdmin returns a Forbidden error when the authentication does not
// allow administration.
func (a Authentication) CheckCanAdmin() error {
	if a.CanAdmin {
		return nil
	}
	return apierror.Specialize(apierror.Forbidden(), "administration is forbidden for this authentication")
}

// UID returns the user id, or an InvalidRequest error when the principal is
// not a user.
func (a Authentication) UID() (int64, error) {
	if u, ok := a.Principal.(UserPrincipal); ok {
		return u.UID, nil
	}
	return 0, apierror.Specialize(apierror.InvalidRequest(), "Expected a user to be authenticated")
}

// Email returns the user email, or an InvalidRequest error when the principal
// is not a user.
func (a Authentication) Email() (string, error) {
	if u, ok := a.Principal.(UserPrincipal); ok {
		return u.Email, nil
	}
	return "", apierror.Specialize(apierror.InvalidRequest(), "Expected a user to be authenticated")
}
