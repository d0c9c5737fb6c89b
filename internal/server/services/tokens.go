package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/dmitrijs2005/cargohold/internal/apierror"
	"github.com/dmitrijs2005/cargohold/internal/auth"
	"github.com/dmitrijs2005/cargohold/internal/common"
	"github.com/dmitrijs2005/cargohold/internal/cryptox"
	"github.com/dmitrijs2005/cargohold/internal/dbx"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/tokens"
)

// TokensService issues, lists and revokes registry tokens. Personal tokens
// belong to the calling user; global tokens belong to the registry itself and
// require administration capability.
type TokensService struct {
	pool       *dbx.RWPool
	repmanager repomanager.RepositoryManager
}

func NewTokensService(pool *dbx.RWPool, m repomanager.RepositoryManager) *TokensService {
	return &TokensService{pool: pool, repmanager: m}
}

// CreateUserToken creates a personal token. The returned value is the only
// place the plaintext secret ever exists; the database keeps a salted hash.
func (s *TokensService) CreateUserToken(ctx context.Context, authn auth.Authentication, name string, canWrite bool, canAdmin bool) (*auth.RegistryUserTokenWithSecret, error) {
	uid, err := authn.UID()
	if err != nil {
		return nil, asAPIError(err)
	}
	if name == "" {
		return nil, apierror.Specialize(apierror.InvalidRequest(), "token name must not be empty")
	}
	// A token cannot grant more than the authentication creating it has.
	if canWrite {
		if err := authn.CheckCanWrite(); err != nil {
			return nil, asAPIError(err)
		}
	}
	if canAdmin {
		if err := authn.CheckCanAdmin(); err != nil {
			return nil, asAPIError(err)
		}
	}

	create := func(ctx context.Context, tx dbx.DBTX, token *tokens.NewToken) (int64, error) {
		return s.repmanager.Tokens(tx).CreateUserToken(ctx, uid, token)
	}
	return s.createToken(ctx, "create_user_token", auth.TokenKindUser, name, canWrite, canAdmin, create)
}

// CreateGlobalToken creates a registry-wide token, e.g. for CI. Admin only.
func (s *TokensService) CreateGlobalToken(ctx context.Context, authn auth.Authentication, name string) (*auth.RegistryUserTokenWithSecret, error) {
	if err := authn.CheckCanAdmin(); err != nil {
		return nil, asAPIError(err)
	}
	if name == "" {
		return nil, apierror.Specialize(apierror.InvalidRequest(), "token name must not be empty")
	}

	create := func(ctx context.Context, tx dbx.DBTX, token *tokens.NewToken) (int64, error) {
		return s.repmanager.Tokens(tx).CreateGlobalToken(ctx, token)
	}
	return s.createToken(ctx, "create_global_token", auth.TokenKindGlobal, name, false, false, create)
}

// createToken inserts the token row and then generates the secret for the
// assigned id. Two writes in one transaction: the insert that yields the id,
// and the hash update once the secret embedding that id exists. A duplicate
// name surfaces as a conflict and the rollback leaves no row behind.
func (s *TokensService) createToken(ctx context.Context, operation string, kind auth.TokenKind, name string, canWrite bool, canAdmin bool,
	create func(ctx context.Context, tx dbx.DBTX, token *tokens.NewToken) (int64, error)) (*auth.RegistryUserTokenWithSecret, error) {

	marker, err := cryptox.KindMarker(string(kind))
	if err != nil {
		return nil, apierror.FromBackend(err)
	}
	salt, err := cryptox.NewSalt()
	if err != nil {
		return nil, apierror.FromBackend(err)
	}

	now := time.Now()
	var result *auth.RegistryUserTokenWithSecret
	err = s.pool.RunInWriteTransaction(ctx, operation, func(ctx context.Context, tx dbx.DBTX) error {
		id, err := create(ctx, tx, &tokens.NewToken{
			Name:     name,
			Hash:     []byte{},
			Salt:     salt,
			CanWrite: canWrite,
			CanAdmin: canAdmin,
			LastUsed: now,
		})
		if err != nil {
			if errors.Is(err, common.ErrorTokenNameExists) {
				return apierror.Specialize(apierror.Conflict(), "a token with the same name already exists")
			}
			return err
		}

		secret, err := cryptox.MakeTokenSecret(marker, id)
		if err != nil {
			return err
		}
		hash := cryptox.HashTokenSecret(secret, salt)
		if err := s.repmanager.Tokens(tx).SetHash(ctx, kind, id, hash); err != nil {
			return err
		}

		result = &auth.RegistryUserTokenWithSecret{
			RegistryUserToken: auth.RegistryUserToken{
				ID:       id,
				Name:     name,
				LastUsed: now,
				CanWrite: canWrite,
				CanAdmin: canAdmin,
			},
			Secret: secret,
		}
		return nil
	})
	if err != nil {
		return nil, asAPIError(err)
	}

	return result, nil
}

// ListUserTokens lists the calling user's tokens, without secrets.
func (s *TokensService) ListUserTokens(ctx context.Context, authn auth.Authentication) ([]auth.RegistryUserToken, error) {
	uid, err := authn.UID()
	if err != nil {
		return nil, asAPIError(err)
	}

	var result []auth.RegistryUserToken
	err = s.pool.RunInReadTransaction(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		result, err = s.repmanager.Tokens(tx).ListUserTokens(ctx, uid)
		return err
	})
	if err != nil {
		return nil, asAPIError(err)
	}
	if result == nil {
		result = []auth.RegistryUserToken{}
	}

	return result, nil
}

// ListGlobalTokens lists the registry-wide tokens. Admin only.
func (s *TokensService) ListGlobalTokens(ctx context.Context, authn auth.Authentication) ([]auth.RegistryUserToken, error) {
	if err := authn.CheckCanAdmin(); err != nil {
		return nil, asAPIError(err)
	}

	var result []auth.RegistryUserToken
	err := s.pool.RunInReadTransaction(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		result, err = s.repmanager.Tokens(tx).ListGlobalTokens(ctx)
		return err
	})
	if err != nil {
		return nil, asAPIError(err)
	}
	if result == nil {
		result = []auth.RegistryUserToken{}
	}

	return result, nil
}

// RevokeUserToken revokes one of the calling user's tokens.
func (s *TokensService) RevokeUserToken(ctx context.Context, authn auth.Authentication, id int64) error {
	uid, err := authn.UID()
	if err != nil {
		return asAPIError(err)
	}

	err = s.pool.RunInWriteTransaction(ctx, "revoke_user_token", func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repmanager.Tokens(tx).RevokeUserToken(ctx, uid, id); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apierror.Specialize(apierror.NotFound(), "token "+strconv.FormatInt(id, 10)+" does not exist")
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

// RevokeGlobalToken revokes a registry-wide token. Admin only.
func (s *TokensService) RevokeGlobalToken(ctx context.Context, authn auth.Authentication, id int64) error {
	if err := authn.CheckCanAdmin(); err != nil {
		return asAPIError(err)
	}

	err := s.pool.RunInWriteTransaction(ctx, "revoke_global_token", func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repmanager.Tokens(tx).RevokeGlobalToken(ctx, id); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apierror.Specialize(apierror.NotFound(), "token "+strconv.FormatInt(id, 10)+" does not exist")
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
