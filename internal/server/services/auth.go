// Package services contains the server-side operations of the registry:
// authentication, publication, crate queries and mutations, token and user
// management, and statistics. Every operation runs inside a transaction
// obtained from the shared pool and reports failures as API errors.
package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/cargohold/internal/apierror"
	"github.com/dmitrijs2005/cargohold/internal/auth"
	"github.com/dmitrijs2005/cargohold/internal/common"
	"github.com/dmitrijs2005/cargohold/internal/cryptox"
	"github.com/dmitrijs2005/cargohold/internal/dbx"
	"github.com/dmitrijs2005/cargohold/internal/server/config"
	"github.com/dmitrijs2005/cargohold/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cargohold/internal/server/sessions"
)

// AuthService resolves credentials into Authentication values: registry
// token secrets for cargo clients and session tokens for the web surface.
type AuthService struct {
	pool            *dbx.RWPool
	repmanager      repomanager.RepositoryManager
	recorder        *EventRecorder
	secretKey       []byte
	sessionValidity time.Duration
}

func NewAuthService(pool *dbx.RWPool, m repomanager.RepositoryManager, recorder *EventRecorder, cfg *config.Config) *AuthService {
	return &AuthService{
		pool:            pool,
		repmanager:      m,
		recorder:        recorder,
		secretKey:       []byte(cfg.SecretKey),
		sessionValidity: cfg.SessionValidityDuration,
	}
}

// Authenticate resolves a presented credential. Registry token secrets are
// recognized by their prefix; anything else is treated as a session token.
func (s *AuthService) Authenticate(ctx context.Context, credential string) (auth.Authentication, error) {
	if credential == "" {
		return auth.Authentication{}, apierror.Unauthorized()
	}
	if strings.HasPrefix(credential, "cgh_") {
		return s.AuthenticateToken(ctx, credential)
	}
	return s.AuthenticateSession(ctx, credential)
}

// AuthenticateToken verifies a registry token secret and returns the
// authentication it grants. A successful use is buffered for the last-used
// timestamp; the read path itself never writes.
func (s *AuthService) AuthenticateToken(ctx context.Context, secret string) (auth.Authentication, error) {
	marker, tokenID, err := cryptox.ParseTokenSecret(secret)
	if err != nil {
		return auth.Authentication{}, apierror.Unauthorized()
	}

	kind := auth.TokenKindUser
	if marker == "g" {
		kind = auth.TokenKindGlobal
	}

	var result auth.Authentication
	err = s.pool.RunInReadTransaction(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		tokensRepo := s.repmanager.Tokens(tx)
		creds, err := tokensRepo.GetCredentials(ctx, kind, tokenID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apierror.Unauthorized()
			}
			return err
		}
		if !cryptox.VerifyTokenSecret(secret, creds.Salt, creds.Hash) {
			return apierror.Unauthorized()
		}

		if kind == auth.TokenKindGlobal {
			result = auth.NewService(strconv.FormatInt(creds.ID, 10), creds.CanWrite, creds.CanAdmin)
			return nil
		}

		usersRepo := s.repmanager.Users(tx)
		user, err := usersRepo.GetByID(ctx, creds.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apierror.Unauthorized()
			}
			return err
		}
		if !user.IsActive {
			return apierror.Unauthorized()
		}
		result = auth.NewUserToken(user.ID, user.Email, creds.CanWrite, creds.CanAdmin)
		return nil
	})
	if err != nil {
		return auth.Authentication{}, asAPIError(err)
	}

	s.recorder.RecordTokenUse(kind, tokenID, time.Now())
	return result, nil
}

// AuthenticateSession verifies a session token and resolves the user it
// names. The account must still be active at request time.
func (s *AuthService) AuthenticateSession(ctx context.Context, token string) (auth.Authentication, error) {
	_, email, err := sessions.ParseToken(token, s.secretKey)
	if err != nil {
		return auth.Authentication{}, apierror.Unauthorized()
	}

	var result auth.Authentication
	err = s.pool.RunInReadTransaction(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		uid, err := checkIsUser(ctx, s.repmanager.Users(tx), email)
		if err != nil {
			return err
		}
		result = auth.NewUser(uid, email)
		return nil
	})
	if err != nil {
		return auth.Authentication{}, asAPIError(err)
	}

	return result, nil
}

// IssueSession mints a session token for an already verified identity. The
// actual identity verification (OAuth or similar) happens outside the
// registry; this is the hand-off point.
func (s *AuthService) IssueSession(ctx context.Context, email string) (string, error) {
	var uid int64
	err := s.pool.RunInReadTransaction(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		uid, err = checkIsUser(ctx, s.repmanager.Users(tx), email)
		return err
	})
	if err != nil {
		return "", asAPIError(err)
	}

	token, err := sessions.GenerateToken(uid, email, s.secretKey, s.sessionValidity)
	if err != nil {
		return "", apierror.FromBackend(err)
	}
	return token, nil
}

// asAPIError converts a failure from the transactional layer into the error
// shown to clients. A workload failure keeps whatever classification the
// workload gave it; infrastructure failures around the workload become
// backend failures with the transaction error as cause.
func asAPIError(err error) *apierror.APIError {
	var txErr *dbx.TxError
	if errors.As(err, &txErr) && txErr.WorkloadFailed() {
		return apierror.FromBackend(txErr.Err)
	}
	return apierror.FromBackend(err)
}
