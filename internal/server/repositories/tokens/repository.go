// Package tokens persists registry credentials: personal user tokens and the
// registry-wide global tokens used by CI pipelines.
package tokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cargohold/internal/auth"
	"github.com/dmitrijs2005/cargohold/internal/server/models"
)

// NewToken is the data stored when a token is created. The plaintext secret
// never reaches this layer.
type NewToken struct {
	Name     string
	Hash     []byte
	Salt     []byte
	CanWrite bool
	CanAdmin bool
	LastUsed time.Time
}

type Repository interface {
	// CreateUserToken inserts a personal token and returns its id. A duplicate
	// name for the same user yields common.ErrorTokenNameExists.
	CreateUserToken(ctx context.Context, userID int64, token *NewToken) (int64, error)
	// CreateGlobalToken inserts a registry-wide token and returns its id. A
	// duplicate name yields common.ErrorTokenNameExists.
	CreateGlobalToken(ctx context.Context, token *NewToken) (int64, error)
	ListUserTokens(ctx context.Context, userID int64) ([]auth.RegistryUserToken, error)
	ListGlobalTokens(ctx context.Context) ([]auth.RegistryUserToken, error)
	// GetCredentials loads the verification data of one token row.
	GetCredentials(ctx context.Context, kind auth.TokenKind, id int64) (*models.TokenCredentials, error)
	// SetHash stores the secret hash of a freshly created token. The secret
	// embeds the token id, so it can only be hashed after the insert.
	SetHash(ctx context.Context, kind auth.TokenKind, id int64, hash []byte) error
	RevokeUserToken(ctx context.Context, userID int64, id int64) error
	RevokeGlobalToken(ctx context.Context, id int64) error
	// TouchLastUsed advances the last-used timestamp of a token.
	TouchLastUsed(ctx context.Context, kind auth.TokenKind, id int64, t time.Time) error
}
