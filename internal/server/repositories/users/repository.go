package users

import (
	"context"

	"github.com/dmitrijs2005/cargohold/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.RegistryUser) (*models.RegistryUser, error)
	GetByID(ctx context.Context, id int64) (*models.RegistryUser, error)
	GetByLogin(ctx context.Context, login string) (*models.RegistryUser, error)
	GetActiveByEmail(ctx context.Context, email string) (*models.RegistryUser, error)
	GetRoles(ctx context.Context, id int64) (string, error)
	List(ctx context.Context) ([]models.RegistryUser, error)
	SetActive(ctx context.Context, id int64, active bool) error
	UpdateRoles(ctx context.Context, id int64, roles string) error
}
